// Package csv reads and writes expense training sets and scoring results as
// CSV.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/spendguard/pkg/expense"
)

// Reader reads expense feature vectors from a CSV file.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	strict    bool
	columns   [expense.NumFeatures]int
	skipped   int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row. When it does, columns are
// located by name, so their order does not matter.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithStrict makes Read fail on the first malformed row instead of skipping it.
func WithStrict(strict bool) Option {
	return func(r *Reader) {
		r.strict = strict
	}
}

// NewReader opens filename for reading.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

func newReader(src io.Reader, opts ...Option) (*Reader, error) {
	r := &Reader{
		reader:    csv.NewReader(src),
		hasHeader: true,
		columns:   [expense.NumFeatures]int{0, 1, 2, 3},
	}
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if err := r.locateColumns(headers); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) locateColumns(headers []string) error {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for i, name := range expense.FeatureNames() {
		col, ok := index[name]
		if !ok {
			return fmt.Errorf("missing column %q", name)
		}
		r.columns[i] = col
	}
	return nil
}

// Skipped returns how many malformed rows the last Read or Stream dropped.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Read returns every valid row.
func (r *Reader) Read(ctx context.Context) ([]expense.FeatureVector, error) {
	var data []expense.FeatureVector
	r.skipped = 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		v, err := r.next()
		if errors.Is(err, io.EOF) {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
		data = append(data, v)
	}
}

// Stream sends every valid row to out and closes out when it returns. It
// stops early with the first read error or when ctx is done.
func (r *Reader) Stream(ctx context.Context, out chan<- expense.FeatureVector) error {
	defer close(out)
	r.skipped = 0

	for {
		v, err := r.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case out <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// next returns the next valid row or io.EOF. Outside strict mode, rows that
// fail to parse as CSV or as a feature vector are counted and skipped; any
// other read error is returned.
func (r *Reader) next() (expense.FeatureVector, error) {
	for {
		record, err := r.reader.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if !r.strict && errors.As(err, &parseErr) {
				r.skipped++
				continue
			}
			return expense.FeatureVector{}, err
		}

		v, err := r.parseRow(record)
		if err != nil {
			if r.strict {
				line, _ := r.reader.FieldPos(0)
				return expense.FeatureVector{}, fmt.Errorf("line %d: %w", line, err)
			}
			r.skipped++
			continue
		}
		return v, nil
	}
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts a record into a validated feature vector.
func (r *Reader) parseRow(record []string) (expense.FeatureVector, error) {
	if len(record) == 0 {
		return expense.FeatureVector{}, errors.New("empty row")
	}

	row := make([]float64, expense.NumFeatures)
	for i, col := range r.columns {
		if col >= len(record) {
			return expense.FeatureVector{}, fmt.Errorf("row has %d fields, column %d missing", len(record), col)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
		if err != nil {
			return expense.FeatureVector{}, err
		}
		row[i] = f
	}
	return expense.FromFeatures(row)
}

package csv

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/hed1ad/spendguard/pkg/expense"
	pkgio "github.com/hed1ad/spendguard/pkg/io"
)

// WriteTrainingSet writes vectors with a header row.
func WriteTrainingSet(w io.Writer, vs []expense.FeatureVector) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(expense.FeatureNames()); err != nil {
		return err
	}
	for _, v := range vs {
		if err := cw.Write(featureFields(v)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func featureFields(v expense.FeatureVector) []string {
	return []string{
		strconv.FormatFloat(v.Amount, 'f', -1, 64),
		strconv.Itoa(v.CategoryID),
		strconv.Itoa(v.DayOfWeek),
		strconv.Itoa(v.RoleEncoded),
	}
}

// ResultWriter writes scoring results as CSV rows.
type ResultWriter struct {
	cw          *csv.Writer
	closer      io.Closer
	wroteHeader bool
}

var _ pkgio.Writer = (*ResultWriter)(nil)

// NewResultWriter writes to w. If w is an io.Closer it is closed by Close.
func NewResultWriter(w io.Writer) *ResultWriter {
	rw := &ResultWriter{cw: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		rw.closer = c
	}
	return rw
}

// Write outputs a single result.
func (w *ResultWriter) Write(result pkgio.Result) error {
	if !w.wroteHeader {
		header := append([]string{"timestamp"}, expense.FeatureNames()...)
		header = append(header, "is_anomaly", "severity_score", "confidence")
		if err := w.cw.Write(header); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	row := []string{strconv.FormatInt(result.Timestamp, 10)}
	row = append(row, featureFields(result.Expense)...)
	row = append(row,
		strconv.FormatBool(result.IsAnomaly),
		strconv.FormatFloat(result.SeverityScore, 'f', -1, 64),
		result.Confidence,
	)
	if err := w.cw.Write(row); err != nil {
		return err
	}
	w.cw.Flush()
	return w.cw.Error()
}

// Close flushes pending output.
func (w *ResultWriter) Close() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

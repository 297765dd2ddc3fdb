package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/expense"
	pkgio "github.com/hed1ad/spendguard/pkg/io"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expenses.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		opts        []Option
		want        []expense.FeatureVector
		wantSkipped int
		wantErr     bool
	}{
		{
			name:    "header in model order",
			content: "amount,category_id,day_of_week,role_encoded\n52.5,1,2,1\n210,2,4,2\n",
			want: []expense.FeatureVector{
				{Amount: 52.5, CategoryID: 1, DayOfWeek: 2, RoleEncoded: 1},
				{Amount: 210, CategoryID: 2, DayOfWeek: 4, RoleEncoded: 2},
			},
		},
		{
			name:    "header reordered",
			content: "role_encoded, day_of_week, amount, category_id\n1,3,40,1\n",
			want: []expense.FeatureVector{
				{Amount: 40, CategoryID: 1, DayOfWeek: 3, RoleEncoded: 1},
			},
		},
		{
			name:    "no header",
			content: "12,3,0,1\n",
			opts:    []Option{WithHeader(false)},
			want: []expense.FeatureVector{
				{Amount: 12, CategoryID: 3, DayOfWeek: 0, RoleEncoded: 1},
			},
		},
		{
			name:        "malformed rows skipped",
			content:     "amount,category_id,day_of_week,role_encoded\n52,1,2,1\nabc,1,2,1\n-5,1,2,1\n60,1,9,1\n61,1,1,1\n",
			want:        []expense.FeatureVector{{Amount: 52, CategoryID: 1, DayOfWeek: 2, RoleEncoded: 1}, {Amount: 61, CategoryID: 1, DayOfWeek: 1, RoleEncoded: 1}},
			wantSkipped: 3,
		},
		{
			name:    "strict fails on malformed row",
			content: "amount,category_id,day_of_week,role_encoded\n52,1,2,1\nabc,1,2,1\n",
			opts:    []Option{WithStrict(true)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(writeFile(t, tt.content), tt.opts...)
			require.NoError(t, err)
			defer r.Close()

			got, err := r.Read(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSkipped, r.Skipped())
		})
	}
}

func TestNewReaderMissingColumn(t *testing.T) {
	_, err := NewReader(writeFile(t, "amount,category_id,day_of_week\n1,2,3\n"))
	assert.ErrorContains(t, err, "role_encoded")

	_, err = NewReader(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestStream(t *testing.T) {
	r, err := NewReader(writeFile(t, "amount,category_id,day_of_week,role_encoded\n1,1,1,1\nbad\n2,1,1,1\n"))
	require.NoError(t, err)
	defer r.Close()

	ch := make(chan expense.FeatureVector)
	errc := make(chan error, 1)
	go func() { errc <- r.Stream(context.Background(), ch) }()

	var got []float64
	for v := range ch {
		got = append(got, v.Amount)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, 1, r.Skipped())
}

func TestStreamCancelled(t *testing.T) {
	r, err := newReader(strings.NewReader("amount,category_id,day_of_week,role_encoded\n1,1,1,1\n2,1,1,1\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never read, so the send can only lose to ctx.
	err = r.Stream(ctx, make(chan expense.FeatureVector))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadSkipsOnlyParseErrors(t *testing.T) {
	content := "amount,category_id,day_of_week,role_encoded\n52,1,2,1\n5\"2,1,2,1\n1,2,3\n61,1,1,1\n"

	r, err := newReader(strings.NewReader(content))
	require.NoError(t, err)

	got, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, r.Skipped())

	r, err = newReader(strings.NewReader(content), WithStrict(true))
	require.NoError(t, err)

	_, err = r.Read(context.Background())
	var parseErr *csv.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestReadReturnsIOErrors(t *testing.T) {
	errDisk := errors.New("disk gone")
	src := func() io.Reader {
		return io.MultiReader(
			strings.NewReader("amount,category_id,day_of_week,role_encoded\n52,1,2,1\n"),
			iotest.ErrReader(errDisk),
		)
	}

	r, err := newReader(src())
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	assert.ErrorIs(t, err, errDisk)

	r, err = newReader(src())
	require.NoError(t, err)
	ch := make(chan expense.FeatureVector, 4)
	assert.ErrorIs(t, r.Stream(context.Background(), ch), errDisk)

	var rows int
	for range ch {
		rows++
	}
	assert.Equal(t, 1, rows)
}

func TestTrainingSetRoundTrip(t *testing.T) {
	vs := expense.Synthetic(3, 10, 5)

	var buf bytes.Buffer
	require.NoError(t, WriteTrainingSet(&buf, vs))

	r, err := newReader(&buf, WithStrict(true))
	require.NoError(t, err)

	got, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vs, got)
}

func TestResultWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewResultWriter(&buf)

	results := []pkgio.Result{
		{
			Timestamp:   1700000000,
			Expense:     expense.FeatureVector{Amount: 5000, CategoryID: 1, DayOfWeek: 6, RoleEncoded: 1},
			ScoreResult: detectors.NewScoreResult(0.7, 0.5),
		},
		{
			Timestamp:   1700000001,
			Expense:     expense.FeatureVector{Amount: 52, CategoryID: 1, DayOfWeek: 2, RoleEncoded: 1},
			ScoreResult: detectors.NewScoreResult(0.25, 0.5),
		},
	}
	for _, r := range results {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,amount,category_id,day_of_week,role_encoded,is_anomaly,severity_score,confidence", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1700000000,5000,1,6,1,true,"))
	assert.True(t, strings.HasSuffix(lines[1], ",0.2000"))
	assert.Equal(t, "1700000001,52,1,2,1,false,0.25,0.2500", lines[2])
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/spendguard/pkg/expense"
)

var columns = []string{"amount", "category_id", "date_incurred", "role"}

func TestRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	wednesday := time.Date(2024, time.January, 3, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, time.January, 7, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT e.amount::text").
		WithArgs(500).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("52.50", 1, wednesday, "Employee").
			AddRow("999.00", 6, sunday, "Manager").
			AddRow("120", 5, wednesday, "Admin"))

	src := NewSource(mock, 500)
	got, err := src.Read(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []expense.FeatureVector{
		{Amount: 52.5, CategoryID: 1, DayOfWeek: 2, RoleEncoded: expense.RoleEmployee},
		{Amount: 999, CategoryID: 6, DayOfWeek: 6, RoleEncoded: expense.RoleManager},
		{Amount: 120, CategoryID: 5, DayOfWeek: 2, RoleEncoded: expense.RoleEmployee},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, src.Close())
}

func TestReadDefaultLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM expenses").
		WithArgs(DefaultLimit).
		WillReturnRows(pgxmock.NewRows(columns))

	got, err := NewSource(mock, 0).Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name   string
		expect func(m pgxmock.PgxPoolIface)
	}{
		{
			name: "query fails",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("FROM expenses").WithArgs(10).WillReturnError(errors.New("connection reset"))
			},
		},
		{
			name: "amount not numeric",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("FROM expenses").WithArgs(10).
					WillReturnRows(pgxmock.NewRows(columns).AddRow("n/a", 1, time.Now(), "Employee"))
			},
		},
		{
			name: "negative amount",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("FROM expenses").WithArgs(10).
					WillReturnRows(pgxmock.NewRows(columns).AddRow("-3.00", 1, time.Now(), "Employee"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.expect(mock)

			_, err = NewSource(mock, 10).Read(context.Background())
			assert.Error(t, err)
		})
	}
}

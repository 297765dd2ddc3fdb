// Package postgres loads expense training sets from the expenses table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hed1ad/spendguard/pkg/expense"
	pkgio "github.com/hed1ad/spendguard/pkg/io"
)

// DefaultLimit bounds how many recent expenses are loaded.
const DefaultLimit = 10000

// Flagged expenses are excluded so earlier detections do not teach the model
// that anomalies are normal.
const trainingQuery = `
SELECT e.amount::text, e.category_id, e.date_incurred, COALESCE(emp.role, 'Employee')
FROM expenses e
LEFT JOIN employees emp ON emp.id = e.user_id
WHERE e.status <> 'Flagged'
ORDER BY e.date_incurred DESC
LIMIT $1`

// Querier is the subset of pgx used by Source.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Source reads training vectors from Postgres.
type Source struct {
	db    Querier
	limit int
	close func()
}

var _ pkgio.TrainingSource = (*Source)(nil)

// NewSource wraps an existing connection or pool.
func NewSource(db Querier, limit int) *Source {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Source{db: db, limit: limit}
}

// Connect opens a pool for databaseURL and verifies it.
func Connect(ctx context.Context, databaseURL string, limit int) (*Source, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := NewSource(pool, limit)
	s.close = pool.Close
	return s, nil
}

// Read loads the most recent expenses and derives their feature vectors.
func (s *Source) Read(ctx context.Context) ([]expense.FeatureVector, error) {
	rows, err := s.db.Query(ctx, trainingQuery, s.limit)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []expense.FeatureVector
	for rows.Next() {
		var (
			amountText string
			categoryID int
			incurred   time.Time
			role       string
		)
		if err := rows.Scan(&amountText, &categoryID, &incurred, &role); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}

		amount, err := decimal.NewFromString(amountText)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amountText, err)
		}
		f, _ := amount.Float64()

		v := expense.FeatureVector{
			Amount:      f,
			CategoryID:  categoryID,
			DayOfWeek:   expense.DayOfWeek(incurred),
			RoleEncoded: expense.EncodeRole(role),
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// Close releases the pool when Source owns it.
func (s *Source) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

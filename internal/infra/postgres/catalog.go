package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionCatalog answers existence queries against the question store. The
// quiz core never dereferences question content; it only needs to know which
// submitted IDs still exist so the interaction batch can drop the rest.
type QuestionCatalog struct {
	pool *pgxpool.Pool
}

func NewQuestionCatalog(pool *pgxpool.Pool) *QuestionCatalog {
	return &QuestionCatalog{pool: pool}
}

// Existing returns the subset of ids present in the catalog.
func (c *QuestionCatalog) Existing(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	if len(ids) == 0 {
		return map[int64]struct{}{}, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT id FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	known := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		known[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	return known, nil
}

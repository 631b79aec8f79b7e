package practice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gpbook/gpbook/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const practiceCols = `code, name, endpoint, asid, email, phone, active, created_at, updated_at`

func scanPractice(row pgx.Row) (*Practice, error) {
	var p Practice
	err := row.Scan(&p.Code, &p.Name, &p.Endpoint, &p.ASID, &p.Email, &p.Phone,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) GetActiveByCode(ctx context.Context, code string) (*Practice, error) {
	p, err := scanPractice(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+practiceCols+` FROM practice WHERE code = $1 AND active = TRUE`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get practice %s: %w", code, err)
	}
	return p, nil
}

func (r *repoPG) ListActive(ctx context.Context, limit, offset int) ([]*Practice, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM practice WHERE active = TRUE`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count practices: %w", err)
	}
	rows, err := q.Query(ctx,
		`SELECT `+practiceCols+` FROM practice WHERE active = TRUE ORDER BY code LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list practices: %w", err)
	}
	defer rows.Close()

	var items []*Practice
	for rows.Next() {
		p, err := scanPractice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Upsert(ctx context.Context, p *Practice) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO practice (code, name, endpoint, asid, email, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name, endpoint = EXCLUDED.endpoint, asid = EXCLUDED.asid,
			email = EXCLUDED.email, phone = EXCLUDED.phone, active = EXCLUDED.active,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		p.Code, p.Name, p.Endpoint, p.ASID, p.Email, p.Phone, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

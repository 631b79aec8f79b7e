package practice

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Repository when no active practice has the code.
var ErrNotFound = errors.New("practice not found")

type Repository interface {
	GetActiveByCode(ctx context.Context, code string) (*Practice, error)
	ListActive(ctx context.Context, limit, offset int) ([]*Practice, int, error)
	Upsert(ctx context.Context, p *Practice) error
}

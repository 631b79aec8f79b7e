package practice

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/cache"
)

// CacheKeyPrefix namespaces practice entries in Redis.
const CacheKeyPrefix = "practice:"

// cachedRepo is a read-through cache over another Repository. Cache errors
// are logged and the underlying repository answers instead.
type cachedRepo struct {
	next   Repository
	cache  *cache.JSONCache
	logger zerolog.Logger
}

func NewCachedRepo(next Repository, c *cache.JSONCache, logger zerolog.Logger) Repository {
	return &cachedRepo{next: next, cache: c, logger: logger}
}

func (r *cachedRepo) GetActiveByCode(ctx context.Context, code string) (*Practice, error) {
	var p Practice
	err := r.cache.Get(ctx, code, &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn().Err(err).Str("practice_code", code).Msg("practice cache read failed")
	}

	found, err := r.next.GetActiveByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, code, found); err != nil {
		r.logger.Warn().Err(err).Str("practice_code", code).Msg("practice cache write failed")
	}
	return found, nil
}

func (r *cachedRepo) ListActive(ctx context.Context, limit, offset int) ([]*Practice, int, error) {
	return r.next.ListActive(ctx, limit, offset)
}

func (r *cachedRepo) Upsert(ctx context.Context, p *Practice) error {
	if err := r.next.Upsert(ctx, p); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, p.Code); err != nil {
		r.logger.Warn().Err(err).Str("practice_code", p.Code).Msg("practice cache invalidation failed")
	}
	return nil
}

package practice

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/pkg/pagination"
)

// Directory resolves organization codes to active practices. Any repository
// failure, or no repository at all, falls back to the sample list; a code
// absent from whichever source answered is NotFound.
type Directory struct {
	repo    Repository
	samples []Practice
	logger  zerolog.Logger
}

// NewDirectory creates a Directory. repo may be nil when persistence is not
// configured.
func NewDirectory(repo Repository, samples []Practice, logger zerolog.Logger) *Directory {
	return &Directory{repo: repo, samples: samples, logger: logger}
}

// Lookup returns the active practice for code.
func (d *Directory) Lookup(ctx context.Context, code string) (*Practice, error) {
	code = NormalizeCode(code)
	if !codePattern.MatchString(code) {
		return nil, apperr.Validation("practice code must be 3-10 letters or digits")
	}
	if d.repo == nil {
		return d.lookupSample(code)
	}

	p, err := d.repo.GetActiveByCode(ctx, code)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrNotFound):
		return nil, apperr.NotFound("practice %s not found", code)
	default:
		d.logger.Warn().Err(err).Str("practice_code", code).Msg("practice lookup failed, using sample directory")
		return d.lookupSample(code)
	}
}

func (d *Directory) lookupSample(code string) (*Practice, error) {
	for i := range d.samples {
		if d.samples[i].Code == code && d.samples[i].Active {
			p := d.samples[i]
			return &p, nil
		}
	}
	return nil, apperr.NotFound("practice %s not found", code)
}

// List returns a page of active practices.
func (d *Directory) List(ctx context.Context, page pagination.Params) ([]*Practice, int, error) {
	if d.repo != nil {
		items, total, err := d.repo.ListActive(ctx, page.Limit, page.Offset)
		if err == nil {
			return items, total, nil
		}
		d.logger.Warn().Err(err).Msg("practice list failed, using sample directory")
	}

	var active []*Practice
	for i := range d.samples {
		if d.samples[i].Active {
			p := d.samples[i]
			active = append(active, &p)
		}
	}
	start, end := page.Window(len(active))
	return active[start:end], len(active), nil
}

// Save validates and upserts a practice. It requires persistence.
func (d *Directory) Save(ctx context.Context, p *Practice) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if d.repo == nil {
		return apperr.Configuration("practice persistence is not configured", nil)
	}
	if err := d.repo.Upsert(ctx, p); err != nil {
		return err
	}
	d.logger.Info().Str("practice_code", p.Code).Bool("active", p.Active).Msg("practice saved")
	return nil
}

// Seed saves each practice in turn and returns how many were written.
func (d *Directory) Seed(ctx context.Context, practices []Practice) (int, error) {
	for i := range practices {
		p := practices[i]
		if err := d.Save(ctx, &p); err != nil {
			return i, err
		}
	}
	return len(practices), nil
}

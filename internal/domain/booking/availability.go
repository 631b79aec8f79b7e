package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/audit"
	"github.com/gpbook/gpbook/pkg/fhirmodels"
)

// UnresolvedPractitioner labels a slot whose schedule actor was not included
// in the search bundle.
const UnresolvedPractitioner = "GP"

// AvailabilityQuery asks for free slots at one practice.
type AvailabilityQuery struct {
	PracticeCode    string
	Window          DateWindow
	DurationMinutes int
	TraceID         string
	Actor           string
}

// AvailabilityConfig selects demo behaviour and the failure policy.
type AvailabilityConfig struct {
	// Demo returns mock slots without calling the practice.
	Demo   bool
	Policy FailurePolicy
}

type AvailabilityService struct {
	practices PracticeResolver
	gateway   PracticeGateway
	audit     audit.Recorder
	cfg       AvailabilityConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewAvailabilityService(practices PracticeResolver, gateway PracticeGateway, rec audit.Recorder, cfg AvailabilityConfig, logger zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		practices: practices,
		gateway:   gateway,
		audit:     rec,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Search returns free slots for the query. Under FallbackToMock an external
// failure yields the mock slots instead of an error. Unknown practices and
// configuration errors always fail.
func (s *AvailabilityService) Search(ctx context.Context, q AvailabilityQuery) ([]SlotCandidate, error) {
	if q.DurationMinutes == 0 {
		q.DurationMinutes = DefaultDuration
	}
	if err := ValidateDuration(q.DurationMinutes); err != nil {
		return nil, err
	}
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}

	p, err := s.practices.Lookup(ctx, q.PracticeCode)
	if err != nil {
		s.record(ctx, q, audit.OutcomeFailure, apperr.PublicMessage(err))
		return nil, err
	}

	log := s.logger.With().Str("trace_id", q.TraceID).Str("practice_code", p.Code).Logger()

	if s.cfg.Demo {
		s.record(ctx, q, audit.OutcomeSuccess, "demo")
		return MockSlots(s.now(), q.DurationMinutes), nil
	}

	// The search covers whole days: [from 00:00, to 23:59:59].
	to := q.Window.To.Add(24*time.Hour - time.Second)
	set, err := s.gateway.SearchFreeSlots(ctx, p.Target(), q.TraceID, q.Window.From, to)
	if err != nil {
		if apperr.Is(err, apperr.KindExternalCall) && s.cfg.Policy == FallbackToMock {
			log.Warn().Err(err).Msg("slot search failed, returning mock slots")
			s.record(ctx, q, audit.OutcomeFallback, apperr.PublicMessage(err))
			return MockSlots(s.now(), q.DurationMinutes), nil
		}
		log.Error().Err(err).Msg("slot search failed")
		s.record(ctx, q, audit.OutcomeFailure, apperr.PublicMessage(err))
		return nil, err
	}

	slots := candidatesFromSearchSet(set)
	log.Info().Int("slots", len(slots)).Msg("slot search completed")
	s.record(ctx, q, audit.OutcomeSuccess, fmt.Sprintf("%d slots", len(slots)))
	return slots, nil
}

func (s *AvailabilityService) record(ctx context.Context, q AvailabilityQuery, outcome, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		TraceID:      q.TraceID,
		Actor:        q.Actor,
		Action:       audit.ActionAvailabilitySearch,
		PracticeCode: q.PracticeCode,
		Outcome:      outcome,
		Detail:       detail,
	})
}

// candidatesFromSearchSet maps free slots to candidates ordered by start,
// naming the practitioner from the included Schedule and Practitioner.
func candidatesFromSearchSet(set *fhirmodels.SearchSet) []SlotCandidate {
	out := make([]SlotCandidate, 0, len(set.Slots))
	for _, sl := range set.Slots {
		if sl.Status != fhirmodels.SlotStatusFree {
			continue
		}
		ref, name := practitionerFor(set, sl)
		out = append(out, SlotCandidate{
			ID:               sl.ID,
			Start:            sl.Start,
			End:              sl.End,
			Status:           sl.Status,
			PractitionerRef:  ref,
			PractitionerName: name,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func practitionerFor(set *fhirmodels.SearchSet, sl fhirmodels.Slot) (ref, name string) {
	sched, ok := set.Schedules[strings.TrimPrefix(sl.Schedule.Reference, "Schedule/")]
	if !ok {
		return "", UnresolvedPractitioner
	}
	for _, actor := range sched.Actor {
		id, isPractitioner := strings.CutPrefix(actor.Reference, "Practitioner/")
		if !isPractitioner {
			continue
		}
		if p, ok := set.Practitioners[id]; ok && len(p.Name) > 0 {
			return actor.Reference, displayName(p.Name[0])
		}
		if actor.Display != "" {
			return actor.Reference, actor.Display
		}
		return actor.Reference, UnresolvedPractitioner
	}
	return "", UnresolvedPractitioner
}

func displayName(n fhirmodels.HumanName) string {
	parts := append([]string{}, n.Prefix...)
	parts = append(parts, n.Given...)
	if n.Family != "" {
		parts = append(parts, n.Family)
	}
	if len(parts) == 0 {
		return UnresolvedPractitioner
	}
	return strings.Join(parts, " ")
}

// MockSlots returns the four fixed demo slots, anchored at midnight UTC of
// now's day: tomorrow 09:00 and 11:30, the day after 14:00 and 16:30.
func MockSlots(now time.Time, durationMinutes int) []SlotCandidate {
	day := now.UTC().Truncate(24 * time.Hour)
	d := time.Duration(durationMinutes) * time.Minute
	specs := []struct {
		offset time.Duration
		name   string
		ref    string
	}{
		{24*time.Hour + 9*time.Hour, "Dr Sarah Smith", "Practitioner/mock-practitioner-1"},
		{24*time.Hour + 11*time.Hour + 30*time.Minute, "Dr James Patel", "Practitioner/mock-practitioner-2"},
		{48*time.Hour + 14*time.Hour, "Dr Sarah Smith", "Practitioner/mock-practitioner-1"},
		{48*time.Hour + 16*time.Hour + 30*time.Minute, "Dr James Patel", "Practitioner/mock-practitioner-2"},
	}
	out := make([]SlotCandidate, len(specs))
	for i, sp := range specs {
		start := day.Add(sp.offset)
		out[i] = SlotCandidate{
			ID:               fmt.Sprintf("mock-slot-%d", i+1),
			Start:            start,
			End:              start.Add(d),
			Status:           fhirmodels.SlotStatusFree,
			PractitionerRef:  sp.ref,
			PractitionerName: sp.name,
		}
	}
	return out
}

package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/domain/practice"
	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/audit"
	"github.com/gpbook/gpbook/internal/platform/auth"
	"github.com/gpbook/gpbook/internal/platform/nhsnumber"
	"github.com/gpbook/gpbook/internal/platform/notification"
	"github.com/gpbook/gpbook/pkg/fhirmodels"
)

// OrchestratorConfig carries the startup decisions the orchestrator needs.
type OrchestratorConfig struct {
	// Demo confirms appointments without calling the practice. Set when no
	// signing key is configured, as for availability.
	Demo bool
	// Policy is FallbackToMock only when simulated success on failure is
	// explicitly enabled.
	Policy FailurePolicy
}

// Orchestrator books appointments at practices and keeps the local record of
// every attempt.
type Orchestrator struct {
	practices PracticeResolver
	gateway   PracticeGateway
	store     Repository
	notifier  Notifier
	audit     audit.Recorder
	cfg       OrchestratorConfig
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOrchestrator(practices PracticeResolver, gateway PracticeGateway, store Repository, notifier Notifier, rec audit.Recorder, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		practices: practices,
		gateway:   gateway,
		store:     store,
		notifier:  notifier,
		audit:     rec,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Book validates req, writes a pending record, creates the appointment at the
// practice and then confirms the record and notifies the practice.
//
// Submitting the same request twice creates two bookings.
func (o *Orchestrator) Book(ctx context.Context, req Request, traceID string) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		o.record(ctx, traceID, &req, "", audit.OutcomeFailure, apperr.PublicMessage(err))
		return nil, err
	}

	log := o.logger.With().
		Str("trace_id", traceID).
		Str("practice_code", req.PracticeCode).
		Str("patient", nhsnumber.Mask(req.PatientID)).
		Logger()

	p, err := o.practices.Lookup(ctx, req.PracticeCode)
	if err != nil {
		o.record(ctx, traceID, &req, "", audit.OutcomeFailure, apperr.PublicMessage(err))
		return nil, err
	}

	now := o.now().UTC().Truncate(time.Second)
	start := now
	if req.Start != nil {
		if !req.Start.After(now) {
			err := apperr.Validation("start must be in the future")
			o.record(ctx, traceID, &req, "", audit.OutcomeFailure, err.Msg)
			return nil, err
		}
		start = req.Start.UTC()
	}
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	b := &Booking{
		ID:              uuid.New(),
		TraceID:         traceID,
		Status:          StatusPending,
		PatientID:       req.PatientID,
		PracticeCode:    p.Code,
		AppointmentType: req.AppointmentType,
		Urgency:         req.Urgency,
		Reason:          req.Reason,
		DurationMinutes: req.DurationMinutes,
		BookedBy:        req.BookedBy,
		ContactPhone:    req.Contact.Phone,
		ContactEmail:    req.Contact.Email,
		SMSOptIn:        req.Contact.SMSOptIn,
		Start:           start,
		End:             end,
	}
	if err := o.store.Create(ctx, b); err != nil {
		log.Error().Err(err).Msg("failed to record pending booking")
		o.record(ctx, traceID, &req, "", audit.OutcomeFailure, "local record unavailable")
		return nil, err
	}

	appt := buildAppointment(&req, now, start, end)
	if o.cfg.Demo {
		log.Info().Str("booking_id", b.ID.String()).Msg("demo mode, appointment not sent to practice")
		return o.simulate(ctx, log, b, p, &req, appt, audit.OutcomeSuccess, "demo"), nil
	}
	created, err := o.gateway.CreateAppointment(ctx, p.Target(), traceID, appt)
	if err != nil {
		return o.handleExternalFailure(ctx, log, b, p, &req, appt, err)
	}

	if err := o.store.MarkBooked(ctx, b.ID, created.ID, false); err != nil {
		// The practice holds the appointment; the record stays pending until
		// the reconciler marks it orphaned.
		log.Error().Err(err).Str("booking_id", b.ID.String()).Str("appointment_id", created.ID).
			Msg("appointment created but local confirmation failed")
	}

	outcomes := o.notifier.Dispatch(ctx, notificationFor(b, p, created))
	log.Info().Str("booking_id", b.ID.String()).Str("appointment_id", created.ID).Msg("appointment booked")
	o.record(ctx, traceID, &req, b.ID.String(), audit.OutcomeSuccess, "")

	return &Result{BookingID: b.ID, Appointment: created, Notifications: outcomes}, nil
}

func (o *Orchestrator) handleExternalFailure(ctx context.Context, log zerolog.Logger, b *Booking, p *practice.Practice, req *Request, appt *fhirmodels.Appointment, cause error) (*Result, error) {
	if apperr.Is(cause, apperr.KindExternalCall) && o.cfg.Policy == FallbackToMock {
		log.Warn().Err(cause).Str("booking_id", b.ID.String()).Msg("appointment create failed, simulating success")
		return o.simulate(ctx, log, b, p, req, appt, audit.OutcomeFallback, apperr.PublicMessage(cause)), nil
	}

	log.Error().Err(cause).Str("booking_id", b.ID.String()).Msg("appointment create failed")
	if err := o.store.MarkFailed(ctx, b.ID, apperr.PublicMessage(cause)); err != nil {
		log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to record booking failure")
	}
	o.record(ctx, b.TraceID, req, b.ID.String(), audit.OutcomeFailure, apperr.PublicMessage(cause))
	return nil, cause
}

// simulate confirms b with a locally minted appointment id and notifies the
// practice as a real booking would.
func (o *Orchestrator) simulate(ctx context.Context, log zerolog.Logger, b *Booking, p *practice.Practice, req *Request, appt *fhirmodels.Appointment, outcome, detail string) *Result {
	simulated := *appt
	simulated.ID = "simulated-" + b.ID.String()
	if err := o.store.MarkBooked(ctx, b.ID, simulated.ID, true); err != nil {
		log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to record simulated booking")
	}
	outcomes := o.notifier.Dispatch(ctx, notificationFor(b, p, &simulated))
	o.record(ctx, b.TraceID, req, b.ID.String(), outcome, detail)
	return &Result{
		BookingID:     b.ID,
		Appointment:   &simulated,
		Notifications: outcomes,
		Simulated:     true,
	}
}

// Get returns a local booking record.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID, traceID string) (*Booking, error) {
	b, err := o.store.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	o.recordBooking(ctx, traceID, audit.ActionBookingRead, b, audit.OutcomeSuccess)
	return b, nil
}

// Cancel marks a local booking cancelled. The practice is not told; its
// appointment must be retracted there separately.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID, traceID string) (*Booking, error) {
	b, err := o.store.Cancel(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, apperr.NotFound("booking %s not found", id)
	case errors.Is(err, ErrConflict):
		return nil, apperr.Validation("booking %s cannot be cancelled in its current state", id)
	case err != nil:
		return nil, err
	}
	o.logger.Warn().
		Str("trace_id", traceID).
		Str("booking_id", id.String()).
		Str("practice_code", b.PracticeCode).
		Str("external_id", b.ExternalID).
		Msg("booking cancelled locally, practice appointment not retracted")
	o.recordBooking(ctx, traceID, audit.ActionBookingCancel, b, audit.OutcomeSuccess)
	return b, nil
}

// ListByPractice returns a page of local records for one practice.
func (o *Orchestrator) ListByPractice(ctx context.Context, code string, limit, offset int) ([]*Booking, int, error) {
	code = practice.NormalizeCode(code)
	if !practice.ValidCode(code) {
		return nil, 0, apperr.Validation("practiceCode must be 3-10 letters or digits")
	}
	return o.store.ListByPractice(ctx, code, limit, offset)
}

func (o *Orchestrator) record(ctx context.Context, traceID string, req *Request, resourceID, outcome, detail string) {
	if o.audit == nil {
		return
	}
	o.audit.Record(ctx, audit.Entry{
		TraceID:      traceID,
		Actor:        req.BookedBy,
		Action:       audit.ActionBookingCreate,
		PracticeCode: req.PracticeCode,
		PatientID:    req.PatientID,
		ResourceID:   resourceID,
		Outcome:      outcome,
		Detail:       detail,
	})
}

// recordBooking audits an operator action on a stored record. The actor is
// the authenticated operator when there is one.
func (o *Orchestrator) recordBooking(ctx context.Context, traceID, action string, b *Booking, outcome string) {
	if o.audit == nil {
		return
	}
	actor := auth.UserIDFromContext(ctx)
	if actor == "" {
		actor = b.BookedBy
	}
	o.audit.Record(ctx, audit.Entry{
		TraceID:      traceID,
		Actor:        actor,
		Action:       action,
		PracticeCode: b.PracticeCode,
		PatientID:    b.PatientID,
		ResourceID:   b.ID.String(),
		Outcome:      outcome,
	})
}

// buildAppointment maps a request to the Appointment resource sent to the
// practice.
func buildAppointment(req *Request, created, start, end time.Time) *fhirmodels.Appointment {
	appt := &fhirmodels.Appointment{
		ResourceType: "Appointment",
		Status:       fhirmodels.AppointmentStatusBooked,
		ServiceType: []fhirmodels.CodeableConcept{{
			Coding: []fhirmodels.Coding{{
				System:  fhirmodels.SystemServiceType,
				Code:    fhirmodels.ServiceTypeGeneralPractice,
				Display: fhirmodels.ServiceTypeGeneralPracticeDisplay,
			}},
		}},
		AppointmentType: &fhirmodels.CodeableConcept{Text: string(req.AppointmentType)},
		ReasonCode:      []fhirmodels.CodeableConcept{{Text: req.Reason}},
		Priority:        priorityFor(req.Urgency),
		Description:     req.Reason,
		Start:           start,
		End:             end,
		MinutesDuration: req.DurationMinutes,
		Created:         &created,
		Participant: []fhirmodels.AppointmentParticipant{
			{
				Actor: fhirmodels.Reference{
					Identifier: &fhirmodels.Identifier{System: fhirmodels.SystemNHSNumber, Value: req.PatientID},
				},
				Status: fhirmodels.ParticipationAccepted,
			},
		},
	}
	if req.SlotID != "" {
		appt.Slot = []fhirmodels.Reference{{Reference: "Slot/" + req.SlotID}}
	}
	return appt
}

// priorityFor maps urgency to the FHIR priority scale, where lower is sooner.
func priorityFor(u Urgency) int {
	switch u {
	case UrgencyEmergency:
		return 1
	case UrgencyUrgent:
		return 3
	default:
		return 5
	}
}

func notificationFor(b *Booking, p *practice.Practice, appt *fhirmodels.Appointment) notification.Message {
	return notification.Message{
		TraceID:       b.TraceID,
		BookingID:     b.ID.String(),
		AppointmentID: appt.ID,
		PracticeCode:  p.Code,
		PracticeName:  p.Name,
		PracticeEmail: p.Email,
		PracticePhone: p.Phone,
		PatientMasked: nhsnumber.Mask(b.PatientID),
		Reason:        b.Reason,
		Start:         appt.Start,
		End:           appt.End,
	}
}

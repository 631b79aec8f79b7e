package booking

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gpbook/gpbook/internal/domain/practice"
	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/nhsnumber"
	"github.com/gpbook/gpbook/internal/platform/notification"
	"github.com/gpbook/gpbook/pkg/fhirmodels"
)

const (
	DefaultDuration = 15
	MinDuration     = 10
	MaxDuration     = 60

	MinReasonLength = 10
	MaxReasonLength = 500

	// MaxWindowDays bounds an availability search.
	MaxWindowDays = 28

	// SelfActor is recorded when a patient books without naming an actor.
	SelfActor = "self"

	dateLayout = "2006-01-02"
)

type Category string

const (
	CategoryRoutine   Category = "routine"
	CategoryUrgent    Category = "urgent"
	CategoryEmergency Category = "emergency"
	CategoryFollowUp  Category = "follow-up"
)

type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// Status is the lifecycle of a local booking record. A record is written
// pending before the practice is called, then moves to booked or failed.
// Pending records that never resolve are marked orphaned by the reconciler.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBooked    Status = "booked"
	StatusFailed    Status = "failed"
	StatusOrphaned  Status = "orphaned"
	StatusCancelled Status = "cancelled"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ]{10,15}$`)

type ContactPreferences struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	SMSOptIn bool   `json:"smsOptIn"`
}

// Request is what a client submits to book an appointment.
type Request struct {
	PatientID       string             `json:"patientId"`
	PracticeCode    string             `json:"practiceCode"`
	AppointmentType Category           `json:"appointmentType"`
	Reason          string             `json:"reason"`
	Urgency         Urgency            `json:"urgency"`
	DurationMinutes int                `json:"duration"`
	BookedBy        string             `json:"bookedBy"`
	Contact         ContactPreferences `json:"contact"`
	// SlotID and Start identify the slot chosen from an availability search.
	// Without Start the appointment begins at submission time.
	SlotID string     `json:"slotId,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
}

// Normalize fills defaults and trims free text.
func (r *Request) Normalize() {
	r.PatientID = strings.ReplaceAll(strings.TrimSpace(r.PatientID), " ", "")
	r.PracticeCode = practice.NormalizeCode(r.PracticeCode)
	r.Reason = strings.TrimSpace(r.Reason)
	r.BookedBy = strings.TrimSpace(r.BookedBy)
	r.Contact.Phone = strings.TrimSpace(r.Contact.Phone)
	r.Contact.Email = strings.TrimSpace(r.Contact.Email)
	if r.AppointmentType == "" {
		r.AppointmentType = CategoryRoutine
	}
	if r.Urgency == "" {
		r.Urgency = UrgencyRoutine
	}
	if r.DurationMinutes == 0 {
		r.DurationMinutes = DefaultDuration
	}
	if r.BookedBy == "" {
		r.BookedBy = SelfActor
	}
}

// Validate checks a normalized request.
func (r *Request) Validate() error {
	if !nhsnumber.Valid(r.PatientID) {
		return apperr.Validation("patientId must be a valid 10 digit NHS number")
	}
	if !practice.ValidCode(r.PracticeCode) {
		return apperr.Validation("practiceCode must be 3-10 letters or digits")
	}
	switch r.AppointmentType {
	case CategoryRoutine, CategoryUrgent, CategoryEmergency, CategoryFollowUp:
	default:
		return apperr.Validation("appointmentType must be one of routine, urgent, emergency, follow-up")
	}
	switch r.Urgency {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
	default:
		return apperr.Validation("urgency must be one of routine, urgent, emergency")
	}
	if n := utf8.RuneCountInString(r.Reason); n < MinReasonLength || n > MaxReasonLength {
		return apperr.Validation("reason must be between %d and %d characters", MinReasonLength, MaxReasonLength)
	}
	if err := ValidateDuration(r.DurationMinutes); err != nil {
		return err
	}
	if r.Contact.Email != "" {
		if _, err := mail.ParseAddress(r.Contact.Email); err != nil {
			return apperr.Validation("contact email is invalid")
		}
	}
	if r.Contact.Phone != "" && !phonePattern.MatchString(r.Contact.Phone) {
		return apperr.Validation("contact phone is invalid")
	}
	if r.Contact.SMSOptIn && r.Contact.Phone == "" {
		return apperr.Validation("a contact phone is required for SMS updates")
	}
	return nil
}

// ValidateDuration checks minutes lies in [MinDuration, MaxDuration].
func ValidateDuration(minutes int) error {
	if minutes < MinDuration || minutes > MaxDuration {
		return apperr.Validation("duration must be between %d and %d minutes", MinDuration, MaxDuration)
	}
	return nil
}

// Booking is the local record of a booking attempt.
type Booking struct {
	ID              uuid.UUID `json:"id"`
	TraceID         string    `json:"traceId"`
	Status          Status    `json:"status"`
	PatientID       string    `json:"patientId"`
	PracticeCode    string    `json:"practiceCode"`
	AppointmentType Category  `json:"appointmentType"`
	Urgency         Urgency   `json:"urgency"`
	Reason          string    `json:"reason"`
	DurationMinutes int       `json:"duration"`
	BookedBy        string    `json:"bookedBy"`
	ContactPhone    string    `json:"contactPhone,omitempty"`
	ContactEmail    string    `json:"contactEmail,omitempty"`
	SMSOptIn        bool      `json:"smsOptIn"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ExternalID      string    `json:"externalId,omitempty"`
	FailureReason   string    `json:"failureReason,omitempty"`
	Simulated       bool      `json:"simulated"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SlotCandidate is a free slot offered to the patient. Never persisted.
type SlotCandidate struct {
	ID               string    `json:"id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Status           string    `json:"status"`
	PractitionerRef  string    `json:"practitionerRef,omitempty"`
	PractitionerName string    `json:"practitionerName"`
}

// Result is returned for a booking that the practice accepted, or that was
// simulated because the failure policy allows it.
type Result struct {
	BookingID     uuid.UUID               `json:"bookingId"`
	Appointment   *fhirmodels.Appointment `json:"appointment"`
	Notifications []notification.Outcome  `json:"notifications"`
	Simulated     bool                    `json:"simulated"`
}

// DateWindow is an inclusive range of whole UTC days.
type DateWindow struct {
	From time.Time
	To   time.Time
}

// ParseDateWindow parses YYYY-MM-DD bounds. from must not be after to and the
// window may span at most MaxWindowDays.
func ParseDateWindow(from, to string) (DateWindow, error) {
	f, err := time.Parse(dateLayout, strings.TrimSpace(from))
	if err != nil {
		return DateWindow{}, apperr.Validation("fromDate must be YYYY-MM-DD")
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(to))
	if err != nil {
		return DateWindow{}, apperr.Validation("toDate must be YYYY-MM-DD")
	}
	w := DateWindow{From: f, To: t}
	return w, w.Validate()
}

func (w DateWindow) Validate() error {
	if w.To.Before(w.From) {
		return apperr.Validation("fromDate must not be after toDate")
	}
	if w.To.Sub(w.From) > MaxWindowDays*24*time.Hour {
		return apperr.Validation("date range may not exceed %d days", MaxWindowDays)
	}
	return nil
}

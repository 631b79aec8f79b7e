package booking

import (
	"context"
	"time"

	"github.com/gpbook/gpbook/internal/domain/practice"
	"github.com/gpbook/gpbook/internal/platform/assertion"
	"github.com/gpbook/gpbook/internal/platform/notification"
	"github.com/gpbook/gpbook/pkg/fhirmodels"
)

// PracticeGateway is the practice endpoint client.
type PracticeGateway interface {
	SearchFreeSlots(ctx context.Context, target assertion.Target, traceID string, from, to time.Time) (*fhirmodels.SearchSet, error)
	CreateAppointment(ctx context.Context, target assertion.Target, traceID string, appt *fhirmodels.Appointment) (*fhirmodels.Appointment, error)
}

// PracticeResolver resolves an organization code to an active practice.
type PracticeResolver interface {
	Lookup(ctx context.Context, code string) (*practice.Practice, error)
}

// Notifier fans a booking confirmation out to the practice.
type Notifier interface {
	Dispatch(ctx context.Context, msg notification.Message) []notification.Outcome
}

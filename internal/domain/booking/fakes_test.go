package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/domain/practice"
	"github.com/gpbook/gpbook/internal/platform/assertion"
	"github.com/gpbook/gpbook/internal/platform/audit"
	"github.com/gpbook/gpbook/internal/platform/notification"
	"github.com/gpbook/gpbook/pkg/fhirmodels"
)

const (
	validPatient  = "9434765919"
	validPatient2 = "9876543210"
)

type fakeGateway struct {
	mu          sync.Mutex
	set         *fhirmodels.SearchSet
	searchErr   error
	createErr   error
	searchCalls int
	createCalls int
	lastTarget  assertion.Target
	lastFrom    time.Time
	lastTo      time.Time
	appts       []*fhirmodels.Appointment
}

func (g *fakeGateway) SearchFreeSlots(_ context.Context, target assertion.Target, _ string, from, to time.Time) (*fhirmodels.SearchSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchCalls++
	g.lastTarget, g.lastFrom, g.lastTo = target, from, to
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	if g.set == nil {
		return &fhirmodels.SearchSet{}, nil
	}
	return g.set, nil
}

func (g *fakeGateway) CreateAppointment(_ context.Context, target assertion.Target, _ string, appt *fhirmodels.Appointment) (*fhirmodels.Appointment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastTarget = target
	g.appts = append(g.appts, appt)
	if g.createErr != nil {
		return nil, g.createErr
	}
	created := *appt
	created.ID = fmt.Sprintf("appt-%d", g.createCalls)
	return &created, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *fakeNotifier) Dispatch(_ context.Context, msg notification.Message) []notification.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return []notification.Outcome{
		{Channel: notification.ChannelSecureMessaging, Success: true, MessageID: "m1"},
		{Channel: notification.ChannelEmail, Success: true, MessageID: "m2"},
	}
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) last() audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return audit.Entry{}
	}
	return r.entries[len(r.entries)-1]
}

func sampleDirectory() *practice.Directory {
	return practice.NewDirectory(nil, practice.SamplePractices(), zerolog.Nop())
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

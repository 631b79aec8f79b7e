package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type memStore struct {
	entries []*Entry
	err     error
}

func (m *memStore) Insert(_ context.Context, e *Entry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestRecord_MasksPatientAndPersists(t *testing.T) {
	var buf bytes.Buffer
	store := &memStore{}
	l := NewLogger(store, zerolog.New(&buf))

	l.Record(context.Background(), Entry{
		TraceID:      "trace-1",
		Actor:        "web",
		Action:       ActionBookingCreate,
		PracticeCode: "A12345",
		PatientID:    "9876543210",
		Outcome:      OutcomeSuccess,
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.PatientID != "******3210" {
		t.Errorf("stored patient = %q", e.PatientID)
	}
	if e.ID == uuid.Nil || e.RecordedAt.IsZero() {
		t.Errorf("id/recorded_at not populated: %+v", e)
	}

	if strings.Contains(buf.String(), "9876543210") {
		t.Error("full patient identifier leaked into log")
	}
	var logged map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logged); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if logged["type"] != "access_audit" || logged["trace_id"] != "trace-1" {
		t.Errorf("log event = %v", logged)
	}
}

func TestRecord_NoStore(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(nil, zerolog.New(&buf)).Record(context.Background(), Entry{
		TraceID: "t", Action: ActionAvailabilitySearch, Outcome: OutcomeFallback,
	})
	if !strings.Contains(buf.String(), `"outcome":"fallback"`) {
		t.Errorf("log = %s", buf.String())
	}
}

func TestRecord_StoreFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&memStore{err: errors.New("db down")}, zerolog.New(&buf))
	l.Record(context.Background(), Entry{TraceID: "t2", Action: ActionBookingRead, Outcome: OutcomeSuccess})

	if !strings.Contains(buf.String(), "failed to persist access audit entry") {
		t.Errorf("expected persistence failure to be logged, got %s", buf.String())
	}
}

func TestRecord_FailureIsWarning(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(nil, zerolog.New(&buf)).Record(context.Background(), Entry{
		TraceID: "t3", Action: ActionBookingCreate, Outcome: OutcomeFailure,
	})
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("log = %s", buf.String())
	}
}

package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type sentCall struct {
	To      string
	Subject string
	Body    string
}

type recordingSender struct {
	mu    sync.Mutex
	calls []sentCall
	err   error
}

func (r *recordingSender) record(to, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sentCall{To: to, Subject: subject, Body: body})
	return r.err
}

func (r *recordingSender) SendSecureMessage(_ context.Context, ods, subject, body string) error {
	return r.record(ods, subject, body)
}

func (r *recordingSender) SendEmail(_ context.Context, to, subject, body string) error {
	return r.record(to, subject, body)
}

func (r *recordingSender) SendSMS(_ context.Context, to, body string) error {
	return r.record(to, "", body)
}

func (r *recordingSender) Calls() []sentCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentCall, len(r.calls))
	copy(out, r.calls)
	return out
}

type slowChannel struct {
	name  string
	delay time.Duration
}

func (s slowChannel) Name() string { return s.name }

func (s slowChannel) Send(context.Context, Message) Outcome {
	time.Sleep(s.delay)
	return Outcome{Channel: s.name, Success: true}
}

func testMessage() Message {
	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	return Message{
		TraceID:       "trace-1",
		BookingID:     "bk-1",
		AppointmentID: "appt-1",
		PracticeCode:  "A12345",
		PracticeName:  "Riverside Medical Centre",
		PracticeEmail: "riverside@nhs.example",
		PatientMasked: "******3210",
		Reason:        "Annual health check",
		Start:         start,
		End:           start.Add(15 * time.Minute),
	}
}

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BookingConfirmation(t *testing.T) {
	eng := NewTemplateEngine()
	subject, body, err := eng.Render(TemplateBookingConfirmation, testMessage().templateData())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "New appointment booked at Riverside Medical Centre" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"15 minute", "******3210", "2026-10-20", "09:00", "bk-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("body has unrendered placeholders: %s", body)
	}
}

// ---------------------------------------------------------------------------
// Channel Tests
// ---------------------------------------------------------------------------

func TestSecureMessagingChannel_AddressesPractice(t *testing.T) {
	rec := &recordingSender{}
	ch := NewSecureMessagingChannel(rec, NewTemplateEngine())

	out := ch.Send(context.Background(), testMessage())
	if !out.Success || out.MessageID == "" {
		t.Fatalf("outcome = %+v", out)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].To != "A12345" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestEmailChannel_NoAddress(t *testing.T) {
	rec := &recordingSender{}
	msg := testMessage()
	msg.PracticeEmail = ""

	out := NewEmailChannel(rec, NewTemplateEngine()).Send(context.Background(), msg)
	if !out.Success || !out.Skipped {
		t.Fatalf("expected a skipped success without an email address, got %+v", out)
	}
	if len(rec.Calls()) != 0 {
		t.Error("sender must not be called")
	}
}

func TestSMSChannel_NoAddressIsSkipped(t *testing.T) {
	rec := &recordingSender{}
	msg := testMessage()
	msg.PracticePhone = ""

	out := NewSMSChannel(rec, NewTemplateEngine()).Send(context.Background(), msg)
	if !out.Success || !out.Skipped || out.MessageID != "" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(rec.Calls()) != 0 {
		t.Error("sender must not be called")
	}
}

func TestSMSChannel_SenderError(t *testing.T) {
	rec := &recordingSender{err: errors.New("gateway down")}
	msg := testMessage()
	msg.PracticePhone = "+447700900123"

	out := NewSMSChannel(rec, NewTemplateEngine()).Send(context.Background(), msg)
	if out.Success || out.Error != "gateway down" {
		t.Errorf("outcome = %+v", out)
	}
	if out.Channel != ChannelSMS {
		t.Errorf("channel = %q", out.Channel)
	}
}

func TestBuildChannels(t *testing.T) {
	senders := Senders{SecureMessage: LogSender{}, Email: LogSender{}, SMS: LogSender{}}
	chs, err := BuildChannels([]string{"secure-messaging", " Email ", ""}, senders, NewTemplateEngine())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chs) != 2 || chs[0].Name() != ChannelSecureMessaging || chs[1].Name() != ChannelEmail {
		t.Errorf("channels = %v", chs)
	}

	if _, err := BuildChannels([]string{"pager"}, senders, NewTemplateEngine()); err == nil {
		t.Error("expected error for unknown channel")
	}
}

// ---------------------------------------------------------------------------
// Dispatcher Tests
// ---------------------------------------------------------------------------

func TestDispatcher_StubChannelsSucceed(t *testing.T) {
	chs, err := BuildChannels([]string{ChannelSecureMessaging, ChannelEmail},
		Senders{SecureMessage: LogSender{Logger: zerolog.Nop()}, Email: LogSender{Logger: zerolog.Nop()}},
		NewTemplateEngine())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outcomes := NewDispatcher(chs, zerolog.Nop()).Dispatch(context.Background(), testMessage())

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if !o.Success || o.MessageID == "" {
			t.Errorf("outcome = %+v", o)
		}
	}
	if outcomes[0].MessageID == outcomes[1].MessageID {
		t.Error("message ids must be distinct")
	}
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	chs := []Channel{
		slowChannel{name: "first", delay: 30 * time.Millisecond},
		slowChannel{name: "second"},
		slowChannel{name: "third", delay: 10 * time.Millisecond},
	}
	outcomes := NewDispatcher(chs, zerolog.Nop()).Dispatch(context.Background(), testMessage())
	for i, want := range []string{"first", "second", "third"} {
		if outcomes[i].Channel != want {
			t.Errorf("outcomes[%d] = %q, want %q", i, outcomes[i].Channel, want)
		}
	}
}

func TestDispatcher_FailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{err: errors.New("mailbox full")}
	good := &recordingSender{}
	eng := NewTemplateEngine()
	d := NewDispatcher([]Channel{NewSecureMessagingChannel(bad, eng), NewEmailChannel(good, eng)}, zerolog.Nop())

	outcomes := d.Dispatch(context.Background(), testMessage())
	if outcomes[0].Success {
		t.Error("secure messaging should have failed")
	}
	if !outcomes[1].Success {
		t.Error("email should have succeeded")
	}
	if len(good.Calls()) != 1 {
		t.Error("email sender should have been called once")
	}
}

type failingChannel struct{ name string }

func (f failingChannel) Name() string { return f.name }

func (f failingChannel) Send(ctx context.Context, _ Message) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Channel: f.name, Error: err.Error()}
	}
	return Outcome{Channel: f.name, Error: "rejected"}
}

type ctxCheckingChannel struct{ name string }

func (c ctxCheckingChannel) Name() string { return c.name }

func (c ctxCheckingChannel) Send(ctx context.Context, _ Message) Outcome {
	time.Sleep(20 * time.Millisecond)
	if err := ctx.Err(); err != nil {
		return Outcome{Channel: c.name, Error: err.Error()}
	}
	return Outcome{Channel: c.name, Success: true}
}

func TestDispatcher_FailedChannelDoesNotCancelSiblings(t *testing.T) {
	d := NewDispatcher([]Channel{failingChannel{name: "bad"}, ctxCheckingChannel{name: "slow"}}, zerolog.Nop())

	outcomes := d.Dispatch(context.Background(), testMessage())
	if outcomes[0].Success {
		t.Errorf("bad channel outcome = %+v", outcomes[0])
	}
	if !outcomes[1].Success {
		t.Errorf("slow channel saw a cancelled context: %+v", outcomes[1])
	}
}

func TestDispatcher_SkippedChannelIsLoggedNotWarned(t *testing.T) {
	var buf strings.Builder
	msg := testMessage()
	msg.PracticePhone = ""
	d := NewDispatcher([]Channel{NewSMSChannel(LogSender{Logger: zerolog.Nop()}, NewTemplateEngine())}, zerolog.New(&buf))

	outcomes := d.Dispatch(context.Background(), msg)
	if len(outcomes) != 1 || !outcomes[0].Success {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if !strings.Contains(buf.String(), "notification skipped") || strings.Contains(buf.String(), "notification failed") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestDispatcher_NoChannels(t *testing.T) {
	if got := NewDispatcher(nil, zerolog.Nop()).Dispatch(context.Background(), testMessage()); len(got) != 0 {
		t.Errorf("expected no outcomes, got %v", got)
	}
}

// Package notification tells a practice about new bookings over pluggable
// channels. The shipped channels are stubs that log and succeed; real
// adapters implement the same Sender interfaces.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Channel names accepted in configuration.
const (
	ChannelSecureMessaging = "secure-messaging"
	ChannelEmail           = "email"
	ChannelSMS             = "sms"
)

// Message is the booking confirmation handed to every channel. It never
// carries the full patient identifier.
type Message struct {
	TraceID       string
	BookingID     string
	AppointmentID string
	PracticeCode  string
	PracticeName  string
	PracticeEmail string
	PracticePhone string
	PatientMasked string
	Reason        string
	Start         time.Time
	End           time.Time
}

func (m Message) templateData() map[string]string {
	return map[string]string{
		"practice_name":  m.PracticeName,
		"practice_code":  m.PracticeCode,
		"booking_id":     m.BookingID,
		"appointment_id": m.AppointmentID,
		"patient":        m.PatientMasked,
		"reason":         m.Reason,
		"date":           m.Start.UTC().Format("2006-01-02"),
		"time":           m.Start.UTC().Format("15:04"),
		"minutes":        fmt.Sprintf("%d", int(m.End.Sub(m.Start).Minutes())),
	}
}

// Outcome is the result of one channel's attempt.
type Outcome struct {
	Channel   string `json:"channel"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	// Skipped marks a channel with no address for the practice. Nothing was
	// sent and nothing failed.
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Channel delivers a Message. Send reports failure in the Outcome rather than
// returning an error so one channel cannot abort the others.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) Outcome
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// SecureMessageSender posts to a practice's secure clinical mailbox.
type SecureMessageSender interface {
	SendSecureMessage(ctx context.Context, odsCode, subject, body string) error
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender implements every sender by writing a log line.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendSecureMessage(_ context.Context, odsCode, subject, _ string) error {
	s.Logger.Info().Str("channel", ChannelSecureMessaging).Str("ods_code", odsCode).Str("subject", subject).Msg("notification sent")
	return nil
}

func (s LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("channel", ChannelEmail).Str("to", to).Str("subject", subject).Msg("notification sent")
	return nil
}

func (s LogSender) SendSMS(_ context.Context, to, _ string) error {
	s.Logger.Info().Str("channel", ChannelSMS).Str("to", to).Msg("notification sent")
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template IDs.
const (
	TemplateBookingConfirmation    = "booking-confirmation"
	TemplateBookingConfirmationSMS = "booking-confirmation-sms"
)

// Template defines a reusable notification template.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine creates a TemplateEngine with the booking templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateBookingConfirmation,
		Subject: "New appointment booked at {{practice_name}}",
		Body: "A {{minutes}} minute appointment has been booked for patient {{patient}} on {{date}} at {{time}} UTC. " +
			"Reason: {{reason}}. Booking reference {{booking_id}}, appointment {{appointment_id}}.",
	})
	e.RegisterTemplate(Template{
		ID:   TemplateBookingConfirmationSMS,
		Body: "{{practice_code}}: appointment booked {{date}} {{time}} UTC, ref {{booking_id}}",
	})
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render looks up a template by ID and performs {{key}} replacement. Keys
// present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

type secureMessagingChannel struct {
	sender    SecureMessageSender
	templates *TemplateEngine
}

// NewSecureMessagingChannel addresses the practice by its organization code.
func NewSecureMessagingChannel(sender SecureMessageSender, templates *TemplateEngine) Channel {
	return &secureMessagingChannel{sender: sender, templates: templates}
}

func (c *secureMessagingChannel) Name() string { return ChannelSecureMessaging }

func (c *secureMessagingChannel) Send(ctx context.Context, msg Message) Outcome {
	subject, body, err := c.templates.Render(TemplateBookingConfirmation, msg.templateData())
	if err != nil {
		return failed(c.Name(), err)
	}
	return result(c.Name(), c.sender.SendSecureMessage(ctx, msg.PracticeCode, subject, body))
}

type emailChannel struct {
	sender    EmailSender
	templates *TemplateEngine
}

// NewEmailChannel addresses the practice's contact email.
func NewEmailChannel(sender EmailSender, templates *TemplateEngine) Channel {
	return &emailChannel{sender: sender, templates: templates}
}

func (c *emailChannel) Name() string { return ChannelEmail }

func (c *emailChannel) Send(ctx context.Context, msg Message) Outcome {
	if msg.PracticeEmail == "" {
		return skipped(c.Name(), "practice has no email address")
	}
	subject, body, err := c.templates.Render(TemplateBookingConfirmation, msg.templateData())
	if err != nil {
		return failed(c.Name(), err)
	}
	return result(c.Name(), c.sender.SendEmail(ctx, msg.PracticeEmail, subject, body))
}

type smsChannel struct {
	sender    SMSSender
	templates *TemplateEngine
}

// NewSMSChannel addresses the practice's contact phone.
func NewSMSChannel(sender SMSSender, templates *TemplateEngine) Channel {
	return &smsChannel{sender: sender, templates: templates}
}

func (c *smsChannel) Name() string { return ChannelSMS }

func (c *smsChannel) Send(ctx context.Context, msg Message) Outcome {
	if msg.PracticePhone == "" {
		return skipped(c.Name(), "practice has no phone number")
	}
	_, body, err := c.templates.Render(TemplateBookingConfirmationSMS, msg.templateData())
	if err != nil {
		return failed(c.Name(), err)
	}
	return result(c.Name(), c.sender.SendSMS(ctx, msg.PracticePhone, body))
}

func result(channel string, err error) Outcome {
	if err != nil {
		return failed(channel, err)
	}
	return Outcome{Channel: channel, Success: true, MessageID: uuid.NewString()}
}

func skipped(channel, reason string) Outcome {
	return Outcome{Channel: channel, Success: true, Skipped: true, Error: reason}
}

func failed(channel string, err error) Outcome {
	return Outcome{Channel: channel, Success: false, Error: err.Error()}
}

// Senders groups the transport implementations used by BuildChannels.
type Senders struct {
	SecureMessage SecureMessageSender
	Email         EmailSender
	SMS           SMSSender
}

// BuildChannels resolves configured channel names, preserving their order.
func BuildChannels(names []string, senders Senders, templates *TemplateEngine) ([]Channel, error) {
	channels := make([]Channel, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(strings.ToLower(raw))
		switch name {
		case "":
			continue
		case ChannelSecureMessaging:
			channels = append(channels, NewSecureMessagingChannel(senders.SecureMessage, templates))
		case ChannelEmail:
			channels = append(channels, NewEmailChannel(senders.Email, templates))
		case ChannelSMS:
			channels = append(channels, NewSMSChannel(senders.SMS, templates))
		default:
			return nil, fmt.Errorf("unknown notification channel %q", raw)
		}
	}
	return channels, nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher fans a Message out to every channel concurrently.
type Dispatcher struct {
	channels []Channel
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher over the given channels.
func NewDispatcher(channels []Channel, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{channels: channels, logger: logger}
}

// Dispatch sends msg on every channel and returns one Outcome per channel in
// configuration order.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) []Outcome {
	outcomes := make([]Outcome, len(d.channels))
	// Channel failures travel in the Outcome; a group error would cancel the
	// sibling channels, so every goroutine returns nil.
	var g errgroup.Group
	for i, ch := range d.channels {
		i, ch := i, ch
		g.Go(func() error {
			outcomes[i] = ch.Send(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Skipped {
			d.logger.Info().
				Str("trace_id", msg.TraceID).
				Str("channel", o.Channel).
				Str("practice_code", msg.PracticeCode).
				Str("reason", o.Error).
				Msg("notification skipped")
			continue
		}
		if !o.Success {
			d.logger.Warn().
				Str("trace_id", msg.TraceID).
				Str("channel", o.Channel).
				Str("practice_code", msg.PracticeCode).
				Str("error", o.Error).
				Msg("notification failed")
		}
	}
	return outcomes
}

// Package gpconnect is the HTTP client for a practice's FHIR scheduling
// endpoint. Every call carries a fresh access assertion and the routing
// headers that identify sender, recipient and trace.
package gpconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/assertion"
	"github.com/gpbook/gpbook/pkg/fhirmodels"
)

// Interaction identifiers sent in the Ssp-InteractionID header.
const (
	InteractionSearchSlots       = "urn:nhs:names:services:gpconnect:fhir:rest:search:slot-1"
	InteractionCreateAppointment = "urn:nhs:names:services:gpconnect:fhir:rest:create:appointment-1"
)

const (
	HeaderFrom          = "Ssp-From"
	HeaderTo            = "Ssp-To"
	HeaderTraceID       = "Ssp-TraceID"
	HeaderInteractionID = "Ssp-InteractionID"

	fhirJSON = "application/fhir+json"

	// DefaultTimeout bounds a single call when none is configured.
	DefaultTimeout = 30 * time.Second
)

// AssertionSource issues the bearer credential for a target.
type AssertionSource interface {
	Generate(target assertion.Target) (string, error)
}

// Client talks to practice endpoints. One Client serves every practice; the
// endpoint comes from the target on each call. Calls are never retried.
type Client struct {
	http       *resty.Client
	assertions AssertionSource
	localASID  string
	logger     zerolog.Logger
}

// NewClient creates a Client. A zero timeout selects DefaultTimeout.
func NewClient(assertions AssertionSource, localASID string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", fhirJSON)

	return &Client{
		http:       httpClient,
		assertions: assertions,
		localASID:  localASID,
		logger:     logger.With().Str("component", "gpconnect").Logger(),
	}
}

// SearchFreeSlots queries {endpoint}/Slot for free slots in [from, to],
// including the owning schedules and practitioners.
func (c *Client) SearchFreeSlots(ctx context.Context, target assertion.Target, traceID string, from, to time.Time) (*fhirmodels.SearchSet, error) {
	req, err := c.request(ctx, target, traceID, InteractionSearchSlots)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("start", "ge"+from.Format("2006-01-02"))
	params.Add("end", "le"+to.Format("2006-01-02"))
	params.Add("status", fhirmodels.SlotStatusFree)
	params.Add("_include", "Slot:schedule")
	params.Add("_include:recurse", "Schedule:actor:Practitioner")
	req.SetQueryParamsFromValues(params)

	resp, err := req.Get(resourceURL(target.Endpoint, "Slot"))
	if err := checkResponse(resp, err, "slot search"); err != nil {
		return nil, err
	}

	var bundle fhirmodels.Bundle
	if err := json.Unmarshal(resp.Body(), &bundle); err != nil {
		return nil, apperr.ExternalCall("slot search returned malformed body", err)
	}
	set, err := fhirmodels.DecodeSearchSet(&bundle)
	if err != nil {
		return nil, apperr.ExternalCall("slot search returned malformed bundle", err)
	}

	c.logger.Debug().
		Str("trace_id", traceID).
		Str("to_asid", target.ASID).
		Int("slots", len(set.Slots)).
		Msg("slot search completed")
	return set, nil
}

// CreateAppointment posts appt to {endpoint}/Appointment and returns the
// resource the practice echoed back.
func (c *Client) CreateAppointment(ctx context.Context, target assertion.Target, traceID string, appt *fhirmodels.Appointment) (*fhirmodels.Appointment, error) {
	req, err := c.request(ctx, target, traceID, InteractionCreateAppointment)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(appt)
	if err != nil {
		return nil, fmt.Errorf("marshal appointment: %w", err)
	}
	resp, err := req.
		SetHeader("Content-Type", fhirJSON).
		SetBody(body).
		Post(resourceURL(target.Endpoint, "Appointment"))
	if err := checkResponse(resp, err, "appointment create"); err != nil {
		return nil, err
	}

	var created fhirmodels.Appointment
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return nil, apperr.ExternalCall("appointment create returned malformed body", err)
	}
	if created.ResourceType != "Appointment" {
		return nil, apperr.ExternalCall("appointment create returned unexpected resource",
			fmt.Errorf("resourceType %q", created.ResourceType))
	}

	c.logger.Debug().
		Str("trace_id", traceID).
		Str("to_asid", target.ASID).
		Str("appointment_id", created.ID).
		Msg("appointment created")
	return &created, nil
}

func (c *Client) request(ctx context.Context, target assertion.Target, traceID, interaction string) (*resty.Request, error) {
	if target.Endpoint == "" {
		return nil, apperr.Configuration("practice has no endpoint configured", nil)
	}
	token, err := c.assertions.Generate(target)
	if err != nil {
		return nil, err
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader(HeaderFrom, c.localASID).
		SetHeader(HeaderTo, target.ASID).
		SetHeader(HeaderTraceID, traceID).
		SetHeader(HeaderInteractionID, interaction), nil
}

func resourceURL(endpoint, resource string) string {
	return strings.TrimRight(endpoint, "/") + "/" + resource
}

func checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return apperr.ExternalCall(op+" failed", err)
	}
	if resp.IsError() {
		return apperr.ExternalCall(op+" failed",
			fmt.Errorf("practice endpoint returned %d: %s", resp.StatusCode(), diagnostics(resp.Body())))
	}
	return nil
}

// diagnostics extracts the first OperationOutcome issue, or a short prefix of
// the raw body.
func diagnostics(body []byte) string {
	var oo struct {
		ResourceType string `json:"resourceType"`
		Issue        []struct {
			Code        string `json:"code"`
			Diagnostics string `json:"diagnostics"`
		} `json:"issue"`
	}
	if json.Unmarshal(body, &oo) == nil && oo.ResourceType == "OperationOutcome" && len(oo.Issue) > 0 {
		return oo.Issue[0].Code + ": " + oo.Issue[0].Diagnostics
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

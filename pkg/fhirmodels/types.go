package fhirmodels

import "time"

// Common FHIR value set constants used on the practice endpoint boundary.

// SlotStatus values per FHIR R4.
const (
	SlotStatusFree            = "free"
	SlotStatusBusy            = "busy"
	SlotStatusBusyUnavailable = "busy-unavailable"
	SlotStatusBusyTentative   = "busy-tentative"
)

// AppointmentStatus values per FHIR R4.
const (
	AppointmentStatusProposed  = "proposed"
	AppointmentStatusPending   = "pending"
	AppointmentStatusBooked    = "booked"
	AppointmentStatusCancelled = "cancelled"
)

// ParticipationStatus codes.
const (
	ParticipationAccepted    = "accepted"
	ParticipationDeclined    = "declined"
	ParticipationTentative   = "tentative"
	ParticipationNeedsAction = "needs-action"
)

// Systems used on identifiers and codings.
const (
	SystemNHSNumber   = "https://fhir.nhs.uk/Id/nhs-number"
	SystemODSCode     = "https://fhir.nhs.uk/Id/ods-organization-code"
	SystemServiceType = "http://terminology.hl7.org/CodeSystem/service-type"

	// ServiceTypeGeneralPractice is service-type code 124, "General Practice".
	ServiceTypeGeneralPractice        = "124"
	ServiceTypeGeneralPracticeDisplay = "General Practice"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Reference struct {
	Reference  string      `json:"reference,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    string      `json:"display,omitempty"`
}

type HumanName struct {
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
}

// Slot is a bookable window published by a practice.
type Slot struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Schedule     Reference         `json:"schedule"`
	Status       string            `json:"status"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	ServiceType  []CodeableConcept `json:"serviceType,omitempty"`
}

// Schedule links slots to the practitioner who owns them.
type Schedule struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Actor        []Reference `json:"actor,omitempty"`
}

// Practitioner is the clinician a schedule belongs to.
type Practitioner struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
}

// AppointmentParticipant references an actor and their acceptance.
type AppointmentParticipant struct {
	Actor  Reference `json:"actor"`
	Status string    `json:"status"`
}

// Appointment is the scheduling resource created on a practice endpoint.
type Appointment struct {
	ResourceType    string                   `json:"resourceType"`
	ID              string                   `json:"id,omitempty"`
	Status          string                   `json:"status"`
	ServiceType     []CodeableConcept        `json:"serviceType,omitempty"`
	AppointmentType *CodeableConcept         `json:"appointmentType,omitempty"`
	ReasonCode      []CodeableConcept        `json:"reasonCode,omitempty"`
	Priority        int                      `json:"priority,omitempty"`
	Description     string                   `json:"description,omitempty"`
	Start           time.Time                `json:"start"`
	End             time.Time                `json:"end"`
	MinutesDuration int                      `json:"minutesDuration,omitempty"`
	Slot            []Reference              `json:"slot,omitempty"`
	Created         *time.Time               `json:"created,omitempty"`
	Participant     []AppointmentParticipant `json:"participant"`
}

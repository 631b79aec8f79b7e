package fhirmodels

import (
	"encoding/json"
	"fmt"
)

// Bundle is a searchset returned by a practice endpoint.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

type resourceHeader struct {
	ResourceType string `json:"resourceType"`
}

// SearchSet holds the decoded resources of a slot search bundle, with
// included schedules and practitioners indexed by id.
type SearchSet struct {
	Slots         []Slot
	Schedules     map[string]Schedule
	Practitioners map[string]Practitioner
}

// DecodeSearchSet splits a bundle into typed resources. Unknown resource
// types are skipped.
func DecodeSearchSet(b *Bundle) (*SearchSet, error) {
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected Bundle, got %q", b.ResourceType)
	}
	set := &SearchSet{
		Schedules:     make(map[string]Schedule),
		Practitioners: make(map[string]Practitioner),
	}
	for i, e := range b.Entry {
		var hdr resourceHeader
		if err := json.Unmarshal(e.Resource, &hdr); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		switch hdr.ResourceType {
		case "Slot":
			var s Slot
			if err := json.Unmarshal(e.Resource, &s); err != nil {
				return nil, fmt.Errorf("entry %d slot: %w", i, err)
			}
			set.Slots = append(set.Slots, s)
		case "Schedule":
			var s Schedule
			if err := json.Unmarshal(e.Resource, &s); err != nil {
				return nil, fmt.Errorf("entry %d schedule: %w", i, err)
			}
			set.Schedules[s.ID] = s
		case "Practitioner":
			var p Practitioner
			if err := json.Unmarshal(e.Resource, &p); err != nil {
				return nil, fmt.Errorf("entry %d practitioner: %w", i, err)
			}
			set.Practitioners[p.ID] = p
		}
	}
	return set, nil
}

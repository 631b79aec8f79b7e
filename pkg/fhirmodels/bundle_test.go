package fhirmodels

import (
	"encoding/json"
	"testing"
)

const slotBundle = `{
  "resourceType": "Bundle",
  "type": "searchset",
  "entry": [
    {"resource": {"resourceType": "Slot", "id": "s1", "status": "free",
      "schedule": {"reference": "Schedule/sch1"},
      "start": "2026-10-20T09:00:00Z", "end": "2026-10-20T09:15:00Z"}},
    {"resource": {"resourceType": "Schedule", "id": "sch1",
      "actor": [{"reference": "Practitioner/p1"}]}},
    {"resource": {"resourceType": "Practitioner", "id": "p1",
      "name": [{"family": "Smith", "given": ["Sarah"], "prefix": ["Dr"]}]}},
    {"resource": {"resourceType": "Location", "id": "l1"}}
  ]
}`

func TestDecodeSearchSet(t *testing.T) {
	var b Bundle
	if err := json.Unmarshal([]byte(slotBundle), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	set, err := DecodeSearchSet(&b)
	if err != nil {
		t.Fatalf("DecodeSearchSet: %v", err)
	}
	if len(set.Slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(set.Slots))
	}
	if set.Slots[0].Start.Hour() != 9 {
		t.Errorf("slot start = %v", set.Slots[0].Start)
	}
	if _, ok := set.Schedules["sch1"]; !ok {
		t.Error("expected schedule sch1 to be indexed")
	}
	if p, ok := set.Practitioners["p1"]; !ok || p.Name[0].Family != "Smith" {
		t.Errorf("practitioner = %+v", p)
	}
}

func TestDecodeSearchSet_WrongType(t *testing.T) {
	if _, err := DecodeSearchSet(&Bundle{ResourceType: "OperationOutcome"}); err == nil {
		t.Error("expected error for non-bundle")
	}
}

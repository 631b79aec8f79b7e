package booking

import (
	"fmt"
	"strings"
)

// FailurePolicy decides what happens when a practice endpoint call fails.
// It is chosen once at startup and never consulted for configuration errors,
// which always propagate.
type FailurePolicy int

const (
	// Propagate returns the external failure to the caller.
	Propagate FailurePolicy = iota
	// FallbackToMock substitutes deterministic mock data for the failed call.
	FallbackToMock
)

func (p FailurePolicy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case FallbackToMock:
		return "fallback-to-mock"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy accepts "propagate" or "fallback-to-mock".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "propagate":
		return Propagate, nil
	case "fallback-to-mock", "fallback":
		return FallbackToMock, nil
	default:
		return Propagate, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Package nhsnumber validates 10-digit national patient identifiers using the
// weighted modulus-11 check digit.
package nhsnumber

import (
	"fmt"
	"math/rand"
	"strings"
)

// Length is the number of digits in a patient identifier.
const Length = 10

// CheckDigit computes the check digit for the first nine digits of an
// identifier. ok is false when the computed digit is 10, which makes every
// identifier with that prefix invalid.
func CheckDigit(prefix string) (digit int, ok bool) {
	if len(prefix) != Length-1 || !allDigits(prefix) {
		return 0, false
	}
	sum := 0
	for i := 0; i < Length-1; i++ {
		sum += int(prefix[i]-'0') * (Length - i)
	}
	check := 11 - (sum % 11)
	switch check {
	case 11:
		return 0, true
	case 10:
		return 10, false
	default:
		return check, true
	}
}

// Valid reports whether s is exactly ten ASCII digits with a correct check digit.
func Valid(s string) bool {
	if len(s) != Length || !allDigits(s) {
		return false
	}
	digit, ok := CheckDigit(s[:Length-1])
	if !ok {
		return false
	}
	return int(s[Length-1]-'0') == digit
}

// Mask hides all but the last four digits, for logs and audit records.
func Mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// Generate returns a random valid identifier. Prefixes whose check digit
// would be 10 are skipped rather than mapped to 0.
func Generate(r *rand.Rand) string {
	for {
		prefix := fmt.Sprintf("%09d", r.Intn(1_000_000_000))
		if digit, ok := CheckDigit(prefix); ok {
			return fmt.Sprintf("%s%d", prefix, digit)
		}
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package practice

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gpbook/gpbook/internal/platform/apperr"
	"github.com/gpbook/gpbook/internal/platform/assertion"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{3,10}$`)

// Practice is a GP surgery that can be booked into. Records are created by
// administrative seeding and are read-only to the booking flow.
type Practice struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Endpoint  string    `json:"endpoint"`
	ASID      string    `json:"asid"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// NormalizeCode upper-cases and trims an organization code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code is 3 to 10 alphanumerics after normalization.
func ValidCode(code string) bool {
	return codePattern.MatchString(NormalizeCode(code))
}

// Target is the assertion audience and recipient for calls to this practice.
func (p *Practice) Target() assertion.Target {
	return assertion.Target{ASID: p.ASID, Endpoint: p.Endpoint}
}

// Validate normalizes the code and checks the record is usable.
func (p *Practice) Validate() error {
	p.Code = NormalizeCode(p.Code)
	if !codePattern.MatchString(p.Code) {
		return apperr.Validation("practice code must be 3-10 letters or digits")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperr.Validation("practice name is required")
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return apperr.Validation("practice endpoint must be an absolute http(s) URL")
	}
	if strings.TrimSpace(p.ASID) == "" {
		return apperr.Validation("practice ASID is required")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return apperr.Validation("practice email is invalid")
		}
	}
	return nil
}

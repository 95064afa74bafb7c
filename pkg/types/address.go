package types

import (
	"strings"

	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
)

// Address captures the shipping destination collected at checkout.
type Address struct {
	FullName   string  `json:"full_name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// Validate checks that every required field is non-empty. Phone and Line2 stay
// optional.
func (a Address) Validate() error {
	missing := []string{}
	for field, value := range map[string]string{
		"full_name":   a.FullName,
		"line1":       a.Line1,
		"city":        a.City,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// Normalized returns a copy with surrounding whitespace removed.
func (a Address) Normalized() Address {
	out := a
	out.FullName = strings.TrimSpace(a.FullName)
	out.Line1 = strings.TrimSpace(a.Line1)
	out.City = strings.TrimSpace(a.City)
	out.PostalCode = strings.TrimSpace(a.PostalCode)
	out.Country = strings.TrimSpace(a.Country)
	if a.Line2 != nil {
		trimmed := strings.TrimSpace(*a.Line2)
		out.Line2 = &trimmed
	}
	if a.Phone != nil {
		trimmed := strings.TrimSpace(*a.Phone)
		out.Phone = &trimmed
	}
	return out
}

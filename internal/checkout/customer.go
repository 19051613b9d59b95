package checkout

import (
	"html"
	"net/mail"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Lakyn80/naramkova-moda/internal/domain"
)

const (
	maxNameLength    = 120
	maxEmailLength   = 254
	maxAddressLength = 500
	maxNoteLength    = 2000
)

// ValidationError lists the customer fields that failed validation, mapped to a reason.
type ValidationError struct {
	Problems map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "checkout: invalid customer fields: " + strings.Join(e.Fields(), ", ")
}

// Fields returns the invalid field names in sorted order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Problems))
	for f := range e.Problems {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

var strictPolicy = bluemonday.StrictPolicy()

// normalizeCustomer strips markup from every field and checks the required ones.
func normalizeCustomer(c domain.Customer) (domain.Customer, error) {
	out := domain.Customer{
		Name:    cleanText(c.Name, maxNameLength),
		Email:   cleanText(c.Email, maxEmailLength),
		Address: cleanText(c.Address, maxAddressLength),
		Note:    cleanText(c.Note, maxNoteLength),
	}

	problems := map[string]string{}
	if out.Name == "" {
		problems["name"] = "required"
	}
	if out.Address == "" {
		problems["address"] = "required"
	}
	switch {
	case out.Email == "":
		problems["email"] = "required"
	default:
		addr, err := mail.ParseAddress(out.Email)
		if err != nil || addr.Address != out.Email {
			problems["email"] = "invalid"
		}
	}
	if len(problems) > 0 {
		return domain.Customer{}, &ValidationError{Problems: problems}
	}
	return out, nil
}

func cleanText(s string, limit int) string {
	s = strings.TrimSpace(strictPolicy.Sanitize(s))
	s = html.UnescapeString(s)
	if r := []rune(s); len(r) > limit {
		s = strings.TrimSpace(string(r[:limit]))
	}
	return s
}

package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Lakyn80/naramkova-moda/internal/money"
)

const (
	spdHeader        = "SPD*1.0"
	spdCurrency      = "CC:CZK"
	maxMessageLength = 60
)

var (
	// ErrInvalidAccount matches any *InvalidAccountError.
	ErrInvalidAccount = errors.New("payment: invalid account")
	// ErrInvalidAmount is returned for amounts that are not positive.
	ErrInvalidAmount = errors.New("payment: amount must be positive")
)

// InvalidAccountError reports a missing merchant account.
type InvalidAccountError struct {
	Account string
}

// Error implements the error interface.
func (e *InvalidAccountError) Error() string {
	return "payment: merchant account (IBAN) is required"
}

// Is lets errors.Is match ErrInvalidAccount.
func (e *InvalidAccountError) Is(target error) bool {
	return target == ErrInvalidAccount
}

// PaymentRequest describes one bank transfer.
type PaymentRequest struct {
	Account   string
	Amount    money.Amount
	Reference int
	Message   string
}

// BuildPayload encodes req in the SPD 1.0 format:
//
//	SPD*1.0*ACC:<IBAN>*AM:<amount>*CC:CZK[*X-VS:<reference>][*MSG:<message>]
//
// The same request always yields the same string.
func BuildPayload(req PaymentRequest) (string, error) {
	account := strings.ToUpper(strings.Join(strings.Fields(req.Account), ""))
	if account == "" {
		return "", &InvalidAccountError{Account: req.Account}
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidAmount, req.Amount)
	}

	parts := []string{
		spdHeader,
		"ACC:" + account,
		"AM:" + req.Amount.String(),
		spdCurrency,
	}
	if req.Reference != 0 {
		parts = append(parts, "X-VS:"+strconv.Itoa(req.Reference))
	}
	if msg := SanitizeMessage(req.Message); msg != "" {
		parts = append(parts, "MSG:"+msg)
	}
	return strings.Join(parts, "*"), nil
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldDiacritics maps accented letters to their ASCII base letters, so that
// "Objednávka" survives SanitizeMessage as "Objednavka" rather than "Objednvka".
func FoldDiacritics(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		return s
	}
	return folded
}

// SanitizeMessage drops every rune outside printable ASCII (0x20-0x7E) and
// truncates to 60 characters. "*" is the field delimiter and becomes a space.
func SanitizeMessage(msg string) string {
	var b strings.Builder
	for _, r := range msg {
		if r < 0x20 || r > 0x7e {
			continue
		}
		if r == '*' {
			r = ' '
		}
		b.WriteRune(r)
		if b.Len() == maxMessageLength {
			break
		}
	}
	return b.String()
}

// Package format renders amounts for display.
package format

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Lakyn80/naramkova-moda/internal/money"
)

const currencySuffix = " Kč"

// CZK renders the amount with two decimals and a "Kč" suffix, e.g. "416.00 Kč".
func CZK(a money.Amount) string {
	return a.String() + currencySuffix
}

// Localized renders the amount with the number conventions of tag, e.g.
// "1 290,50 Kč" for Czech. Unknown tags fall back to Czech.
func Localized(a money.Amount, tag language.Tag) string {
	if tag == language.Und {
		tag = language.Czech
	}
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(a.Float64(), number.MinFractionDigits(2), number.MaxFractionDigits(2))) + currencySuffix
}

// ParseLanguage picks the display language from an Accept-Language header.
func ParseLanguage(acceptLanguage string) language.Tag {
	matcher := language.NewMatcher([]language.Tag{language.Czech, language.English, language.Slovak})
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.Czech
	}
	tag, _, _ := matcher.Match(tags...)
	base, _ := tag.Base()
	return language.Make(base.String())
}

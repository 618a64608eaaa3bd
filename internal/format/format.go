// Package format renders monetary amounts and dates for presentation.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DateLayout is the presentation layout for document dates.
const DateLayout = "02 Jan 2006"

const defaultScale = 2

// Formatter formats values for one locale.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// New builds a formatter for a BCP 47 locale such as "en" or "de-DE".
func New(locale string) (*Formatter, error) {
	if strings.TrimSpace(locale) == "" {
		locale = "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("format: parse locale %q: %w", locale, err)
	}
	return &Formatter{tag: tag, printer: message.NewPrinter(tag)}, nil
}

// Locale returns the formatter's language tag.
func (f *Formatter) Locale() string {
	return f.tag.String()
}

// Currency renders amount with the ISO 4217 code and the currency's standard
// number of fraction digits, e.g. "USD 1,234.50" or "JPY 1,235".
func (f *Formatter) Currency(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	scale := defaultScale
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}
	rounded := amount.Round(int32(scale))
	value := f.printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(scale)))
	if code == "" {
		return value
	}
	return code + " " + value
}

// Date renders t with DateLayout, or an empty string for nil.
func (f *Formatter) Date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

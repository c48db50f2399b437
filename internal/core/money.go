// Package core provides money and date handling shared by the remote client,
// the dashboard service and the presentation layers.
//
// Amounts arrive from the server as decimal strings with up to twelve
// fractional digits; they are kept as integer cents once parsed.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ParseAmount converts a signed decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Rounding is applied to the magnitude, so -1.005
// becomes -101.
//
// Examples:
//
//	ParseAmount("12.34")             -> 1234
//	ParseAmount("-25.000000000000")  -> -2500
//	ParseAmount("12.345")            -> 1235
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Money{}, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return Money{}, ErrInvalidAmount
	}

	// First two fractional digits, then half-up on the third
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if negative {
		cents = -cents
	}
	return Money{Cents: cents}, nil
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Float returns the value in major units for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

var printer = message.NewPrinter(language.English)

// FormatMoney renders m with thousands grouping and the currency symbol when
// the ISO code is known, e.g. "-€ 1,234.56". Unknown codes are printed as-is.
func FormatMoney(m Money, currencyCode string) string {
	sign := ""
	abs := m.Abs()
	if m.Cents < 0 {
		sign = "-"
	}

	whole := printer.Sprintf("%d", abs.Cents/100)
	value := fmt.Sprintf("%s.%02d", whole, abs.Cents%100)

	symbol := strings.ToUpper(strings.TrimSpace(currencyCode))
	if unit, err := currency.ParseISO(symbol); err == nil {
		symbol = printer.Sprint(currency.Symbol(unit))
	}
	if symbol == "" {
		return sign + value
	}
	return sign + symbol + " " + value
}

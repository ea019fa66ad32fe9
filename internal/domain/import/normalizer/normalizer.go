// Package normalizer converts raw statement amounts, dates and type hints
// into the canonical representation used by the ingestion pipeline.
package normalizer

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount format")
	ErrZeroAmount    = errors.New("zero-amount row")
	ErrInvalidDate   = errors.New("invalid date format")
)

// TxType is the income/expense polarity of a transaction.
type TxType string

const (
	TypeIncome  TxType = "income"
	TypeExpense TxType = "expense"
)

// currencyWordRe strips a leading currency word like "Rs.", "INR", "USD"
// once symbols and whitespace are gone.
var currencyWordRe = regexp.MustCompile(`^[A-Za-z]{1,4}\.?`)

// ParseAmount converts a raw amount string into a signed decimal.
// Accounting-style parentheses mark negatives and are detected before
// currency symbols, grouping commas and whitespace are stripped.
// Unparseable input returns ErrInvalidAmount; the caller must skip the
// row rather than coerce to zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	// Parenthesized form: (123.45) == -123.45.
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Currency symbols, grouping commas and inner whitespace.
	s = strings.Map(func(r rune) rune {
		switch r {
		case '₹', '$', '€', '£', '¥', ',':
			return -1
		}
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	// Currency word prefix, only when digits follow it.
	if loc := currencyWordRe.FindStringIndex(s); loc != nil {
		rest := s[loc[1]:]
		if rest != "" && (unicode.IsDigit(rune(rest[0])) || rest[0] == '-') {
			s = rest
		}
	}

	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseAmountValue accepts the untyped amount cell of a raw row: numbers
// are taken as-is when finite, strings go through ParseAmount.
func ParseAmountValue(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case nil:
		return decimal.Zero, ErrInvalidAmount
	case decimal.Decimal:
		return a, nil
	case float64:
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromFloat(a), nil
	case float32:
		return ParseAmountValue(float64(a))
	case int:
		return decimal.NewFromInt(int64(a)), nil
	case int64:
		return decimal.NewFromInt(a), nil
	case string:
		return ParseAmount(a)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

// NormalizeDebitCredit resolves double-entry statement columns into one
// signed amount: withdrawals negative, deposits positive. A row carrying
// non-zero values in both columns is malformed.
func NormalizeDebitCredit(debit, credit string) (decimal.Decimal, error) {
	var debitVal, creditVal decimal.Decimal
	var err error

	if strings.TrimSpace(debit) != "" {
		if debitVal, err = ParseAmount(debit); err != nil {
			return decimal.Zero, err
		}
	}
	if strings.TrimSpace(credit) != "" {
		if creditVal, err = ParseAmount(credit); err != nil {
			return decimal.Zero, err
		}
	}

	if !debitVal.IsZero() && !creditVal.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !debitVal.IsZero() {
		return debitVal.Abs().Neg(), nil
	}
	return creditVal, nil
}

// InferType derives polarity from the amount sign: >= 0 is income.
func InferType(amount decimal.Decimal) TxType {
	if amount.Sign() >= 0 {
		return TypeIncome
	}
	return TypeExpense
}

// ResolveType honors an explicit source type field only when its
// normalized value is exactly "income" or "expense"; anything else falls
// back to sign inference. It never fails on untrusted free text.
func ResolveType(explicit string, amount decimal.Decimal) TxType {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case string(TypeIncome):
		return TypeIncome
	case string(TypeExpense):
		return TypeExpense
	default:
		return InferType(amount)
	}
}

// Common date formats used by banks worldwide.
var dateFormats = []string{
	// European (DD-MM-YYYY variants)
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2-1-2006",
	"2/1/2006",

	// American (MM-DD-YYYY variants)
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",

	// ISO (YYYY-MM-DD)
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,

	// With time
	"02-01-2006 15:04",
	"02/01/2006 15:04",
	"01/02/2006 15:04",
	"2006-01-02 15:04:05",

	// Month names
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
}

// ParseFlexibleDate attempts to parse a date using multiple formats.
func ParseFlexibleDate(raw string, preferredFormat string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}

	if loc == nil {
		loc = time.UTC
	}

	// Try preferred format first
	if preferredFormat != "" {
		goFormat := convertDateFormat(preferredFormat)
		if t, err := time.ParseInLocation(goFormat, raw, loc); err == nil {
			return t, nil
		}
	}

	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, raw, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

// convertDateFormat converts user-friendly format strings to Go format,
// e.g. "DD-MM-YYYY" -> "02-01-2006".
func convertDateFormat(format string) string {
	replacements := []struct{ pattern, goFmt string }{
		{"YYYY", "2006"},
		{"YY", "06"},
		{"MM", "01"},
		{"DD", "02"},
		{"HH", "15"},
		{"mm", "04"},
		{"ss", "05"},
	}

	result := format
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.pattern, r.goFmt)
	}
	return result
}

var spacePattern = regexp.MustCompile(`\s+`)

// CleanDescription trims and collapses whitespace in narration text.
func CleanDescription(raw string) string {
	return spacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")
}

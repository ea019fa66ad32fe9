// Package textnorm rewrites free-text transaction descriptions into
// templates with volatile substrings (order numbers, reference ids, dates,
// amounts) replaced by placeholders. Near-duplicate descriptions collapse
// to one normalized form, which is the cache key for the external
// classifier. Merchant names and location tokens are never substituted;
// they are the signal the classifier needs.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)

	orderHashRe = regexp.MustCompile(`#\d+`)
	orderWordRe = regexp.MustCompile(`\b(order|ord)\b(\s*(?:no\.?|id)?\s*[:#]?\s*)\d+`)
	refMarkerRe = regexp.MustCompile(`\b(ref|refno|utr|rrn|txn|txnid|transaction)\b([\s:#.]*)(\d{4,})`)
	upiTripleRe = regexp.MustCompile(`\b([a-z][a-z0-9.]*)[-/](\d{4,})@([a-z][a-z0-9.]*)`)
	slashDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	isoDateRe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	currencyRe  = regexp.MustCompile(`(₹|rs\.?|inr|usd|\$|€|£)(\s*)(\d[\d,]*(?:\.\d+)?)`)
	digitRunRe  = regexp.MustCompile(`\d+`)
)

// xRun masks every digit in s with 'X', keeping commas and points so the
// shape of the original value stays visible in the template.
func xRun(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return 'X'
		}
		return r
	}, s)
}

// NormalizeDescription lowercases text and substitutes volatile substrings
// with placeholders in a fixed priority order: order numbers, reference
// ids after known markers, UPI merchant-number-handle triples, calendar
// dates, currency amounts, then any remaining bare digit run. It is a
// pure, total function; empty or whitespace-only input yields "".
func NormalizeDescription(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return ""
	}
	s = spaceRe.ReplaceAllString(s, " ")

	// Order numbers collapse to a single token regardless of digit count;
	// the count carries no signal for classification.
	s = orderHashRe.ReplaceAllString(s, "#ORDER")
	s = orderWordRe.ReplaceAllString(s, "${1}${2}#ORDER")

	// Reference ids keep their digit count as an X-run: the run length
	// distinguishes rails that use differently sized references.
	s = refMarkerRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := refMarkerRe.FindStringSubmatch(m)
		return sub[1] + sub[2] + xRun(sub[3])
	})

	// UPI triples: merchant and handle stay, the numeric segment is masked.
	s = upiTripleRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := upiTripleRe.FindStringSubmatch(m)
		return sub[1] + "-" + xRun(sub[2]) + "@" + sub[3]
	})

	s = slashDateRe.ReplaceAllString(s, "DD/MM/YYYY")
	s = isoDateRe.ReplaceAllString(s, "YYYY-MM-DD")

	// Currency amounts keep the literal and the value shape.
	s = currencyRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := currencyRe.FindStringSubmatch(m)
		return sub[1] + sub[2] + xRun(sub[3])
	})

	s = digitRunRe.ReplaceAllStringFunc(s, xRun)

	return s
}

// Group is one normalized form with every original description that
// collapsed to it, in first-seen order.
type Group struct {
	Normalized string
	Originals  []string
}

// NormalizeBatch groups descriptions by normalized form. Group order and
// order within each group follow the first appearance in texts, so the
// caller can issue one classifier call per group and fan the label back
// out to every original.
func NormalizeBatch(texts []string) []Group {
	index := make(map[string]int, len(texts))
	groups := make([]Group, 0, len(texts))

	for _, text := range texts {
		norm := NormalizeDescription(text)
		if i, ok := index[norm]; ok {
			groups[i].Originals = append(groups[i].Originals, text)
			continue
		}
		index[norm] = len(groups)
		groups = append(groups, Group{Normalized: norm, Originals: []string{text}})
	}

	return groups
}

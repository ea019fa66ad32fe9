// Package narration parses Indian bank statement narration strings into a
// merchant, a readable description and a transaction kind. The parser is a
// rule cascade over the narration families SBI-style statements produce;
// text no rule claims passes through verbatim so ingestion never loses a
// row to a parse failure.
package narration

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind labels the narration family a row was claimed by.
type Kind string

const (
	KindUPI          Kind = "upi"
	KindPOS          Kind = "pos"
	KindATM          Kind = "atm"
	KindINB          Kind = "inb"
	KindCashDeposit  Kind = "cash_deposit"
	KindTransfer     Kind = "transfer"
	KindUnrecognized Kind = "unrecognized"
)

// UnknownMerchant is the merchant for rows no rule could attribute.
const UnknownMerchant = "Unknown"

// Result is the parse outcome for one narration string. Meta carries
// family-specific extras (reference numbers, locations, bank codes) that
// downstream consumers may surface but must not depend on.
type Result struct {
	Merchant         string
	CleanDescription string
	Kind             Kind
	Meta             map[string]string
}

// Parser runs the narration cascade against a fixed alias table.
// It is safe for concurrent use.
type Parser struct {
	aliases AliasTable
}

// NewParser builds a parser over the given alias table; nil selects the
// built-in default table.
func NewParser(table AliasTable) *Parser {
	if table == nil {
		table = DefaultAliasTable()
	}
	return &Parser{aliases: table}
}

var (
	upiRe = regexp.MustCompile(`(?i)UPI/(DR|CR)/([A-Za-z0-9]+)/([^/]+)/([^/]+)/([^/]+)`)

	posRefRe       = regexp.MustCompile(`\b(\d{10,})\b`)
	posNoiseRe     = regexp.MustCompile(`(?i)\b(POS|ATM|PURCH|OTHPG|SBIPG|DBTPG)\b`)
	posGatewayRe   = regexp.MustCompile(`(?i)\b(OTHPG|SBIPG|DBTPG)\b`)
	trailingJunkRe = regexp.MustCompile(`[0-9._-]+$`)

	// Terminal-id prefixes stitched onto POS merchant names, tried in
	// order: "17Pho*", bare digits, "PAYU*", "RAZP_".
	terminalPrefixRes = []*regexp.Regexp{
		regexp.MustCompile(`^\d+[^*]*\*`),
		regexp.MustCompile(`^\d+`),
		regexp.MustCompile(`^[A-Za-z0-9]+\*`),
		regexp.MustCompile(`^[A-Za-z0-9]+_`),
	}

	atmNoiseRe   = regexp.MustCompile(`(?i)\bATM\s+(WDL|CASH)\b`)
	atmMachineRe = regexp.MustCompile(`^(\d+(?:\s+[A-Z]{1,3})?)\b`)

	inbNoiseRe    = regexp.MustCompile(`(?i)\b(WDL|TFR|INB)\b`)
	inbBranchRe   = regexp.MustCompile(`(?i)\bAT\s+\d+.*$`)
	depositLocRe  = regexp.MustCompile(`(?i)\bAT\s+(.+)$`)
	cdmRefRe      = regexp.MustCompile(`\b(\d{5,})\b`)
	neftTripleRe  = regexp.MustCompile(`(?i)\b(?:NEFT|RTGS|IMPS)[*/]([^/*]+)[*/]([^/*]+)[*/]([^/*]+)`)
	counterNameRe = regexp.MustCompile(`(?i)\bOF\s+(?:Mr|Mrs|Ms|M/s)\.?\s+([A-Za-z][A-Za-z .]*)`)
	nameNoiseRe   = regexp.MustCompile(`(?i)\s+(?:MO|AT|M)\s*$`)
	transferLocRe = regexp.MustCompile(`(?i)\bAT\s+(\d{4,}\s+.*)`)

	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// Parse classifies a single narration string. It never fails: every input
// yields a Result, with unclaimed text passed through unchanged under
// KindUnrecognized.
func (p *Parser) Parse(text string) Result {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	if m := upiRe.FindStringSubmatch(trimmed); m != nil {
		return p.parseUPI(trimmed, m)
	}
	if strings.Contains(upper, "POS") && strings.Contains(upper, "PURCH") {
		return p.parsePOS(trimmed)
	}
	if strings.Contains(upper, "ATM WDL") {
		return p.parseATM(trimmed)
	}
	if strings.Contains(upper, "INB") {
		return p.parseINB(trimmed)
	}
	if strings.Contains(upper, "CASH DEPOSIT") || strings.Contains(upper, "CEMTEX") {
		return p.parseCashDeposit(trimmed, upper)
	}
	if res, ok := p.parseTransfer(trimmed, upper); ok {
		return res
	}

	return Result{
		Merchant:         UnknownMerchant,
		CleanDescription: text,
		Kind:             KindUnrecognized,
		Meta:             map[string]string{},
	}
}

// parseUPI handles "UPI/DR/<ref>/<name>/<bank>/<handle>[/<app> ...]". The
// counterparty name printed by the bank is often truncated or a raw
// account label, so the alias lookup also considers the VPA handle and
// the payment app segment before falling back to the cleaned name.
func (p *Parser) parseUPI(text string, m []string) Result {
	direction := strings.ToUpper(m[1])
	reference := m[2]
	name := strings.TrimSpace(m[3])
	bank := strings.TrimSpace(m[4])
	handle := strings.TrimSpace(m[5])

	app := ""
	if parts := strings.Split(text, "/"); len(parts) > 6 {
		if fields := strings.Fields(parts[6]); len(fields) > 0 {
			app = fields[0]
		}
	}

	cleanName := strings.TrimSpace(trailingJunkRe.ReplaceAllString(name, ""))
	if cleanName == "" {
		cleanName = name
	}

	merchant, ok := p.aliases.Match(cleanName, handle, app)
	if !ok {
		merchant = titleCase(cleanName)
	}
	if merchant == "" {
		merchant = UnknownMerchant
	}

	sentence := fmt.Sprintf("UPI Transfer to %s", merchant)
	if direction == "CR" {
		sentence = fmt.Sprintf("UPI Received from %s", merchant)
	}

	meta := map[string]string{
		"reference": reference,
		"bank":      bank,
		"upi_id":    handle,
	}
	if app != "" {
		meta["app"] = app
	}

	return Result{Merchant: merchant, CleanDescription: sentence, Kind: KindUPI, Meta: meta}
}

// parsePOS handles card purchases: "POS ATM PURCH OTHPG <ref> <terminal
// prefix><merchant> <location>". The last whitespace token is the
// location; terminal-id prefixes are stripped from the merchant part.
func (p *Parser) parsePOS(text string) Result {
	meta := map[string]string{}
	if gw := posGatewayRe.FindString(text); gw != "" {
		meta["gateway"] = strings.ToUpper(gw)
	}
	rest := text
	if ref := posRefRe.FindString(rest); ref != "" {
		meta["reference"] = ref
		rest = strings.Replace(rest, ref, " ", 1)
	}
	rest = posNoiseRe.ReplaceAllString(rest, " ")
	rest = squeeze(rest)

	if rest == "" {
		return Result{
			Merchant:         UnknownMerchant,
			CleanDescription: "Card purchase",
			Kind:             KindPOS,
			Meta:             meta,
		}
	}

	words := strings.Fields(rest)
	location := ""
	rawMerchant := rest
	if len(words) > 1 {
		location = words[len(words)-1]
		rawMerchant = strings.Join(words[:len(words)-1], " ")
	}

	stripped := stripTerminalPrefix(rawMerchant)
	if stripped == "" {
		stripped = rawMerchant
	}

	merchant, ok := p.aliases.Match(stripped, rawMerchant)
	if !ok {
		merchant = titleCase(stripped)
	}
	if location != "" {
		meta["location"] = location
	}

	sentence := fmt.Sprintf("Card purchase at %s", merchant)
	if location != "" {
		sentence = fmt.Sprintf("Card purchase at %s, %s", merchant, titleCase(location))
	}

	return Result{Merchant: merchant, CleanDescription: sentence, Kind: KindPOS, Meta: meta}
}

// stripTerminalPrefix removes the first matching terminal-id pattern. Only
// one rule fires; the patterns overlap and applying more than one would
// eat the merchant name itself.
func stripTerminalPrefix(s string) string {
	for _, re := range terminalPrefixRes {
		if re.MatchString(s) {
			return strings.TrimSpace(re.ReplaceAllString(s, ""))
		}
	}
	return s
}

// parseATM handles "ATM WDL ATM CASH <machine id> <location>". Machine ids
// are digits optionally followed by a short uppercase site code ("1957 SP").
func (p *Parser) parseATM(text string) Result {
	rest := squeeze(atmNoiseRe.ReplaceAllString(text, " "))

	meta := map[string]string{}
	location := rest
	if m := atmMachineRe.FindStringSubmatch(rest); m != nil {
		meta["machine_id"] = m[1]
		location = strings.TrimSpace(rest[len(m[0]):])
	}
	if location != "" {
		meta["location"] = location
	}

	sentence := "ATM withdrawal"
	if location != "" {
		sentence = fmt.Sprintf("ATM withdrawal at %s", location)
	}

	return Result{Merchant: "ATM Withdrawal", CleanDescription: sentence, Kind: KindATM, Meta: meta}
}

// parseINB handles internet-banking transfers: "WDL TFR INB <counterparty>
// [AT <branch code>]". Counterparty labels are frequently truncated
// mid-word by the statement column width.
func (p *Parser) parseINB(text string) Result {
	rest := inbNoiseRe.ReplaceAllString(text, " ")
	rest = inbBranchRe.ReplaceAllString(rest, " ")
	rest = strings.TrimSuffix(squeeze(rest), "...")
	rest = strings.TrimSpace(rest)

	meta := map[string]string{}
	if rest == "" {
		return Result{
			Merchant:         UnknownMerchant,
			CleanDescription: "Internet banking transfer",
			Kind:             KindINB,
			Meta:             meta,
		}
	}

	merchant, ok := p.aliases.Match(rest)
	if !ok {
		merchant = rest
	}

	// User-labeled transfers ("Gift to relatives / Friends") already read
	// as a sentence; re-wrapping them as "Transfer to ..." loses the label.
	sentence := fmt.Sprintf("Transfer to %s", merchant)
	if strings.Contains(strings.ToLower(rest), "gift") {
		merchant = rest
		sentence = rest
	}

	return Result{Merchant: merchant, CleanDescription: sentence, Kind: KindINB, Meta: meta}
}

// parseCashDeposit handles branch deposits ("CASH DEPOSIT ... AT <branch>")
// and deposit-machine credits ("CEMTEX DEP <ref> ...").
func (p *Parser) parseCashDeposit(text, upper string) Result {
	meta := map[string]string{}

	if strings.Contains(upper, "CEMTEX") {
		if ref := cdmRefRe.FindString(text); ref != "" {
			meta["reference"] = ref
		}
		merchant := "Cash Deposit"
		if hit, ok := p.aliases.Match(text); ok {
			merchant = hit
		}
		return Result{
			Merchant:         merchant,
			CleanDescription: "Cash deposit at deposit machine",
			Kind:             KindCashDeposit,
			Meta:             meta,
		}
	}

	sentence := "Cash deposit"
	if m := depositLocRe.FindStringSubmatch(text); m != nil {
		branch := strings.TrimSpace(m[1])
		meta["branch"] = branch
		sentence = fmt.Sprintf("Cash deposit at %s", branch)
	}

	return Result{
		Merchant:         "Cash Deposit",
		CleanDescription: sentence,
		Kind:             KindCashDeposit,
		Meta:             meta,
	}
}

// parseTransfer is the last structured family: generic NEFT/RTGS/IMPS
// triples, "OF Mr <name>" counterparty mentions, and bare alias hits in
// otherwise unstructured transfer text. It declines (ok=false) when it
// cannot attribute a counterparty, letting the text pass through.
func (p *Parser) parseTransfer(text, upper string) (Result, bool) {
	credit := strings.Contains(upper, "DEP") || strings.Contains(upper, " CR")

	if m := neftTripleRe.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[3])
		merchant, ok := p.aliases.Match(name)
		if !ok {
			merchant = titleCase(name)
		}
		return Result{
			Merchant:         merchant,
			CleanDescription: transferSentence(merchant, credit),
			Kind:             KindTransfer,
			Meta:             map[string]string{"reference": strings.TrimSpace(m[2])},
		}, true
	}

	if !strings.Contains(upper, "TFR") {
		return Result{}, false
	}

	if m := counterNameRe.FindStringSubmatch(text); m != nil {
		// The name column carries truncated filler after the person
		// ("MEERA MOHIDDIN MO", "HASSAN MOHIDDIN AT 04413 ...").
		name := strings.TrimSpace(nameNoiseRe.ReplaceAllString(strings.TrimSpace(m[1]), ""))
		merchant, ok := p.aliases.Match(name)
		if !ok {
			merchant = titleCase(name)
		}
		meta := map[string]string{}
		if lm := transferLocRe.FindStringSubmatch(text); lm != nil {
			meta["location"] = strings.TrimSpace(lm[1])
		}
		return Result{
			Merchant:         merchant,
			CleanDescription: transferSentence(merchant, credit),
			Kind:             KindTransfer,
			Meta:             meta,
		}, true
	}
	merchant, ok := p.aliases.Match(text)
	if !ok {
		return Result{}, false
	}
	return Result{
		Merchant:         merchant,
		CleanDescription: transferSentence(merchant, credit),
		Kind:             KindTransfer,
		Meta:             map[string]string{},
	}, true
}

func transferSentence(merchant string, credit bool) string {
	if credit {
		return fmt.Sprintf("Received from %s", merchant)
	}
	return fmt.Sprintf("Transfer to %s", merchant)
}

func squeeze(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}

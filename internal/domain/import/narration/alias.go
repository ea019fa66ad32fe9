package narration

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Alias pairs a canonical merchant name with the textual variants banks
// print for it.
type Alias struct {
	Canonical string   `yaml:"canonical"`
	Tokens    []string `yaml:"tokens"`
}

// AliasTable is an ordered list of merchant aliases. Order is a contract:
// on ambiguous multi-match text the earliest entry wins, so more specific
// names (e.g. "Swiggy Instamart") must precede their prefixes ("Swiggy").
// The table is read-only after construction.
type AliasTable []Alias

// shortAliasLen is the cutoff below which an alias only matches on word
// boundaries; substring-matching a 3-letter token inside longer words
// produces false positives ("ola" in "cholamandalam").
const shortAliasLen = 4

// Match resolves candidate fields against the table. Pass one matches the
// whitespace-collapsed lowercase form of each field; pass two retries with
// a space-preserving form so short aliases can require word boundaries.
// The first table entry to match wins.
func (t AliasTable) Match(fields ...string) (string, bool) {
	collapsed := make([]string, 0, len(fields))
	spaced := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		lf := strings.ToLower(f)
		spaced = append(spaced, lf)
		collapsed = append(collapsed, collapseSpace(lf))
	}
	if len(spaced) == 0 {
		return "", false
	}

	for _, entry := range t {
		for _, tok := range entry.Tokens {
			lt := strings.ToLower(tok)
			if len(lt) < shortAliasLen {
				continue
			}
			ct := collapseSpace(lt)
			for _, c := range collapsed {
				if strings.Contains(c, ct) {
					return entry.Canonical, true
				}
			}
		}
	}

	for _, entry := range t {
		for _, tok := range entry.Tokens {
			lt := strings.ToLower(tok)
			for _, s := range spaced {
				if containsWord(s, lt) {
					return entry.Canonical, true
				}
			}
		}
	}

	return "", false
}

func collapseSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// containsWord reports whether needle occurs in haystack delimited by
// non-alphanumeric characters (or string edges).
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		leftOK := i == 0 || !isWordRune(rune(haystack[i-1]))
		rightOK := end == len(haystack) || !isWordRune(rune(haystack[end]))
		if leftOK && rightOK {
			return true
		}
		start = i + 1
		if start >= len(haystack) {
			return false
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// LoadAliasTable reads an alias table override from a YAML file.
func LoadAliasTable(path string) (AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias table %s: %w", path, err)
	}
	var table AliasTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse alias table %s: %w", path, err)
	}
	for i, entry := range table {
		if entry.Canonical == "" || len(entry.Tokens) == 0 {
			return nil, fmt.Errorf("alias table %s: entry %d is incomplete", path, i)
		}
	}
	return table, nil
}

// DefaultAliasTable returns the curated built-in table. Callers must not
// mutate the result.
func DefaultAliasTable() AliasTable {
	return defaultAliases
}

var defaultAliases = AliasTable{
	{Canonical: "Swiggy Instamart", Tokens: []string{"swiggy instamart", "instamart"}},
	{Canonical: "Swiggy", Tokens: []string{"swiggy"}},
	{Canonical: "Zomato", Tokens: []string{"zomato", "zomatofo"}},
	{Canonical: "PhonePe", Tokens: []string{"phonepe"}},
	{Canonical: "Paytm", Tokens: []string{"paytm", "one97"}},
	{Canonical: "Google Pay", Tokens: []string{"google pay", "gpay"}},
	{Canonical: "Uber", Tokens: []string{"uber", "uber india"}},
	{Canonical: "Ola", Tokens: []string{"olacabs", "ola"}},
	{Canonical: "Rapido", Tokens: []string{"rapido"}},
	{Canonical: "Blinkit", Tokens: []string{"blinkit", "grofers"}},
	{Canonical: "Zepto", Tokens: []string{"zepto"}},
	{Canonical: "BigBasket", Tokens: []string{"bigbasket", "big basket"}},
	{Canonical: "Amazon", Tokens: []string{"amazon", "amzn"}},
	{Canonical: "Flipkart", Tokens: []string{"flipkart"}},
	{Canonical: "Myntra", Tokens: []string{"myntra"}},
	{Canonical: "Ajio", Tokens: []string{"ajio"}},
	{Canonical: "Netflix", Tokens: []string{"netflix"}},
	{Canonical: "Spotify", Tokens: []string{"spotify"}},
	{Canonical: "Youtube", Tokens: []string{"youtube", "google oct"}},
	{Canonical: "Apple", Tokens: []string{"apple.com", "itunes"}},
	{Canonical: "Google", Tokens: []string{"google"}},
	{Canonical: "Jio", Tokens: []string{"reliance jio", "jio"}},
	{Canonical: "Airtel", Tokens: []string{"airtel"}},
	{Canonical: "Vodafone", Tokens: []string{"vodafone", "vi"}},
	{Canonical: "McDonald's", Tokens: []string{"mcdonalds", "mcdonald"}},
	{Canonical: "Starbucks", Tokens: []string{"starbucks"}},
	{Canonical: "KFC", Tokens: []string{"kfc"}},
	{Canonical: "Burger King", Tokens: []string{"burger king"}},
	{Canonical: "Domino's", Tokens: []string{"dominos", "domino's"}},
	{Canonical: "Pizza Hut", Tokens: []string{"pizza hut"}},
	{Canonical: "Subway", Tokens: []string{"subway"}},
	{Canonical: "IRCTC", Tokens: []string{"irctc"}},
	{Canonical: "DMart", Tokens: []string{"dmart", "avenue supermarts"}},
}

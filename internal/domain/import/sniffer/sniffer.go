// Package sniffer detects the shape of uploaded statement files: the
// delimiter, the preamble length before the header row, and a header
// fingerprint used to remember per-bank column mappings across imports.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
)

// Header keywords seen across Indian and generic bank statement exports.
var headerKeywords = []string{
	// SBI / Indian bank exports
	"txn date", "value date", "narration", "particulars", "withdrawal", "deposit",
	"chq", "ref no", "closing balance", "dr amount", "cr amount",
	// Generic exports and aggregator CSVs
	"date", "description", "amount", "debit", "credit", "balance", "category",
	"merchant", "type",
}

// FileConfig holds the detected configuration for a statement file.
type FileConfig struct {
	Delimiter   rune       // Field delimiter (',', ';', '\t', '|')
	SkipLines   int        // Metadata/preamble lines before the header
	Headers     []string   // Detected header names
	Fingerprint string     // SHA256 of normalized headers, keys bank mappings
	SampleRows  [][]string // First few data rows for mapping preview
}

// ColumnSuggestions provides auto-detected column indices; -1 means not found.
type ColumnSuggestions struct {
	DateCol       int
	DescCol       int
	AmountCol     int // Single signed amount column
	DebitCol      int
	CreditCol     int
	CategoryCol   int
	TypeCol       int  // Explicit income/expense column, if any
	IsDoubleEntry bool // Separate withdrawal/deposit columns
}

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find statement headers")
)

// DetectConfig analyzes an uploaded delimited file and returns its shape.
func DetectConfig(data []byte) (*FileConfig, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")
	delimiter, skipLines, err := findHeaderRow(lines)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(lines[skipLines]))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: headerFingerprint(headers),
		SampleRows:  sampleRows(data, delimiter, skipLines+1, 5),
	}, nil
}

// SuggestColumns auto-matches statement columns by header name. Earlier
// columns win when several headers match the same role.
func SuggestColumns(headers []string) *ColumnSuggestions {
	s := &ColumnSuggestions{
		DateCol:     -1,
		DescCol:     -1,
		AmountCol:   -1,
		DebitCol:    -1,
		CreditCol:   -1,
		CategoryCol: -1,
		TypeCol:     -1,
	}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))

		if s.DateCol == -1 {
			// "Value Date" is the settlement date; prefer "Txn Date" when
			// both appear, which holds because it comes first in exports.
			if strings.Contains(h, "date") || h == "data" {
				s.DateCol = i
			}
		}

		if s.DescCol == -1 {
			if strings.Contains(h, "narration") || strings.Contains(h, "particulars") ||
				strings.Contains(h, "descri") || strings.Contains(h, "merchant") {
				s.DescCol = i
			}
		}

		if s.DebitCol == -1 {
			if strings.Contains(h, "withdrawal") || strings.Contains(h, "debit") ||
				strings.Contains(h, "dr amount") {
				s.DebitCol = i
			}
		}

		if s.CreditCol == -1 {
			if strings.Contains(h, "deposit") || strings.Contains(h, "credit") ||
				strings.Contains(h, "cr amount") {
				s.CreditCol = i
			}
		}

		if s.AmountCol == -1 {
			if h == "amount" || h == "txn amount" || h == "transaction amount" {
				s.AmountCol = i
			}
		}

		if s.CategoryCol == -1 {
			if strings.Contains(h, "categ") {
				s.CategoryCol = i
			}
		}

		if s.TypeCol == -1 {
			if h == "type" || h == "txn type" || h == "transaction type" {
				s.TypeCol = i
			}
		}
	}

	s.IsDoubleEntry = s.DebitCol != -1 && s.CreditCol != -1
	return s
}

// findHeaderRow locates the header row and its delimiter. Bank exports
// often carry an account-summary preamble, so up to 20 lines are scanned.
func findHeaderRow(lines []string) (rune, int, error) {
	delimiters := []rune{';', '\t', ',', '|'}

	for i, line := range lines {
		if i > 20 {
			break
		}

		lineLower := strings.ToLower(line)
		hasKeyword := false
		for _, kw := range headerKeywords {
			if strings.Contains(lineLower, kw) {
				hasKeyword = true
				break
			}
		}
		if !hasKeyword {
			continue
		}

		for _, d := range delimiters {
			// At least three columns: date, narration, amount.
			if strings.Count(line, string(d)) >= 2 {
				return d, i, nil
			}
		}
	}

	return 0, 0, ErrNoHeadersFound
}

// headerFingerprint hashes the normalized header names so a bank's layout
// is recognized the next time the same export format is uploaded.
func headerFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// sampleRows returns up to maxRows data rows after the header.
func sampleRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	lineNum := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		if lineNum >= startLine {
			rows = append(rows, record)
			if len(rows) >= maxRows {
				break
			}
		}
		lineNum++
	}

	return rows
}

// Package service orchestrates statement ingestion: file analysis, the
// normalize-dedup-enrich pipeline, and persistence through the store.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/classify"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/fingerprint"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/narration"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/normalizer"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/repository"
	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/import/sniffer"
	"github.com/hassang371/spendsmart-dashboard-sub002/pkg/observability"
)

// ColumnMapping defines how statement columns map to transaction fields.
// Indices are -1 when the column is absent.
type ColumnMapping struct {
	DateCol       int
	DescCol       int
	AmountCol     int // single signed amount column
	DebitCol      int
	CreditCol     int
	CategoryCol   int
	TypeCol       int // explicit income/expense column
	IsDoubleEntry bool
	DateFormat    string
}

// AnalyzeResult is the outcome of inspecting an uploaded file before import.
type AnalyzeResult struct {
	FileConfig        *sniffer.FileConfig
	ColumnSuggestions *sniffer.ColumnSuggestions
	MappingFound      bool
	Mapping           *repository.BankMapping
	CanAutoImport     bool
}

// RowError records one failed row and the reason, 1-indexed by file line.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Summary is the ingestion report for one import: every input row is
// accounted for as inserted, skipped duplicate, or failed.
type Summary struct {
	JobID             uuid.UUID  `json:"job_id"`
	RowsTotal         int        `json:"rows_total"`
	Inserted          int        `json:"inserted"`
	SkippedDuplicates int        `json:"skipped_duplicates"`
	Failed            []RowError `json:"failed"`
}

// ImportService runs the ingestion pipeline.
type ImportService struct {
	store       repository.Store
	parser      *narration.Parser
	categorizer *classify.Categorizer // nil disables classification
	logger      *slog.Logger
}

const importBatchSize = 500

type parseJob struct {
	lineNum int
	record  []string
}

type parseResult struct {
	lineNum int
	tx      *repository.CanonicalTransaction
	err     error
}

// NewImportService creates an import service. categorizer may be nil, in
// which case rows keep the default category.
func NewImportService(store repository.Store, parser *narration.Parser, categorizer *classify.Categorizer, logger *slog.Logger) *ImportService {
	return &ImportService{
		store:       store,
		parser:      parser,
		categorizer: categorizer,
		logger:      logger,
	}
}

// AnalyzeFile inspects an uploaded file: detects its shape, suggests a
// column mapping and checks whether a learned mapping already exists.
func (s *ImportService) AnalyzeFile(ctx context.Context, userID uuid.UUID, fileData []byte) (*AnalyzeResult, error) {
	config, err := sniffer.DetectConfig(fileData)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}

	suggestions := sniffer.SuggestColumns(config.Headers)

	mapping, err := s.store.GetMappingByFingerprint(ctx, config.Fingerprint, &userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup mapping: %w", err)
	}

	return &AnalyzeResult{
		FileConfig:        config,
		ColumnSuggestions: suggestions,
		MappingFound:      mapping != nil,
		Mapping:           mapping,
		CanAutoImport:     mapping != nil,
	}, nil
}

// SaveMapping persists a user's column mapping for the given header
// fingerprint so the next upload of the same format imports directly.
func (s *ImportService) SaveMapping(ctx context.Context, userID uuid.UUID, fingerprint, bankName string, delimiter rune, skipLines int, mapping ColumnMapping) error {
	bankNamePtr := &bankName
	if bankName == "" {
		bankNamePtr = nil
	}

	optional := func(col int) *int {
		if col < 0 {
			return nil
		}
		return &col
	}

	m := &repository.BankMapping{
		UserID:      &userID,
		Fingerprint: fingerprint,
		BankName:    bankNamePtr,
		Delimiter:   string(delimiter),
		SkipLines:   skipLines,
		DateFormat:  mapping.DateFormat,
		DateCol:     mapping.DateCol,
		DescCol:     mapping.DescCol,
		CategoryCol: optional(mapping.CategoryCol),
		TypeCol:     optional(mapping.TypeCol),
	}
	if mapping.IsDoubleEntry {
		m.DebitCol = optional(mapping.DebitCol)
		m.CreditCol = optional(mapping.CreditCol)
	} else {
		m.AmountCol = optional(mapping.AmountCol)
	}

	return s.store.SaveMapping(ctx, m)
}

// Import runs the full pipeline over an uploaded file. Validation failures
// are reported per row and never abort the batch; a failed duplicate check
// or insert is fatal to the batch segment in flight and surfaces as an
// error with no partial silent success.
func (s *ImportService) Import(ctx context.Context, userID uuid.UUID, fileName string, fileData []byte, mapping ColumnMapping) (*Summary, error) {
	ctx, span := otel.Tracer("spendsmart/import").Start(ctx, "import.pipeline")
	defer span.End()

	config, err := sniffer.DetectConfig(fileData)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file config: %w", err)
	}

	checksum := sha256.Sum256(fileData)
	fileRecord := &repository.UserFile{
		UserID:         userID,
		FileName:       fileName,
		MimeType:       "text/csv",
		SizeBytes:      int64(len(fileData)),
		ChecksumSHA256: hex.EncodeToString(checksum[:]),
	}
	if err := s.store.CreateUserFile(ctx, fileRecord); err != nil {
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	job := &repository.ImportJob{
		UserID: userID,
		FileID: fileRecord.ID,
	}
	if err := s.store.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	parseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, preErrors := s.parseRowsConcurrently(parseCtx, fileData, config, mapping)

	// Duplicate resolution is order-sensitive: the first occurrence in the
	// file wins. Parsing is parallel, so restore arrival order here.
	sort.Slice(results, func(i, j int) bool { return results[i].lineNum < results[j].lineNum })

	rowsTotal := len(results) + len(preErrors)
	if err := s.store.StartImportJob(ctx, job.ID, rowsTotal); err != nil {
		s.logger.Warn("failed to start import job", "job_id", job.ID, "error", err)
	}

	summary := &Summary{JobID: job.ID, RowsTotal: rowsTotal, Failed: make([]RowError, 0)}
	summary.Failed = append(summary.Failed, preErrors...)

	deduper := fingerprint.NewDeduper(userID, s.store.FingerprintExists)
	batch := make([]*repository.CanonicalTransaction, 0, importBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		s.categorize(ctx, batch)
		n, err := s.store.InsertTransactions(ctx, batch)
		if err != nil {
			return err
		}
		summary.Inserted += n
		// Rows the unique constraint rejected were concurrent duplicates.
		summary.SkippedDuplicates += len(batch) - n
		batch = batch[:0]
		if err := s.store.UpdateImportJobProgress(ctx, job.ID,
			summary.Inserted, summary.SkippedDuplicates, len(summary.Failed)); err != nil {
			s.logger.Warn("failed to update import job progress", "job_id", job.ID, "error", err)
		}
		return nil
	}

	fail := func(cause error) (*Summary, error) {
		cancel()
		msg := cause.Error()
		if err := s.store.FinishImportJob(ctx, job.ID, repository.JobStatusFailed,
			summary.Inserted, summary.SkippedDuplicates, len(summary.Failed), &msg); err != nil {
			s.logger.Warn("failed to finish import job", "job_id", job.ID, "error", err)
		}
		return nil, cause
	}

	for _, result := range results {
		if result.err != nil {
			summary.Failed = append(summary.Failed, RowError{Row: result.lineNum, Error: result.err.Error()})
			continue
		}

		tx := result.tx
		tx.UserID = userID
		tx.Fingerprint = fingerprint.Key(userID, tx.Date, tx.Amount, tx.Description)

		dup, err := deduper.Check(ctx, tx.Fingerprint)
		if err != nil {
			return fail(fmt.Errorf("duplicate check failed at row %d: %w", result.lineNum, err))
		}
		if dup {
			summary.SkippedDuplicates++
			continue
		}

		parsed := s.parser.Parse(tx.Description)
		tx.Merchant = parsed.Merchant
		tx.Kind = string(parsed.Kind)

		batch = append(batch, tx)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return fail(fmt.Errorf("failed to insert transactions: %w", err))
			}
		}
	}

	if err := flush(); err != nil {
		return fail(fmt.Errorf("failed to insert transactions: %w", err))
	}

	if err := s.store.FinishImportJob(ctx, job.ID, repository.JobStatusSucceeded,
		summary.Inserted, summary.SkippedDuplicates, len(summary.Failed), nil); err != nil {
		s.logger.Warn("failed to finish import job", "job_id", job.ID, "error", err)
	}

	observability.RecordImportOutcome(summary.Inserted, summary.SkippedDuplicates, len(summary.Failed))
	s.logger.Info("import finished",
		"job_id", job.ID,
		"rows_total", summary.RowsTotal,
		"inserted", summary.Inserted,
		"skipped_duplicates", summary.SkippedDuplicates,
		"failed", len(summary.Failed),
	)

	return summary, nil
}

// GetJob returns the current state of an import job.
func (s *ImportService) GetJob(ctx context.Context, id uuid.UUID) (*repository.ImportJob, error) {
	return s.store.GetImportJobByID(ctx, id)
}

// ListMappings returns the user's learned mappings plus global templates.
func (s *ImportService) ListMappings(ctx context.Context, userID uuid.UUID) ([]*repository.BankMapping, error) {
	return s.store.ListUserMappings(ctx, userID)
}

// RecategorizeTransactions applies a user-corrected category to already
// imported rows.
func (s *ImportService) RecategorizeTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, category string) error {
	if category == "" {
		category = repository.DefaultCategory
	}
	return s.store.UpdateTransactionCategories(ctx, userID, ids, category)
}

// categorize labels rows still carrying the default category. Classifier
// failures leave the default in place; they never block ingestion.
func (s *ImportService) categorize(ctx context.Context, batch []*repository.CanonicalTransaction) {
	if s.categorizer == nil {
		return
	}

	var pending []string
	for _, tx := range batch {
		if tx.Category == repository.DefaultCategory {
			pending = append(pending, tx.Description)
		}
	}
	if len(pending) == 0 {
		return
	}

	labels := s.categorizer.CategorizeBatch(ctx, pending)
	for _, tx := range batch {
		if tx.Category != repository.DefaultCategory {
			continue
		}
		if label, ok := labels[tx.Description]; ok && label != "" {
			tx.Category = label
		}
	}
}

// parseRowsConcurrently fans statement rows out to a worker pool and
// collects the parsed results. Row order is not preserved; callers sort by
// line number before order-sensitive stages.
func (s *ImportService) parseRowsConcurrently(ctx context.Context, fileData []byte, config *sniffer.FileConfig, mapping ColumnMapping) ([]parseResult, []RowError) {
	reader := csv.NewReader(bytes.NewReader(fileData))
	reader.Comma = config.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	// Preamble failures carry the 1-indexed file line like any row failure.
	var preErrors []RowError
	for i := 0; i <= config.SkipLines; i++ {
		line := i + 1
		if _, err := reader.Read(); err == io.EOF {
			return nil, []RowError{{Row: line, Error: "file has no data rows"}}
		} else if err != nil {
			preErrors = append(preErrors, RowError{Row: line, Error: fmt.Sprintf("error reading line: %v", err)})
		}
	}

	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 1 {
		workerCount = 1
	}

	jobs := make(chan parseJob, workerCount*4)
	out := make(chan parseResult, workerCount*4)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				tx, err := s.parseRow(job.record, mapping)
				select {
				case out <- parseResult{lineNum: job.lineNum, tx: tx, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		lineNum := config.SkipLines + 2 // 1-indexed, first row after header
		for {
			if ctx.Err() != nil {
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case out <- parseResult{lineNum: lineNum, err: err}:
				case <-ctx.Done():
					return
				}
				lineNum++
				continue
			}
			select {
			case jobs <- parseJob{lineNum: lineNum, record: record}:
			case <-ctx.Done():
				return
			}
			lineNum++
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	var results []parseResult
	for result := range out {
		results = append(results, result)
	}
	return results, preErrors
}

// parseRow converts one statement row into a canonical transaction.
func (s *ImportService) parseRow(record []string, mapping ColumnMapping) (*repository.CanonicalTransaction, error) {
	maxCol := len(record) - 1
	if mapping.DateCol < 0 || mapping.DescCol < 0 ||
		mapping.DateCol > maxCol || mapping.DescCol > maxCol {
		return nil, fmt.Errorf("column index out of bounds")
	}

	date, err := normalizer.ParseFlexibleDate(record[mapping.DateCol], mapping.DateFormat, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", record[mapping.DateCol], err)
	}

	description := normalizer.CleanDescription(record[mapping.DescCol])
	if description == "" {
		return nil, fmt.Errorf("empty description")
	}

	var amount decimal.Decimal
	if mapping.IsDoubleEntry {
		if mapping.DebitCol < 0 || mapping.CreditCol < 0 ||
			mapping.DebitCol > maxCol || mapping.CreditCol > maxCol {
			return nil, fmt.Errorf("debit/credit column index out of bounds")
		}
		amount, err = normalizer.NormalizeDebitCredit(record[mapping.DebitCol], record[mapping.CreditCol])
	} else {
		if mapping.AmountCol < 0 || mapping.AmountCol > maxCol {
			return nil, fmt.Errorf("amount column index out of bounds")
		}
		amount, err = normalizer.ParseAmount(record[mapping.AmountCol])
	}
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	if amount.IsZero() {
		return nil, normalizer.ErrZeroAmount
	}

	explicitType := ""
	if mapping.TypeCol >= 0 && mapping.TypeCol <= maxCol {
		explicitType = record[mapping.TypeCol]
	}

	category := repository.DefaultCategory
	if mapping.CategoryCol >= 0 && mapping.CategoryCol <= maxCol {
		if c := normalizer.CleanDescription(record[mapping.CategoryCol]); c != "" {
			category = c
		}
	}

	return &repository.CanonicalTransaction{
		Date:        date,
		Amount:      amount,
		Description: description,
		Merchant:    repository.DefaultMerchant,
		Category:    category,
		Type:        string(normalizer.ResolveType(explicitType, amount)),
	}, nil
}

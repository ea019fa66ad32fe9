package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pgpool PgxPool
}

// NewPostgresStore creates a new PostgreSQL-backed ingestion store.
func NewPostgresStore(pgpool PgxPool) *PostgresStore {
	return &PostgresStore{pgpool: pgpool}
}

const fingerprintExistsQuery = `
	SELECT EXISTS (
		SELECT 1 FROM transactions WHERE user_id = $1 AND fingerprint = $2
	)
`

// FingerprintExists reports whether a transaction with the given
// fingerprint is already persisted for the user.
func (r *PostgresStore) FingerprintExists(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error) {
	var exists bool
	err := r.pgpool.QueryRow(ctx, fingerprintExistsQuery, userID, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return exists, nil
}

const insertTransactionQuery = `
	INSERT INTO transactions (
		id, user_id, txn_date, amount, description, merchant, category, txn_type, kind, fingerprint
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (user_id, fingerprint) DO NOTHING
`

// InsertTransactions persists a batch and returns how many rows were
// actually inserted. The unique (user_id, fingerprint) constraint is the
// second dedup layer after the application-level check; conflicting rows
// are skipped by the database, never duplicated.
func (r *PostgresStore) InsertTransactions(ctx context.Context, txs []*CanonicalTransaction) (int, error) {
	inserted := 0
	for _, tx := range txs {
		if tx.ID == uuid.Nil {
			tx.ID = uuid.New()
		}
		tag, err := r.pgpool.Exec(ctx, insertTransactionQuery,
			tx.ID, tx.UserID, tx.Date, tx.Amount, tx.Description,
			tx.Merchant, tx.Category, tx.Type, tx.Kind, tx.Fingerprint,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert transaction: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const updateCategoriesQuery = `
	UPDATE transactions SET category = $3 WHERE user_id = $1 AND id = ANY($2)
`

// UpdateTransactionCategories applies a classifier label to a set of rows.
func (r *PostgresStore) UpdateTransactionCategories(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, category string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.pgpool.Exec(ctx, updateCategoriesQuery, userID, ids, category); err != nil {
		return fmt.Errorf("failed to update transaction categories: %w", err)
	}
	return nil
}

const getMappingQuery = `
	SELECT id, user_id, fingerprint, bank_name, delimiter, skip_lines, date_format,
	       date_col, desc_col, amount_col, debit_col, credit_col, category_col, type_col,
	       created_at, updated_at
	FROM bank_mappings
	WHERE fingerprint = $1 AND (user_id = $2 OR user_id IS NULL)
	ORDER BY user_id NULLS LAST
	LIMIT 1
`

// GetMappingByFingerprint looks up a learned mapping, preferring the
// user's own over global templates. Returns (nil, nil) when unknown.
func (r *PostgresStore) GetMappingByFingerprint(ctx context.Context, fingerprint string, userID *uuid.UUID) (*BankMapping, error) {
	var m BankMapping
	err := r.pgpool.QueryRow(ctx, getMappingQuery, fingerprint, userID).Scan(
		&m.ID, &m.UserID, &m.Fingerprint, &m.BankName,
		&m.Delimiter, &m.SkipLines, &m.DateFormat,
		&m.DateCol, &m.DescCol, &m.AmountCol, &m.DebitCol, &m.CreditCol,
		&m.CategoryCol, &m.TypeCol, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping by fingerprint: %w", err)
	}
	return &m, nil
}

const saveMappingQuery = `
	INSERT INTO bank_mappings (
		id, user_id, fingerprint, bank_name, delimiter, skip_lines, date_format,
		date_col, desc_col, amount_col, debit_col, credit_col, category_col, type_col
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (fingerprint, user_id) DO UPDATE SET
		bank_name = EXCLUDED.bank_name, delimiter = EXCLUDED.delimiter,
		skip_lines = EXCLUDED.skip_lines, date_format = EXCLUDED.date_format,
		date_col = EXCLUDED.date_col, desc_col = EXCLUDED.desc_col,
		amount_col = EXCLUDED.amount_col, debit_col = EXCLUDED.debit_col,
		credit_col = EXCLUDED.credit_col, category_col = EXCLUDED.category_col,
		type_col = EXCLUDED.type_col, updated_at = NOW()
`

// SaveMapping upserts a bank mapping keyed by (fingerprint, user).
func (r *PostgresStore) SaveMapping(ctx context.Context, mapping *BankMapping) error {
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	_, err := r.pgpool.Exec(ctx, saveMappingQuery,
		mapping.ID, mapping.UserID, mapping.Fingerprint, mapping.BankName,
		mapping.Delimiter, mapping.SkipLines, mapping.DateFormat,
		mapping.DateCol, mapping.DescCol, mapping.AmountCol,
		mapping.DebitCol, mapping.CreditCol, mapping.CategoryCol, mapping.TypeCol,
	)
	if err != nil {
		return fmt.Errorf("failed to save bank mapping: %w", err)
	}
	return nil
}

const listMappingsQuery = `
	SELECT id, user_id, fingerprint, bank_name, delimiter, skip_lines, date_format,
	       date_col, desc_col, amount_col, debit_col, credit_col, category_col, type_col,
	       created_at, updated_at
	FROM bank_mappings
	WHERE user_id = $1 OR user_id IS NULL
	ORDER BY created_at DESC
`

// ListUserMappings returns the user's mappings plus global templates.
func (r *PostgresStore) ListUserMappings(ctx context.Context, userID uuid.UUID) ([]*BankMapping, error) {
	rows, err := r.pgpool.Query(ctx, listMappingsQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*BankMapping
	for rows.Next() {
		var m BankMapping
		err := rows.Scan(
			&m.ID, &m.UserID, &m.Fingerprint, &m.BankName,
			&m.Delimiter, &m.SkipLines, &m.DateFormat,
			&m.DateCol, &m.DescCol, &m.AmountCol, &m.DebitCol, &m.CreditCol,
			&m.CategoryCol, &m.TypeCol, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank mapping: %w", err)
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}

const insertUserFileQuery = `
	INSERT INTO user_files (id, user_id, file_name, mime_type, size_bytes, checksum_sha256)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// CreateUserFile records an uploaded statement file.
func (r *PostgresStore) CreateUserFile(ctx context.Context, file *UserFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	_, err := r.pgpool.Exec(ctx, insertUserFileQuery,
		file.ID, file.UserID, file.FileName, file.MimeType, file.SizeBytes, file.ChecksumSHA256,
	)
	if err != nil {
		return fmt.Errorf("failed to create user file: %w", err)
	}
	return nil
}

const getUserFileQuery = `
	SELECT id, user_id, file_name, mime_type, size_bytes, checksum_sha256, created_at
	FROM user_files WHERE id = $1
`

// GetUserFileByID retrieves an uploaded file record, (nil, nil) if absent.
func (r *PostgresStore) GetUserFileByID(ctx context.Context, id uuid.UUID) (*UserFile, error) {
	var f UserFile
	err := r.pgpool.QueryRow(ctx, getUserFileQuery, id).Scan(
		&f.ID, &f.UserID, &f.FileName, &f.MimeType, &f.SizeBytes, &f.ChecksumSHA256, &f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user file: %w", err)
	}
	return &f, nil
}

const insertJobQuery = `
	INSERT INTO import_jobs (id, user_id, file_id, status, date_format, timezone, rows_total)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// CreateImportJob creates a new import job in pending state.
func (r *PostgresStore) CreateImportJob(ctx context.Context, job *ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	_, err := r.pgpool.Exec(ctx, insertJobQuery,
		job.ID, job.UserID, job.FileID, job.Status, job.DateFormat, job.Timezone, job.RowsTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

const getJobQuery = `
	SELECT id, user_id, file_id, status, date_format, timezone, error_message,
	       rows_total, rows_inserted, rows_skipped, rows_failed,
	       requested_at, started_at, finished_at
	FROM import_jobs WHERE id = $1
`

// GetImportJobByID retrieves an import job, (nil, nil) if absent.
func (r *PostgresStore) GetImportJobByID(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	var job ImportJob
	err := r.pgpool.QueryRow(ctx, getJobQuery, id).Scan(
		&job.ID, &job.UserID, &job.FileID, &job.Status,
		&job.DateFormat, &job.Timezone, &job.ErrorMessage,
		&job.RowsTotal, &job.RowsInserted, &job.RowsSkipped, &job.RowsFailed,
		&job.RequestedAt, &job.StartedAt, &job.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return &job, nil
}

const startJobQuery = `
	UPDATE import_jobs SET status = $2, rows_total = $3, started_at = NOW() WHERE id = $1
`

// StartImportJob marks a job running and records the row count.
func (r *PostgresStore) StartImportJob(ctx context.Context, id uuid.UUID, rowsTotal int) error {
	if _, err := r.pgpool.Exec(ctx, startJobQuery, id, JobStatusRunning, rowsTotal); err != nil {
		return fmt.Errorf("failed to start import job: %w", err)
	}
	return nil
}

const updateJobProgressQuery = `
	UPDATE import_jobs SET rows_inserted = $2, rows_skipped = $3, rows_failed = $4 WHERE id = $1
`

// UpdateImportJobProgress records running counts while an import streams,
// so long jobs can be observed before they finish.
func (r *PostgresStore) UpdateImportJobProgress(ctx context.Context, id uuid.UUID, inserted, skipped, failed int) error {
	if _, err := r.pgpool.Exec(ctx, updateJobProgressQuery, id, inserted, skipped, failed); err != nil {
		return fmt.Errorf("failed to update import job progress: %w", err)
	}
	return nil
}

const finishJobQuery = `
	UPDATE import_jobs SET
		status = $2, rows_inserted = $3, rows_skipped = $4, rows_failed = $5,
		error_message = $6, finished_at = NOW()
	WHERE id = $1
`

// FinishImportJob records the final counts and status for a job.
func (r *PostgresStore) FinishImportJob(ctx context.Context, id uuid.UUID, status string, inserted, skipped, failed int, errorMessage *string) error {
	_, err := r.pgpool.Exec(ctx, finishJobQuery, id, status, inserted, skipped, failed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to finish import job: %w", err)
	}
	return nil
}

// Package repository provides data access for the ingestion pipeline:
// canonical transactions, learned bank mappings and import jobs.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinels applied before enrichment; the narration parser and the
// classifier overwrite them when they have something better.
const (
	DefaultMerchant = "Unknown"
	DefaultCategory = "Uncategorized"
)

// Import job statuses.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// CanonicalTransaction is the normalized unit flowing through the
// pipeline. Amount is signed: negative outflow, positive inflow. The
// (user_id, fingerprint) pair is unique both here and as a database
// constraint, so a conflicting insert is silently skipped rather than
// duplicated.
type CanonicalTransaction struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	Date        time.Time       `db:"txn_date"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	Merchant    string          `db:"merchant"`
	Category    string          `db:"category"`
	Type        string          `db:"txn_type"` // "income" | "expense"
	Kind        string          `db:"kind"`     // narration family label
	Fingerprint string          `db:"fingerprint"`
	CreatedAt   time.Time       `db:"created_at"`
}

// BankMapping is a learned statement-format configuration, keyed by the
// header fingerprint so repeat uploads of the same export skip the manual
// column-mapping step. A NULL user is a global template.
type BankMapping struct {
	ID          uuid.UUID  `db:"id"`
	UserID      *uuid.UUID `db:"user_id"`
	Fingerprint string     `db:"fingerprint"`
	BankName    *string    `db:"bank_name"`
	Delimiter   string     `db:"delimiter"`
	SkipLines   int        `db:"skip_lines"`
	DateFormat  string     `db:"date_format"`
	DateCol     int        `db:"date_col"`
	DescCol     int        `db:"desc_col"`
	AmountCol   *int       `db:"amount_col"`
	DebitCol    *int       `db:"debit_col"`
	CreditCol   *int       `db:"credit_col"`
	CategoryCol *int       `db:"category_col"`
	TypeCol     *int       `db:"type_col"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// ImportJob tracks one statement import end to end.
type ImportJob struct {
	ID           uuid.UUID  `db:"id"`
	UserID       uuid.UUID  `db:"user_id"`
	FileID       uuid.UUID  `db:"file_id"`
	Status       string     `db:"status"`
	DateFormat   *string    `db:"date_format"`
	Timezone     *string    `db:"timezone"`
	ErrorMessage *string    `db:"error_message"`
	RowsTotal    int        `db:"rows_total"`
	RowsInserted int        `db:"rows_inserted"`
	RowsSkipped  int        `db:"rows_skipped"` // duplicates, not failures
	RowsFailed   int        `db:"rows_failed"`
	RequestedAt  time.Time  `db:"requested_at"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

// UserFile is an uploaded statement file.
type UserFile struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	FileName       string    `db:"file_name"`
	MimeType       string    `db:"mime_type"`
	SizeBytes      int64     `db:"size_bytes"`
	ChecksumSHA256 string    `db:"checksum_sha256"`
	CreatedAt      time.Time `db:"created_at"`
}

// Store defines the storage operations the ingestion pipeline depends on.
type Store interface {
	// Transactions
	FingerprintExists(ctx context.Context, userID uuid.UUID, fingerprint string) (bool, error)
	InsertTransactions(ctx context.Context, txs []*CanonicalTransaction) (int, error)
	UpdateTransactionCategories(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, category string) error

	// Bank mappings
	GetMappingByFingerprint(ctx context.Context, fingerprint string, userID *uuid.UUID) (*BankMapping, error)
	SaveMapping(ctx context.Context, mapping *BankMapping) error
	ListUserMappings(ctx context.Context, userID uuid.UUID) ([]*BankMapping, error)

	// User files
	CreateUserFile(ctx context.Context, file *UserFile) error
	GetUserFileByID(ctx context.Context, id uuid.UUID) (*UserFile, error)

	// Import jobs
	CreateImportJob(ctx context.Context, job *ImportJob) error
	GetImportJobByID(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	StartImportJob(ctx context.Context, id uuid.UUID, rowsTotal int) error
	UpdateImportJobProgress(ctx context.Context, id uuid.UUID, inserted, skipped, failed int) error
	FinishImportJob(ctx context.Context, id uuid.UUID, status string, inserted, skipped, failed int, errorMessage *string) error
}

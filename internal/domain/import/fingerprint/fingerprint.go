// Package fingerprint derives stable identity keys for transactions and
// removes duplicates inside a batch and against the persisted set.
//
// Two transactions are the same iff (user, calendar day, amount,
// description) match after canonicalization. The key feeds both the
// application-level dedup pass and the store's unique constraint.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hassang371/spendsmart-dashboard-sub002/internal/domain/common"
)

// Key computes the deterministic dedup key for one transaction.
// Canonicalization: date truncated to the calendar day (timezone
// formatting noise must not split identities), amount rendered with
// exactly two decimals, description lowercased and trimmed.
func Key(userID uuid.UUID, ts time.Time, amount decimal.Decimal, description string) string {
	raw := fmt.Sprintf("%s|%s|%s|%s",
		userID,
		ts.UTC().Format("2006-01-02"),
		amount.StringFixed(2),
		strings.ToLower(strings.TrimSpace(description)),
	)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ExistsFunc asks the storage collaborator whether a fingerprint is
// already persisted for the user.
type ExistsFunc func(ctx context.Context, userID uuid.UUID, fp string) (bool, error)

// Deduper tracks fingerprints seen within a single import batch and
// consults the store for cross-batch duplicates. It is not safe for
// concurrent use; callers resolve rows in arrival order.
type Deduper struct {
	userID uuid.UUID
	exists ExistsFunc
	seen   map[string]struct{}
}

// NewDeduper creates a batch-scoped deduper. exists may be nil for
// batch-only deduplication (tests, dry runs).
func NewDeduper(userID uuid.UUID, exists ExistsFunc) *Deduper {
	return &Deduper{
		userID: userID,
		exists: exists,
		seen:   make(map[string]struct{}),
	}
}

// Check reports whether the fingerprint is a duplicate. The first
// occurrence within the batch wins; later ones and anything already
// persisted are duplicates. A failed store round-trip is returned as
// ErrStoreUnavailable; the row must not be inserted on that path.
func (d *Deduper) Check(ctx context.Context, fp string) (duplicate bool, err error) {
	if _, ok := d.seen[fp]; ok {
		return true, nil
	}

	if d.exists != nil {
		persisted, err := d.exists(ctx, d.userID, fp)
		if err != nil {
			return false, fmt.Errorf("%w: duplicate check: %v", common.ErrStoreUnavailable, err)
		}
		if persisted {
			d.seen[fp] = struct{}{}
			return true, nil
		}
	}

	d.seen[fp] = struct{}{}
	return false, nil
}

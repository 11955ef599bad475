package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ekameshwar10/Laundry-track/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrPoolExceeded      = errors.New("delivery exceeds available pool")
	ErrMissingRemark     = errors.New("remark required for deviation")
	ErrInvalidTransition = errors.New("record already verified")
)

// Store is the authoritative record log. Records are append-only; the only
// post-insert mutation is the one-shot verification overlay.
type Store interface {
	AppendRecord(ctx context.Context, rec domain.Record) (*domain.Record, error)
	ApplyVerification(ctx context.Context, id string, verifiedItems []domain.ItemLine, remark string, verifiedBy string, at time.Time) (*domain.Record, error)
	GetRecordByID(ctx context.Context, id string) (*domain.Record, error)
	ListRecords(ctx context.Context, filter domain.RecordListFilter) ([]domain.Record, error)
	NetAvailable(ctx context.Context, customer string, item string) (int, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Archiver mirrors the log to durable storage and rehydrates it at startup.
// Calls are best effort from the store's point of view; the in-memory log
// stays the source of truth while the process runs.
type Archiver interface {
	LoadRecords(ctx context.Context) ([]domain.Record, error)
	SaveRecord(ctx context.Context, rec domain.Record) error
	SaveVerification(ctx context.Context, rec domain.Record) error
}

// EffectiveItems returns the quantities a record contributes to pools and
// reports: the verifier's corrected lines once the record is verified, the
// as-recorded lines otherwise. A verified record without corrected lines
// falls back to the as-recorded lines.
func EffectiveItems(rec domain.Record) []domain.ItemLine {
	if domain.IsVerified(rec.VerificationStatus) && rec.VerifiedItems != nil {
		return rec.VerifiedItems
	}
	return rec.Items
}

// NetAvailable computes the verified pool for (customer, item): effective
// collected minus effective delivered, floored at zero. Pending records never
// count.
func NetAvailable(records []domain.Record, customer string, item string) int {
	collected := 0
	delivered := 0
	for _, rec := range records {
		if rec.Customer != customer || !domain.IsVerified(rec.VerificationStatus) {
			continue
		}
		for _, line := range EffectiveItems(rec) {
			if line.Name != item {
				continue
			}
			switch rec.Type {
			case domain.TypeCollection:
				collected += line.Qty
			case domain.TypeDelivery:
				delivered += line.Qty
			}
		}
	}
	if collected <= delivered {
		return 0
	}
	return collected - delivered
}

// HasDeviation compares item lines by name, treating an absent name as
// quantity zero. Order and zero-quantity entries do not matter.
func HasDeviation(recorded, verified []domain.ItemLine) bool {
	byName := make(map[string]int, len(recorded))
	for _, line := range recorded {
		byName[line.Name] += line.Qty
	}
	for _, line := range verified {
		byName[line.Name] -= line.Qty
	}
	for _, qty := range byName {
		if qty != 0 {
			return true
		}
	}
	return false
}

// SumQty totals the quantities of a line set.
func SumQty(lines []domain.ItemLine) int {
	total := 0
	for _, line := range lines {
		total += line.Qty
	}
	return total
}

package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// BatchStatus is the lifecycle state of a blood unit batch. A batch only
// ever moves available -> used or available -> expired; it is never
// deleted, so the ledger stays auditable.
type BatchStatus string

const (
	BatchAvailable BatchStatus = "available"
	BatchReserved  BatchStatus = "reserved"
	BatchExpired   BatchStatus = "expired"
	BatchUsed      BatchStatus = "used"
)

// Batch maps to the blood_unit_batch table: a dated lot of blood units of
// one blood type, the atomic unit of inventory accounting.
type Batch struct {
	BatchID     string         `db:"batch_id" json:"batch_id"`
	BloodType   bloodtype.Type `db:"blood_type" json:"blood_type"`
	Units       int            `db:"units" json:"units"`
	ExpiryDate  time.Time      `db:"expiry_date" json:"expiry_date"`
	CollectedAt time.Time      `db:"collected_at" json:"collected_at"`
	DonorID     *uuid.UUID     `db:"donor_id" json:"donor_id,omitempty"`
	Location    *string        `db:"location" json:"location,omitempty"`
	Status      BatchStatus    `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the batch still holds stock that can be drawn:
// available status and an expiry in the future.
func (b *Batch) Usable(now time.Time) bool {
	return b.Status == BatchAvailable && b.ExpiryDate.After(now)
}

// PastExpiry reports whether the batch's expiry timestamp has passed.
func (b *Batch) PastExpiry(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}

// Thresholds are the ascending stock-level cut-offs for one blood type.
type Thresholds struct {
	Critical int `db:"critical_threshold" json:"critical"`
	Low      int `db:"low_threshold" json:"low"`
	Good     int `db:"good_threshold" json:"good"`
}

// Validate rejects thresholds that are not strictly ascending.
func (t Thresholds) Validate() error {
	if t.Critical <= 0 {
		return apperr.Validationf("critical threshold must be positive, got %d", t.Critical)
	}
	if t.Critical >= t.Low || t.Low >= t.Good {
		return apperr.Validationf("thresholds must be ascending: critical %d < low %d < good %d",
			t.Critical, t.Low, t.Good)
	}
	return nil
}

// StockStatus is the derived stock-level label for one blood type.
type StockStatus string

const (
	StockEmpty    StockStatus = "empty"
	StockCritical StockStatus = "critical"
	StockLow      StockStatus = "low"
	StockMedium   StockStatus = "medium"
	StockGood     StockStatus = "good"
)

// Inventory is the per-blood-type aggregate: thresholds plus the full
// batch ledger. Available units, expired units and the status label are
// always derived from the live batch state, never stored, so they cannot
// drift from the ledger.
type Inventory struct {
	BloodType  bloodtype.Type `db:"blood_type" json:"blood_type"`
	Thresholds Thresholds     `json:"thresholds"`
	Batches    []*Batch       `json:"batches"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// AvailableUnits sums the unit counts of batches that are available and
// not past expiry.
func (inv *Inventory) AvailableUnits(now time.Time) int {
	total := 0
	for _, b := range inv.Batches {
		if b.Usable(now) {
			total += b.Units
		}
	}
	return total
}

// ExpiredUnits sums the unit counts of unconsumed batches whose expiry
// has passed (wastage). Used batches were consumed before expiry and do
// not count.
func (inv *Inventory) ExpiredUnits(now time.Time) int {
	total := 0
	for _, b := range inv.Batches {
		if b.Status == BatchUsed {
			continue
		}
		if b.Status == BatchExpired || b.PastExpiry(now) {
			total += b.Units
		}
	}
	return total
}

// Status derives the stock-level label. A type with no batches at all is
// Empty rather than Critical, so a never-stocked type does not raise a
// false depletion alarm.
func (inv *Inventory) Status(now time.Time) StockStatus {
	if len(inv.Batches) == 0 {
		return StockEmpty
	}
	available := inv.AvailableUnits(now)
	switch {
	case available < inv.Thresholds.Critical:
		return StockCritical
	case available < inv.Thresholds.Low:
		return StockLow
	case available < inv.Thresholds.Good:
		return StockMedium
	default:
		return StockGood
	}
}

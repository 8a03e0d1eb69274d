package inventory

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// AlertSender delivers low-stock warnings to the operations contact.
// Satisfied by the notification manager.
type AlertSender interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Service implements the inventory ledger: append-only batch creation,
// FIFO-by-expiry depletion, the idempotent expiry sweep, and threshold
// management.
type Service struct {
	repo           Repository
	alerts         AlertSender
	alertRecipient string
	logger         zerolog.Logger
}

func NewService(repo Repository, alerts AlertSender, alertRecipient string, logger zerolog.Logger) *Service {
	return &Service{repo: repo, alerts: alerts, alertRecipient: alertRecipient, logger: logger}
}

// newBatchID builds a batch identifier unique enough within the system:
// blood type, creation time and a random suffix.
func newBatchID(bt bloodtype.Type) string {
	suffix := make([]byte, 3)
	_, _ = crand.Read(suffix)
	return fmt.Sprintf("%s-%d-%s", bt, time.Now().UnixNano(), hex.EncodeToString(suffix))
}

// AddStock appends a new available batch and returns it together with the
// updated available unit count for the blood type.
func (s *Service) AddStock(ctx context.Context, bt bloodtype.Type, units int, expiry time.Time, donorID *uuid.UUID, location *string) (*Batch, int, error) {
	if !bt.Valid() {
		return nil, 0, apperr.Validationf("invalid blood type %q", bt)
	}
	if units <= 0 {
		return nil, 0, apperr.Validationf("units must be positive, got %d", units)
	}
	now := time.Now()
	if !expiry.After(now) {
		return nil, 0, apperr.Validationf("expiry date must be in the future")
	}

	b := &Batch{
		BatchID:     newBatchID(bt),
		BloodType:   bt,
		Units:       units,
		ExpiryDate:  expiry,
		CollectedAt: now,
		DonorID:     donorID,
		Location:    location,
		Status:      BatchAvailable,
	}
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return nil, 0, err
	}

	inv, err := s.repo.GetByType(ctx, bt)
	if err != nil {
		return nil, 0, err
	}
	return b, inv.AvailableUnits(now), nil
}

// RemoveStock draws units from the ledger, consuming the soonest-to-expire
// batches first so the longest-dated stock is preserved. The removal is
// all-or-nothing: when the request exceeds the available total nothing is
// touched and a StockError is returned. The whole read-check-write runs in
// one transaction holding the blood type's row lock, so two concurrent
// removals cannot both pass the availability check.
func (s *Service) RemoveStock(ctx context.Context, bt bloodtype.Type, units int, reason string) (int, error) {
	if !bt.Valid() {
		return 0, apperr.Validationf("invalid blood type %q", bt)
	}
	if units <= 0 {
		return 0, apperr.Validationf("units must be positive, got %d", units)
	}

	var available int
	var after StockStatus
	var thresholds Thresholds
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockType(ctx, bt); err != nil {
			return err
		}
		inv, err := s.repo.GetByType(ctx, bt)
		if err != nil {
			return err
		}

		now := time.Now()
		available = inv.AvailableUnits(now)
		if units > available {
			return &apperr.StockError{BloodType: string(bt), Requested: units, Available: available}
		}

		var usable []*Batch
		for _, b := range inv.Batches {
			if b.Usable(now) {
				usable = append(usable, b)
			}
		}
		sort.SliceStable(usable, func(i, j int) bool {
			return usable[i].ExpiryDate.Before(usable[j].ExpiryDate)
		})

		remaining := units
		for _, b := range usable {
			if remaining <= 0 {
				break
			}
			if b.Units <= remaining {
				remaining -= b.Units
				b.Status = BatchUsed
			} else {
				b.Units -= remaining
				remaining = 0
			}
			if err := s.repo.UpdateBatch(ctx, b); err != nil {
				return err
			}
		}
		after = inv.Status(now)
		thresholds = inv.Thresholds
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("blood_type", string(bt)).
		Int("units", units).
		Str("reason", reason).
		Int("available", available-units).
		Msg("stock removed")

	if after == StockCritical || after == StockLow || after == StockEmpty {
		s.sendStockAlert(ctx, bt, after, available-units, thresholds.Low)
	}
	return available - units, nil
}

// sendStockAlert warns the operations contact that a blood type dropped
// below its low threshold. Best-effort: a failed send never fails the
// removal that triggered it.
func (s *Service) sendStockAlert(ctx context.Context, bt bloodtype.Type, status StockStatus, available, threshold int) {
	if s.alerts == nil || s.alertRecipient == "" {
		return
	}
	data := map[string]string{
		"status":     string(status),
		"blood_type": string(bt),
		"available":  strconv.Itoa(available),
		"threshold":  strconv.Itoa(threshold),
	}
	if _, err := s.alerts.SendFromTemplate(ctx, "stock-alert", data, s.alertRecipient); err != nil {
		s.logger.Error().Err(err).
			Str("blood_type", string(bt)).
			Msg("stock alert: send failed")
	}
}

// SweepReport summarizes one expiry sweep run.
type SweepReport struct {
	TotalUnits int                    `json:"total_units"`
	ByType     map[bloodtype.Type]int `json:"by_type"`
}

// SweepExpired flips every available batch whose expiry has passed to
// expired. The sweep is idempotent and tolerates partial failure: an
// error on one batch is logged and the sweep continues.
func (s *Service) SweepExpired(ctx context.Context) (*SweepReport, error) {
	inventories, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	report := &SweepReport{ByType: make(map[bloodtype.Type]int)}
	for _, inv := range inventories {
		for _, b := range inv.Batches {
			if b.Status != BatchAvailable || !b.PastExpiry(now) {
				continue
			}
			b.Status = BatchExpired
			if err := s.repo.UpdateBatch(ctx, b); err != nil {
				s.logger.Error().Err(err).
					Str("batch_id", b.BatchID).
					Msg("expiry sweep: batch update failed")
				b.Status = BatchAvailable
				continue
			}
			report.TotalUnits += b.Units
			report.ByType[b.BloodType] += b.Units
		}
	}

	if report.TotalUnits > 0 {
		s.logger.Info().
			Int("units", report.TotalUnits).
			Msg("expiry sweep flagged units")
	}
	return report, nil
}

// UpdateThresholds replaces the three stock-level cut-offs for one blood
// type.
func (s *Service) UpdateThresholds(ctx context.Context, bt bloodtype.Type, t Thresholds) (*Inventory, error) {
	if !bt.Valid() {
		return nil, apperr.Validationf("invalid blood type %q", bt)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateThresholds(ctx, bt, t); err != nil {
		return nil, err
	}
	return s.repo.GetByType(ctx, bt)
}

// Get loads the aggregate for one blood type.
func (s *Service) Get(ctx context.Context, bt bloodtype.Type) (*Inventory, error) {
	if !bt.Valid() {
		return nil, apperr.Validationf("invalid blood type %q", bt)
	}
	return s.repo.GetByType(ctx, bt)
}

// TypeReport is one row of the stock overview.
type TypeReport struct {
	BloodType      bloodtype.Type `json:"blood_type"`
	AvailableUnits int            `json:"available_units"`
	ExpiredUnits   int            `json:"expired_units"`
	Status         StockStatus    `json:"status"`
	Thresholds     Thresholds     `json:"thresholds"`
}

// Report derives the stock overview for all eight blood types.
func (s *Service) Report(ctx context.Context) ([]TypeReport, error) {
	inventories, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	reports := make([]TypeReport, 0, len(inventories))
	for _, inv := range inventories {
		reports = append(reports, TypeReport{
			BloodType:      inv.BloodType,
			AvailableUnits: inv.AvailableUnits(now),
			ExpiredUnits:   inv.ExpiredUnits(now),
			Status:         inv.Status(now),
			Thresholds:     inv.Thresholds,
		})
	}
	return reports, nil
}

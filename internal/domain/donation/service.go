package donation

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/emergency"
	"github.com/bloodlink/bloodlink/internal/domain/inventory"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// StockAdder feeds a completed donation into the inventory ledger.
// Satisfied by the inventory service.
type StockAdder interface {
	AddStock(ctx context.Context, bt bloodtype.Type, units int, expiry time.Time, donorID *uuid.UUID, location *string) (*inventory.Batch, int, error)
}

// RequestReporter relays donation progress to the standard request the
// donation serves. Satisfied by the request service.
type RequestReporter interface {
	UpdateDonationStatus(ctx context.Context, requestID, callerID, donorID uuid.UUID, status request.DonationStatus) (*request.Request, error)
}

// EmergencyReporter relays donation progress to the emergency the donation
// serves. Satisfied by the emergency service.
type EmergencyReporter interface {
	UpdateDonationStatus(ctx context.Context, emergencyID, callerID, donorID uuid.UUID, status emergency.DonationStatus) (*emergency.Emergency, error)
}

// AlertSender delivers the donation certificate to the donor. Satisfied
// by the notification manager.
type AlertSender interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Service manages the physical donation workflow. Completing a donation
// stamps the donor's history, generates the certificate and bag
// identifiers exactly once, and forwards the completion to the request or
// emergency the donation serves.
type Service struct {
	repo         Repository
	donors       donor.Repository
	stock        StockAdder
	requests     RequestReporter
	emergencies  EmergencyReporter
	alerts       AlertSender
	alertChannel string
	logger       zerolog.Logger
}

func NewService(repo Repository, donors donor.Repository, stock StockAdder, requests RequestReporter, emergencies EmergencyReporter, alerts AlertSender, alertChannel string, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		donors:       donors,
		stock:        stock,
		requests:     requests,
		emergencies:  emergencies,
		alerts:       alerts,
		alertChannel: alertChannel,
		logger:       logger,
	}
}

// ScheduleInput carries a new appointment.
type ScheduleInput struct {
	DonorID     uuid.UUID
	AmountML    int
	ScheduledAt time.Time
	Location    *string
	RequestID   *uuid.UUID
	EmergencyID *uuid.UUID
}

// Schedule books a donation appointment. The blood type is taken from the
// donor's registration, never supplied by the caller, and the donor must
// be currently eligible.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (*Donation, error) {
	if in.AmountML < MinAmountML || in.AmountML > MaxAmountML {
		return nil, apperr.Validationf("amount must be between %d and %d ml, got %d",
			MinAmountML, MaxAmountML, in.AmountML)
	}
	if !in.ScheduledAt.After(time.Now()) {
		return nil, apperr.Validationf("scheduled time must be in the future")
	}
	if in.RequestID != nil && in.EmergencyID != nil {
		return nil, apperr.Validationf("a donation serves at most one request or emergency")
	}

	d, err := s.donors.GetByID(ctx, in.DonorID)
	if err != nil {
		return nil, err
	}
	if elig := donor.CheckDonor(d, time.Now()); !elig.Eligible {
		return nil, apperr.Validationf("donor is not eligible to donate: %s",
			strings.Join(elig.Reasons, "; "))
	}

	dn := &Donation{
		DonorID:     in.DonorID,
		BloodType:   d.BloodType,
		AmountML:    in.AmountML,
		ScheduledAt: in.ScheduledAt,
		Location:    in.Location,
		RequestID:   in.RequestID,
		EmergencyID: in.EmergencyID,
		Status:      StatusScheduled,
	}
	if err := s.repo.Create(ctx, dn); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("donation_id", dn.ID.String()).
		Str("donor_id", in.DonorID.String()).
		Time("scheduled_at", in.ScheduledAt).
		Msg("donation scheduled")
	return dn, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error) {
	return s.repo.ListByDonor(ctx, donorID, limit, offset)
}

func newCertificateID(now time.Time) string {
	suffix := make([]byte, 4)
	_, _ = crand.Read(suffix)
	return fmt.Sprintf("CERT-%d-%s", now.Year(), strings.ToUpper(hex.EncodeToString(suffix)))
}

func newBagID(bt bloodtype.Type, now time.Time) string {
	suffix := make([]byte, 3)
	_, _ = crand.Read(suffix)
	return fmt.Sprintf("BAG-%s-%d-%s", bt, now.Unix(), strings.ToUpper(hex.EncodeToString(suffix)))
}

// Complete moves a scheduled donation to completed. Certificate and bag
// identifiers are generated here, exactly once; the donor's last-donation
// date and counter advance; the owning request or emergency is told the
// donation completed. Reporting failures are logged, not surfaced: the
// donation itself did happen.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, vitals Vitals, labs LabResults) (*Donation, error) {
	dn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dn.Status != StatusScheduled {
		return nil, apperr.Statef("donation %s is %s, only scheduled donations can complete", id, dn.Status)
	}

	now := time.Now()
	cert := newCertificateID(now)
	bag := newBagID(dn.BloodType, now)
	dn.Status = StatusCompleted
	dn.Vitals = vitals
	dn.Labs = labs
	dn.CertificateID = &cert
	dn.BagID = &bag
	dn.CompletedAt = &now
	if err := s.repo.Update(ctx, dn); err != nil {
		return nil, err
	}

	if err := s.donors.RecordDonation(ctx, dn.DonorID, now); err != nil {
		s.logger.Error().Err(err).
			Str("donation_id", id.String()).
			Str("donor_id", dn.DonorID.String()).
			Msg("donation complete: donor history update failed")
	}
	if s.stock != nil {
		expiry := now.AddDate(0, 0, ShelfLifeDays)
		donorID := dn.DonorID
		if _, _, err := s.stock.AddStock(ctx, dn.BloodType, 1, expiry, &donorID, dn.Location); err != nil {
			s.logger.Error().Err(err).
				Str("donation_id", id.String()).
				Msg("donation complete: inventory update failed")
		}
	}
	s.report(ctx, dn, true)
	s.sendCertificate(ctx, dn, now)

	s.logger.Info().
		Str("donation_id", id.String()).
		Str("bag_id", bag).
		Msg("donation completed")
	return dn, nil
}

// sendCertificate delivers the donation certificate to the donor.
// Best-effort: a failed send never fails the completion.
func (s *Service) sendCertificate(ctx context.Context, dn *Donation, now time.Time) {
	if s.alerts == nil || dn.CertificateID == nil {
		return
	}
	d, err := s.donors.GetByID(ctx, dn.DonorID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("donation_id", dn.ID.String()).
			Msg("donation certificate: donor lookup failed")
		return
	}
	addr := d.Contact(s.alertChannel)
	if addr == "" {
		return
	}
	data := map[string]string{
		"donor_name":     d.Name,
		"amount":         strconv.Itoa(dn.AmountML),
		"date":           now.Format("2006-01-02"),
		"certificate_id": *dn.CertificateID,
	}
	if _, err := s.alerts.SendFromTemplate(ctx, "donation-certificate", data, addr); err != nil {
		s.logger.Error().Err(err).
			Str("donation_id", dn.ID.String()).
			Msg("donation certificate: send failed")
	}
}

// Cancel withdraws a scheduled donation and tells the owning request or
// emergency the donor dropped out.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Donation, error) {
	dn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dn.Status != StatusScheduled {
		return nil, apperr.Statef("donation %s is %s, only scheduled donations can be cancelled", id, dn.Status)
	}

	dn.Status = StatusCancelled
	if err := s.repo.Update(ctx, dn); err != nil {
		return nil, err
	}
	s.report(ctx, dn, false)
	return dn, nil
}

// ExpireOverdue flags scheduled donations whose appointment passed more
// than the grace period ago. Single failures are logged and skipped.
func (s *Service) ExpireOverdue(ctx context.Context, grace time.Duration) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, time.Now().Add(-grace))
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, dn := range overdue {
		dn.Status = StatusExpired
		if err := s.repo.Update(ctx, dn); err != nil {
			s.logger.Error().Err(err).
				Str("donation_id", dn.ID.String()).
				Msg("donation expiry sweep: update failed")
			dn.Status = StatusScheduled
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("missed donation appointments expired")
	}
	return expired, nil
}

// report forwards the outcome to the owning request or emergency so
// fulfillment accounting reruns. The update is made as the system actor:
// the donation outcome, not a user, drives it.
func (s *Service) report(ctx context.Context, dn *Donation, completed bool) {
	switch {
	case dn.RequestID != nil && s.requests != nil:
		status := request.DonationCancelled
		if completed {
			status = request.DonationCompleted
		}
		if _, err := s.requests.UpdateDonationStatus(ctx, *dn.RequestID, request.SystemActor, dn.DonorID, status); err != nil {
			s.logger.Error().Err(err).
				Str("donation_id", dn.ID.String()).
				Str("request_id", dn.RequestID.String()).
				Msg("donation report to request failed")
		}
	case dn.EmergencyID != nil && s.emergencies != nil:
		status := emergency.DonationCancelled
		if completed {
			status = emergency.DonationCompleted
		}
		if _, err := s.emergencies.UpdateDonationStatus(ctx, *dn.EmergencyID, emergency.SystemActor, dn.DonorID, status); err != nil {
			s.logger.Error().Err(err).
				Str("donation_id", dn.ID.String()).
				Str("emergency_id", dn.EmergencyID.String()).
				Msg("donation report to emergency failed")
		}
	}
}

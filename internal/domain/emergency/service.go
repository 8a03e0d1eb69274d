package emergency

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// AlertSender dispatches one templated alert. Satisfied by
// notification.Manager.
type AlertSender interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Service implements the emergency lifecycle: creation with an immediate
// broadcast to compatible donors, response and confirmation handling, and
// resolution accounting driven by contributed units.
type Service struct {
	repo         Repository
	donors       donor.Repository
	alerts       AlertSender
	alertChannel string
	logger       zerolog.Logger
}

func NewService(repo Repository, donors donor.Repository, alerts AlertSender, alertChannel string, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		donors:       donors,
		alerts:       alerts,
		alertChannel: alertChannel,
		logger:       logger,
	}
}

// CreateInput carries the caller-supplied emergency fields.
type CreateInput struct {
	RequesterID         uuid.UUID
	PatientName         string
	PatientBloodType    string
	Severity            string
	UnitsRequired       int
	RequiredWithinHours int
	HospitalName        string
	HospitalCity        string
	Description         *string
}

// Create validates the input, stores a new active emergency, and
// broadcasts it to every compatible donor in the hospital's city. A
// broadcast failure never fails the creation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Emergency, error) {
	bt, err := bloodtype.Parse(in.PatientBloodType)
	if err != nil {
		return nil, apperr.Validationf("invalid blood type %q", in.PatientBloodType)
	}
	severity, err := ParseSeverity(in.Severity)
	if err != nil {
		return nil, apperr.Validationf("invalid severity %q, expected moderate, severe or critical", in.Severity)
	}
	if strings.TrimSpace(in.PatientName) == "" {
		return nil, apperr.Validationf("patient name is required")
	}
	if strings.TrimSpace(in.HospitalName) == "" {
		return nil, apperr.Validationf("hospital name is required")
	}
	if strings.TrimSpace(in.HospitalCity) == "" {
		return nil, apperr.Validationf("hospital city is required")
	}
	if in.UnitsRequired < MinUnits || in.UnitsRequired > MaxUnits {
		return nil, apperr.Validationf("units required must be between %d and %d, got %d",
			MinUnits, MaxUnits, in.UnitsRequired)
	}
	if in.RequiredWithinHours <= 0 {
		return nil, apperr.Validationf("required-within hours must be positive, got %d", in.RequiredWithinHours)
	}

	e := &Emergency{
		RequesterID:         in.RequesterID,
		PatientName:         in.PatientName,
		PatientBloodType:    bt,
		Severity:            severity,
		UnitsRequired:       in.UnitsRequired,
		RequiredWithinHours: in.RequiredWithinHours,
		HospitalName:        in.HospitalName,
		HospitalCity:        in.HospitalCity,
		Description:         in.Description,
		Status:              StatusActive,
		Priority:            Priority,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, e.ID, EventCreated, &in.RequesterID, nil)

	s.logger.Info().
		Str("emergency_id", e.ID.String()).
		Str("blood_type", string(bt)).
		Str("severity", string(severity)).
		Int("urgency_level", e.UrgencyLevel()).
		Msg("emergency created")

	s.broadcast(ctx, e)
	return e, nil
}

// broadcast notifies every active, available donor who could donate to the
// patient, lives in the hospital's city, and opted into alerts. Delivery
// is best-effort per donor: one failed send is logged and skipped.
func (s *Service) broadcast(ctx context.Context, e *Emergency) {
	if s.alerts == nil {
		s.logger.Info().
			Str("emergency_id", e.ID.String()).
			Msg("alerting disabled, broadcast skipped")
		return
	}
	types := bloodtype.DonorsFor(e.PatientBloodType)
	targets, err := s.donors.ListBroadcastTargets(ctx, types, e.HospitalCity)
	if err != nil {
		s.logger.Error().Err(err).
			Str("emergency_id", e.ID.String()).
			Msg("broadcast: target lookup failed")
		return
	}

	data := map[string]string{
		"blood_type": string(e.PatientBloodType),
		"units":      strconv.Itoa(e.UnitsRequired),
		"severity":   string(e.Severity),
		"hospital":   e.HospitalName,
		"city":       e.HospitalCity,
		"hours":      strconv.Itoa(e.RequiredWithinHours),
	}

	notified := make([]uuid.UUID, 0, len(targets))
	for _, d := range targets {
		addr := d.Contact(s.alertChannel)
		if addr == "" {
			continue
		}
		data["donor_name"] = d.Name
		if _, err := s.alerts.SendFromTemplate(ctx, "emergency-alert", data, addr); err != nil {
			s.logger.Error().Err(err).
				Str("emergency_id", e.ID.String()).
				Str("donor_id", d.ID.String()).
				Msg("broadcast: alert send failed")
			continue
		}
		notified = append(notified, d.ID)
	}

	if err := s.repo.RecordBroadcast(ctx, e.ID, notified, time.Now()); err != nil {
		s.logger.Error().Err(err).
			Str("emergency_id", e.ID.String()).
			Msg("broadcast: recording failed")
	}
	detail := fmt.Sprintf("notified %d of %d eligible donors", len(notified), len(targets))
	s.appendEvent(ctx, e.ID, EventBroadcast, nil, &detail)

	s.logger.Info().
		Str("emergency_id", e.ID.String()).
		Int("eligible", len(targets)).
		Int("notified", len(notified)).
		Msg("emergency broadcast")
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status *Status, limit, offset int) ([]*Emergency, int, error) {
	return s.repo.List(ctx, status, limit, offset)
}

// RespondInput carries a donor's offer to help with an emergency.
type RespondInput struct {
	DonorID     uuid.UUID
	Message     *string
	AvailableAt *time.Time
}

// Respond records a donor's offer, gated by the same compatibility and
// eligibility checks as standard requests.
func (s *Service) Respond(ctx context.Context, emergencyID uuid.UUID, in RespondInput) (*Response, error) {
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, apperr.Statef("emergency %s is %s and no longer accepts responses", emergencyID, e.Status)
	}
	if e.ResponseFrom(in.DonorID) != nil {
		return nil, apperr.Conflictf("donor %s has already responded to emergency %s", in.DonorID, emergencyID)
	}

	d, err := s.donors.GetByID(ctx, in.DonorID)
	if err != nil {
		return nil, err
	}
	if !bloodtype.CanDonate(d.BloodType, e.PatientBloodType) {
		return nil, apperr.Validationf("donor blood type %s is not compatible with patient blood type %s",
			d.BloodType, e.PatientBloodType)
	}
	if elig := donor.CheckDonor(d, time.Now()); !elig.Eligible {
		return nil, apperr.Validationf("donor is not eligible to donate: %s",
			strings.Join(elig.Reasons, "; "))
	}

	resp := &Response{
		EmergencyID: emergencyID,
		DonorID:     in.DonorID,
		Message:     in.Message,
		AvailableAt: in.AvailableAt,
	}
	if err := s.repo.AddResponse(ctx, resp); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, emergencyID, EventResponse, &in.DonorID, nil)

	s.logger.Info().
		Str("emergency_id", emergencyID.String()).
		Str("donor_id", in.DonorID.String()).
		Msg("donor responded to emergency")
	return resp, nil
}

// ConfirmInput carries the requester's confirmation of a responding donor.
type ConfirmInput struct {
	DonorID          uuid.UUID
	UnitsContributed int
	ExpectedArrival  *time.Time
	Notes            *string
}

// ConfirmDonor is the emergency counterpart of accepting a donor. Only
// the requester may confirm; the donor must have responded and may be
// confirmed at most once. The contributed unit count is fixed here.
func (s *Service) ConfirmDonor(ctx context.Context, emergencyID, callerID uuid.UUID, in ConfirmInput) (*ConfirmedDonor, error) {
	if in.UnitsContributed <= 0 {
		return nil, apperr.Validationf("units contributed must be positive, got %d", in.UnitsContributed)
	}
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if e.RequesterID != callerID {
		return nil, apperr.Conflictf("only the requester may confirm donors")
	}
	if e.Status.Terminal() {
		return nil, apperr.Statef("emergency %s is %s and no longer accepts donors", emergencyID, e.Status)
	}
	resp := e.ResponseFrom(in.DonorID)
	if resp == nil {
		return nil, apperr.NotFoundf("donor %s has not responded to emergency %s", in.DonorID, emergencyID)
	}
	if e.ConfirmedDonorFor(in.DonorID) != nil {
		return nil, apperr.Conflictf("donor %s is already confirmed for emergency %s", in.DonorID, emergencyID)
	}

	if err := s.repo.MarkResponseConfirmed(ctx, resp.ID); err != nil {
		return nil, err
	}
	cd := &ConfirmedDonor{
		EmergencyID:      emergencyID,
		DonorID:          in.DonorID,
		DonationStatus:   DonationPending,
		UnitsContributed: in.UnitsContributed,
		ExpectedArrival:  in.ExpectedArrival,
		Notes:            in.Notes,
	}
	if err := s.repo.AddConfirmedDonor(ctx, cd); err != nil {
		return nil, err
	}
	detail := fmt.Sprintf("%d units expected", in.UnitsContributed)
	s.appendEvent(ctx, emergencyID, EventDonorConfirmed, &callerID, &detail)

	s.logger.Info().
		Str("emergency_id", emergencyID.String()).
		Str("donor_id", in.DonorID.String()).
		Int("units", in.UnitsContributed).
		Msg("donor confirmed for emergency")
	return cd, nil
}

// SystemActor authorizes donation-status updates recorded by the
// donation workflow itself, where no user is acting.
var SystemActor uuid.UUID

// UpdateDonationStatus moves a confirmed donor through the donation
// workflow and reruns resolution accounting. Only the requester, or the
// donation workflow acting as SystemActor, may update.
func (s *Service) UpdateDonationStatus(ctx context.Context, emergencyID, callerID, donorID uuid.UUID, status DonationStatus) (*Emergency, error) {
	if !status.Valid() {
		return nil, apperr.Validationf("invalid donation status %q", status)
	}
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if callerID != SystemActor && callerID != e.RequesterID {
		return nil, apperr.Conflictf("only the requester may update donation status")
	}
	if e.ConfirmedDonorFor(donorID) == nil {
		return nil, apperr.NotFoundf("donor %s is not confirmed for emergency %s", donorID, emergencyID)
	}
	if err := s.repo.UpdateConfirmedDonorStatus(ctx, emergencyID, donorID, status); err != nil {
		return nil, err
	}
	detail := fmt.Sprintf("donor %s: %s", donorID, status)
	s.appendEvent(ctx, emergencyID, EventDonationStatus, nil, &detail)

	if err := s.recomputeResolution(ctx, emergencyID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, emergencyID)
}

// Resolve is the requester closing the emergency manually, regardless of
// how many units arrived.
func (s *Service) Resolve(ctx context.Context, emergencyID, callerID uuid.UUID) (*Emergency, error) {
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if e.RequesterID != callerID {
		return nil, apperr.Conflictf("only the requester may resolve an emergency")
	}
	if e.Status.Terminal() {
		return nil, apperr.Statef("emergency %s is already %s", emergencyID, e.Status)
	}

	received := e.UnitsReceived()
	if err := s.repo.MarkResolved(ctx, emergencyID, callerID, time.Now(), received); err != nil {
		return nil, err
	}
	detail := fmt.Sprintf("resolved manually with %d of %d units", received, e.UnitsRequired)
	s.appendEvent(ctx, emergencyID, EventResolved, &callerID, &detail)
	return s.repo.GetByID(ctx, emergencyID)
}

// Cancel is the requester withdrawing a non-terminal emergency.
func (s *Service) Cancel(ctx context.Context, emergencyID, callerID uuid.UUID) error {
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return err
	}
	if e.RequesterID != callerID {
		return apperr.Conflictf("only the requester may cancel an emergency")
	}
	if e.Status.Terminal() {
		return apperr.Statef("emergency %s is already %s", emergencyID, e.Status)
	}
	if err := s.repo.UpdateStatus(ctx, emergencyID, StatusCancelled); err != nil {
		return err
	}
	s.appendEvent(ctx, emergencyID, EventCancelled, &callerID, nil)
	return nil
}

// ExpireOverdue marks every non-terminal emergency whose required-within
// window closed as expired. Single failures are logged and skipped.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, e := range overdue {
		if err := s.repo.UpdateStatus(ctx, e.ID, StatusExpired); err != nil {
			s.logger.Error().Err(err).
				Str("emergency_id", e.ID.String()).
				Msg("emergency expiry sweep: update failed")
			continue
		}
		s.appendEvent(ctx, e.ID, EventExpired, nil, nil)
		expired++
	}
	if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("overdue emergencies expired")
	}
	return expired, nil
}

// recomputeResolution derives the emergency status from contributed
// units. Resolution stamps metadata with the requester recorded as the
// resolver since completion, not an actor's call, closed the emergency.
func (s *Service) recomputeResolution(ctx context.Context, emergencyID uuid.UUID) error {
	e, err := s.repo.GetByID(ctx, emergencyID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return nil
	}

	received := e.UnitsReceived()
	switch {
	case received >= e.UnitsRequired:
		if err := s.repo.MarkResolved(ctx, emergencyID, e.RequesterID, time.Now(), received); err != nil {
			return err
		}
		detail := fmt.Sprintf("received %d of %d units", received, e.UnitsRequired)
		s.appendEvent(ctx, emergencyID, EventResolved, nil, &detail)
		s.logger.Info().
			Str("emergency_id", emergencyID.String()).
			Int("received", received).
			Msg("emergency resolved")
	case received > 0 && e.Status == StatusActive:
		if err := s.repo.UpdateStatus(ctx, emergencyID, StatusPartiallyResolved); err != nil {
			return err
		}
	}
	return nil
}

// appendEvent writes a timeline entry. The timeline is best-effort: a
// failed append is logged, not surfaced, so bookkeeping never blocks the
// operation it describes.
func (s *Service) appendEvent(ctx context.Context, emergencyID uuid.UUID, eventType string, actor *uuid.UUID, detail *string) {
	ev := &Event{
		EmergencyID: emergencyID,
		EventType:   eventType,
		Actor:       actor,
		Detail:      detail,
	}
	if err := s.repo.AppendEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("emergency_id", emergencyID.String()).
			Str("event_type", eventType).
			Msg("timeline append failed")
	}
}

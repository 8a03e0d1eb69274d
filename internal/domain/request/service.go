package request

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/notification"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// AlertSender dispatches one templated notice. Satisfied by
// notification.Manager.
type AlertSender interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// Service implements the standard-request lifecycle: creation with a fixed
// priority, donor responses with compatibility and eligibility gating,
// requester-side acceptance, and fulfillment accounting on every
// state-changing write.
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

// CreateInput carries the caller-supplied request fields.
type CreateInput struct {
	RequesterID      uuid.UUID
	PatientName      string
	PatientBloodType string
	Urgency          string
	RequiredBy       time.Time
	Purpose          *string
	HospitalName     string
	HospitalCity     string
	UnitsRequired    int
}

// Create validates the input and stores a new pending request. Priority is
// derived from urgency once, here, and never changes afterwards.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Request, error) {
	bt, err := bloodtype.Parse(in.PatientBloodType)
	if err != nil {
		return nil, apperr.Validationf("invalid blood type %q", in.PatientBloodType)
	}
	urgency, err := ParseUrgency(in.Urgency)
	if err != nil {
		return nil, apperr.Validationf("invalid urgency %q, expected low, medium, high or critical", in.Urgency)
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
	if !in.RequiredBy.After(time.Now()) {
		return nil, apperr.Validationf("required-by date must be in the future")
	}

	req := &Request{
		RequesterID:      in.RequesterID,
		PatientName:      in.PatientName,
		PatientBloodType: bt,
		Urgency:          urgency,
		RequiredBy:       in.RequiredBy,
		Purpose:          in.Purpose,
		HospitalName:     in.HospitalName,
		HospitalCity:     in.HospitalCity,
		UnitsRequired:    in.UnitsRequired,
		Status:           StatusPending,
		Priority:         urgency.Priority(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("blood_type", string(bt)).
		Int("priority", req.Priority).
		Msg("blood request created")
	return req, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of requests, highest priority first. When sorted by
// urgency score the page is reordered so nearer deadlines rank higher
// within a priority.
func (s *Service) List(ctx context.Context, status *Status, limit, offset int) ([]*Request, int, error) {
	requests, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].UrgencyScore(now) > requests[j].UrgencyScore(now)
	})
	return requests, total, nil
}

// RespondInput carries a donor's offer to donate.
type RespondInput struct {
	DonorID           uuid.UUID
	Message           *string
	AvailableAt       *time.Time
	ContactPreference *string
}

// Respond records a donor's offer. The offer is rejected when the request
// is terminal, the donor already responded, the donor's blood type cannot
// serve the patient, or the donor is currently ineligible. A response to a
// pending request activates it.
func (s *Service) Respond(ctx context.Context, requestID uuid.UUID, in RespondInput) (*Response, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, apperr.Statef("request %s is %s and no longer accepts responses", requestID, req.Status)
	}
	if req.ResponseFrom(in.DonorID) != nil {
		return nil, apperr.Conflictf("donor %s has already responded to request %s", in.DonorID, requestID)
	}

	d, err := s.donors.GetByID(ctx, in.DonorID)
	if err != nil {
		return nil, err
	}
	if !bloodtype.CanDonate(d.BloodType, req.PatientBloodType) {
		return nil, apperr.Validationf("donor blood type %s is not compatible with patient blood type %s",
			d.BloodType, req.PatientBloodType)
	}
	if elig := donor.CheckDonor(d, time.Now()); !elig.Eligible {
		return nil, apperr.Validationf("donor is not eligible to donate: %s",
			strings.Join(elig.Reasons, "; "))
	}

	resp := &Response{
		RequestID:         requestID,
		DonorID:           in.DonorID,
		Message:           in.Message,
		AvailableAt:       in.AvailableAt,
		ContactPreference: in.ContactPreference,
	}
	if err := s.repo.AddResponse(ctx, resp); err != nil {
		return nil, err
	}

	if req.Status == StatusPending {
		if err := s.repo.UpdateStatus(ctx, requestID, StatusActive); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Str("request_id", requestID.String()).
		Str("donor_id", in.DonorID.String()).
		Msg("donor responded to request")
	return resp, nil
}

// AcceptDonor lets the requester pick a responding donor. Only the
// requester may accept, the donor must have responded, and a donor can be
// accepted at most once.
func (s *Service) AcceptDonor(ctx context.Context, requestID, callerID, donorID uuid.UUID, notes *string) (*AcceptedDonor, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != callerID {
		return nil, apperr.Conflictf("only the requester may accept donors")
	}
	if req.Status.Terminal() {
		return nil, apperr.Statef("request %s is %s and no longer accepts donors", requestID, req.Status)
	}
	resp := req.ResponseFrom(donorID)
	if resp == nil {
		return nil, apperr.NotFoundf("donor %s has not responded to request %s", donorID, requestID)
	}
	if req.AcceptedDonorFor(donorID) != nil {
		return nil, apperr.Conflictf("donor %s is already accepted for request %s", donorID, requestID)
	}

	if err := s.repo.MarkResponseAccepted(ctx, resp.ID); err != nil {
		return nil, err
	}
	ad := &AcceptedDonor{
		RequestID:      requestID,
		DonorID:        donorID,
		DonationStatus: DonationPending,
		Notes:          notes,
	}
	if err := s.repo.AddAcceptedDonor(ctx, ad); err != nil {
		return nil, err
	}
	if err := s.recomputeFulfillment(ctx, requestID); err != nil {
		return nil, err
	}
	s.notifyAccepted(ctx, req, donorID)

	s.logger.Info().
		Str("request_id", requestID.String()).
		Str("donor_id", donorID.String()).
		Msg("donor accepted for request")
	return ad, nil
}

// notifyAccepted tells the donor their offer was accepted. Best-effort: a
// failed send is logged and the acceptance stands.
func (s *Service) notifyAccepted(ctx context.Context, req *Request, donorID uuid.UUID) {
	if s.alerts == nil {
		return
	}
	d, err := s.donors.GetByID(ctx, donorID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("donor_id", donorID.String()).
			Msg("acceptance notice: donor lookup failed")
		return
	}
	addr := d.Contact(s.alertChannel)
	if addr == "" {
		return
	}
	data := map[string]string{
		"donor_name":   d.Name,
		"patient_name": req.PatientName,
		"hospital":     req.HospitalName,
	}
	if _, err := s.alerts.SendFromTemplate(ctx, "donor-accepted", data, addr); err != nil {
		s.logger.Error().Err(err).
			Str("request_id", req.ID.String()).
			Str("donor_id", donorID.String()).
			Msg("acceptance notice: send failed")
	}
}

// SystemActor authorizes donation-status updates recorded by the
// donation workflow itself, where no user is acting.
var SystemActor uuid.UUID

// UpdateDonationStatus moves an accepted donor through the donation
// workflow and reruns fulfillment accounting. Only the requester, or the
// donation workflow acting as SystemActor, may update.
func (s *Service) UpdateDonationStatus(ctx context.Context, requestID, callerID, donorID uuid.UUID, status DonationStatus) (*Request, error) {
	if !status.Valid() {
		return nil, apperr.Validationf("invalid donation status %q", status)
	}
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if callerID != SystemActor && callerID != req.RequesterID {
		return nil, apperr.Conflictf("only the requester may update donation status")
	}
	if req.AcceptedDonorFor(donorID) == nil {
		return nil, apperr.NotFoundf("donor %s was not accepted for request %s", donorID, requestID)
	}
	if err := s.repo.UpdateAcceptedDonorStatus(ctx, requestID, donorID, status); err != nil {
		return nil, err
	}
	if err := s.recomputeFulfillment(ctx, requestID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, requestID)
}

// Cancel is the requester withdrawing a non-terminal request.
func (s *Service) Cancel(ctx context.Context, requestID, callerID uuid.UUID) error {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.RequesterID != callerID {
		return apperr.Conflictf("only the requester may cancel a request")
	}
	if req.Status.Terminal() {
		return apperr.Statef("request %s is already %s", requestID, req.Status)
	}
	return s.repo.UpdateStatus(ctx, requestID, StatusCancelled)
}

// ExpireOverdue marks every non-terminal request past its required-by time
// as expired. Failures on single requests are logged and skipped so one
// bad row does not stall the sweep.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListOverdue(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, req := range overdue {
		if err := s.repo.UpdateStatus(ctx, req.ID, StatusExpired); err != nil {
			s.logger.Error().Err(err).
				Str("request_id", req.ID.String()).
				Msg("request expiry sweep: update failed")
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("overdue requests expired")
	}
	return expired, nil
}

// recomputeFulfillment derives the request status from the completed
// donation count. Fulfillment status is never set directly; it always
// follows the accepted-donor records.
func (s *Service) recomputeFulfillment(ctx context.Context, requestID uuid.UUID) error {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return nil
	}

	fulfilled := req.UnitsFulfilled()
	var next Status
	switch {
	case fulfilled >= req.UnitsRequired:
		next = StatusFulfilled
	case fulfilled > 0 && req.Status == StatusActive:
		next = StatusPartiallyFulfilled
	default:
		return nil
	}
	if next == req.Status {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, requestID, next); err != nil {
		return err
	}
	s.logger.Info().
		Str("request_id", requestID.String()).
		Int("fulfilled", fulfilled).
		Int("required", req.UnitsRequired).
		Str("status", string(next)).
		Msg("request fulfillment updated")
	return nil
}

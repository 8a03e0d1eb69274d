package donor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register validates and stores a new donor. Registration applies the
// looser two-tier bounds; the stricter donation-eligibility check runs
// when the donor responds to a request.
func (s *Service) Register(ctx context.Context, d *Donor) error {
	if d.Name == "" {
		return apperr.Validationf("name is required")
	}
	if !d.BloodType.Valid() {
		return apperr.Validationf("invalid blood type %q", d.BloodType)
	}
	if d.DateOfBirth.IsZero() {
		return apperr.Validationf("date_of_birth is required")
	}
	if reg := CheckRegistration(d.DateOfBirth, d.WeightKG, time.Now()); !reg.Eligible {
		return apperr.Validationf("donor not registrable: %v", reg.Reasons)
	}
	d.Active = true
	return s.repo.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Donor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Donor, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// SetAvailability toggles whether the donor appears in broadcast targeting.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	d.Available = available
	return s.repo.Update(ctx, d)
}

// CheckEligibility evaluates the donation-eligibility rules for a stored
// donor.
func (s *Service) CheckEligibility(ctx context.Context, id uuid.UUID) (Eligibility, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return Eligibility{}, err
	}
	return CheckDonor(d, time.Now()), nil
}

// RankForRecipient filters and orders donors by compatibility with the
// recipient blood type.
func (s *Service) RankForRecipient(recipient bloodtype.Type, donors []*Donor) []*Donor {
	candidates := make([]bloodtype.Candidate, len(donors))
	byID := make(map[string]*Donor, len(donors))
	for i, d := range donors {
		candidates[i] = bloodtype.Candidate{ID: d.ID.String(), Type: d.BloodType}
		byID[d.ID.String()] = d
	}
	ranked := bloodtype.RankDonors(recipient, candidates)
	out := make([]*Donor, len(ranked))
	for i, r := range ranked {
		out[i] = byID[r.ID]
	}
	return out
}

package emergency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Emergency) error
	// GetByID loads the emergency together with its responses, confirmed
	// donors, and timeline.
	GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// MarkResolved stamps the resolution metadata in one write.
	MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, at time.Time, totalUnits int) error
	// List returns emergencies newest first.
	List(ctx context.Context, status *Status, limit, offset int) ([]*Emergency, int, error)
	// ListOverdue returns non-terminal emergencies whose required-within
	// window closed before the given time.
	ListOverdue(ctx context.Context, before time.Time) ([]*Emergency, error)
	AddResponse(ctx context.Context, resp *Response) error
	MarkResponseConfirmed(ctx context.Context, responseID uuid.UUID) error
	AddConfirmedDonor(ctx context.Context, cd *ConfirmedDonor) error
	UpdateConfirmedDonorStatus(ctx context.Context, emergencyID, donorID uuid.UUID, status DonationStatus) error
	AppendEvent(ctx context.Context, ev *Event) error
	// RecordBroadcast stamps the broadcast time and recipient count and
	// stores the per-donor recipient rows.
	RecordBroadcast(ctx context.Context, id uuid.UUID, donorIDs []uuid.UUID, at time.Time) error
}

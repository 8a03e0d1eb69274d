package request

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	// GetByID loads the request together with its responses and accepted
	// donors.
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// List returns requests ordered by priority descending, oldest first
	// within a priority.
	List(ctx context.Context, status *Status, limit, offset int) ([]*Request, int, error)
	// ListOverdue returns non-terminal requests whose required-by time has
	// passed.
	ListOverdue(ctx context.Context, before time.Time) ([]*Request, error)
	AddResponse(ctx context.Context, resp *Response) error
	MarkResponseAccepted(ctx context.Context, responseID uuid.UUID) error
	AddAcceptedDonor(ctx context.Context, ad *AcceptedDonor) error
	UpdateAcceptedDonorStatus(ctx context.Context, requestID, donorID uuid.UUID, status DonationStatus) error
}

package donation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donation, error)
	Update(ctx context.Context, d *Donation) error
	// ListByDonor returns the donor's donations, newest first.
	ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error)
	// ListOverdue returns scheduled donations whose appointment time passed
	// before the given cut-off.
	ListOverdue(ctx context.Context, before time.Time) ([]*Donation, error)
}

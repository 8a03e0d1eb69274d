package donor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

type Repository interface {
	Create(ctx context.Context, d *Donor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donor, error)
	Update(ctx context.Context, d *Donor) error
	List(ctx context.Context, limit, offset int) ([]*Donor, int, error)
	// ListBroadcastTargets returns active, available donors with the given
	// blood types in the given city who opted into emergency alerts.
	ListBroadcastTargets(ctx context.Context, types []bloodtype.Type, city string) ([]*Donor, error)
	// RecordDonation stamps the last-donation date and increments the
	// donation counter.
	RecordDonation(ctx context.Context, id uuid.UUID, at time.Time) error
}

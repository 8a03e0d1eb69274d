package inventory

import (
	"context"

	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

type Repository interface {
	// GetByType loads the full aggregate for one blood type, creating the
	// inventory record lazily on first access.
	GetByType(ctx context.Context, bt bloodtype.Type) (*Inventory, error)
	ListAll(ctx context.Context) ([]*Inventory, error)
	CreateBatch(ctx context.Context, b *Batch) error
	UpdateBatch(ctx context.Context, b *Batch) error
	UpdateThresholds(ctx context.Context, bt bloodtype.Type, t Thresholds) error
	// InTx runs fn with every repository call inside one transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockType serializes concurrent writers of one blood type for the
	// duration of the surrounding transaction.
	LockType(ctx context.Context, bt bloodtype.Type) error
}

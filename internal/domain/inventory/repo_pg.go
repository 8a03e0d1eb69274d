package inventory

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool     *pgxpool.Pool
	defaults Thresholds
}

// NewRepoPG builds the Postgres repository. The default thresholds are
// applied when an inventory record is created lazily on first access.
func NewRepoPG(pool *pgxpool.Pool, defaults Thresholds) Repository {
	return &repoPG{pool: pool, defaults: defaults}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const batchCols = `batch_id, blood_type, units, expiry_date, collected_at, donor_id,
	location, status, created_at, updated_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.BatchID, &b.BloodType, &b.Units, &b.ExpiryDate, &b.CollectedAt, &b.DonorID,
		&b.Location, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) GetByType(ctx context.Context, bt bloodtype.Type) (*Inventory, error) {
	// Lazy creation: one inventory row per blood type, seeded with the
	// default thresholds.
	if _, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory (blood_type, critical_threshold, low_threshold, good_threshold)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (blood_type) DO NOTHING`,
		bt, r.defaults.Critical, r.defaults.Low, r.defaults.Good); err != nil {
		return nil, err
	}

	inv := &Inventory{BloodType: bt}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT critical_threshold, low_threshold, good_threshold, updated_at
		FROM inventory WHERE blood_type = $1`, bt).
		Scan(&inv.Thresholds.Critical, &inv.Thresholds.Low, &inv.Thresholds.Good, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+batchCols+` FROM blood_unit_batch
		WHERE blood_type = $1 ORDER BY expiry_date ASC, created_at ASC`, bt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		inv.Batches = append(inv.Batches, b)
	}
	return inv, rows.Err()
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Inventory, error) {
	var inventories []*Inventory
	for _, bt := range bloodtype.All {
		inv, err := r.GetByType(ctx, bt)
		if err != nil {
			return nil, err
		}
		inventories = append(inventories, inv)
	}
	return inventories, nil
}

func (r *repoPG) CreateBatch(ctx context.Context, b *Batch) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO blood_unit_batch (batch_id, blood_type, units, expiry_date, collected_at,
			donor_id, location, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.BatchID, b.BloodType, b.Units, b.ExpiryDate, b.CollectedAt,
		b.DonorID, b.Location, b.Status)
	if err != nil {
		return err
	}
	return r.touch(ctx, b.BloodType)
}

func (r *repoPG) UpdateBatch(ctx context.Context, b *Batch) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_unit_batch SET units=$2, status=$3, updated_at=NOW()
		WHERE batch_id = $1`,
		b.BatchID, b.Units, b.Status)
	if err != nil {
		return err
	}
	return r.touch(ctx, b.BloodType)
}

func (r *repoPG) UpdateThresholds(ctx context.Context, bt bloodtype.Type, t Thresholds) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE inventory SET critical_threshold=$2, low_threshold=$3, good_threshold=$4, updated_at=NOW()
		WHERE blood_type = $1`,
		bt, t.Critical, t.Low, t.Good)
	return err
}

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(db.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LockType takes a row lock on the inventory record, creating it first if
// the type was never stocked. Concurrent removals of the same blood type
// queue behind the lock instead of over-drawing.
func (r *repoPG) LockType(ctx context.Context, bt bloodtype.Type) error {
	if _, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO inventory (blood_type, critical_threshold, low_threshold, good_threshold)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (blood_type) DO NOTHING`,
		bt, r.defaults.Critical, r.defaults.Low, r.defaults.Good); err != nil {
		return err
	}
	_, err := r.conn(ctx).Exec(ctx, `
		SELECT blood_type FROM inventory WHERE blood_type = $1 FOR UPDATE`, bt)
	return err
}

func (r *repoPG) touch(ctx context.Context, bt bloodtype.Type) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE inventory SET updated_at=NOW() WHERE blood_type = $1`, bt)
	return err
}

package donor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const donorCols = `id, name, email, phone, blood_type, date_of_birth, weight_kg, city,
	last_donation_date, donation_count, medically_eligible, available, active,
	emergency_alerts, created_at, updated_at`

func scanDonor(row pgx.Row) (*Donor, error) {
	var d Donor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Phone, &d.BloodType, &d.DateOfBirth, &d.WeightKG, &d.City,
		&d.LastDonationDate, &d.DonationCount, &d.MedicallyEligible, &d.Available, &d.Active,
		&d.EmergencyAlerts, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Donor) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO donor (id, name, email, phone, blood_type, date_of_birth, weight_kg, city,
			last_donation_date, donation_count, medically_eligible, available, active, emergency_alerts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		d.ID, d.Name, d.Email, d.Phone, d.BloodType, d.DateOfBirth, d.WeightKG, d.City,
		d.LastDonationDate, d.DonationCount, d.MedicallyEligible, d.Available, d.Active, d.EmergencyAlerts)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Donor, error) {
	d, err := scanDonor(r.conn(ctx).QueryRow(ctx, `SELECT `+donorCols+` FROM donor WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("donor %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) Update(ctx context.Context, d *Donor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE donor SET name=$2, email=$3, phone=$4, weight_kg=$5, city=$6,
			medically_eligible=$7, available=$8, active=$9, emergency_alerts=$10, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Email, d.Phone, d.WeightKG, d.City,
		d.MedicallyEligible, d.Available, d.Active, d.EmergencyAlerts)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Donor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM donor`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+donorCols+` FROM donor ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *repoPG) ListBroadcastTargets(ctx context.Context, types []bloodtype.Type, city string) ([]*Donor, error) {
	typeStrings := make([]string, len(types))
	for i, t := range types {
		typeStrings[i] = string(t)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+donorCols+` FROM donor
		WHERE blood_type = ANY($1) AND city = $2
			AND active AND available AND emergency_alerts
		ORDER BY last_donation_date ASC NULLS FIRST`,
		typeStrings, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) RecordDonation(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE donor SET last_donation_date=$2, donation_count=donation_count+1, updated_at=NOW()
		WHERE id = $1`, id, at)
	return err
}

package donation

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
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const donationCols = `id, donor_id, blood_type, amount_ml, scheduled_at, location, request_id,
	emergency_id, status, height_cm, weight_kg, blood_pressure, hemoglobin, pulse_rate,
	lab_hiv, lab_hepatitis_b, lab_hepatitis_c, lab_syphilis, lab_malaria, lab_tested_at,
	certificate_id, bag_id, completed_at, created_at, updated_at`

func scanDonation(row pgx.Row) (*Donation, error) {
	var d Donation
	err := row.Scan(&d.ID, &d.DonorID, &d.BloodType, &d.AmountML, &d.ScheduledAt, &d.Location,
		&d.RequestID, &d.EmergencyID, &d.Status,
		&d.Vitals.HeightCM, &d.Vitals.WeightKG, &d.Vitals.BloodPressure, &d.Vitals.Hemoglobin,
		&d.Vitals.PulseRate,
		&d.Labs.HIV, &d.Labs.HepatitisB, &d.Labs.HepatitisC, &d.Labs.Syphilis, &d.Labs.Malaria,
		&d.Labs.TestedAt,
		&d.CertificateID, &d.BagID, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Donation) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO donation (donor_id, blood_type, amount_ml, scheduled_at, location,
			request_id, emergency_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at, updated_at`,
		d.DonorID, d.BloodType, d.AmountML, d.ScheduledAt, d.Location,
		d.RequestID, d.EmergencyID, d.Status).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	d, err := scanDonation(r.conn(ctx).QueryRow(ctx, `
		SELECT `+donationCols+` FROM donation WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("donation %s not found", id)
	}
	return d, err
}

func (r *repoPG) Update(ctx context.Context, d *Donation) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE donation SET
			status=$2, height_cm=$3, weight_kg=$4, blood_pressure=$5, hemoglobin=$6, pulse_rate=$7,
			lab_hiv=$8, lab_hepatitis_b=$9, lab_hepatitis_c=$10, lab_syphilis=$11, lab_malaria=$12,
			lab_tested_at=$13, certificate_id=$14, bag_id=$15, completed_at=$16, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Status,
		d.Vitals.HeightCM, d.Vitals.WeightKG, d.Vitals.BloodPressure, d.Vitals.Hemoglobin,
		d.Vitals.PulseRate,
		d.Labs.HIV, d.Labs.HepatitisB, d.Labs.HepatitisC, d.Labs.Syphilis, d.Labs.Malaria,
		d.Labs.TestedAt,
		d.CertificateID, d.BagID, d.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("donation %s not found", d.ID)
	}
	return nil
}

func (r *repoPG) ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM donation WHERE donor_id = $1`, donorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+donationCols+` FROM donation
		WHERE donor_id = $1 ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3`, donorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var donations []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, err
		}
		donations = append(donations, d)
	}
	return donations, total, rows.Err()
}

func (r *repoPG) ListOverdue(ctx context.Context, before time.Time) ([]*Donation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+donationCols+` FROM donation
		WHERE status = $1 AND scheduled_at < $2
		ORDER BY scheduled_at ASC`, StatusScheduled, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var donations []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, d)
	}
	return donations, rows.Err()
}

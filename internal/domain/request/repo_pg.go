package request

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

const requestCols = `id, requester_id, patient_name, patient_blood_type, urgency, required_by,
	purpose, hospital_name, hospital_city, units_required, status, priority,
	created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.RequesterID, &req.PatientName, &req.PatientBloodType, &req.Urgency,
		&req.RequiredBy, &req.Purpose, &req.HospitalName, &req.HospitalCity, &req.UnitsRequired,
		&req.Status, &req.Priority, &req.CreatedAt, &req.UpdatedAt)
	return &req, err
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_request (requester_id, patient_name, patient_blood_type, urgency,
			required_by, purpose, hospital_name, hospital_city, units_required, status, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`,
		req.RequesterID, req.PatientName, req.PatientBloodType, req.Urgency,
		req.RequiredBy, req.Purpose, req.HospitalName, req.HospitalCity,
		req.UnitsRequired, req.Status, req.Priority).
		Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+requestCols+` FROM blood_request WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("request %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, request_id, donor_id, message, available_at, contact_preference, accepted, responded_at
		FROM request_response WHERE request_id = $1 ORDER BY responded_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var resp Response
		if err := rows.Scan(&resp.ID, &resp.RequestID, &resp.DonorID, &resp.Message,
			&resp.AvailableAt, &resp.ContactPreference, &resp.Accepted, &resp.RespondedAt); err != nil {
			return nil, err
		}
		req.Responses = append(req.Responses, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	adRows, err := r.conn(ctx).Query(ctx, `
		SELECT id, request_id, donor_id, donation_status, notes, accepted_at
		FROM accepted_donor WHERE request_id = $1 ORDER BY accepted_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer adRows.Close()
	for adRows.Next() {
		var ad AcceptedDonor
		if err := adRows.Scan(&ad.ID, &ad.RequestID, &ad.DonorID, &ad.DonationStatus,
			&ad.Notes, &ad.AcceptedAt); err != nil {
			return nil, err
		}
		req.AcceptedDonors = append(req.AcceptedDonors, &ad)
	}
	return req, adRows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_request SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("request %s not found", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, status *Status, limit, offset int) ([]*Request, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM blood_request WHERE ($1::text IS NULL OR status = $1)`, status).
		Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+requestCols+` FROM blood_request
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY priority DESC, created_at ASC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func (r *repoPG) ListOverdue(ctx context.Context, before time.Time) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+requestCols+` FROM blood_request
		WHERE required_by < $1 AND status NOT IN ($2, $3, $4)
		ORDER BY required_by ASC`,
		before, StatusFulfilled, StatusExpired, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *repoPG) AddResponse(ctx context.Context, resp *Response) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO request_response (request_id, donor_id, message, available_at, contact_preference, accepted)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, responded_at`,
		resp.RequestID, resp.DonorID, resp.Message, resp.AvailableAt,
		resp.ContactPreference, resp.Accepted).
		Scan(&resp.ID, &resp.RespondedAt)
}

func (r *repoPG) MarkResponseAccepted(ctx context.Context, responseID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE request_response SET accepted=TRUE WHERE id = $1`, responseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("response %s not found", responseID)
	}
	return nil
}

func (r *repoPG) AddAcceptedDonor(ctx context.Context, ad *AcceptedDonor) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO accepted_donor (request_id, donor_id, donation_status, notes)
		VALUES ($1,$2,$3,$4)
		RETURNING id, accepted_at`,
		ad.RequestID, ad.DonorID, ad.DonationStatus, ad.Notes).
		Scan(&ad.ID, &ad.AcceptedAt)
}

func (r *repoPG) UpdateAcceptedDonorStatus(ctx context.Context, requestID, donorID uuid.UUID, status DonationStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE accepted_donor SET donation_status=$3
		WHERE request_id = $1 AND donor_id = $2`, requestID, donorID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("donor %s was not accepted for request %s", donorID, requestID)
	}
	return nil
}

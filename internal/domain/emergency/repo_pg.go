package emergency

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

const emergencyCols = `id, requester_id, patient_name, patient_blood_type, severity, units_required,
	required_within_hours, hospital_name, hospital_city, description, status, priority,
	broadcasted_at, notified_count, resolved_at, resolved_by, total_units_received,
	created_at, updated_at`

func scanEmergency(row pgx.Row) (*Emergency, error) {
	var e Emergency
	err := row.Scan(&e.ID, &e.RequesterID, &e.PatientName, &e.PatientBloodType, &e.Severity,
		&e.UnitsRequired, &e.RequiredWithinHours, &e.HospitalName, &e.HospitalCity, &e.Description,
		&e.Status, &e.Priority, &e.BroadcastedAt, &e.NotifiedCount, &e.ResolvedAt, &e.ResolvedBy,
		&e.TotalUnitsReceived, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Emergency) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_request (requester_id, patient_name, patient_blood_type, severity,
			units_required, required_within_hours, hospital_name, hospital_city, description,
			status, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at, updated_at`,
		e.RequesterID, e.PatientName, e.PatientBloodType, e.Severity,
		e.UnitsRequired, e.RequiredWithinHours, e.HospitalName, e.HospitalCity, e.Description,
		e.Status, e.Priority).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	e, err := scanEmergency(r.conn(ctx).QueryRow(ctx, `
		SELECT `+emergencyCols+` FROM emergency_request WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("emergency %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, emergency_id, donor_id, message, available_at, confirmed, responded_at
		FROM emergency_response WHERE emergency_id = $1 ORDER BY responded_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var resp Response
		if err := rows.Scan(&resp.ID, &resp.EmergencyID, &resp.DonorID, &resp.Message,
			&resp.AvailableAt, &resp.Confirmed, &resp.RespondedAt); err != nil {
			return nil, err
		}
		e.Responses = append(e.Responses, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cdRows, err := r.conn(ctx).Query(ctx, `
		SELECT id, emergency_id, donor_id, donation_status, units_contributed, expected_arrival,
			notes, confirmed_at
		FROM confirmed_donor WHERE emergency_id = $1 ORDER BY confirmed_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer cdRows.Close()
	for cdRows.Next() {
		var cd ConfirmedDonor
		if err := cdRows.Scan(&cd.ID, &cd.EmergencyID, &cd.DonorID, &cd.DonationStatus,
			&cd.UnitsContributed, &cd.ExpectedArrival, &cd.Notes, &cd.ConfirmedAt); err != nil {
			return nil, err
		}
		e.ConfirmedDonors = append(e.ConfirmedDonors, &cd)
	}
	if err := cdRows.Err(); err != nil {
		return nil, err
	}

	evRows, err := r.conn(ctx).Query(ctx, `
		SELECT id, emergency_id, event_type, actor, detail, created_at
		FROM emergency_event WHERE emergency_id = $1 ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer evRows.Close()
	for evRows.Next() {
		var ev Event
		if err := evRows.Scan(&ev.ID, &ev.EmergencyID, &ev.EventType, &ev.Actor,
			&ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		e.Events = append(e.Events, &ev)
	}
	return e, evRows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_request SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("emergency %s not found", id)
	}
	return nil
}

func (r *repoPG) MarkResolved(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID, at time.Time, totalUnits int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_request
		SET status=$2, resolved_at=$3, resolved_by=$4, total_units_received=$5, updated_at=NOW()
		WHERE id = $1`,
		id, StatusResolved, at, resolvedBy, totalUnits)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("emergency %s not found", id)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, status *Status, limit, offset int) ([]*Emergency, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM emergency_request WHERE ($1::text IS NULL OR status = $1)`, status).
		Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+emergencyCols+` FROM emergency_request
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var emergencies []*Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, 0, err
		}
		emergencies = append(emergencies, e)
	}
	return emergencies, total, rows.Err()
}

func (r *repoPG) ListOverdue(ctx context.Context, before time.Time) ([]*Emergency, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+emergencyCols+` FROM emergency_request
		WHERE created_at + make_interval(hours => required_within_hours) < $1
			AND status NOT IN ($2, $3, $4)
		ORDER BY created_at ASC`,
		before, StatusResolved, StatusExpired, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emergencies []*Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		emergencies = append(emergencies, e)
	}
	return emergencies, rows.Err()
}

func (r *repoPG) AddResponse(ctx context.Context, resp *Response) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_response (emergency_id, donor_id, message, available_at, confirmed)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, responded_at`,
		resp.EmergencyID, resp.DonorID, resp.Message, resp.AvailableAt, resp.Confirmed).
		Scan(&resp.ID, &resp.RespondedAt)
}

func (r *repoPG) MarkResponseConfirmed(ctx context.Context, responseID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_response SET confirmed=TRUE WHERE id = $1`, responseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("response %s not found", responseID)
	}
	return nil
}

func (r *repoPG) AddConfirmedDonor(ctx context.Context, cd *ConfirmedDonor) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO confirmed_donor (emergency_id, donor_id, donation_status, units_contributed,
			expected_arrival, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, confirmed_at`,
		cd.EmergencyID, cd.DonorID, cd.DonationStatus, cd.UnitsContributed,
		cd.ExpectedArrival, cd.Notes).
		Scan(&cd.ID, &cd.ConfirmedAt)
}

func (r *repoPG) UpdateConfirmedDonorStatus(ctx context.Context, emergencyID, donorID uuid.UUID, status DonationStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE confirmed_donor SET donation_status=$3
		WHERE emergency_id = $1 AND donor_id = $2`, emergencyID, donorID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("donor %s is not confirmed for emergency %s", donorID, emergencyID)
	}
	return nil
}

func (r *repoPG) AppendEvent(ctx context.Context, ev *Event) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_event (emergency_id, event_type, actor, detail)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`,
		ev.EmergencyID, ev.EventType, ev.Actor, ev.Detail).
		Scan(&ev.ID, &ev.CreatedAt)
}

func (r *repoPG) RecordBroadcast(ctx context.Context, id uuid.UUID, donorIDs []uuid.UUID, at time.Time) error {
	for _, donorID := range donorIDs {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO broadcast_recipient (emergency_id, donor_id, notified_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (emergency_id, donor_id) DO NOTHING`,
			id, donorID, at); err != nil {
			return err
		}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE emergency_request SET broadcasted_at=$2, notified_count=$3, updated_at=NOW()
		WHERE id = $1`, id, at, len(donorIDs))
	return err
}

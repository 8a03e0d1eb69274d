package request

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// Urgency is the stored urgency class of a standard blood request.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func ParseUrgency(s string) (Urgency, error) {
	u := Urgency(s)
	if !u.Valid() {
		return "", fmt.Errorf("invalid urgency %q", s)
	}
	return u, nil
}

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Priority maps urgency to the stored priority, fixed at creation time.
func (u Urgency) Priority() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyCritical:
		return 4
	}
	return 0
}

// Status is the lifecycle state of a request. Fulfillment accounting
// advances it; it never regresses automatically.
type Status string

const (
	StatusPending            Status = "pending"
	StatusActive             Status = "active"
	StatusPartiallyFulfilled Status = "partially-fulfilled"
	StatusFulfilled          Status = "fulfilled"
	StatusExpired            Status = "expired"
	StatusCancelled          Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// DonationStatus tracks an accepted donor's progress toward donating.
type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationScheduled DonationStatus = "scheduled"
	DonationCompleted DonationStatus = "completed"
	DonationCancelled DonationStatus = "cancelled"
)

func (s DonationStatus) Valid() bool {
	switch s {
	case DonationPending, DonationScheduled, DonationCompleted, DonationCancelled:
		return true
	}
	return false
}

// Limits on the requested unit count.
const (
	MinUnits = 1
	MaxUnits = 10
)

// Request maps to the blood_request table plus its embedded response and
// accepted-donor sub-collections.
type Request struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	RequesterID      uuid.UUID      `db:"requester_id" json:"requester_id"`
	PatientName      string         `db:"patient_name" json:"patient_name"`
	PatientBloodType bloodtype.Type `db:"patient_blood_type" json:"patient_blood_type"`
	Urgency          Urgency        `db:"urgency" json:"urgency"`
	RequiredBy       time.Time      `db:"required_by" json:"required_by"`
	Purpose          *string        `db:"purpose" json:"purpose,omitempty"`
	HospitalName     string         `db:"hospital_name" json:"hospital_name"`
	HospitalCity     string         `db:"hospital_city" json:"hospital_city"`
	UnitsRequired    int            `db:"units_required" json:"units_required"`
	Status           Status         `db:"status" json:"status"`
	Priority         int            `db:"priority" json:"priority"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`

	Responses      []*Response      `json:"responses,omitempty"`
	AcceptedDonors []*AcceptedDonor `json:"accepted_donors,omitempty"`
}

// Response maps to the request_response table.
type Response struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	RequestID         uuid.UUID  `db:"request_id" json:"request_id"`
	DonorID           uuid.UUID  `db:"donor_id" json:"donor_id"`
	Message           *string    `db:"message" json:"message,omitempty"`
	AvailableAt       *time.Time `db:"available_at" json:"available_at,omitempty"`
	ContactPreference *string    `db:"contact_preference" json:"contact_preference,omitempty"`
	Accepted          bool       `db:"accepted" json:"accepted"`
	RespondedAt       time.Time  `db:"responded_at" json:"responded_at"`
}

// AcceptedDonor maps to the accepted_donor table.
type AcceptedDonor struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	RequestID      uuid.UUID      `db:"request_id" json:"request_id"`
	DonorID        uuid.UUID      `db:"donor_id" json:"donor_id"`
	DonationStatus DonationStatus `db:"donation_status" json:"donation_status"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	AcceptedAt     time.Time      `db:"accepted_at" json:"accepted_at"`
}

// UnitsFulfilled counts accepted donors whose donation completed. Request
// status is always a function of this count, never set independently.
func (r *Request) UnitsFulfilled() int {
	n := 0
	for _, ad := range r.AcceptedDonors {
		if ad.DonationStatus == DonationCompleted {
			n++
		}
	}
	return n
}

// ResponseFrom returns the donor's response, or nil.
func (r *Request) ResponseFrom(donorID uuid.UUID) *Response {
	for _, resp := range r.Responses {
		if resp.DonorID == donorID {
			return resp
		}
	}
	return nil
}

// AcceptedDonorFor returns the accepted-donor record, or nil.
func (r *Request) AcceptedDonorFor(donorID uuid.UUID) *AcceptedDonor {
	for _, ad := range r.AcceptedDonors {
		if ad.DonorID == donorID {
			return ad
		}
	}
	return nil
}

// UrgencyScore is the query-time sortable score: urgency weight times ten
// plus time pressure, so equal-urgency requests rank by deadline.
func (r *Request) UrgencyScore(now time.Time) int {
	daysRemaining := int(r.RequiredBy.Sub(now).Hours() / 24)
	pressure := 5 - daysRemaining
	if pressure < 0 {
		pressure = 0
	}
	return r.Urgency.Priority()*10 + pressure
}

package emergency

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// Severity classifies how grave the emergency is. It feeds the urgency
// level but does not change the stored priority, which is fixed at 5 for
// every emergency.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("invalid severity %q", s)
	}
	return sev, nil
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityModerate, SeveritySevere, SeverityCritical:
		return true
	}
	return false
}

func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 10
	case SeveritySevere:
		return 7
	case SeverityModerate:
		return 4
	}
	return 0
}

type Status string

const (
	StatusActive            Status = "active"
	StatusPartiallyResolved Status = "partially-resolved"
	StatusResolved          Status = "resolved"
	StatusExpired           Status = "expired"
	StatusCancelled         Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusResolved, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// DonationStatus tracks a confirmed donor's progress.
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

// Emergencies always outrank standard requests, whose priorities top out
// at 4.
const Priority = 5

const (
	MinUnits = 1
	MaxUnits = 20
)

// Emergency maps to the emergency_request table plus its embedded
// sub-collections.
type Emergency struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	RequesterID         uuid.UUID      `db:"requester_id" json:"requester_id"`
	PatientName         string         `db:"patient_name" json:"patient_name"`
	PatientBloodType    bloodtype.Type `db:"patient_blood_type" json:"patient_blood_type"`
	Severity            Severity       `db:"severity" json:"severity"`
	UnitsRequired       int            `db:"units_required" json:"units_required"`
	RequiredWithinHours int            `db:"required_within_hours" json:"required_within_hours"`
	HospitalName        string         `db:"hospital_name" json:"hospital_name"`
	HospitalCity        string         `db:"hospital_city" json:"hospital_city"`
	Description         *string        `db:"description" json:"description,omitempty"`
	Status              Status         `db:"status" json:"status"`
	Priority            int            `db:"priority" json:"priority"`
	BroadcastedAt       *time.Time     `db:"broadcasted_at" json:"broadcasted_at,omitempty"`
	NotifiedCount       int            `db:"notified_count" json:"notified_count"`
	ResolvedAt          *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy          *uuid.UUID     `db:"resolved_by" json:"resolved_by,omitempty"`
	TotalUnitsReceived  int            `db:"total_units_received" json:"total_units_received"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`

	Responses       []*Response       `json:"responses,omitempty"`
	ConfirmedDonors []*ConfirmedDonor `json:"confirmed_donors,omitempty"`
	Events          []*Event          `json:"events,omitempty"`
}

// Response maps to the emergency_response table.
type Response struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EmergencyID uuid.UUID  `db:"emergency_id" json:"emergency_id"`
	DonorID     uuid.UUID  `db:"donor_id" json:"donor_id"`
	Message     *string    `db:"message" json:"message,omitempty"`
	AvailableAt *time.Time `db:"available_at" json:"available_at,omitempty"`
	Confirmed   bool       `db:"confirmed" json:"confirmed"`
	RespondedAt time.Time  `db:"responded_at" json:"responded_at"`
}

// ConfirmedDonor maps to the confirmed_donor table. UnitsContributed is
// fixed at confirmation time and counted toward resolution only once the
// donation completes.
type ConfirmedDonor struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	EmergencyID      uuid.UUID      `db:"emergency_id" json:"emergency_id"`
	DonorID          uuid.UUID      `db:"donor_id" json:"donor_id"`
	DonationStatus   DonationStatus `db:"donation_status" json:"donation_status"`
	UnitsContributed int            `db:"units_contributed" json:"units_contributed"`
	ExpectedArrival  *time.Time     `db:"expected_arrival" json:"expected_arrival,omitempty"`
	Notes            *string        `db:"notes" json:"notes,omitempty"`
	ConfirmedAt      time.Time      `db:"confirmed_at" json:"confirmed_at"`
}

// Event is one entry of the append-only timeline, the authoritative audit
// trail of everything that happened to an emergency.
type Event struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EmergencyID uuid.UUID  `db:"emergency_id" json:"emergency_id"`
	EventType   string     `db:"event_type" json:"event_type"`
	Actor       *uuid.UUID `db:"actor" json:"actor,omitempty"`
	Detail      *string    `db:"detail" json:"detail,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Timeline event types.
const (
	EventCreated        = "created"
	EventBroadcast      = "broadcast"
	EventResponse       = "response"
	EventDonorConfirmed = "donor-confirmed"
	EventDonationStatus = "donation-status"
	EventResolved       = "resolved"
	EventCancelled      = "cancelled"
	EventExpired        = "expired"
)

// UnitsReceived sums the contributions of confirmed donors whose donation
// completed. Resolution is always computed from this value, never
// asserted directly.
func (e *Emergency) UnitsReceived() int {
	total := 0
	for _, cd := range e.ConfirmedDonors {
		if cd.DonationStatus == DonationCompleted {
			total += cd.UnitsContributed
		}
	}
	return total
}

// ResponseFrom returns the donor's response, or nil.
func (e *Emergency) ResponseFrom(donorID uuid.UUID) *Response {
	for _, resp := range e.Responses {
		if resp.DonorID == donorID {
			return resp
		}
	}
	return nil
}

// ConfirmedDonorFor returns the confirmation record, or nil.
func (e *Emergency) ConfirmedDonorFor(donorID uuid.UUID) *ConfirmedDonor {
	for _, cd := range e.ConfirmedDonors {
		if cd.DonorID == donorID {
			return cd
		}
	}
	return nil
}

// Deadline is the moment the emergency window closes.
func (e *Emergency) Deadline() time.Time {
	return e.CreatedAt.Add(time.Duration(e.RequiredWithinHours) * time.Hour)
}

// UrgencyLevel derives the 0-10 alert intensity from severity, time
// pressure, and the unit count. Capped at 10 so a large but moderate
// emergency cannot outrank a critical one.
func (e *Emergency) UrgencyLevel() int {
	pressure := 10 - e.RequiredWithinHours
	if pressure < 0 {
		pressure = 0
	}
	volume := e.UnitsRequired / 2
	if volume > 3 {
		volume = 3
	}
	level := e.Severity.Weight() + pressure + volume
	if level > 10 {
		level = 10
	}
	return level
}

package donation

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) Terminal() bool {
	return s != StatusScheduled
}

// Collected volume bounds in millilitres.
const (
	MinAmountML = 250
	MaxAmountML = 500
)

// Whole blood is held for 42 days after collection.
const ShelfLifeDays = 42

// Vitals captured at pre-donation screening.
type Vitals struct {
	HeightCM      *float64 `db:"height_cm" json:"height_cm,omitempty"`
	WeightKG      *float64 `db:"weight_kg" json:"weight_kg,omitempty"`
	BloodPressure *string  `db:"blood_pressure" json:"blood_pressure,omitempty"`
	Hemoglobin    *float64 `db:"hemoglobin" json:"hemoglobin,omitempty"`
	PulseRate     *int     `db:"pulse_rate" json:"pulse_rate,omitempty"`
}

// LabResults records post-collection screening. Nil means not yet tested.
type LabResults struct {
	HIV        *bool      `db:"lab_hiv" json:"hiv,omitempty"`
	HepatitisB *bool      `db:"lab_hepatitis_b" json:"hepatitis_b,omitempty"`
	HepatitisC *bool      `db:"lab_hepatitis_c" json:"hepatitis_c,omitempty"`
	Syphilis   *bool      `db:"lab_syphilis" json:"syphilis,omitempty"`
	Malaria    *bool      `db:"lab_malaria" json:"malaria,omitempty"`
	TestedAt   *time.Time `db:"lab_tested_at" json:"tested_at,omitempty"`
}

// Donation maps to the donation table. A donation may serve a standard
// request or an emergency, or stand alone as a walk-in.
type Donation struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	DonorID     uuid.UUID      `db:"donor_id" json:"donor_id"`
	BloodType   bloodtype.Type `db:"blood_type" json:"blood_type"`
	AmountML    int            `db:"amount_ml" json:"amount_ml"`
	ScheduledAt time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Location    *string        `db:"location" json:"location,omitempty"`
	RequestID   *uuid.UUID     `db:"request_id" json:"request_id,omitempty"`
	EmergencyID *uuid.UUID     `db:"emergency_id" json:"emergency_id,omitempty"`
	Status      Status         `db:"status" json:"status"`
	Vitals      Vitals         `json:"vitals"`
	Labs        LabResults     `json:"labs"`

	// Set exactly once when the donation completes, immutable afterwards.
	CertificateID *string    `db:"certificate_id" json:"certificate_id,omitempty"`
	BagID         *string    `db:"bag_id" json:"bag_id,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

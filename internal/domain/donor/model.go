package donor

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/pkg/bloodtype"
)

// Donor maps to the donor table.
type Donor struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Email             *string        `db:"email" json:"email,omitempty"`
	Phone             *string        `db:"phone" json:"phone,omitempty"`
	BloodType         bloodtype.Type `db:"blood_type" json:"blood_type"`
	DateOfBirth       time.Time      `db:"date_of_birth" json:"date_of_birth"`
	WeightKG          float64        `db:"weight_kg" json:"weight_kg"`
	City              string         `db:"city" json:"city"`
	LastDonationDate  *time.Time     `db:"last_donation_date" json:"last_donation_date,omitempty"`
	DonationCount     int            `db:"donation_count" json:"donation_count"`
	MedicallyEligible bool           `db:"medically_eligible" json:"medically_eligible"`
	Available         bool           `db:"available" json:"available"`
	Active            bool           `db:"active" json:"active"`
	EmergencyAlerts   bool           `db:"emergency_alerts" json:"emergency_alerts"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Contact returns the delivery address for the given channel, or "" when
// the donor has none on file.
func (d *Donor) Contact(channel string) string {
	switch channel {
	case "sms":
		if d.Phone != nil {
			return *d.Phone
		}
	default:
		if d.Email != nil {
			return *d.Email
		}
	}
	return ""
}

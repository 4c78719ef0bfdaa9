package sharing

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShareCode is a short-lived 4-digit code a patient hands to a doctor to
// grant access to their reports.
type ShareCode struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientUID string     `db:"patient_uid" json:"patient_uid"`
	Code       string     `db:"code" json:"otp"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the code can still be redeemed at t.
func (s *ShareCode) Active(t time.Time) bool {
	return s.ConsumedAt == nil && t.Before(s.ExpiresAt)
}

// DoctorLink records that a doctor has access to a patient's reports. Doctor
// details are denormalized from the doctor portal at link time.
type DoctorLink struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientUID string    `db:"patient_uid" json:"patient_uid"`
	DoctorID   string    `db:"doctor_id" json:"user_id"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	Hospital   string    `db:"hospital" json:"name_of_hospital,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// QRPayload is the JSON encoded in a doctor's QR code. The shape is fixed;
// scanners reject anything else.
type QRPayload struct {
	DoctorID       string `json:"doctor_id"`
	FullName       string `json:"full_name"`
	NameOfHospital string `json:"name_of_hospital"`
}

// SplitName breaks the QR full name into first and last name at the first
// space.
func (q *QRPayload) SplitName() (first, last string) {
	first, last, found := strings.Cut(strings.TrimSpace(q.FullName), " ")
	if !found {
		return first, ""
	}
	return first, last
}

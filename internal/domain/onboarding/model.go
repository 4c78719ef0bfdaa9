package onboarding

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Verification code purposes.
const (
	PurposeRegistration  = "registration"
	PurposePasswordReset = "password_reset"
	PurposeShare         = "share"
)

// VerificationCode is a short-lived 4-digit code sent to a phone number.
// A code is single-use: Consume marks it spent and further verifies fail.
type VerificationCode struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PhoneNumber string     `db:"phone_number" json:"phone_number"`
	Code        string     `db:"code" json:"-"`
	Purpose     string     `db:"purpose" json:"purpose"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt  *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Active reports whether the code can still be redeemed at t.
func (v *VerificationCode) Active(t time.Time) bool {
	return v.ConsumedAt == nil && t.Before(v.ExpiresAt)
}

// RegistrationDraft holds the partially collected registration form, keyed by
// the verified phone number. Fields accumulate across screens until the final
// submit creates the patient.
type RegistrationDraft struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`

	FirstName     string `db:"first_name" json:"first_name"`
	LastName      string `db:"last_name" json:"last_name"`
	DateOfBirth   string `db:"date_of_birth" json:"date_of_birth"`
	Age           int    `db:"age" json:"age"`
	Gender        string `db:"gender" json:"gender"`
	MaritalStatus string `db:"marital_status" json:"marital_status"`
	AlternateNo   string `db:"alternate_mobile_number" json:"alternate_mobile_number"`

	HouseNo  string `db:"p_house_no" json:"p_house_no"`
	Locality string `db:"p_locality" json:"p_locality"`
	City     string `db:"p_city" json:"p_city"`
	District string `db:"p_district" json:"p_district"`
	State    string `db:"p_state" json:"p_state"`
	PinCode  string `db:"p_pin_code" json:"p_pin_code"`

	CareGiverFirstName string `db:"care_giver_first_name" json:"care_giver_first_name"`
	CareGiverLastName  string `db:"care_giver_last_name" json:"care_giver_last_name"`
	CareGiverMobileNo  string `db:"care_giver_mobile_number" json:"care_giver_mobile_number"`
	CareGiverRelation  string `db:"care_giver_relation" json:"care_giver_relation"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MissingFields lists the mandatory registration fields the draft has not
// collected yet. An empty result means the draft is ready for final submit.
func (d *RegistrationDraft) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", d.FirstName},
		{"last_name", d.LastName},
		{"date_of_birth", d.DateOfBirth},
		{"gender", d.Gender},
		{"marital_status", d.MaritalStatus},
		{"p_house_no", d.HouseNo},
		{"p_locality", d.Locality},
		{"p_city", d.City},
		{"p_district", d.District},
		{"p_state", d.State},
		{"p_pin_code", d.PinCode},
	}

	var missing []string
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// ValidPhone reports whether s is an acceptable mobile number: exactly ten digits.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// DateLayout is the wire format for dates of birth.
const DateLayout = "2006-01-02"

// DeriveAge computes completed years between dob and now. The year difference
// is reduced by one when the birthday has not yet occurred this year.
func DeriveAge(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age
}

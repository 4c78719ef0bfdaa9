package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. UID is the public identifier printed on
// the patient card and used by the mobile app; the internal ID never leaves
// the service.
type Patient struct {
	ID  uuid.UUID `db:"id" json:"-"`
	UID string    `db:"uid" json:"user_id"`

	PhoneNumber   string `db:"phone_number" json:"phone_number"`
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
	Address  string `db:"address" json:"address"`

	CareGiverFirstName string `db:"care_giver_first_name" json:"care_giver_first_name"`
	CareGiverLastName  string `db:"care_giver_last_name" json:"care_giver_last_name"`
	CareGiverMobileNo  string `db:"care_giver_mobile_number" json:"care_giver_mobile_number"`
	CareGiverRelation  string `db:"care_giver_relation" json:"care_giver_relation"`
	CareGiverOrOther   string `db:"care_giver_or_other" json:"care_giver_or_other"`

	// Next-of-kin block. The wire keys keep the casing the mobile client has
	// always sent.
	KinFirstName string `db:"kin_first_name" json:"Kin_First_name"`
	KinLastName  string `db:"kin_last_name" json:"Kin_Last_name"`
	KinMobileNo  string `db:"kin_mobile_number" json:"Kin_mobile_number"`
	KinRelation  string `db:"kin_relation" json:"Kin_relationship_with_patient"`
	KinHouseNo   string `db:"kin_house_no" json:"Kin_House_no"`
	KinLocality  string `db:"kin_locality" json:"Kin_Locality"`
	KinCity      string `db:"kin_city" json:"Kin_city"`
	KinDistrict  string `db:"kin_district" json:"Kin_district"`
	KinState     string `db:"kin_state" json:"Kin_state"`
	KinPinCode   string `db:"kin_pin_code" json:"Kin_pin_code"`
	SameAddress  bool   `db:"same_address" json:"same_address"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FullName joins the patient's first and last name.
func (p *Patient) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// RegisterRequest is the merged registration payload submitted after the
// draft screens.
type RegisterRequest struct {
	Patient
	TermsAccepted bool `json:"terms_accepted"`
}

// Credential stores a patient's bcrypt password hash.
type Credential struct {
	PatientID    uuid.UUID `db:"patient_id" json:"-"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
	UpdatedAt    time.Time `db:"updated_at" json:"-"`
}

var kinRelations = map[string]bool{
	"spouse":       true,
	"son":          true,
	"daughter":     true,
	"cousin":       true,
	"brotherInLaw": true,
	"sisterInLaw":  true,
	"father":       true,
	"mother":       true,
	"brother":      true,
	"sister":       true,
	"friend":       true,
	"other":        true,
}

// ValidKinRelation reports whether r is one of the accepted next-of-kin
// relationship values.
func ValidKinRelation(r string) bool {
	return kinRelations[r]
}

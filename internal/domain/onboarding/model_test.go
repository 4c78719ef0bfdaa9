package onboarding

import (
	"testing"
	"time"
)

func TestDeriveAge(t *testing.T) {
	dob := time.Date(2001, 3, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"day before birthday", time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), 22},
		{"on birthday", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 23},
		{"day after birthday", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 23},
		{"earlier month", time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), 22},
		{"later month", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 23},
		{"same year", time.Date(2001, 6, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveAge(dob, tt.now); got != tt.want {
				t.Errorf("DeriveAge() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDeriveAge_FutureDOB(t *testing.T) {
	dob := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := DeriveAge(dob, now); got != 0 {
		t.Errorf("DeriveAge() = %d, want 0 for future date of birth", got)
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"9876543210", true},
		{"0000000000", true},
		{"987654321", false},
		{"98765432101", false},
		{"98765 4321", false},
		{"+919876543210", false},
		{"abcdefghij", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidPhone(tt.phone); got != tt.want {
			t.Errorf("ValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}

func TestVerificationCode_Active(t *testing.T) {
	now := time.Now()
	v := &VerificationCode{ExpiresAt: now.Add(5 * time.Minute)}

	if !v.Active(now) {
		t.Error("expected unexpired, unconsumed code to be active")
	}
	if v.Active(now.Add(10 * time.Minute)) {
		t.Error("expected expired code to be inactive")
	}
	consumed := now
	v.ConsumedAt = &consumed
	if v.Active(now) {
		t.Error("expected consumed code to be inactive")
	}
}

func TestRegistrationDraft_MissingFields(t *testing.T) {
	d := &RegistrationDraft{
		PhoneNumber: "9876543210",
		FirstName:   "Asha",
		LastName:    "Verma",
		DateOfBirth: "2001-03-04",
	}

	missing := d.MissingFields()
	want := map[string]bool{
		"gender": true, "marital_status": true, "p_house_no": true,
		"p_locality": true, "p_city": true, "p_district": true,
		"p_state": true, "p_pin_code": true,
	}
	if len(missing) != len(want) {
		t.Fatalf("expected %d missing fields, got %d: %v", len(want), len(missing), missing)
	}
	for _, f := range missing {
		if !want[f] {
			t.Errorf("unexpected missing field %q", f)
		}
	}

	d.Gender = "Female"
	d.MaritalStatus = "Single"
	d.HouseNo = "12"
	d.Locality = "Kankarbagh"
	d.City = "Patna"
	d.District = "Patna"
	d.State = "Bihar"
	d.PinCode = "800001"
	if got := d.MissingFields(); len(got) != 0 {
		t.Errorf("expected complete draft, still missing %v", got)
	}
}

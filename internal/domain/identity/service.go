package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/shrinkhala/shrinkhala/internal/domain/onboarding"
	"github.com/shrinkhala/shrinkhala/internal/platform/auth"
	"github.com/shrinkhala/shrinkhala/internal/platform/notification"
)

// ErrInvalidCredentials is returned when login fails. It deliberately does
// not distinguish an unknown account from a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// TxRunner runs fn atomically. Registration uses it to pair the patient
// insert with the draft cleanup; a nil runner executes fn directly.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DraftStore is the slice of the onboarding service registration needs.
type DraftStore interface {
	IsPhoneVerified(ctx context.Context, phone string) (bool, error)
	GetDraft(ctx context.Context, phone string) (*onboarding.RegistrationDraft, error)
	DiscardDraft(ctx context.Context, phone string) error
}

type Service struct {
	patients PatientRepository
	creds    CredentialRepository
	drafts   DraftStore
	txr      TxRunner
	issuer   *auth.Issuer
	revoked  *auth.TokenRevocationStore
	notifier *notification.NotificationManager
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, creds CredentialRepository, drafts DraftStore,
	txr TxRunner, issuer *auth.Issuer, revoked *auth.TokenRevocationStore,
	notifier *notification.NotificationManager, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		creds:    creds,
		drafts:   drafts,
		txr:      txr,
		issuer:   issuer,
		revoked:  revoked,
		notifier: notifier,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
}

// -- Registration --

// Register creates a patient from the merged registration payload. The phone
// number must have completed verification; any stored draft for it is
// discarded on success.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Patient, error) {
	if !req.TermsAccepted {
		return nil, fmt.Errorf("terms and conditions must be accepted")
	}
	if !onboarding.ValidPhone(req.PhoneNumber) {
		return nil, fmt.Errorf("phone_number must be exactly 10 digits")
	}
	if req.FirstName == "" || req.LastName == "" {
		return nil, fmt.Errorf("first_name and last_name are required")
	}
	if req.KinRelation != "" && !ValidKinRelation(req.KinRelation) {
		return nil, fmt.Errorf("unknown next-of-kin relationship %q", req.KinRelation)
	}

	if req.DateOfBirth != "" {
		dob, err := time.Parse(onboarding.DateLayout, req.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("date_of_birth must be in YYYY-MM-DD format")
		}
		req.Age = onboarding.DeriveAge(dob, time.Now())
	}

	if req.SameAddress {
		req.KinHouseNo = req.HouseNo
		req.KinLocality = req.Locality
		req.KinCity = req.City
		req.KinDistrict = req.District
		req.KinState = req.State
		req.KinPinCode = req.PinCode
	} else if req.KinHouseNo == "" || req.KinLocality == "" || req.KinCity == "" ||
		req.KinState == "" || req.KinPinCode == "" {
		return nil, fmt.Errorf("next-of-kin address is required unless same_address is set")
	}

	if s.drafts != nil {
		verified, err := s.drafts.IsPhoneVerified(ctx, req.PhoneNumber)
		if err != nil {
			return nil, err
		}
		if !verified {
			return nil, onboarding.ErrPhoneNotVerified
		}
	}

	if req.Address == "" {
		req.Address = fmt.Sprintf("%s %s %s %s %s", req.HouseNo, req.Locality, req.State, req.City, req.District)
	}

	// The patient insert and the draft cleanup commit or roll back together.
	p := req.Patient
	register := func(ctx context.Context) error {
		if err := s.patients.Create(ctx, &p); err != nil {
			return err
		}
		if s.drafts != nil {
			if err := s.drafts.DiscardDraft(ctx, p.PhoneNumber); err != nil {
				return fmt.Errorf("discard draft: %w", err)
			}
		}
		return nil
	}
	var err error
	if s.txr != nil {
		err = s.txr.InTx(ctx, register)
	} else {
		err = register(ctx)
	}
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		data := map[string]string{"patient_name": p.FullName(), "uid": p.UID}
		if _, err := s.notifier.SendFromTemplate(ctx, "welcome", data, p.PhoneNumber); err != nil {
			s.logger.Warn().Err(err).Str("uid", p.UID).Msg("welcome SMS failed")
		}
	}

	s.logger.Info().Str("uid", p.UID).Msg("patient registered")
	return &p, nil
}

// -- Passwords and login --

// ValidatePassword applies the password rules in order: both fields present,
// minimum length, then equality.
func ValidatePassword(password, confirm string) error {
	if password == "" || confirm == "" {
		return fmt.Errorf("both password fields are required")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	if len(password) > 64 {
		return fmt.Errorf("password must be at most 64 characters long")
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// SetPassword stores a bcrypt hash for the patient. Setting a password again
// replaces the previous one.
func (s *Service) SetPassword(ctx context.Context, uid, password, confirm string) error {
	if err := ValidatePassword(password, confirm); err != nil {
		return err
	}
	p, err := s.patients.GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.creds.Upsert(ctx, &Credential{PatientID: p.ID, PasswordHash: string(hash)})
}

// LoginResult carries the issued token alongside the patient it belongs to.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Patient   *Patient  `json:"patient"`
}

// LoginByPhone authenticates with the registered mobile number and password.
func (s *Service) LoginByPhone(ctx context.Context, phone, password string) (*LoginResult, error) {
	p, err := s.patients.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.login(ctx, p, password)
}

// LoginByUID authenticates with the public patient UID and password.
func (s *Service) LoginByUID(ctx context.Context, uid, password string) (*LoginResult, error) {
	p, err := s.patients.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.login(ctx, p, password)
}

func (s *Service) login(ctx context.Context, p *Patient, password string) (*LoginResult, error) {
	cred, err := s.creds.GetByPatientID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(p.UID, p.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info().Str("uid", p.UID).Msg("patient logged in")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Patient: p}, nil
}

// Logout revokes the presented token's JTI until its natural expiry.
func (s *Service) Logout(_ context.Context, claims *auth.Claims) {
	if s.revoked == nil || claims == nil {
		return
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	s.revoked.Revoke(claims.ID, expires)
}

// -- Profile --

func (s *Service) GetPatient(ctx context.Context, uid string) (*Patient, error) {
	return s.patients.GetByUID(ctx, uid)
}

// UpdateProfile replaces the patient's editable profile fields. The UID and
// registered phone number are immutable.
func (s *Service) UpdateProfile(ctx context.Context, uid string, updated *Patient) (*Patient, error) {
	existing, err := s.patients.GetByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if updated.FirstName == "" || updated.LastName == "" {
		return nil, fmt.Errorf("first_name and last_name are required")
	}
	if updated.KinRelation != "" && !ValidKinRelation(updated.KinRelation) {
		return nil, fmt.Errorf("unknown next-of-kin relationship %q", updated.KinRelation)
	}
	if updated.DateOfBirth != "" {
		dob, err := time.Parse(onboarding.DateLayout, updated.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("date_of_birth must be in YYYY-MM-DD format")
		}
		updated.Age = onboarding.DeriveAge(dob, time.Now())
	}

	updated.ID = existing.ID
	updated.UID = existing.UID
	updated.PhoneNumber = existing.PhoneNumber
	updated.CreatedAt = existing.CreatedAt
	if err := s.patients.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePatient removes the patient record and revokes all of their tokens.
func (s *Service) DeletePatient(ctx context.Context, uid string) error {
	if err := s.patients.Delete(ctx, uid); err != nil {
		return err
	}
	if s.revoked != nil {
		s.revoked.RevokeAllForUser(uid)
	}
	s.logger.Info().Str("uid", uid).Msg("patient deleted")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

package onboarding

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/shrinkhala/shrinkhala/internal/platform/notification"
)

// ErrCodeMismatch is returned when the submitted code does not match the
// active code for the phone number.
var ErrCodeMismatch = errors.New("verification code is invalid or has expired")

// ErrPhoneNotVerified is returned when a draft is saved for a phone number
// that never completed verification.
var ErrPhoneNotVerified = errors.New("phone number has not been verified")

type Service struct {
	codes    CodeRepository
	drafts   DraftRepository
	notifier *notification.NotificationManager
	logger   zerolog.Logger

	codeTTL time.Duration
	// devCode, when set, is issued instead of a random code. Development only.
	devCode string
}

func NewService(codes CodeRepository, drafts DraftRepository, notifier *notification.NotificationManager, logger zerolog.Logger, codeTTL time.Duration, devCode string) *Service {
	return &Service{
		codes:    codes,
		drafts:   drafts,
		notifier: notifier,
		logger:   logger.With().Str("component", "onboarding").Logger(),
		codeTTL:  codeTTL,
		devCode:  devCode,
	}
}

// -- Verification --

// StartVerification issues a fresh code for the phone number and purpose,
// expiring any code issued earlier. The code is delivered over SMS.
func (s *Service) StartVerification(ctx context.Context, phone, purpose string) (*VerificationCode, error) {
	if !ValidPhone(phone) {
		return nil, fmt.Errorf("phone_number must be exactly 10 digits")
	}
	switch purpose {
	case PurposeRegistration, PurposePasswordReset, PurposeShare:
	case "":
		purpose = PurposeRegistration
	default:
		return nil, fmt.Errorf("unknown verification purpose %q", purpose)
	}

	if err := s.codes.InvalidateActive(ctx, phone, purpose); err != nil {
		return nil, err
	}

	code := s.devCode
	if code == "" {
		var err error
		code, err = randomCode()
		if err != nil {
			return nil, fmt.Errorf("generate verification code: %w", err)
		}
	}

	v := &VerificationCode{
		PhoneNumber: phone,
		Code:        code,
		Purpose:     purpose,
		ExpiresAt:   time.Now().Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, v); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		data := map[string]string{
			"code":    code,
			"minutes": strconv.Itoa(int(s.codeTTL.Minutes())),
		}
		if _, err := s.notifier.SendFromTemplate(ctx, "verification-code", data, phone); err != nil {
			s.logger.Error().Err(err).Str("phone", phone).Msg("verification SMS failed")
		}
	}
	return v, nil
}

// VerifyCode redeems the active code for the phone number. A successful
// verify consumes the code so it cannot be replayed.
func (s *Service) VerifyCode(ctx context.Context, phone, code, purpose string) error {
	if !ValidPhone(phone) {
		return fmt.Errorf("phone_number must be exactly 10 digits")
	}
	if purpose == "" {
		purpose = PurposeRegistration
	}
	v, err := s.codes.GetActive(ctx, phone, purpose)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrCodeMismatch
		}
		return err
	}
	if v.Code != code {
		return ErrCodeMismatch
	}
	return s.codes.Consume(ctx, v)
}

// IsPhoneVerified reports whether the phone number completed registration
// verification at some point.
func (s *Service) IsPhoneVerified(ctx context.Context, phone string) (bool, error) {
	return s.codes.HasConsumed(ctx, phone, PurposeRegistration)
}

// -- Registration drafts --

// SaveDraft stores the partial registration form for a verified phone number.
// Repeated saves overwrite the stored draft.
func (s *Service) SaveDraft(ctx context.Context, d *RegistrationDraft) error {
	if !ValidPhone(d.PhoneNumber) {
		return fmt.Errorf("phone_number must be exactly 10 digits")
	}
	verified, err := s.codes.HasConsumed(ctx, d.PhoneNumber, PurposeRegistration)
	if err != nil {
		return err
	}
	if !verified {
		return ErrPhoneNotVerified
	}
	if d.DateOfBirth != "" {
		dob, err := time.Parse(DateLayout, d.DateOfBirth)
		if err != nil {
			return fmt.Errorf("date_of_birth must be in YYYY-MM-DD format")
		}
		d.Age = DeriveAge(dob, time.Now())
	}
	return s.drafts.Upsert(ctx, d)
}

func (s *Service) GetDraft(ctx context.Context, phone string) (*RegistrationDraft, error) {
	return s.drafts.GetByPhone(ctx, phone)
}

// DiscardDraft removes the stored draft once registration completes.
func (s *Service) DiscardDraft(ctx context.Context, phone string) error {
	return s.drafts.DeleteByPhone(ctx, phone)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

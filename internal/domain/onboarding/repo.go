package onboarding

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a code or draft does not exist.
var ErrNotFound = errors.New("not found")

type CodeRepository interface {
	Create(ctx context.Context, v *VerificationCode) error
	// GetActive returns the newest unconsumed, unexpired code for the phone
	// number and purpose, or ErrNotFound.
	GetActive(ctx context.Context, phone, purpose string) (*VerificationCode, error)
	Consume(ctx context.Context, v *VerificationCode) error
	// InvalidateActive expires any outstanding codes for the phone number and
	// purpose so that only the most recently issued code can be redeemed.
	InvalidateActive(ctx context.Context, phone, purpose string) error
	// HasConsumed reports whether a code for the phone number and purpose has
	// ever been successfully redeemed.
	HasConsumed(ctx context.Context, phone, purpose string) (bool, error)
}

type DraftRepository interface {
	Upsert(ctx context.Context, d *RegistrationDraft) error
	GetByPhone(ctx context.Context, phone string) (*RegistrationDraft, error)
	DeleteByPhone(ctx context.Context, phone string) error
}

package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a patient or credential does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicatePhone is returned when a patient is already registered with the
// phone number.
var ErrDuplicatePhone = errors.New("phone number is already registered")

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByUID(ctx context.Context, uid string) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, uid string) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type CredentialRepository interface {
	Upsert(ctx context.Context, c *Credential) error
	GetByPatientID(ctx context.Context, patientID uuid.UUID) (*Credential, error)
}

package sharing

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a share code or doctor link does not exist.
var ErrNotFound = errors.New("not found")

type ShareCodeRepository interface {
	Create(ctx context.Context, s *ShareCode) error
	// GetActive returns the newest unconsumed, unexpired code for the
	// patient, or ErrNotFound.
	GetActive(ctx context.Context, patientUID string) (*ShareCode, error)
	Consume(ctx context.Context, s *ShareCode) error
	// InvalidateActive expires any outstanding codes for the patient.
	InvalidateActive(ctx context.Context, patientUID string) error
}

type DoctorLinkRepository interface {
	// Upsert creates the link, or returns the existing one when the doctor
	// is already linked to the patient.
	Upsert(ctx context.Context, l *DoctorLink) error
	ListByPatient(ctx context.Context, patientUID string) ([]*DoctorLink, error)
	Delete(ctx context.Context, patientUID, doctorID string) error
}

package reports

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("not found")

type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	// ListByPatient returns the patient's reports newest first. A non-empty
	// tag narrows both the page and the total to matching reports; the
	// filter is applied before pagination.
	ListByPatient(ctx context.Context, patientUID, tag string, limit, offset int) ([]*Report, int, error)
	Update(ctx context.Context, r *Report) error
	Delete(ctx context.Context, id uuid.UUID) error
}

package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shrinkhala/shrinkhala/internal/platform/blobstore"
	"github.com/shrinkhala/shrinkhala/internal/platform/notification"
)

// ErrUnknownPatient is returned when a public patient UID does not resolve.
var ErrUnknownPatient = errors.New("unknown patient")

// PatientContact is the directory entry for a patient, used to validate
// uploads and to address notifications.
type PatientContact struct {
	UID         string
	FullName    string
	PhoneNumber string
}

// PatientDirectory resolves public patient UIDs; uploads are rejected for
// unknown patients.
type PatientDirectory interface {
	Contact(ctx context.Context, uid string) (*PatientContact, error)
}

type Service struct {
	repo     ReportRepository
	blobs    blobstore.BlobStore
	patients PatientDirectory
	notifier *notification.NotificationManager
	logger   zerolog.Logger

	maxFiles int
}

func NewService(repo ReportRepository, blobs blobstore.BlobStore, patients PatientDirectory,
	notifier *notification.NotificationManager, logger zerolog.Logger, maxFiles int) *Service {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Service{
		repo:     repo,
		blobs:    blobs,
		patients: patients,
		notifier: notifier,
		logger:   logger.With().Str("component", "reports").Logger(),
		maxFiles: maxFiles,
	}
}

// UploadFile is one file from the multipart extract request.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Upload accepts up to maxFiles report files for the patient. All files are
// validated before any is stored; a storage failure aborts the remaining
// files but already stored reports are kept, and the outcome slice records
// what happened to each file.
func (s *Service) Upload(ctx context.Context, patientUID string, files []UploadFile) ([]UploadOutcome, error) {
	if patientUID == "" {
		return nil, fmt.Errorf("user_name is required")
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("at most %d files may be uploaded at once", s.maxFiles)
	}
	if s.patients != nil {
		if _, err := s.patients.Contact(ctx, patientUID); err != nil {
			return nil, fmt.Errorf("patient %q: %w", patientUID, err)
		}
	}

	for _, f := range files {
		if err := blobstore.ValidateContentType(f.ContentType); err != nil {
			return nil, fmt.Errorf("file %q: %w", f.Name, err)
		}
		if f.Size > blobstore.MaxFileSize {
			return nil, fmt.Errorf("file %q: %w", f.Name, blobstore.ErrFileTooLarge)
		}
	}

	outcomes := make([]UploadOutcome, 0, len(files))
	aborted := false
	for _, f := range files {
		if aborted {
			outcomes = append(outcomes, UploadOutcome{
				FileName: f.Name,
				Error:    "skipped after earlier storage failure",
			})
			continue
		}

		meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
			FileName:    f.Name,
			ContentType: f.ContentType,
			Size:        f.Size,
			PatientUID:  patientUID,
			Category:    "other",
		}, f.Content)
		if err != nil {
			s.logger.Error().Err(err).Str("file", f.Name).Msg("blob upload failed")
			outcomes = append(outcomes, UploadOutcome{FileName: f.Name, Error: err.Error()})
			aborted = true
			continue
		}

		rep := &Report{
			PatientUID:         patientUID,
			Status:             StatusPending,
			UniqueFilePathName: meta.ID,
			FileName:           f.Name,
			ContentType:        f.ContentType,
			SizeBytes:          meta.Size,
		}
		if err := s.repo.Create(ctx, rep); err != nil {
			s.logger.Error().Err(err).Str("file", f.Name).Msg("report create failed")
			outcomes = append(outcomes, UploadOutcome{FileName: f.Name, Error: err.Error()})
			aborted = true
			continue
		}

		id := rep.ID
		outcomes = append(outcomes, UploadOutcome{FileName: f.Name, Accepted: true, ReportID: &id})
	}
	return outcomes, nil
}

// ListByPatient returns the patient's reports newest first, optionally
// narrowed to a dashboard filter tag.
func (s *Service) ListByPatient(ctx context.Context, patientUID, tag string, limit, offset int) ([]*Report, int, error) {
	switch tag {
	case "", TagAll, TagBlood, TagRadiology, TagPathology:
	default:
		return nil, 0, fmt.Errorf("unknown report filter %q", tag)
	}
	if tag == TagAll {
		tag = ""
	}
	return s.repo.ListByPatient(ctx, patientUID, tag, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.GetByID(ctx, id)
}

// DownloadFile streams the report's stored file.
func (s *Service) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	return s.blobs.Download(ctx, fileID)
}

// CompleteExtraction records the extraction pipeline's result and notifies
// the patient that the report is ready.
func (s *Service) CompleteExtraction(ctx context.Context, id uuid.UUID, res *ExtractionResult) (*Report, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.TestName == "" {
		return nil, fmt.Errorf("test_name is required")
	}

	now := time.Now()
	rep.TestName = res.TestName
	rep.TestType = res.TestType
	rep.TestType1 = res.TestType1
	rep.Status = StatusExtracted
	rep.ExtractedDate = &now
	if err := s.repo.Update(ctx, rep); err != nil {
		return nil, err
	}

	if s.notifier != nil && s.patients != nil {
		contact, err := s.patients.Contact(ctx, rep.PatientUID)
		if err != nil {
			s.logger.Warn().Err(err).Str("uid", rep.PatientUID).Msg("report-ready contact lookup failed")
		} else {
			data := map[string]string{"patient_name": contact.FullName, "test_name": rep.TestName}
			if _, err := s.notifier.SendFromTemplate(ctx, "report-ready", data, contact.PhoneNumber); err != nil {
				s.logger.Warn().Err(err).Stringer("report", rep.ID).Msg("report-ready notification failed")
			}
		}
	}
	return rep, nil
}

// FailExtraction marks the report's extraction as failed.
func (s *Service) FailExtraction(ctx context.Context, id uuid.UUID) (*Report, error) {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rep.Status = StatusFailed
	if err := s.repo.Update(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// Delete removes the report row and its stored file.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	rep, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, rep.UniqueFilePathName); err != nil {
		s.logger.Warn().Err(err).Stringer("report", id).Msg("blob delete failed")
	}
	return nil
}

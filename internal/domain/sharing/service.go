package sharing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/shrinkhala/shrinkhala/internal/platform/notification"
)

// ErrCodeMismatch is returned when a redeemed share code is wrong, expired
// or already used.
var ErrCodeMismatch = errors.New("share code is invalid or has expired")

// PatientInfo is the slice of a patient record sharing needs.
type PatientInfo struct {
	UID         string
	FullName    string
	PhoneNumber string
}

// PatientDirectory resolves public patient UIDs.
type PatientDirectory interface {
	Lookup(ctx context.Context, uid string) (*PatientInfo, error)
}

type Service struct {
	codes    ShareCodeRepository
	links    DoctorLinkRepository
	patients PatientDirectory
	notifier *notification.NotificationManager
	logger   zerolog.Logger

	codeTTL time.Duration
}

func NewService(codes ShareCodeRepository, links DoctorLinkRepository, patients PatientDirectory,
	notifier *notification.NotificationManager, logger zerolog.Logger, codeTTL time.Duration) *Service {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	return &Service{
		codes:    codes,
		links:    links,
		patients: patients,
		notifier: notifier,
		logger:   logger.With().Str("component", "sharing").Logger(),
		codeTTL:  codeTTL,
	}
}

// GenerateOTP issues a fresh share code for the patient, expiring any code
// issued earlier. The code is shown to the patient, who reads it out to the
// doctor.
func (s *Service) GenerateOTP(ctx context.Context, patientUID string) (*ShareCode, error) {
	if _, err := s.patients.Lookup(ctx, patientUID); err != nil {
		return nil, err
	}
	if err := s.codes.InvalidateActive(ctx, patientUID); err != nil {
		return nil, err
	}

	code, err := randomCode()
	if err != nil {
		return nil, fmt.Errorf("generate share code: %w", err)
	}
	sc := &ShareCode{
		PatientUID: patientUID,
		Code:       code,
		ExpiresAt:  time.Now().Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// RedeemRequest is submitted by the doctor portal with the code the patient
// read out.
type RedeemRequest struct {
	PatientID      string `json:"patient_id"`
	Code           string `json:"otp"`
	DoctorID       string `json:"doctor_id"`
	FullName       string `json:"full_name"`
	NameOfHospital string `json:"name_of_hospital"`
}

// Redeem consumes the patient's active share code and links the doctor. The
// patient is notified over SMS.
func (s *Service) Redeem(ctx context.Context, req *RedeemRequest) (*DoctorLink, error) {
	if req.PatientID == "" || req.DoctorID == "" {
		return nil, fmt.Errorf("patient_id and doctor_id are required")
	}

	sc, err := s.codes.GetActive(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrCodeMismatch
		}
		return nil, err
	}
	if sc.Code != req.Code {
		return nil, ErrCodeMismatch
	}
	if err := s.codes.Consume(ctx, sc); err != nil {
		return nil, err
	}

	link, err := s.link(ctx, req.PatientID, &QRPayload{
		DoctorID:       req.DoctorID,
		FullName:       req.FullName,
		NameOfHospital: req.NameOfHospital,
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		patient, err := s.patients.Lookup(ctx, req.PatientID)
		if err == nil {
			data := map[string]string{
				"code":        sc.Code,
				"doctor_name": req.FullName,
				"minutes":     fmt.Sprintf("%d", int(s.codeTTL.Minutes())),
			}
			if _, err := s.notifier.SendFromTemplate(ctx, "share-code", data, patient.PhoneNumber); err != nil {
				s.logger.Warn().Err(err).Str("patient", req.PatientID).Msg("share notification failed")
			}
		}
	}
	return link, nil
}

// LinkByQR links a doctor from a scanned QR payload. Linking the same doctor
// twice is a no-op.
func (s *Service) LinkByQR(ctx context.Context, patientUID string, qr *QRPayload) (*DoctorLink, error) {
	if qr.DoctorID == "" {
		return nil, fmt.Errorf("doctor_id is required")
	}
	if _, err := s.patients.Lookup(ctx, patientUID); err != nil {
		return nil, err
	}
	return s.link(ctx, patientUID, qr)
}

func (s *Service) link(ctx context.Context, patientUID string, qr *QRPayload) (*DoctorLink, error) {
	first, last := qr.SplitName()
	l := &DoctorLink{
		PatientUID: patientUID,
		DoctorID:   qr.DoctorID,
		FirstName:  first,
		LastName:   last,
		Hospital:   qr.NameOfHospital,
	}
	if err := s.links.Upsert(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient", patientUID).Str("doctor", qr.DoctorID).Msg("doctor linked")
	return l, nil
}

func (s *Service) ListDoctors(ctx context.Context, patientUID string) ([]*DoctorLink, error) {
	return s.links.ListByPatient(ctx, patientUID)
}

// Unlink revokes a doctor's access to the patient's reports.
func (s *Service) Unlink(ctx context.Context, patientUID, doctorID string) error {
	return s.links.Delete(ctx, patientUID, doctorID)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

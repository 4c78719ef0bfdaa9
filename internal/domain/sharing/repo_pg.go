package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shrinkhala/shrinkhala/internal/platform/db"
)

// -- Share Code Repository --

type shareCodeRepoPG struct {
	pool *pgxpool.Pool
}

func NewShareCodeRepo(pool *pgxpool.Pool) ShareCodeRepository {
	return &shareCodeRepoPG{pool: pool}
}

func (r *shareCodeRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *shareCodeRepoPG) Create(ctx context.Context, s *ShareCode) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO share_code (id, patient_uid, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.PatientUID, s.Code, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("share code create: %w", err)
	}
	return nil
}

func (r *shareCodeRepoPG) GetActive(ctx context.Context, patientUID string) (*ShareCode, error) {
	var s ShareCode
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_uid, code, expires_at, consumed_at, created_at
		FROM share_code
		WHERE patient_uid = $1 AND consumed_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC LIMIT 1`, patientUID).
		Scan(&s.ID, &s.PatientUID, &s.Code, &s.ExpiresAt, &s.ConsumedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("share code get: %w", err)
	}
	return &s, nil
}

func (r *shareCodeRepoPG) Consume(ctx context.Context, s *ShareCode) error {
	now := time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE share_code SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`, s.ID, now)
	if err != nil {
		return fmt.Errorf("share code consume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.ConsumedAt = &now
	return nil
}

func (r *shareCodeRepoPG) InvalidateActive(ctx context.Context, patientUID string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE share_code SET expires_at = NOW()
		WHERE patient_uid = $1 AND consumed_at IS NULL AND expires_at > NOW()`, patientUID)
	if err != nil {
		return fmt.Errorf("share code invalidate: %w", err)
	}
	return nil
}

// -- Doctor Link Repository --

type doctorLinkRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorLinkRepo(pool *pgxpool.Pool) DoctorLinkRepository {
	return &doctorLinkRepoPG{pool: pool}
}

func (r *doctorLinkRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *doctorLinkRepoPG) Upsert(ctx context.Context, l *DoctorLink) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	// Re-linking the same doctor keeps the original row.
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_link (id, patient_uid, doctor_id, first_name, last_name, hospital, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (patient_uid, doctor_id) DO UPDATE SET doctor_id = EXCLUDED.doctor_id
		RETURNING id, first_name, last_name, hospital, created_at`,
		l.ID, l.PatientUID, l.DoctorID, l.FirstName, l.LastName, l.Hospital, l.CreatedAt).
		Scan(&l.ID, &l.FirstName, &l.LastName, &l.Hospital, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("doctor link upsert: %w", err)
	}
	return nil
}

func (r *doctorLinkRepoPG) ListByPatient(ctx context.Context, patientUID string) ([]*DoctorLink, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_uid, doctor_id, first_name, last_name, hospital, created_at
		FROM doctor_link WHERE patient_uid = $1
		ORDER BY created_at DESC`, patientUID)
	if err != nil {
		return nil, fmt.Errorf("doctor link list: %w", err)
	}
	defer rows.Close()

	var links []*DoctorLink
	for rows.Next() {
		var l DoctorLink
		if err := rows.Scan(&l.ID, &l.PatientUID, &l.DoctorID, &l.FirstName, &l.LastName, &l.Hospital, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("doctor link scan: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

func (r *doctorLinkRepoPG) Delete(ctx context.Context, patientUID, doctorID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM doctor_link WHERE patient_uid = $1 AND doctor_id = $2`,
		patientUID, doctorID)
	if err != nil {
		return fmt.Errorf("doctor link delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

package onboarding

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

// -- Verification Code Repository --

type codeRepoPG struct {
	pool *pgxpool.Pool
}

func NewCodeRepo(pool *pgxpool.Pool) CodeRepository {
	return &codeRepoPG{pool: pool}
}

func (r *codeRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const codeCols = `id, phone_number, code, purpose, expires_at, consumed_at, created_at`

func (r *codeRepoPG) Create(ctx context.Context, v *VerificationCode) error {
	v.ID = uuid.New()
	v.CreatedAt = time.Now()

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO verification_code (id, phone_number, code, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.PhoneNumber, v.Code, v.Purpose, v.ExpiresAt, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("verification code create: %w", err)
	}
	return nil
}

func (r *codeRepoPG) GetActive(ctx context.Context, phone, purpose string) (*VerificationCode, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+codeCols+` FROM verification_code
		WHERE phone_number = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
		ORDER BY created_at DESC LIMIT 1`,
		phone, purpose)

	v, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification code get: %w", err)
	}
	return v, nil
}

func (r *codeRepoPG) Consume(ctx context.Context, v *VerificationCode) error {
	now := time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE verification_code SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`,
		v.ID, now)
	if err != nil {
		return fmt.Errorf("verification code consume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	v.ConsumedAt = &now
	return nil
}

func (r *codeRepoPG) InvalidateActive(ctx context.Context, phone, purpose string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE verification_code SET expires_at = NOW()
		WHERE phone_number = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()`,
		phone, purpose)
	if err != nil {
		return fmt.Errorf("verification code invalidate: %w", err)
	}
	return nil
}

func (r *codeRepoPG) HasConsumed(ctx context.Context, phone, purpose string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM verification_code
			WHERE phone_number = $1 AND purpose = $2 AND consumed_at IS NOT NULL
		)`,
		phone, purpose).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("verification code has consumed: %w", err)
	}
	return exists, nil
}

func scanCode(row pgx.Row) (*VerificationCode, error) {
	var v VerificationCode
	err := row.Scan(&v.ID, &v.PhoneNumber, &v.Code, &v.Purpose, &v.ExpiresAt, &v.ConsumedAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// -- Registration Draft Repository --

type draftRepoPG struct {
	pool *pgxpool.Pool
}

func NewDraftRepo(pool *pgxpool.Pool) DraftRepository {
	return &draftRepoPG{pool: pool}
}

func (r *draftRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const draftCols = `id, phone_number, first_name, last_name, date_of_birth, age, gender, marital_status,
	alternate_mobile_number, p_house_no, p_locality, p_city, p_district, p_state, p_pin_code,
	care_giver_first_name, care_giver_last_name, care_giver_mobile_number, care_giver_relation,
	created_at, updated_at`

func (r *draftRepoPG) Upsert(ctx context.Context, d *RegistrationDraft) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.UpdatedAt = now
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO registration_draft (
			id, phone_number, first_name, last_name, date_of_birth, age, gender, marital_status,
			alternate_mobile_number, p_house_no, p_locality, p_city, p_district, p_state, p_pin_code,
			care_giver_first_name, care_giver_last_name, care_giver_mobile_number, care_giver_relation,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
		ON CONFLICT (phone_number) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			date_of_birth = EXCLUDED.date_of_birth,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			marital_status = EXCLUDED.marital_status,
			alternate_mobile_number = EXCLUDED.alternate_mobile_number,
			p_house_no = EXCLUDED.p_house_no,
			p_locality = EXCLUDED.p_locality,
			p_city = EXCLUDED.p_city,
			p_district = EXCLUDED.p_district,
			p_state = EXCLUDED.p_state,
			p_pin_code = EXCLUDED.p_pin_code,
			care_giver_first_name = EXCLUDED.care_giver_first_name,
			care_giver_last_name = EXCLUDED.care_giver_last_name,
			care_giver_mobile_number = EXCLUDED.care_giver_mobile_number,
			care_giver_relation = EXCLUDED.care_giver_relation,
			updated_at = EXCLUDED.updated_at`,
		d.ID, d.PhoneNumber, d.FirstName, d.LastName, d.DateOfBirth, d.Age, d.Gender, d.MaritalStatus,
		d.AlternateNo, d.HouseNo, d.Locality, d.City, d.District, d.State, d.PinCode,
		d.CareGiverFirstName, d.CareGiverLastName, d.CareGiverMobileNo, d.CareGiverRelation,
		now)
	if err != nil {
		return fmt.Errorf("registration draft upsert: %w", err)
	}
	return nil
}

func (r *draftRepoPG) GetByPhone(ctx context.Context, phone string) (*RegistrationDraft, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+draftCols+` FROM registration_draft WHERE phone_number = $1`, phone)

	var d RegistrationDraft
	err := row.Scan(&d.ID, &d.PhoneNumber, &d.FirstName, &d.LastName, &d.DateOfBirth, &d.Age,
		&d.Gender, &d.MaritalStatus, &d.AlternateNo, &d.HouseNo, &d.Locality, &d.City,
		&d.District, &d.State, &d.PinCode,
		&d.CareGiverFirstName, &d.CareGiverLastName, &d.CareGiverMobileNo, &d.CareGiverRelation,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registration draft get: %w", err)
	}
	return &d, nil
}

func (r *draftRepoPG) DeleteByPhone(ctx context.Context, phone string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM registration_draft WHERE phone_number = $1`, phone)
	if err != nil {
		return fmt.Errorf("registration draft delete: %w", err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

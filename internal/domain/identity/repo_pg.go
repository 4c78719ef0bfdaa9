package identity

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

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, uid, phone_number, first_name, last_name, date_of_birth, age, gender, marital_status,
	alternate_mobile_number, p_house_no, p_locality, p_city, p_district, p_state, p_pin_code, address,
	care_giver_first_name, care_giver_last_name, care_giver_mobile_number, care_giver_relation, care_giver_or_other,
	kin_first_name, kin_last_name, kin_mobile_number, kin_relation,
	kin_house_no, kin_locality, kin_city, kin_district, kin_state, kin_pin_code, same_address,
	created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.UID == "" {
		p.UID = uuid.New().String()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (
			id, uid, phone_number, first_name, last_name, date_of_birth, age, gender, marital_status,
			alternate_mobile_number, p_house_no, p_locality, p_city, p_district, p_state, p_pin_code, address,
			care_giver_first_name, care_giver_last_name, care_giver_mobile_number, care_giver_relation, care_giver_or_other,
			kin_first_name, kin_last_name, kin_mobile_number, kin_relation,
			kin_house_no, kin_locality, kin_city, kin_district, kin_state, kin_pin_code, same_address,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35)`,
		p.ID, p.UID, p.PhoneNumber, p.FirstName, p.LastName, p.DateOfBirth, p.Age, p.Gender, p.MaritalStatus,
		p.AlternateNo, p.HouseNo, p.Locality, p.City, p.District, p.State, p.PinCode, p.Address,
		p.CareGiverFirstName, p.CareGiverLastName, p.CareGiverMobileNo, p.CareGiverRelation, p.CareGiverOrOther,
		p.KinFirstName, p.KinLastName, p.KinMobileNo, p.KinRelation,
		p.KinHouseNo, p.KinLocality, p.KinCity, p.KinDistrict, p.KinState, p.KinPinCode, p.SameAddress,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByUID(ctx context.Context, uid string) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE uid = $1`, uid)
	return scanPatient(row)
}

func (r *patientRepoPG) GetByPhone(ctx context.Context, phone string) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE phone_number = $1`, phone)
	return scanPatient(row)
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			first_name = $2, last_name = $3, date_of_birth = $4, age = $5, gender = $6, marital_status = $7,
			alternate_mobile_number = $8, p_house_no = $9, p_locality = $10, p_city = $11, p_district = $12,
			p_state = $13, p_pin_code = $14, address = $15,
			care_giver_first_name = $16, care_giver_last_name = $17, care_giver_mobile_number = $18,
			care_giver_relation = $19, care_giver_or_other = $20,
			kin_first_name = $21, kin_last_name = $22, kin_mobile_number = $23, kin_relation = $24,
			kin_house_no = $25, kin_locality = $26, kin_city = $27, kin_district = $28,
			kin_state = $29, kin_pin_code = $30, same_address = $31,
			updated_at = $32
		WHERE uid = $1`,
		p.UID, p.FirstName, p.LastName, p.DateOfBirth, p.Age, p.Gender, p.MaritalStatus,
		p.AlternateNo, p.HouseNo, p.Locality, p.City, p.District, p.State, p.PinCode, p.Address,
		p.CareGiverFirstName, p.CareGiverLastName, p.CareGiverMobileNo, p.CareGiverRelation, p.CareGiverOrOther,
		p.KinFirstName, p.KinLastName, p.KinMobileNo, p.KinRelation,
		p.KinHouseNo, p.KinLocality, p.KinCity, p.KinDistrict, p.KinState, p.KinPinCode, p.SameAddress,
		p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("patient update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, uid string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UID, &p.PhoneNumber, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Age,
		&p.Gender, &p.MaritalStatus, &p.AlternateNo,
		&p.HouseNo, &p.Locality, &p.City, &p.District, &p.State, &p.PinCode, &p.Address,
		&p.CareGiverFirstName, &p.CareGiverLastName, &p.CareGiverMobileNo, &p.CareGiverRelation, &p.CareGiverOrOther,
		&p.KinFirstName, &p.KinLastName, &p.KinMobileNo, &p.KinRelation,
		&p.KinHouseNo, &p.KinLocality, &p.KinCity, &p.KinDistrict, &p.KinState, &p.KinPinCode, &p.SameAddress,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("patient scan: %w", err)
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// -- Credential Repository --

type credentialRepoPG struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepoPG{pool: pool}
}

func (r *credentialRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *credentialRepoPG) Upsert(ctx context.Context, c *Credential) error {
	now := time.Now()
	c.UpdatedAt = now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO credential (patient_id, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (patient_id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at`,
		c.PatientID, c.PasswordHash, now)
	if err != nil {
		return fmt.Errorf("credential upsert: %w", err)
	}
	return nil
}

func (r *credentialRepoPG) GetByPatientID(ctx context.Context, patientID uuid.UUID) (*Credential, error) {
	var c Credential
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, password_hash, created_at, updated_at
		FROM credential WHERE patient_id = $1`, patientID).
		Scan(&c.PatientID, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("credential get: %w", err)
	}
	return &c, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

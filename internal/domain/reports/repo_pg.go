package reports

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

type reportRepoPG struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reportCols = `id, patient_uid, test_name, test_type, test_type_1, status,
	unique_file_path_name, file_name, content_type, size_bytes,
	extracted_date, created_at, updated_at`

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	now := time.Now()
	rep.CreatedAt = now
	rep.UpdatedAt = now

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO report (
			id, patient_uid, test_name, test_type, test_type_1, status,
			unique_file_path_name, file_name, content_type, size_bytes,
			extracted_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rep.ID, rep.PatientUID, rep.TestName, rep.TestType, rep.TestType1, rep.Status,
		rep.UniqueFilePathName, rep.FileName, rep.ContentType, rep.SizeBytes,
		rep.ExtractedDate, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("report create: %w", err)
	}
	return nil
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+reportCols+` FROM report WHERE id = $1`, id)
	return scanReport(row)
}

// tagPredicate mirrors Report.MatchesTag: an empty tag matches everything
// and the Blood test tab also matches the secondary "B" type marker.
const tagPredicate = `($2 = '' OR test_type = $2 OR ($2 = 'Blood test' AND test_type_1 = 'B'))`

func (r *reportRepoPG) ListByPatient(ctx context.Context, patientUID, tag string, limit, offset int) ([]*Report, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM report WHERE patient_uid = $1 AND `+tagPredicate,
		patientUID, tag).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("report count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reportCols+` FROM report
		WHERE patient_uid = $1 AND `+tagPredicate+`
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		patientUID, tag, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("report list: %w", err)
	}
	defer rows.Close()

	var result []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rep)
	}
	return result, total, rows.Err()
}

func (r *reportRepoPG) Update(ctx context.Context, rep *Report) error {
	rep.UpdatedAt = time.Now()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE report SET
			test_name = $2, test_type = $3, test_type_1 = $4, status = $5,
			extracted_date = $6, updated_at = $7
		WHERE id = $1`,
		rep.ID, rep.TestName, rep.TestType, rep.TestType1, rep.Status,
		rep.ExtractedDate, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("report update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *reportRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM report WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("report delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ID, &rep.PatientUID, &rep.TestName, &rep.TestType, &rep.TestType1, &rep.Status,
		&rep.UniqueFilePathName, &rep.FileName, &rep.ContentType, &rep.SizeBytes,
		&rep.ExtractedDate, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("report scan: %w", err)
	}
	return &rep, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

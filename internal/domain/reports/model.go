package reports

import (
	"time"

	"github.com/google/uuid"
)

// Report statuses. A report starts pending when its file is accepted and
// moves to extracted or failed once the extraction pipeline finishes.
const (
	StatusPending   = "pending"
	StatusExtracted = "extracted"
	StatusFailed    = "failed"
)

// Filter tags shown on the dashboard.
const (
	TagAll       = "All"
	TagBlood     = "Blood test"
	TagRadiology = "Radiology"
	TagPathology = "Pathology"
)

// Report is one uploaded medical report file and its extraction result.
type Report struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientUID string    `db:"patient_uid" json:"patient_uid"`

	TestName  string `db:"test_name" json:"test_name"`
	TestType  string `db:"test_type" json:"test_type"`
	TestType1 string `db:"test_type_1" json:"test_type_1,omitempty"`
	Status    string `db:"status" json:"status"`

	// UniqueFilePathName is the blob identifier the mobile client uses to
	// view or download the file.
	UniqueFilePathName string `db:"unique_file_path_name" json:"unique_file_path_name"`
	FileName           string `db:"file_name" json:"file_name"`
	ContentType        string `db:"content_type" json:"content_type"`
	SizeBytes          int64  `db:"size_bytes" json:"size_bytes"`

	ExtractedDate *time.Time `db:"extracted_date" json:"extracted_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// MatchesTag reports whether the report belongs under the given dashboard
// filter. The Blood test tab additionally matches reports whose secondary
// type marker is "B".
func (r *Report) MatchesTag(tag string) bool {
	if tag == "" || tag == TagAll {
		return true
	}
	if r.TestType == tag {
		return true
	}
	return tag == TagBlood && r.TestType1 == "B"
}

// ExtractionResult carries the fields the extraction pipeline fills in.
type ExtractionResult struct {
	TestName  string `json:"test_name"`
	TestType  string `json:"test_type"`
	TestType1 string `json:"test_type_1,omitempty"`
}

// UploadOutcome is the per-file result of a multi-file upload.
type UploadOutcome struct {
	FileName string     `json:"file_name"`
	Accepted bool       `json:"accepted"`
	ReportID *uuid.UUID `json:"report_id,omitempty"`
	Error    string     `json:"error,omitempty"`
}

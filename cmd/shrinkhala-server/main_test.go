package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/shrinkhala/shrinkhala/internal/domain/identity"
	"github.com/shrinkhala/shrinkhala/internal/domain/onboarding"
	"github.com/shrinkhala/shrinkhala/internal/domain/reports"
	"github.com/shrinkhala/shrinkhala/internal/domain/sharing"
	"github.com/shrinkhala/shrinkhala/internal/platform/auth"
	"github.com/shrinkhala/shrinkhala/internal/platform/blobstore"
	"github.com/shrinkhala/shrinkhala/internal/platform/middleware"
	"github.com/shrinkhala/shrinkhala/internal/platform/notification"
)

// In-memory repositories backing the full journey test. They mirror the
// Postgres implementations closely enough for handler-level flows.

type memCodeRepo struct {
	codes []*onboarding.VerificationCode
}

func (m *memCodeRepo) Create(_ context.Context, v *onboarding.VerificationCode) error {
	v.ID = uuid.New()
	v.CreatedAt = time.Now()
	m.codes = append(m.codes, v)
	return nil
}

func (m *memCodeRepo) GetActive(_ context.Context, phone, purpose string) (*onboarding.VerificationCode, error) {
	now := time.Now()
	for i := len(m.codes) - 1; i >= 0; i-- {
		v := m.codes[i]
		if v.PhoneNumber == phone && v.Purpose == purpose && v.Active(now) {
			return v, nil
		}
	}
	return nil, onboarding.ErrNotFound
}

func (m *memCodeRepo) Consume(_ context.Context, v *onboarding.VerificationCode) error {
	now := time.Now()
	for _, c := range m.codes {
		if c.ID == v.ID && c.ConsumedAt == nil {
			c.ConsumedAt = &now
			v.ConsumedAt = &now
			return nil
		}
	}
	return onboarding.ErrNotFound
}

func (m *memCodeRepo) InvalidateActive(_ context.Context, phone, purpose string) error {
	now := time.Now()
	for _, c := range m.codes {
		if c.PhoneNumber == phone && c.Purpose == purpose && c.Active(now) {
			c.ExpiresAt = now
		}
	}
	return nil
}

func (m *memCodeRepo) HasConsumed(_ context.Context, phone, purpose string) (bool, error) {
	for _, c := range m.codes {
		if c.PhoneNumber == phone && c.Purpose == purpose && c.ConsumedAt != nil {
			return true, nil
		}
	}
	return false, nil
}

type memDraftRepo struct {
	drafts map[string]*onboarding.RegistrationDraft
}

func (m *memDraftRepo) Upsert(_ context.Context, d *onboarding.RegistrationDraft) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
		d.CreatedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	m.drafts[d.PhoneNumber] = d
	return nil
}

func (m *memDraftRepo) GetByPhone(_ context.Context, phone string) (*onboarding.RegistrationDraft, error) {
	d, ok := m.drafts[phone]
	if !ok {
		return nil, onboarding.ErrNotFound
	}
	return d, nil
}

func (m *memDraftRepo) DeleteByPhone(_ context.Context, phone string) error {
	delete(m.drafts, phone)
	return nil
}

type memPatientRepo struct{ patients map[string]*identity.Patient }

func (m *memPatientRepo) Create(_ context.Context, p *identity.Patient) error {
	for _, existing := range m.patients {
		if existing.PhoneNumber == p.PhoneNumber {
			return identity.ErrDuplicatePhone
		}
	}
	p.ID = uuid.New()
	if p.UID == "" {
		p.UID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.UID] = p
	return nil
}

func (m *memPatientRepo) GetByUID(_ context.Context, uid string) (*identity.Patient, error) {
	p, ok := m.patients[uid]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

func (m *memPatientRepo) GetByPhone(_ context.Context, phone string) (*identity.Patient, error) {
	for _, p := range m.patients {
		if p.PhoneNumber == phone {
			return p, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *memPatientRepo) Update(_ context.Context, p *identity.Patient) error {
	if _, ok := m.patients[p.UID]; !ok {
		return identity.ErrNotFound
	}
	m.patients[p.UID] = p
	return nil
}

func (m *memPatientRepo) Delete(_ context.Context, uid string) error {
	if _, ok := m.patients[uid]; !ok {
		return identity.ErrNotFound
	}
	delete(m.patients, uid)
	return nil
}

func (m *memPatientRepo) List(_ context.Context, limit, offset int) ([]*identity.Patient, int, error) {
	var result []*identity.Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

type memCredRepo struct {
	creds map[uuid.UUID]*identity.Credential
}

func (m *memCredRepo) Upsert(_ context.Context, c *identity.Credential) error {
	c.UpdatedAt = time.Now()
	m.creds[c.PatientID] = c
	return nil
}

func (m *memCredRepo) GetByPatientID(_ context.Context, id uuid.UUID) (*identity.Credential, error) {
	c, ok := m.creds[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return c, nil
}

type memReportRepo struct {
	reports map[uuid.UUID]*reports.Report
	seq     int
}

func (m *memReportRepo) Create(_ context.Context, r *reports.Report) error {
	r.ID = uuid.New()
	m.seq++
	r.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	r.UpdatedAt = r.CreatedAt
	m.reports[r.ID] = r
	return nil
}

func (m *memReportRepo) GetByID(_ context.Context, id uuid.UUID) (*reports.Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, reports.ErrNotFound
	}
	return r, nil
}

func (m *memReportRepo) ListByPatient(_ context.Context, patientUID, tag string, limit, offset int) ([]*reports.Report, int, error) {
	var matching []*reports.Report
	for _, r := range m.reports {
		if r.PatientUID == patientUID && r.MatchesTag(tag) {
			matching = append(matching, r)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].CreatedAt.After(matching[j].CreatedAt)
	})
	total := len(matching)
	if offset >= total {
		return nil, total, nil
	}
	matching = matching[offset:]
	if limit < len(matching) {
		matching = matching[:limit]
	}
	return matching, total, nil
}

func (m *memReportRepo) Update(_ context.Context, r *reports.Report) error {
	if _, ok := m.reports[r.ID]; !ok {
		return reports.ErrNotFound
	}
	m.reports[r.ID] = r
	return nil
}

func (m *memReportRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.reports[id]; !ok {
		return reports.ErrNotFound
	}
	delete(m.reports, id)
	return nil
}

type memShareCodeRepo struct{ codes []*sharing.ShareCode }

func (m *memShareCodeRepo) Create(_ context.Context, s *sharing.ShareCode) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.codes = append(m.codes, s)
	return nil
}

func (m *memShareCodeRepo) GetActive(_ context.Context, patientUID string) (*sharing.ShareCode, error) {
	now := time.Now()
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].PatientUID == patientUID && m.codes[i].Active(now) {
			return m.codes[i], nil
		}
	}
	return nil, sharing.ErrNotFound
}

func (m *memShareCodeRepo) Consume(_ context.Context, s *sharing.ShareCode) error {
	now := time.Now()
	for _, c := range m.codes {
		if c.ID == s.ID && c.ConsumedAt == nil {
			c.ConsumedAt = &now
			s.ConsumedAt = &now
			return nil
		}
	}
	return sharing.ErrNotFound
}

func (m *memShareCodeRepo) InvalidateActive(_ context.Context, patientUID string) error {
	now := time.Now()
	for _, c := range m.codes {
		if c.PatientUID == patientUID && c.Active(now) {
			c.ExpiresAt = now
		}
	}
	return nil
}

type memDoctorLinkRepo struct{ links []*sharing.DoctorLink }

func (m *memDoctorLinkRepo) Upsert(_ context.Context, l *sharing.DoctorLink) error {
	for _, existing := range m.links {
		if existing.PatientUID == l.PatientUID && existing.DoctorID == l.DoctorID {
			*l = *existing
			return nil
		}
	}
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.links = append(m.links, l)
	return nil
}

func (m *memDoctorLinkRepo) ListByPatient(_ context.Context, patientUID string) ([]*sharing.DoctorLink, error) {
	var result []*sharing.DoctorLink
	for _, l := range m.links {
		if l.PatientUID == patientUID {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *memDoctorLinkRepo) Delete(_ context.Context, patientUID, doctorID string) error {
	for i, l := range m.links {
		if l.PatientUID == patientUID && l.DoctorID == doctorID {
			m.links = append(m.links[:i], m.links[i+1:]...)
			return nil
		}
	}
	return sharing.ErrNotFound
}

// newTestServer assembles the API exactly as runServer does, minus Postgres
// and the operational middleware that would only add noise here.
func newTestServer(t *testing.T) (*echo.Echo, func()) {
	t.Helper()
	logger := zerolog.Nop()

	notifier := notification.NewNotificationManager(
		&notification.MockEmailSender{},
		&notification.MockSMSSender{},
		notification.NewTemplateEngine(),
	)
	issuer := auth.NewIssuer([]byte("test-signing-key"), "shrinkhala", "shrinkhala-app", time.Hour)
	revoked := auth.NewTokenRevocationStore()
	blobs := blobstore.NewInMemoryBlobStore()

	e := echo.New()
	e.Use(auth.TokenMiddleware(issuer, revoked))
	apiV1 := e.Group("/api/v1")

	onboardingSvc := onboarding.NewService(&memCodeRepo{},
		&memDraftRepo{drafts: make(map[string]*onboarding.RegistrationDraft)},
		notifier, logger, 5*time.Minute, "7044")
	onboarding.NewHandler(onboardingSvc).RegisterRoutes(apiV1)

	identitySvc := identity.NewService(
		&memPatientRepo{patients: make(map[string]*identity.Patient)},
		&memCredRepo{creds: make(map[uuid.UUID]*identity.Credential)},
		onboardingSvc, nil, issuer, revoked, notifier, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	patientDir := &patientDirAdapter{svc: identitySvc}

	reportsSvc := reports.NewService(&memReportRepo{reports: make(map[uuid.UUID]*reports.Report)},
		blobs, patientDir, notifier, logger, 5)
	reports.NewHandler(reportsSvc).RegisterRoutes(apiV1)

	sharingSvc := sharing.NewService(&memShareCodeRepo{}, &memDoctorLinkRepo{},
		patientDir, notifier, logger, 10*time.Minute)
	sharing.NewHandler(sharingSvc).RegisterRoutes(apiV1)

	return e, revoked.Close
}

func doJSON(t *testing.T, e *echo.Echo, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

// TestPatientJourney drives the whole onboarding-to-sharing flow through the
// HTTP surface: verify phone, accumulate a draft, register, set a password,
// sign in, upload a report, list it, and share it with a doctor.
func TestPatientJourney(t *testing.T) {
	e, cleanup := newTestServer(t)
	defer cleanup()
	const phone = "9876543210"

	// Phone verification with the fixed development code.
	rec := doJSON(t, e, http.MethodPost, "/api/v1/verification/start", "", map[string]any{
		"phone_number": phone,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start verification: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "7044") {
		t.Fatal("verification response must not expose the code")
	}

	rec = doJSON(t, e, http.MethodPost, "/api/v1/verification/verify", "", map[string]any{
		"phone_number": phone, "code": "7044",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Partial draft, then completeness report.
	rec = doJSON(t, e, http.MethodPut, "/api/v1/registration/draft", "", map[string]any{
		"phone_number": phone, "first_name": "Asha", "last_name": "Verma",
		"date_of_birth": "2001-03-04",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save draft: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/api/v1/registration/draft/"+phone, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get draft: expected 200, got %d", rec.Code)
	}
	draft := decode(t, rec)
	if draft["age"] == float64(0) {
		t.Error("expected derived age on the draft")
	}
	if missing, ok := draft["missing_fields"].([]any); !ok || len(missing) == 0 {
		t.Error("expected partial draft to report missing fields")
	}

	// Registration completes with the kin block on the same address.
	rec = doJSON(t, e, http.MethodPost, "/api/v1/patients", "", map[string]any{
		"phone_number": phone, "first_name": "Asha", "last_name": "Verma",
		"date_of_birth": "2001-03-04", "gender": "female",
		"p_house_no": "12A", "p_locality": "Boring Road", "p_city": "Patna",
		"p_district": "Patna", "p_state": "Bihar", "p_pin_code": "800001",
		"Kin_First_name": "Ravi", "Kin_Last_name": "Verma",
		"Kin_mobile_number": "9123456780", "Kin_relationship_with_patient": "brother",
		"same_address": true, "terms_accepted": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	uid, _ := decode(t, rec)["user_id"].(string)
	if uid == "" {
		t.Fatal("expected user_id in registration response")
	}

	// The draft is discarded once registration lands.
	rec = doJSON(t, e, http.MethodGet, "/api/v1/registration/draft/"+phone, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected draft gone after registration, got %d", rec.Code)
	}

	// Password, then sign in by phone.
	rec = doJSON(t, e, http.MethodPost, "/api/v1/patients/password", "", map[string]any{
		"user_id": uid, "phone_number": phone,
		"password": "sup3rsecret", "confirm_password": "sup3rsecret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set password: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/api/v1/patients/signin_phone", "", map[string]any{
		"phone_number": phone, "password": "sup3rsecret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign in: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decode(t, rec)
	token, _ := login["token"].(string)
	if token == "" {
		t.Fatal("expected session token from sign in")
	}
	if login["user_id"] != uid {
		t.Errorf("expected user_id %q from sign in, got %v", uid, login["user_id"])
	}

	// The dashboard needs the session token.
	rec = doJSON(t, e, http.MethodGet, "/api/v1/reports/"+uid, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	// Upload a report.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("user_name", uid)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="blood.pdf"`)
	hdr.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create multipart part: %v", err)
	}
	fmt.Fprint(part, "%PDF-1.4 report body")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/extract", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	up := httptest.NewRecorder()
	e.ServeHTTP(up, req)
	if up.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", up.Code, up.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/api/v1/reports/"+uid, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list reports: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	listing := decode(t, rec)
	data, _ := listing["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected 1 report, got %d", len(data))
	}
	report, _ := data[0].(map[string]any)
	if report["status"] != "pending" {
		t.Errorf("expected freshly uploaded report pending, got %v", report["status"])
	}

	// Share with a doctor via OTP.
	rec = doJSON(t, e, http.MethodPost, "/api/v1/patients/"+uid+"/share/otp", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("share otp: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	otp, _ := decode(t, rec)["otp"].(string)
	if len(otp) != 4 {
		t.Fatalf("expected 4-digit share otp, got %q", otp)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/v1/share/redeem", "", map[string]any{
		"patient_id": uid, "otp": otp, "doctor_id": "doc-77",
		"full_name": "Meera Nair", "name_of_hospital": "City Care",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/api/v1/patients/"+uid+"/doctors", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list doctors: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var doctors []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doctors); err != nil {
		t.Fatalf("decode doctors: %v", err)
	}
	if len(doctors) != 1 || doctors[0]["user_id"] != "doc-77" {
		t.Fatalf("expected doctor doc-77 linked, got %v", doctors)
	}
}

// TestWrongOTPBlocksRegistration covers the unhappy path before any account
// exists: a wrong code never verifies the phone and the draft stays locked.
func TestWrongOTPBlocksRegistration(t *testing.T) {
	e, cleanup := newTestServer(t)
	defer cleanup()
	const phone = "9998887776"

	rec := doJSON(t, e, http.MethodPost, "/api/v1/verification/start", "", map[string]any{
		"phone_number": phone,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start verification: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/api/v1/verification/verify", "", map[string]any{
		"phone_number": phone, "code": "0000",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong code, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPut, "/api/v1/registration/draft", "", map[string]any{
		"phone_number": phone, "first_name": "Asha",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 saving draft for unverified phone, got %d", rec.Code)
	}
}

func TestPatientListingRequiresToken(t *testing.T) {
	e, cleanup := newTestServer(t)
	defer cleanup()

	rec := doJSON(t, e, http.MethodGet, "/api/v1/patients", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 listing patients without token, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "phone_number") {
		t.Errorf("unauthenticated listing leaked patient data: %s", rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/api/v1/patients/SHRINK-000001", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 fetching a patient without token, got %d", rec.Code)
	}
}

func TestUploadBodyLimitCoversFullBatch(t *testing.T) {
	e := echo.New()
	e.Use(middleware.BodyLimit(defaultBodyLimit, uploadBodyLimit))
	e.POST("/api/v1/reports/extract", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/extract", strings.NewReader("x"))
	req.ContentLength = int64(blobstore.MaxFileSize)*5 + 64*1024
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code == http.StatusRequestEntityTooLarge {
		t.Errorf("upload limit rejects a full batch of maximum-size files")
	}
}

package sharing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_GenerateOTP(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/patients/:uid/share/otp")
	c.SetParamNames("uid")
	c.SetParamValues(testPatientUID)

	if err := h.GenerateOTP(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	otp, _ := resp["otp"].(string)
	if len(otp) != 4 {
		t.Errorf("expected 4-digit otp, got %q", otp)
	}
}

func TestHandler_GenerateOTP_UnknownPatient(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/patients/:uid/share/otp")
	c.SetParamNames("uid")
	c.SetParamValues("stranger")

	err := h.GenerateOTP(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Redeem(t *testing.T) {
	h, svc, e := newTestHandler()

	sc, err := svc.GenerateOTP(context.Background(), testPatientUID)
	if err != nil {
		t.Fatalf("GenerateOTP failed: %v", err)
	}

	body := `{"patient_id":"` + testPatientUID + `","otp":"` + sc.Code + `","doctor_id":"DOC-42","full_name":"Priya Nair","name_of_hospital":"City Care Hospital"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/share/redeem", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.Redeem(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var link DoctorLink
	json.Unmarshal(rec.Body.Bytes(), &link)
	if link.DoctorID != "DOC-42" {
		t.Errorf("expected doctor DOC-42, got %s", link.DoctorID)
	}
}

func TestHandler_Redeem_WrongCode(t *testing.T) {
	h, svc, e := newTestHandler()

	if _, err := svc.GenerateOTP(context.Background(), testPatientUID); err != nil {
		t.Fatalf("GenerateOTP failed: %v", err)
	}

	body := `{"patient_id":"` + testPatientUID + `","otp":"0000","doctor_id":"DOC-42"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/share/redeem", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.Redeem(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_LinkByQR(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"patient_id":"` + testPatientUID + `","doctor_id":"DOC-42","full_name":"Priya Nair","name_of_hospital":"City Care Hospital"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/doctor/patient", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.LinkByQR(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var link DoctorLink
	json.Unmarshal(rec.Body.Bytes(), &link)
	if link.Hospital != "City Care Hospital" {
		t.Errorf("expected hospital recorded, got %s", link.Hospital)
	}
}

func TestHandler_ListDoctors_Empty(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/patients/:uid/doctors")
	c.SetParamNames("uid")
	c.SetParamValues(testPatientUID)

	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %s", body)
	}
}

func TestHandler_Unlink(t *testing.T) {
	h, svc, e := newTestHandler()

	if _, err := svc.LinkByQR(context.Background(), testPatientUID, sampleQR()); err != nil {
		t.Fatalf("LinkByQR failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/patients/:uid/doctors/:doctorID")
	c.SetParamNames("uid", "doctorID")
	c.SetParamValues(testPatientUID, "DOC-42")

	if err := h.Unlink(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_Unlink_NotFound(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/patients/:uid/doctors/:doctorID")
	c.SetParamNames("uid", "doctorID")
	c.SetParamValues(testPatientUID, "DOC-99")

	err := h.Unlink(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

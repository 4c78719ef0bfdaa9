package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func multipartUpload(t *testing.T, userName string, fileNames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if userName != "" {
		if err := w.WriteField("user_name", userName); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range fileNames {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
		hdr.Set("Content-Type", "application/pdf")
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("%PDF-1.4 test content"))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestHandler_Upload(t *testing.T) {
	h, _, e := newTestHandler()

	body, contentType := multipartUpload(t, testUID, "scan.pdf", "xray.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/extract", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()

	if err := h.Upload(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var resp struct {
		Files []UploadOutcome `json:"files"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Files) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(resp.Files))
	}
	for _, o := range resp.Files {
		if !o.Accepted || o.ReportID == nil {
			t.Errorf("expected accepted outcome with report id, got %+v", o)
		}
	}
}

func TestHandler_Upload_MissingUserName(t *testing.T) {
	h, _, e := newTestHandler()

	body, contentType := multipartUpload(t, "", "scan.pdf")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/extract", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	err := h.Upload(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Upload_NotMultipart(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/extract", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	err := h.Upload(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListByPatient(t *testing.T) {
	h, svc, e := newTestHandler()
	seedReport(t, svc, TagBlood, "")
	seedReport(t, svc, TagRadiology, "")

	req := httptest.NewRequest(http.MethodGet, "/?type=Radiology", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/reports/:uid")
	c.SetParamNames("uid")
	c.SetParamValues(testUID)

	if err := h.ListByPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp struct {
		Data  []*Report `json:"data"`
		Total int       `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Data) != 1 {
		t.Fatalf("expected 1 report, got %d", len(resp.Data))
	}
	if resp.Data[0].TestType != TagRadiology {
		t.Errorf("expected Radiology report, got %s", resp.Data[0].TestType)
	}
}

func TestHandler_ListByPatient_BadTag(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/?type=Genetics", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/reports/:uid")
	c.SetParamNames("uid")
	c.SetParamValues(testUID)

	err := h.ListByPatient(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_DownloadFile(t *testing.T) {
	h, svc, e := newTestHandler()
	rep := seedReport(t, svc, TagBlood, "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/reports/:uid/files/:id")
	c.SetParamNames("uid", "id")
	c.SetParamValues(testUID, rep.UniqueFilePathName)

	if err := h.DownloadFile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "application/pdf" {
		t.Errorf("expected pdf content type, got %s", got)
	}
	if !strings.Contains(rec.Body.String(), "%PDF") {
		t.Error("expected file content in response")
	}
}

func TestHandler_DownloadFile_NotFound(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/reports/:uid/files/:id")
	c.SetParamNames("uid", "id")
	c.SetParamValues(testUID, "missing")

	err := h.DownloadFile(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_CompleteExtraction(t *testing.T) {
	h, svc, e := newTestHandler()

	outcomes, err := svc.Upload(context.Background(), testUID, []UploadFile{pdfFile("scan.pdf")})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	body := `{"test_name":"CBC","test_type":"Blood test","test_type_1":"B"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/reports/:id/extraction")
	c.SetParamNames("id")
	c.SetParamValues(outcomes[0].ReportID.String())

	if err := h.CompleteExtraction(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rep Report
	json.Unmarshal(rec.Body.Bytes(), &rep)
	if rep.Status != StatusExtracted {
		t.Errorf("expected extracted, got %s", rep.Status)
	}
	if rep.TestType1 != "B" {
		t.Errorf("expected secondary marker B, got %s", rep.TestType1)
	}
}

func TestHandler_Delete(t *testing.T) {
	h, svc, e := newTestHandler()
	rep := seedReport(t, svc, TagBlood, "")

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/reports/:id")
	c.SetParamNames("id")
	c.SetParamValues(rep.ID.String())

	if err := h.Delete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

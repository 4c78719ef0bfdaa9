package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper_PublicRoutes(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/health/db"},
		{http.MethodPost, "/api/v1/verification/start"},
		{http.MethodPost, "/api/v1/verification/verify"},
		{http.MethodPost, "/api/v1/patients"},
		{http.MethodPost, "/api/v1/patients/signin_phone"},
		{http.MethodPost, "/api/v1/patients/login_uuid"},
		{http.MethodPost, "/api/v1/patients/password"},
		{http.MethodGet, "/api/v1/registration/draft"},
		{http.MethodPut, "/api/v1/registration/draft/9876543210"},
		{http.MethodPost, "/api/v1/share/redeem"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(rt.method, rt.path, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if !AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return true for %s %s", rt.method, rt.path)
			}
		})
	}
}

func TestAuthSkipper_ProtectedRoutes(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/patients"},
		{http.MethodGet, "/api/v1/patients/me"},
		{http.MethodPost, "/api/v1/reports/extract"},
		{http.MethodPost, "/api/v1/share/otp"},
		{http.MethodGet, "/"},
		{http.MethodGet, "/health/extra"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(rt.method, rt.path, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if AuthSkipper(c) {
				t.Errorf("expected AuthSkipper to return false for %s %s", rt.method, rt.path)
			}
		})
	}
}

func TestIsPublicRoute(t *testing.T) {
	if !IsPublicRoute(http.MethodGet, "/health") {
		t.Error("expected GET /health to be public")
	}
	if IsPublicRoute(http.MethodGet, "/api/v1/patients") {
		t.Error("expected GET /api/v1/patients to be protected")
	}
	if !IsPublicRoute(http.MethodPost, "/api/v1/patients") {
		t.Error("expected POST /api/v1/patients to be public")
	}
}

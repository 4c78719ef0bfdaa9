package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// publicRoutes lists method+path pairs that should bypass authentication.
// These are infrastructure endpoints (health checks) and the pre-auth
// onboarding flow: a patient cannot hold a session token before registering
// or logging in. Routes are keyed by method so that, for example, POST
// /api/v1/patients (registration) is public while GET on the same path
// (listing) stays behind auth.
var publicRoutes = map[string]bool{
	http.MethodGet + " /health":                        true,
	http.MethodGet + " /health/db":                     true,
	http.MethodGet + " /metrics":                       true,
	http.MethodPost + " /api/v1/verification/start":    true,
	http.MethodPost + " /api/v1/verification/verify":   true,
	http.MethodPost + " /api/v1/patients":              true,
	http.MethodPost + " /api/v1/patients/password":     true,
	http.MethodPost + " /api/v1/patients/signin_phone": true,
	http.MethodPost + " /api/v1/patients/login_uuid":   true,
	http.MethodPost + " /api/v1/share/redeem":          true,
}

// AuthSkipper returns true for requests that should skip authentication.
// Pass this to TokenMiddleware so that health checks and the onboarding
// flow remain accessible without a bearer token.
func AuthSkipper(c echo.Context) bool {
	r := c.Request()
	return IsPublicRoute(r.Method, r.URL.Path)
}

// IsPublicRoute reports whether the given method and path name a public
// endpoint that should bypass auth middleware. Registration drafts are keyed
// by phone number in the path, so the whole draft subtree is public.
func IsPublicRoute(method, path string) bool {
	if strings.HasPrefix(path, "/api/v1/registration/draft") {
		return true
	}
	return publicRoutes[method+" "+path]
}

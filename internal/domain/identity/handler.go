package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shrinkhala/shrinkhala/internal/platform/auth"
	"github.com/shrinkhala/shrinkhala/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.Register)
	api.POST("/patients/password", h.SetPassword)
	api.POST("/patients/signin_phone", h.LoginByPhone)
	api.POST("/patients/login_uuid", h.LoginByUID)
	api.POST("/patients/logout", h.Logout)

	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:uid", h.GetPatient)
	api.PUT("/patients/:uid", h.UpdateProfile)
	api.DELETE("/patients/:uid", h.DeletePatient)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := h.svc.Register(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, ErrDuplicatePhone) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

type setPasswordRequest struct {
	UserID          string `json:"user_id"`
	PhoneNumber     string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) SetPassword(c echo.Context) error {
	var req setPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	// Older clients send the password twice only on screen; accept a single
	// field by treating a missing confirmation as a repeat.
	if req.ConfirmPassword == "" {
		req.ConfirmPassword = req.Password
	}

	err := h.svc.SetPassword(c.Request().Context(), req.UserID, req.Password, req.ConfirmPassword)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "password saved"})
}

type phoneLoginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

func (h *Handler) LoginByPhone(c echo.Context) error {
	var req phoneLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.LoginByPhone(c.Request().Context(), req.PhoneNumber, req.Password)
	return h.loginResponse(c, res, err)
}

type uidLoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *Handler) LoginByUID(c echo.Context) error {
	var req uidLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.LoginByUID(c.Request().Context(), req.UserID, req.Password)
	return h.loginResponse(c, res, err)
}

func (h *Handler) loginResponse(c echo.Context, res *LoginResult, err error) error {
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"user_id":    res.Patient.UID,
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	claims := auth.ClaimsFromContext(c.Request().Context())
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	h.svc.Logout(c.Request().Context(), claims)
	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := h.svc.UpdateProfile(c.Request().Context(), c.Param("uid"), &p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	err := h.svc.DeletePatient(c.Request().Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPatients(c echo.Context) error {
	params := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, params))
}

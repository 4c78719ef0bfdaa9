package onboarding

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/verification/start", h.StartVerification)
	api.POST("/verification/verify", h.VerifyCode)

	api.PUT("/registration/draft", h.SaveDraft)
	api.GET("/registration/draft/:phone", h.GetDraft)
	api.DELETE("/registration/draft/:phone", h.DiscardDraft)
}

type startVerificationRequest struct {
	PhoneNumber string `json:"phone_number"`
	Purpose     string `json:"purpose"`
}

func (h *Handler) StartVerification(c echo.Context) error {
	var req startVerificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	v, err := h.svc.StartVerification(c.Request().Context(), req.PhoneNumber, req.Purpose)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"phone_number": v.PhoneNumber,
		"purpose":      v.Purpose,
		"expires_at":   v.ExpiresAt,
	})
}

type verifyCodeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Purpose     string `json:"purpose"`
}

func (h *Handler) VerifyCode(c echo.Context) error {
	var req verifyCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.svc.VerifyCode(c.Request().Context(), req.PhoneNumber, req.Code, req.Purpose)
	if err != nil {
		if errors.Is(err, ErrCodeMismatch) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{"verified": true})
}

func (h *Handler) SaveDraft(c echo.Context) error {
	var d RegistrationDraft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.svc.SaveDraft(c.Request().Context(), &d)
	if err != nil {
		if errors.Is(err, ErrPhoneNotVerified) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, &d)
}

type draftResponse struct {
	RegistrationDraft
	MissingFields []string `json:"missing_fields"`
}

func (h *Handler) GetDraft(c echo.Context) error {
	d, err := h.svc.GetDraft(c.Request().Context(), c.Param("phone"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "registration draft not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, draftResponse{
		RegistrationDraft: *d,
		MissingFields:     d.MissingFields(),
	})
}

func (h *Handler) DiscardDraft(c echo.Context) error {
	if err := h.svc.DiscardDraft(c.Request().Context(), c.Param("phone")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

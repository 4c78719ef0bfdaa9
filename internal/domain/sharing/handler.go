package sharing

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
	api.POST("/patients/:uid/share/otp", h.GenerateOTP)
	api.POST("/share/redeem", h.Redeem)
	api.POST("/doctor/patient", h.LinkByQR)
	api.GET("/patients/:uid/doctors", h.ListDoctors)
	api.DELETE("/patients/:uid/doctors/:doctorID", h.Unlink)
}

func (h *Handler) GenerateOTP(c echo.Context) error {
	sc, err := h.svc.GenerateOTP(c.Request().Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"otp":        sc.Code,
		"expires_at": sc.ExpiresAt,
	})
}

func (h *Handler) Redeem(c echo.Context) error {
	var req RedeemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	link, err := h.svc.Redeem(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, ErrCodeMismatch) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, link)
}

type linkByQRRequest struct {
	PatientID string `json:"patient_id"`
	QRPayload
}

func (h *Handler) LinkByQR(c echo.Context) error {
	var req linkByQRRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	link, err := h.svc.LinkByQR(c.Request().Context(), req.PatientID, &req.QRPayload)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, link)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	links, err := h.svc.ListDoctors(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if links == nil {
		links = []*DoctorLink{}
	}
	return c.JSON(http.StatusOK, links)
}

func (h *Handler) Unlink(c echo.Context) error {
	err := h.svc.Unlink(c.Request().Context(), c.Param("uid"), c.Param("doctorID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "doctor link not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

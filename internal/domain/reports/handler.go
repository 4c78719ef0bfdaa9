package reports

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/shrinkhala/shrinkhala/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/reports/extract", h.Upload)
	api.GET("/reports/:uid", h.ListByPatient)
	api.GET("/reports/:uid/files/:id", h.DownloadFile)
	api.POST("/reports/:id/extraction", h.CompleteExtraction)
	api.POST("/reports/:id/extraction_failed", h.FailExtraction)
	api.DELETE("/reports/:id", h.Delete)
}

// Upload handles the multipart extract request: a user_name field plus one
// or more file parts.
func (h *Handler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form data required")
	}

	userName := c.FormValue("user_name")
	fileHeaders := form.File["file"]

	files := make([]UploadFile, 0, len(fileHeaders))
	opened := make([]io.Closer, 0, len(fileHeaders))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("cannot read file %q", fh.Filename))
		}
		opened = append(opened, f)
		files = append(files, UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}

	outcomes, err := h.svc.Upload(c.Request().Context(), userName, files)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	status := http.StatusCreated
	for _, o := range outcomes {
		if !o.Accepted {
			status = http.StatusMultiStatus
			break
		}
	}
	return c.JSON(status, map[string]any{"files": outcomes})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	params := pagination.FromContext(c)
	tag := c.QueryParam("type")

	list, total, err := h.svc.ListByPatient(c.Request().Context(), c.Param("uid"), tag, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(list, total, params))
}

func (h *Handler) DownloadFile(c echo.Context) error {
	content, meta, err := h.svc.DownloadFile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	defer content.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("inline; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, content)
}

func (h *Handler) CompleteExtraction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}

	var res ExtractionResult
	if err := c.Bind(&res); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rep, err := h.svc.CompleteExtraction(c.Request().Context(), id, &res)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) FailExtraction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}

	rep, err := h.svc.FailExtraction(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}

	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/leads"
	"github.com/memohai/deckcrm/internal/store"
)

type LeadsHandler struct {
	service *leads.Service
	logger  *slog.Logger
}

func NewLeadsHandler(log *slog.Logger, service *leads.Service) *LeadsHandler {
	return &LeadsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "leads")),
	}
}

func (h *LeadsHandler) Register(e *echo.Echo) {
	group := e.Group("/leads")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.PATCH("/:id/status", h.UpdateStatus)
	group.DELETE("/:id", h.Delete)
	group.GET("/:id/photos", h.ListPhotos)
	group.POST("/:id/photos", h.AddPhoto)
}

func (h *LeadsHandler) List(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), store.LeadFilter{
		CustomerID: strings.TrimSpace(c.QueryParam("customer_id")),
		Status:     strings.TrimSpace(c.QueryParam("status")),
		Limit:      limit,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *LeadsHandler) Get(c echo.Context) error {
	id, err := requireParam(c, "id", "lead id")
	if err != nil {
		return err
	}
	lead, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lead)
}

func (h *LeadsHandler) Create(c echo.Context) error {
	var req leads.CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	lead, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, lead)
}

type leadStatusRequest struct {
	Status string `json:"status"`
}

func (h *LeadsHandler) UpdateStatus(c echo.Context) error {
	id, err := requireParam(c, "id", "lead id")
	if err != nil {
		return err
	}
	var req leadStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	lead, err := h.service.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lead)
}

func (h *LeadsHandler) Delete(c echo.Context) error {
	id, err := requireParam(c, "id", "lead id")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *LeadsHandler) ListPhotos(c echo.Context) error {
	id, err := requireParam(c, "id", "lead id")
	if err != nil {
		return err
	}
	photos, err := h.service.Photos(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": photos})
}

type addPhotoRequest struct {
	URL     string  `json:"url"`
	Caption *string `json:"caption,omitempty"`
}

func (h *LeadsHandler) AddPhoto(c echo.Context) error {
	id, err := requireParam(c, "id", "lead id")
	if err != nil {
		return err
	}
	var req addPhotoRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	photo, err := h.service.AddPhoto(c.Request().Context(), id, req.URL, req.Caption)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, photo)
}

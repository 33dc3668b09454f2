package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/customers"
	"github.com/memohai/deckcrm/internal/merge"
)

// CustomersHandler serves customer records, their activity log and customer merges.
type CustomersHandler struct {
	service *customers.Service
	merger  *merge.Service
	logger  *slog.Logger
}

func NewCustomersHandler(log *slog.Logger, service *customers.Service, merger *merge.Service) *CustomersHandler {
	return &CustomersHandler{
		service: service,
		merger:  merger,
		logger:  log.With(slog.String("handler", "customers")),
	}
}

func (h *CustomersHandler) Register(e *echo.Echo) {
	group := e.Group("/customers")
	group.GET("", h.List)
	group.POST("", h.Create)
	group.POST("/merge", h.Merge)
	group.POST("/merge/preview", h.Preview)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.GET("/:id/activity", h.Activity)
}

func (h *CustomersHandler) List(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), strings.TrimSpace(c.QueryParam("q")), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *CustomersHandler) Get(c echo.Context) error {
	id, err := requireParam(c, "id", "customer id")
	if err != nil {
		return err
	}
	item, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CustomersHandler) Create(c echo.Context) error {
	var req customers.CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	item, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *CustomersHandler) Update(c echo.Context) error {
	id, err := requireParam(c, "id", "customer id")
	if err != nil {
		return err
	}
	var req customers.UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	item, err := h.service.Update(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *CustomersHandler) Delete(c echo.Context) error {
	id, err := requireParam(c, "id", "customer id")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CustomersHandler) Activity(c echo.Context) error {
	id, err := requireParam(c, "id", "customer id")
	if err != nil {
		return err
	}
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}
	items, err := h.service.Activity(c.Request().Context(), id, limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// MergeResponse is the success body of POST /customers/merge.
type MergeResponse struct {
	Success bool `json:"success"`
	merge.Result
}

// Merge godoc
// @Summary Merge two customers
// @Description Moves every record of the source customer onto the target and deletes the source
// @Tags customers
// @Accept json
// @Produce json
// @Param payload body merge.Request true "Source and target customer ids"
// @Success 200 {object} MergeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /customers/merge [post]
func (h *CustomersHandler) Merge(c echo.Context) error {
	var req merge.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	result, err := h.merger.Merge(c.Request().Context(), req)
	if err != nil {
		return h.mergeError(c, err)
	}
	return c.JSON(http.StatusOK, MergeResponse{Success: true, Result: result})
}

// Preview godoc
// @Summary Preview a customer merge
// @Tags customers
// @Accept json
// @Produce json
// @Param payload body merge.Request true "Source and target customer ids"
// @Success 200 {object} merge.Preview
// @Router /customers/merge/preview [post]
func (h *CustomersHandler) Preview(c echo.Context) error {
	var req merge.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	preview, err := h.merger.Preview(c.Request().Context(), req)
	if err != nil {
		return h.mergeError(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

func (h *CustomersHandler) mergeError(c echo.Context, err error) error {
	var (
		invalid     *merge.ValidationError
		notFound    *merge.NotFoundError
		persistence *merge.PersistenceError
	)
	switch {
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: invalid.Error()})
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: notFound.Error()})
	case errors.As(err, &persistence):
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "merge failed at step " + persistence.Step,
			Details: persistence.Err.Error(),
		})
	default:
		h.logger.Error("merge failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "merge failed", Details: err.Error()})
	}
}

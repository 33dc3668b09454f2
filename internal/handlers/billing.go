package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/billing"
)

// BillingHandler serves estimates and invoices.
type BillingHandler struct {
	service *billing.Service
	logger  *slog.Logger
}

func NewBillingHandler(log *slog.Logger, service *billing.Service) *BillingHandler {
	return &BillingHandler{
		service: service,
		logger:  log.With(slog.String("handler", "billing")),
	}
}

func (h *BillingHandler) Register(e *echo.Echo) {
	e.GET("/estimates", h.ListEstimates)
	e.POST("/estimates", h.CreateEstimate)

	invoices := e.Group("/invoices")
	invoices.GET("", h.ListInvoices)
	invoices.POST("", h.CreateInvoice)
	invoices.GET("/:id", h.GetInvoice)
	invoices.PATCH("/:id/status", h.UpdateInvoiceStatus)
}

func (h *BillingHandler) ListEstimates(c echo.Context) error {
	filter, err := listFilter(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListEstimates(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *BillingHandler) CreateEstimate(c echo.Context) error {
	var req billing.DocumentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	item, err := h.service.CreateEstimate(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *BillingHandler) ListInvoices(c echo.Context) error {
	filter, err := listFilter(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListInvoices(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *BillingHandler) CreateInvoice(c echo.Context) error {
	var req billing.InvoiceRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	item, err := h.service.CreateInvoice(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *BillingHandler) GetInvoice(c echo.Context) error {
	id, err := requireParam(c, "id", "invoice id")
	if err != nil {
		return err
	}
	item, err := h.service.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *BillingHandler) UpdateInvoiceStatus(c echo.Context) error {
	id, err := requireParam(c, "id", "invoice id")
	if err != nil {
		return err
	}
	var req billing.StatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	item, err := h.service.UpdateInvoiceStatus(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

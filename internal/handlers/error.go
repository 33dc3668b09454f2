package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/billing"
	"github.com/memohai/deckcrm/internal/customers"
	"github.com/memohai/deckcrm/internal/leads"
	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/store"
)

// ErrorResponse is the error body of the merge endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// httpError maps service and store errors onto HTTP errors.
func httpError(err error) error {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case errors.Is(err, store.ErrInvalidID):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrMissingReference):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrHasDependents):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, store.ErrDuplicate.Error())
	case errors.Is(err, customers.ErrInvalid),
		errors.Is(err, leads.ErrInvalid),
		errors.Is(err, billing.ErrInvalid),
		errors.Is(err, messaging.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, leads.ErrUnknownCustomer), errors.Is(err, messaging.ErrNoRecipient):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, messaging.ErrNotCancellable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, messaging.ErrSenderUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, messaging.ErrDeliveryFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/store"
)

const maxListLimit = 1000

// requireParam returns the trimmed path parameter or a 400 naming it.
func requireParam(c echo.Context, name, label string) (string, error) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, label+" is required")
	}
	return value, nil
}

// parseLimit reads the limit query parameter. Zero means the store default.
func parseLimit(c echo.Context) (int, error) {
	raw := strings.TrimSpace(c.QueryParam("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func listFilter(c echo.Context) (store.ListFilter, error) {
	limit, err := parseLimit(c)
	if err != nil {
		return store.ListFilter{}, err
	}
	return store.ListFilter{
		CustomerID: strings.TrimSpace(c.QueryParam("customer_id")),
		Limit:      limit,
	}, nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

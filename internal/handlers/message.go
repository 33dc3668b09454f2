package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/store"
)

// MessageHandler serves the email and SMS logs, sending, scheduling and call logging.
type MessageHandler struct {
	service    *messaging.Service
	dispatcher *messaging.Dispatcher
	logger     *slog.Logger
}

func NewMessageHandler(log *slog.Logger, service *messaging.Service) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  log.With(slog.String("handler", "messages")),
	}
}

// SetDispatcher enables POST /messages/dispatch.
func (h *MessageHandler) SetDispatcher(d *messaging.Dispatcher) {
	h.dispatcher = d
}

func (h *MessageHandler) Register(e *echo.Echo) {
	group := e.Group("/messages")
	group.GET("", h.List)
	group.POST("", h.Send)
	group.POST("/dispatch", h.Dispatch)
	group.DELETE("/:type/:id", h.Cancel)

	e.GET("/calls", h.ListCalls)
	e.POST("/calls", h.LogCall)
}

func parseChannelParam(raw string) (store.Channel, error) {
	switch store.Channel(strings.ToLower(strings.TrimSpace(raw))) {
	case store.ChannelEmail:
		return store.ChannelEmail, nil
	case store.ChannelSMS:
		return store.ChannelSMS, nil
	default:
		return "", echo.NewHTTPError(http.StatusBadRequest, "type must be email or sms")
	}
}

// List returns one channel's log, newest first.
func (h *MessageHandler) List(c echo.Context) error {
	channel, err := parseChannelParam(c.QueryParam("type"))
	if err != nil {
		return err
	}
	filter, err := listFilter(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), channel, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Send delivers or schedules a message. A failed delivery still answers with the stored
// row so that the caller can show it.
func (h *MessageHandler) Send(c echo.Context) error {
	var req messaging.SendRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	msg, err := h.service.Send(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, messaging.ErrDeliveryFailed) && msg.ID != "" {
			return c.JSON(http.StatusBadGateway, map[string]any{"message": msg, "error": err.Error()})
		}
		return httpError(err)
	}
	status := http.StatusCreated
	if msg.Status == store.StatusScheduled {
		status = http.StatusAccepted
	}
	return c.JSON(status, msg)
}

func (h *MessageHandler) Cancel(c echo.Context) error {
	channel, err := parseChannelParam(c.Param("type"))
	if err != nil {
		return err
	}
	id, err := requireParam(c, "id", "message id")
	if err != nil {
		return err
	}
	if err := h.service.Cancel(c.Request().Context(), channel, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Dispatch sends due scheduled messages now instead of waiting for the next tick.
func (h *MessageHandler) Dispatch(c echo.Context) error {
	if h.dispatcher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dispatcher not configured")
	}
	return c.JSON(http.StatusOK, h.dispatcher.RunOnce(c.Request().Context()))
}

func (h *MessageHandler) ListCalls(c echo.Context) error {
	filter, err := listFilter(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListCalls(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *MessageHandler) LogCall(c echo.Context) error {
	var req messaging.CallRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	call, err := h.service.LogCall(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, call)
}

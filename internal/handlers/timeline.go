package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/store"
	"github.com/memohai/deckcrm/internal/timeline"
)

// Frame types pushed on the timeline streams.
const (
	FrameSnapshot = "snapshot"
	FramePing     = "ping"
)

// TimelineFrame is one message on /timeline/events and /timeline/ws. Snapshot frames carry
// the full list; the other frames carry a single item and use the event op as their type.
type TimelineFrame struct {
	Type      string          `json:"type"`
	Items     []timeline.Item `json:"items,omitempty"`
	Item      *timeline.Item  `json:"item,omitempty"`
	Unreplied []string        `json:"unreplied,omitempty"`
}

// TimelineResponse is the body of GET /timeline.
type TimelineResponse struct {
	Items     []timeline.Item   `json:"items"`
	Buckets   []timeline.Bucket `json:"buckets"`
	Unreplied []string          `json:"unreplied"`
}

// StreamObserver counts open timeline streams.
type StreamObserver interface {
	StreamOpened(transport string) func()
}

type TimelineHandler struct {
	aggregator *timeline.Aggregator
	heartbeat  time.Duration
	upgrader   websocket.Upgrader
	streams    StreamObserver
	now        func() time.Time
	logger     *slog.Logger
}

func NewTimelineHandler(log *slog.Logger, aggregator *timeline.Aggregator, cfg config.TimelineConfig) *TimelineHandler {
	heartbeat := cfg.Heartbeat.Duration
	if heartbeat <= 0 {
		heartbeat = config.DefaultHeartbeatPeriod
	}
	return &TimelineHandler{
		aggregator: aggregator,
		heartbeat:  heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:    time.Now,
		logger: log.With(slog.String("handler", "timeline")),
	}
}

// SetStreamObserver sets the optional observer notified when streams open and close.
func (h *TimelineHandler) SetStreamObserver(o StreamObserver) {
	h.streams = o
}

func (h *TimelineHandler) Register(e *echo.Echo) {
	group := e.Group("/timeline")
	group.GET("", h.Get)
	group.GET("/unreplied", h.Unreplied)
	group.GET("/events", h.StreamEvents)
	group.GET("/ws", h.StreamWebSocket)
}

func writeSSEData(writer *bufio.Writer, flusher http.Flusher, payload string) error {
	if _, err := writer.WriteString(fmt.Sprintf("data: %s\n\n", payload)); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEJSON(writer *bufio.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSEData(writer, flusher, string(data))
}

func parseLocation(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid tz")
	}
	return loc, nil
}

// streamCustomerID validates the optional customer_id before a stream is opened.
func streamCustomerID(c echo.Context) (string, error) {
	raw := strings.TrimSpace(c.QueryParam("customer_id"))
	if raw == "" {
		return "", nil
	}
	id, err := store.NormalizeID(raw)
	if err != nil {
		return "", httpError(err)
	}
	return id, nil
}

// load opens a session for customerID filled with the current timeline.
func (h *TimelineHandler) load(ctx context.Context, customerID string) (*timeline.Session, error) {
	items, err := h.aggregator.Load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	session := timeline.NewSession(customerID, h.aggregator.Limit())
	if err := session.Reset(items); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns the timeline of one customer, or of all customers without customer_id,
// grouped by calendar day in the tz location.
func (h *TimelineHandler) Get(c echo.Context) error {
	loc, err := parseLocation(c.QueryParam("tz"))
	if err != nil {
		return err
	}
	session, err := h.load(c.Request().Context(), strings.TrimSpace(c.QueryParam("customer_id")))
	if err != nil {
		return httpError(err)
	}
	defer session.Close()

	items := session.Items()
	return c.JSON(http.StatusOK, TimelineResponse{
		Items:     items,
		Buckets:   timeline.GroupByDay(items, h.now(), loc),
		Unreplied: session.Unreplied(),
	})
}

// Unreplied lists the customers whose latest communication is inbound.
func (h *TimelineHandler) Unreplied(c echo.Context) error {
	session, err := h.load(c.Request().Context(), "")
	if err != nil {
		return httpError(err)
	}
	defer session.Close()
	return c.JSON(http.StatusOK, map[string]any{"customer_ids": session.Unreplied()})
}

// stream runs one timeline subscription until ctx ends or send fails. The subscription is
// opened before the snapshot is loaded so that no change falls between the two.
func (h *TimelineHandler) stream(ctx context.Context, customerID, transport string, send func(TimelineFrame) error) error {
	if h.streams != nil {
		defer h.streams.StreamOpened(transport)()
	}
	events, cancel := h.aggregator.Subscribe(ctx, customerID)
	defer cancel()

	session, err := h.load(ctx, customerID)
	if err != nil {
		return err
	}
	defer session.Close()
	snapshot := func() error {
		return send(TimelineFrame{Type: FrameSnapshot, Items: session.Items(), Unreplied: session.Unreplied()})
	}
	if err := snapshot(); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := send(TimelineFrame{Type: FramePing}); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			reload, err := session.Apply(ev)
			if err != nil {
				return nil
			}
			if reload {
				items, err := h.aggregator.Load(ctx, customerID)
				if err != nil {
					h.logger.Warn("timeline reload failed", slog.Any("error", err))
					continue
				}
				if err := session.Reset(items); err != nil {
					return nil
				}
				if err := snapshot(); err != nil {
					return nil
				}
				continue
			}
			if customerID != "" && ev.Item != nil && ev.Item.CustomerID != customerID {
				continue
			}
			if err := send(TimelineFrame{Type: string(ev.Op), Item: ev.Item, Unreplied: session.Unreplied()}); err != nil {
				return nil
			}
		}
	}
}

// StreamEvents pushes timeline frames as server-sent events.
func (h *TimelineHandler) StreamEvents(c echo.Context) error {
	customerID, err := streamCustomerID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}
	writer := bufio.NewWriter(c.Response().Writer)

	err = h.stream(ctx, customerID, "sse", func(frame TimelineFrame) error {
		return writeSSEJSON(writer, flusher, frame)
	})
	if err != nil {
		h.logger.Warn("timeline stream ended", slog.Any("error", err))
	}
	return nil
}

// StreamWebSocket pushes the same frames over a websocket. Messages from the client are
// read and discarded; a read error ends the stream.
func (h *TimelineHandler) StreamWebSocket(c echo.Context) error {
	customerID, err := streamCustomerID(c)
	if err != nil {
		return err
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = h.stream(ctx, customerID, "websocket", func(frame TimelineFrame) error {
		if err := conn.SetWriteDeadline(time.Now().Add(h.heartbeat)); err != nil {
			return err
		}
		return conn.WriteJSON(frame)
	})
	if err != nil {
		h.logger.Warn("timeline websocket ended", slog.Any("error", err))
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return nil
}

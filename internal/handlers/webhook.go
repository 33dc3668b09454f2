package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/deckcrm/internal/messaging"
)

const (
	twilioSignatureHeader = "X-Twilio-Signature"
	emptyTwiML            = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// SignatureVerifier checks that a webhook request was signed by the provider.
type SignatureVerifier interface {
	Valid(url string, params map[string]string, signature string) bool
}

// WebhookHandler receives inbound provider callbacks.
type WebhookHandler struct {
	service  *messaging.Service
	verifier SignatureVerifier
	logger   *slog.Logger
}

// NewWebhookHandler creates the handler. With a nil verifier signatures are not checked.
func NewWebhookHandler(log *slog.Logger, service *messaging.Service, verifier SignatureVerifier) *WebhookHandler {
	return &WebhookHandler{
		service:  service,
		verifier: verifier,
		logger:   log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/twilio/sms", h.TwilioSMS)
}

// TwilioSMS stores an inbound text. Texts from numbers that match no customer are logged
// and acknowledged so that the provider does not retry them.
func (h *WebhookHandler) TwilioSMS(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}
	params := make(map[string]string, len(form))
	for key := range form {
		params[key] = form.Get(key)
	}
	if h.verifier != nil {
		url := c.Scheme() + "://" + c.Request().Host + c.Request().URL.RequestURI()
		if !h.verifier.Valid(url, params, c.Request().Header.Get(twilioSignatureHeader)) {
			return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
		}
	}

	msg, err := h.service.ReceiveSMS(c.Request().Context(), messaging.InboundSMS{
		From:       params["From"],
		To:         params["To"],
		Body:       params["Body"],
		ProviderID: params["MessageSid"],
	})
	switch {
	case errors.Is(err, messaging.ErrUnknownSender):
		h.logger.Warn("inbound sms from unknown number", slog.String("from", params["From"]))
	case err != nil:
		return httpError(err)
	default:
		h.logger.Info("inbound sms stored", slog.String("message_id", msg.ID), slog.String("customer_id", msg.CustomerID))
	}
	return c.Blob(http.StatusOK, "text/xml", []byte(emptyTwiML))
}

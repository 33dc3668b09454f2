// Package billing manages estimates and invoices.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/deckcrm/internal/store"
)

var ErrInvalid = errors.New("invalid billing document")

// Invoice payment statuses.
const (
	InvoiceUnpaid      = "unpaid"
	InvoiceDepositPaid = "deposit_paid"
	InvoiceFullyPaid   = "fully_paid"
)

var invoiceStatuses = []string{InvoiceUnpaid, InvoiceDepositPaid, InvoiceFullyPaid}

type DocumentRequest struct {
	CustomerID         string  `json:"customer_id"`
	LeadID             *string `json:"lead_id,omitempty"`
	ExternalID         *string `json:"external_id,omitempty"`
	ExternalURL        *string `json:"external_url,omitempty"`
	PriceCents         int64   `json:"price_cents"`
	ServiceDescription *string `json:"service_description,omitempty"`
}

type InvoiceRequest struct {
	DocumentRequest
	Status         string  `json:"status,omitempty"`
	ExternalStatus *string `json:"external_status,omitempty"`
}

type StatusRequest struct {
	Status         string  `json:"status"`
	ExternalStatus *string `json:"external_status,omitempty"`
}

type Service struct {
	store  store.Store
	logger *slog.Logger
}

func NewService(log *slog.Logger, st store.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  st,
		logger: log.With(slog.String("service", "billing")),
	}
}

func clean(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ValidInvoiceStatus reports whether status is one of unpaid, deposit_paid, fully_paid.
func ValidInvoiceStatus(status string) bool {
	for _, s := range invoiceStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// documentFields validates req against the store: the customer must exist and a linked
// lead must not belong to another customer.
func documentFields(ctx context.Context, q store.Queries, req DocumentRequest) (store.DocumentFields, error) {
	if req.PriceCents < 0 {
		return store.DocumentFields{}, fmt.Errorf("%w: price_cents must not be negative", ErrInvalid)
	}
	customer, err := q.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return store.DocumentFields{}, fmt.Errorf("%w: customer_id is required", ErrInvalid)
		}
		return store.DocumentFields{}, err
	}
	fields := store.DocumentFields{
		CustomerID:         customer.ID,
		ExternalID:         clean(req.ExternalID),
		ExternalURL:        clean(req.ExternalURL),
		PriceCents:         req.PriceCents,
		ServiceDescription: clean(req.ServiceDescription),
	}
	if leadID := clean(req.LeadID); leadID != nil {
		lead, err := q.GetLead(ctx, *leadID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
				return store.DocumentFields{}, fmt.Errorf("%w: lead not found", ErrInvalid)
			}
			return store.DocumentFields{}, err
		}
		if lead.CustomerID != nil && *lead.CustomerID != customer.ID {
			return store.DocumentFields{}, fmt.Errorf("%w: lead belongs to another customer", ErrInvalid)
		}
		fields.LeadID = &lead.ID
	}
	return fields, nil
}

func activity(customerID, entity, id, action, description string, priceCents int64) store.Activity {
	return store.Activity{
		CustomerID:  customerID,
		EntityType:  entity,
		EntityID:    &id,
		Action:      action,
		Description: description,
		Metadata:    map[string]any{"price_cents": priceCents},
	}
}

func (s *Service) CreateEstimate(ctx context.Context, req DocumentRequest) (store.Estimate, error) {
	var estimate store.Estimate
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		fields, err := documentFields(ctx, q, req)
		if err != nil {
			return err
		}
		estimate, err = q.CreateEstimate(ctx, fields)
		if err != nil {
			return err
		}
		_, err = q.InsertActivity(ctx, activity(estimate.CustomerID, "estimate", estimate.ID, "estimate_created", "Estimate created", estimate.PriceCents))
		return err
	})
	if err != nil {
		return store.Estimate{}, err
	}
	return estimate, nil
}

func (s *Service) ListEstimates(ctx context.Context, filter store.ListFilter) ([]store.Estimate, error) {
	return s.store.ListEstimates(ctx, filter)
}

func (s *Service) CreateInvoice(ctx context.Context, req InvoiceRequest) (store.Invoice, error) {
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = InvoiceUnpaid
	}
	if !ValidInvoiceStatus(status) {
		return store.Invoice{}, fmt.Errorf("%w: unknown invoice status %q", ErrInvalid, status)
	}
	var invoice store.Invoice
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		fields, err := documentFields(ctx, q, req.DocumentRequest)
		if err != nil {
			return err
		}
		invoice, err = q.CreateInvoice(ctx, store.InvoiceFields{
			DocumentFields: fields,
			Status:         status,
			ExternalStatus: clean(req.ExternalStatus),
		})
		if err != nil {
			return err
		}
		_, err = q.InsertActivity(ctx, activity(invoice.CustomerID, "invoice", invoice.ID, "invoice_created", "Invoice created", invoice.PriceCents))
		return err
	})
	if err != nil {
		return store.Invoice{}, err
	}
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (store.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, filter store.ListFilter) ([]store.Invoice, error) {
	return s.store.ListInvoices(ctx, filter)
}

// UpdateInvoiceStatus sets the payment status. external_status is stored as given and is not
// mapped onto the canonical status.
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id string, req StatusRequest) (store.Invoice, error) {
	status := strings.TrimSpace(req.Status)
	if !ValidInvoiceStatus(status) {
		return store.Invoice{}, fmt.Errorf("%w: unknown invoice status %q", ErrInvalid, status)
	}
	invoice, err := s.store.UpdateInvoiceStatus(ctx, id, status, clean(req.ExternalStatus))
	if err != nil {
		return store.Invoice{}, err
	}
	s.logger.Info("invoice status updated", slog.String("invoice_id", invoice.ID), slog.String("status", status))
	return invoice, nil
}

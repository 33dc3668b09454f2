// Package leads manages sales inquiries and their photos.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/memohai/deckcrm/internal/store"
)

var (
	ErrInvalid         = errors.New("invalid lead")
	ErrUnknownCustomer = errors.New("lead customer not found")
)

// Lead statuses, in pipeline order.
var Statuses = []string{
	"new",
	"needs_more_details",
	"contacted",
	"quote_sent",
	"estimate_sent",
	"invoiced",
	"booked",
	"complete",
}

// StainChoices is the set of finishes a lead may ask about.
var StainChoices = []string{
	"transparent",
	"semi_transparent",
	"semi_solid",
	"solid",
	"clear_sealer",
}

const ActionLeadCreated = "lead_created"

type CreateRequest struct {
	CustomerID   *string  `json:"customer_id,omitempty"`
	FullName     string   `json:"full_name"`
	Email        *string  `json:"email,omitempty"`
	Phone        *string  `json:"phone,omitempty"`
	Address      *string  `json:"address,omitempty"`
	Status       string   `json:"status,omitempty"`
	Source       *string  `json:"source,omitempty"`
	Condition    *string  `json:"condition,omitempty"`
	StainChoices []string `json:"stain_choices,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
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
		logger: log.With(slog.String("service", "leads")),
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

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ValidStatus reports whether status is a known lead status.
func ValidStatus(status string) bool {
	return contains(Statuses, status)
}

// NormalizeStainChoices validates choices and removes duplicates, keeping first-seen order.
func NormalizeStainChoices(choices []string) ([]string, error) {
	out := make([]string, 0, len(choices))
	for _, c := range choices {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if !contains(StainChoices, c) {
			return nil, fmt.Errorf("%w: unknown stain choice %q", ErrInvalid, c)
		}
		if !contains(out, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Create stores a lead. When a customer is linked its contact fields replace the ones in
// req, and a lead_created activity entry is added for the customer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (store.Lead, error) {
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = Statuses[0]
	}
	if !ValidStatus(status) {
		return store.Lead{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	stains, err := NormalizeStainChoices(req.StainChoices)
	if err != nil {
		return store.Lead{}, err
	}
	fields := store.LeadFields{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        clean(req.Email),
		Phone:        clean(req.Phone),
		Address:      clean(req.Address),
		Status:       status,
		Source:       clean(req.Source),
		Condition:    clean(req.Condition),
		StainChoices: stains,
		Notes:        clean(req.Notes),
	}
	customerID := clean(req.CustomerID)
	if customerID == nil && fields.FullName == "" {
		return store.Lead{}, fmt.Errorf("%w: full_name or customer_id is required", ErrInvalid)
	}

	var lead store.Lead
	err = s.store.WithTx(ctx, func(q store.Queries) error {
		if customerID != nil {
			customer, err := q.GetCustomer(ctx, *customerID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
					return ErrUnknownCustomer
				}
				return err
			}
			fields.CustomerID = &customer.ID
			fields.FullName = customer.FullName
			fields.Email = customer.Email
			fields.Phone = customer.Phone
			fields.Address = customer.Address
		}
		var err error
		lead, err = q.CreateLead(ctx, fields)
		if err != nil {
			return err
		}
		if lead.CustomerID == nil {
			return nil
		}
		leadID := lead.ID
		_, err = q.InsertActivity(ctx, store.Activity{
			CustomerID:  *lead.CustomerID,
			EntityType:  "lead",
			EntityID:    &leadID,
			Action:      ActionLeadCreated,
			Description: "Lead created",
			Metadata:    map[string]any{"status": lead.Status, "source": deref(lead.Source)},
		})
		return err
	})
	if err != nil {
		return store.Lead{}, err
	}
	s.logger.Info("lead created", slog.String("lead_id", lead.ID))
	return lead, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Service) Get(ctx context.Context, id string) (store.Lead, error) {
	return s.store.GetLead(ctx, id)
}

func (s *Service) List(ctx context.Context, filter store.LeadFilter) ([]store.Lead, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, filter.Status)
	}
	return s.store.ListLeads(ctx, filter)
}

func (s *Service) UpdateStatus(ctx context.Context, id, status string) (store.Lead, error) {
	status = strings.TrimSpace(status)
	if !ValidStatus(status) {
		return store.Lead{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	return s.store.UpdateLeadStatus(ctx, id, status)
}

// Delete removes a lead with its photos. Estimates and invoices keep their customer and
// lose the lead reference.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteLead(ctx, id)
}

func (s *Service) AddPhoto(ctx context.Context, leadID, rawURL string, caption *string) (store.LeadPhoto, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return store.LeadPhoto{}, fmt.Errorf("%w: photo url must be an absolute http(s) url", ErrInvalid)
	}
	photo, err := s.store.AddLeadPhoto(ctx, leadID, u.String(), clean(caption))
	if errors.Is(err, store.ErrMissingReference) {
		return store.LeadPhoto{}, store.ErrNotFound
	}
	return photo, err
}

func (s *Service) Photos(ctx context.Context, leadID string) ([]store.LeadPhoto, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.store.ListLeadPhotos(ctx, lead.ID)
}

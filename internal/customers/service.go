// Package customers manages customer records and keeps linked leads in sync.
package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/deckcrm/internal/store"
)

var ErrInvalid = errors.New("invalid customer")

var languages = map[string]bool{"en": true, "fr": true}

type CreateRequest struct {
	FullName      string  `json:"full_name"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Address       *string `json:"address,omitempty"`
	Language      string  `json:"language,omitempty"`
	InternalNotes *string `json:"internal_notes,omitempty"`
	AccessToken   *string `json:"access_token,omitempty"`
}

// UpdateRequest changes only the fields that are set. An empty string clears a nullable field.
type UpdateRequest struct {
	FullName      *string `json:"full_name,omitempty"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Address       *string `json:"address,omitempty"`
	Language      *string `json:"language,omitempty"`
	InternalNotes *string `json:"internal_notes,omitempty"`
	AccessToken   *string `json:"access_token,omitempty"`
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
		logger: log.With(slog.String("service", "customers")),
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

func normalizeLanguage(lang string) (string, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return "en", nil
	}
	if !languages[lang] {
		return "", fmt.Errorf("%w: language must be en or fr", ErrInvalid)
	}
	return lang, nil
}

func (s *Service) List(ctx context.Context, query string, limit int) ([]store.Customer, error) {
	return s.store.ListCustomers(ctx, store.CustomerFilter{Query: query, Limit: limit})
}

func (s *Service) Get(ctx context.Context, id string) (store.Customer, error) {
	return s.store.GetCustomer(ctx, id)
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (store.Customer, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return store.Customer{}, fmt.Errorf("%w: full_name is required", ErrInvalid)
	}
	lang, err := normalizeLanguage(req.Language)
	if err != nil {
		return store.Customer{}, err
	}
	customer, err := s.store.CreateCustomer(ctx, store.CustomerFields{
		FullName:      name,
		Email:         clean(req.Email),
		Phone:         clean(req.Phone),
		Address:       clean(req.Address),
		Language:      lang,
		InternalNotes: clean(req.InternalNotes),
		AccessToken:   clean(req.AccessToken),
	})
	if err != nil {
		return store.Customer{}, err
	}
	s.logger.Info("customer created", slog.String("customer_id", customer.ID))
	return customer, nil
}

// Update applies req and re-copies the contact fields onto every lead linked to the
// customer, in one transaction.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (store.Customer, error) {
	var updated store.Customer
	err := s.store.WithTx(ctx, func(q store.Queries) error {
		current, err := q.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		fields := current.Fields()
		if req.FullName != nil {
			name := strings.TrimSpace(*req.FullName)
			if name == "" {
				return fmt.Errorf("%w: full_name must not be empty", ErrInvalid)
			}
			fields.FullName = name
		}
		if req.Email != nil {
			fields.Email = clean(req.Email)
		}
		if req.Phone != nil {
			fields.Phone = clean(req.Phone)
		}
		if req.Address != nil {
			fields.Address = clean(req.Address)
		}
		if req.InternalNotes != nil {
			fields.InternalNotes = clean(req.InternalNotes)
		}
		if req.AccessToken != nil {
			fields.AccessToken = clean(req.AccessToken)
		}
		if req.Language != nil {
			lang, err := normalizeLanguage(*req.Language)
			if err != nil {
				return err
			}
			fields.Language = lang
		}
		updated, err = q.UpdateCustomer(ctx, current.ID, fields)
		if err != nil {
			return err
		}
		_, err = q.SyncLeadContacts(ctx, updated.ID, store.ContactFields{
			FullName: updated.FullName,
			Email:    updated.Email,
			Phone:    updated.Phone,
			Address:  updated.Address,
		})
		return err
	})
	if err != nil {
		return store.Customer{}, err
	}
	return updated, nil
}

// Delete removes a customer without dependents. Customers that still own rows fail with
// store.ErrHasDependents; merge them instead.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logger.Info("customer deleted", slog.String("customer_id", id))
	return nil
}

func (s *Service) Activity(ctx context.Context, id string, limit int) ([]store.Activity, error) {
	customer, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, store.ListFilter{CustomerID: customer.ID, Limit: limit})
}

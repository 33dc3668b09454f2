package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/deckcrm/internal/store"
)

// Merge steps reported in PersistenceError.
const (
	StepLoadSource     = "load_source"
	StepLoadTarget     = "load_target"
	StepUpdateTarget   = "update_target"
	StepSyncLeads      = "sync_leads"
	StepDeleteSource   = "delete_source"
	StepRecordActivity = "record_activity"
)

// ActionCustomerMerged is the activity-log action written on the target.
const ActionCustomerMerged = "customer_merged"

func reassignStep(key string) string {
	return "reassign_" + key
}

// Notifier receives committed merges.
type Notifier interface {
	CustomerMerged(ctx context.Context, event Event) error
}

// Observer records merge outcomes.
type Observer interface {
	ObserveMerge(result string, elapsed time.Duration)
}

type Service struct {
	store    store.Store
	notifier Notifier
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(log *slog.Logger, st store.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  st,
		logger: log.With(slog.String("service", "merge")),
		now:    time.Now,
	}
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

func validate(req Request) (string, string, error) {
	sourceRaw := strings.TrimSpace(req.SourceCustomerID)
	targetRaw := strings.TrimSpace(req.TargetCustomerID)
	if sourceRaw == "" || targetRaw == "" {
		return "", "", &ValidationError{Message: "sourceCustomerId and targetCustomerId are required"}
	}
	sourceID, err := store.NormalizeID(sourceRaw)
	if err != nil {
		return "", "", &ValidationError{Message: "invalid sourceCustomerId"}
	}
	targetID, err := store.NormalizeID(targetRaw)
	if err != nil {
		return "", "", &ValidationError{Message: "invalid targetCustomerId"}
	}
	if sourceID == targetID {
		return "", "", &ValidationError{Message: "cannot merge a customer into itself"}
	}
	return sourceID, targetID, nil
}

func load(ctx context.Context, q store.Queries, role, step, id string) (store.Customer, error) {
	customer, err := q.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Customer{}, &NotFoundError{Role: role, ID: id}
		}
		return store.Customer{}, &PersistenceError{Step: step, Err: err}
	}
	return customer, nil
}

// Merge moves every dependent row from the source customer to the target, writes the
// reconciled fields to the target, deletes the source and records an activity entry. All
// of it runs in one transaction: any failure leaves the store untouched.
func (s *Service) Merge(ctx context.Context, req Request) (Result, error) {
	start := s.now()
	result, source, err := s.merge(ctx, req)
	s.observe(err, start)
	if err != nil {
		s.logger.Warn("merge failed",
			slog.String("source_id", req.SourceCustomerID),
			slog.String("target_id", req.TargetCustomerID),
			slog.Any("error", err))
		return Result{}, err
	}
	s.logger.Info("customers merged",
		slog.String("source_id", source.ID),
		slog.String("target_id", result.MergedCustomer.ID),
		slog.Int64("transferred", result.TransferredCounts.Total()))
	s.notify(ctx, source, result)
	return result, nil
}

func (s *Service) merge(ctx context.Context, req Request) (Result, store.Customer, error) {
	sourceID, targetID, err := validate(req)
	if err != nil {
		return Result{}, store.Customer{}, err
	}
	var (
		result Result
		source store.Customer
	)
	err = s.store.WithTx(ctx, func(q store.Queries) error {
		var err error
		source, err = load(ctx, q, "source", StepLoadSource, sourceID)
		if err != nil {
			return err
		}
		target, err := load(ctx, q, "target", StepLoadTarget, targetID)
		if err != nil {
			return err
		}

		counts := newCounts()
		for _, d := range dependents {
			n, err := q.ReassignCustomer(ctx, d.table, sourceID, targetID)
			if err != nil {
				return &PersistenceError{Step: reassignStep(d.key), Err: err}
			}
			counts[d.key] = n
		}

		// The source goes before the target update: the target may take over the source's
		// access_token, which is unique.
		if err := q.DeleteCustomer(ctx, sourceID); err != nil {
			return &PersistenceError{Step: StepDeleteSource, Err: err}
		}
		merged := MergeFields(target, source)
		updated, err := q.UpdateCustomer(ctx, targetID, merged.storeFields())
		if err != nil {
			return &PersistenceError{Step: StepUpdateTarget, Err: err}
		}
		if _, err := q.SyncLeadContacts(ctx, targetID, store.ContactFields{
			FullName: updated.FullName,
			Email:    updated.Email,
			Phone:    updated.Phone,
			Address:  updated.Address,
		}); err != nil {
			return &PersistenceError{Step: StepSyncLeads, Err: err}
		}
		if _, err := q.InsertActivity(ctx, mergeActivity(source, updated, counts)); err != nil {
			return &PersistenceError{Step: StepRecordActivity, Err: err}
		}
		result = Result{MergedCustomer: updated, TransferredCounts: counts}
		return nil
	})
	if err != nil {
		var (
			validationErr  *ValidationError
			notFoundErr    *NotFoundError
			persistenceErr *PersistenceError
		)
		if errors.As(err, &validationErr) || errors.As(err, &notFoundErr) || errors.As(err, &persistenceErr) {
			return Result{}, store.Customer{}, err
		}
		return Result{}, store.Customer{}, &PersistenceError{Step: "commit", Err: err}
	}
	return result, source, nil
}

func mergeActivity(source, target store.Customer, counts Counts) store.Activity {
	countMeta := make(map[string]any, len(counts))
	for k, v := range counts {
		countMeta[k] = v
	}
	sourceID := source.ID
	return store.Activity{
		CustomerID:  target.ID,
		EntityType:  "customer",
		EntityID:    &sourceID,
		Action:      ActionCustomerMerged,
		Description: fmt.Sprintf("Merged customer %s into %s", source.FullName, target.FullName),
		Metadata: map[string]any{
			"source_id":          source.ID,
			"source_name":        source.FullName,
			"source_email":       deref(source.Email),
			"source_phone":       deref(source.Phone),
			"source_address":     deref(source.Address),
			"transferred_counts": countMeta,
		},
	}
}

// Preview computes what Merge would produce without writing anything.
func (s *Service) Preview(ctx context.Context, req Request) (Preview, error) {
	sourceID, targetID, err := validate(req)
	if err != nil {
		return Preview{}, err
	}
	source, err := load(ctx, s.store, "source", StepLoadSource, sourceID)
	if err != nil {
		return Preview{}, err
	}
	target, err := load(ctx, s.store, "target", StepLoadTarget, targetID)
	if err != nil {
		return Preview{}, err
	}
	counts := newCounts()
	for _, d := range dependents {
		n, err := s.store.CountByCustomer(ctx, d.table, sourceID)
		if err != nil {
			return Preview{}, &PersistenceError{Step: "count_" + d.key, Err: err}
		}
		counts[d.key] = n
	}
	return Preview{
		Source:    source,
		Target:    target,
		Merged:    MergeFields(target, source),
		Conflicts: Conflicts(target, source),
		Counts:    counts,
	}, nil
}

func (s *Service) observe(err error, start time.Time) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveMerge(resultLabel(err), s.now().Sub(start))
}

func resultLabel(err error) string {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &validationErr):
		return "invalid"
	case errors.As(err, &notFoundErr):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) notify(ctx context.Context, source store.Customer, result Result) {
	if s.notifier == nil {
		return
	}
	event := Event{
		SourceID:   source.ID,
		SourceName: source.FullName,
		TargetID:   result.MergedCustomer.ID,
		TargetName: result.MergedCustomer.FullName,
		Counts:     result.TransferredCounts,
		MergedAt:   s.now().UTC(),
	}
	if err := s.notifier.CustomerMerged(ctx, event); err != nil {
		s.logger.Warn("publish merge event failed", slog.String("target_id", event.TargetID), slog.Any("error", err))
	}
}

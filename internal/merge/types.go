package merge

import (
	"fmt"
	"time"

	"github.com/memohai/deckcrm/internal/store"
)

// Transferred-count keys, one per dependent record type.
const (
	CountLeads      = "leads"
	CountEstimates  = "estimates"
	CountInvoices   = "invoices"
	CountEmails     = "emails"
	CountSMS        = "sms"
	CountCalls      = "calls"
	CountActivities = "activities"
)

type dependent struct {
	key   string
	table string
}

var dependents = []dependent{
	{CountLeads, store.TableLeads},
	{CountEstimates, store.TableEstimates},
	{CountInvoices, store.TableInvoices},
	{CountEmails, store.TableEmails},
	{CountSMS, store.TableSMS},
	{CountCalls, store.TableCalls},
	{CountActivities, store.TableActivity},
}

// Counts maps a record type to the number of rows moved from source to target.
type Counts map[string]int64

func newCounts() Counts {
	counts := make(Counts, len(dependents))
	for _, d := range dependents {
		counts[d.key] = 0
	}
	return counts
}

// Total is the number of rows moved across all types.
func (c Counts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}

type Request struct {
	SourceCustomerID string `json:"sourceCustomerId"`
	TargetCustomerID string `json:"targetCustomerId"`
}

type Result struct {
	MergedCustomer    store.Customer `json:"mergedCustomer"`
	TransferredCounts Counts         `json:"transferredCounts"`
}

// Fields is the reconciled customer state a merge writes to the target.
type Fields struct {
	FullName      string  `json:"full_name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	Address       *string `json:"address"`
	Language      string  `json:"language"`
	InternalNotes *string `json:"internal_notes"`
	AccessToken   *string `json:"-"`
}

func (f Fields) storeFields() store.CustomerFields {
	return store.CustomerFields{
		FullName:      f.FullName,
		Email:         f.Email,
		Phone:         f.Phone,
		Address:       f.Address,
		Language:      f.Language,
		InternalNotes: f.InternalNotes,
		AccessToken:   f.AccessToken,
	}
}

// Conflict is a field where both customers hold different non-empty values.
type Conflict struct {
	Field  string `json:"field"`
	Target string `json:"target"`
	Source string `json:"source"`
	Result string `json:"result"`
}

type Preview struct {
	Source    store.Customer `json:"source"`
	Target    store.Customer `json:"target"`
	Merged    Fields         `json:"merged"`
	Conflicts []Conflict     `json:"conflicts"`
	Counts    Counts         `json:"transferredCounts"`
}

// Event is published after a merge commits.
type Event struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	TargetID   string    `json:"target_id"`
	TargetName string    `json:"target_name"`
	Counts     Counts    `json:"transferred_counts"`
	MergedAt   time.Time `json:"merged_at"`
}

// ValidationError reports bad input detected before any store access.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports a missing source or target customer.
type NotFoundError struct {
	Role string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s customer %s not found", e.Role, e.ID)
}

// PersistenceError reports a store failure at a named merge step.
type PersistenceError struct {
	Step string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("merge step %s failed: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

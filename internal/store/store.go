// Package store is the record store: typed CRUD over the CRM tables with realtime
// change emission after commit.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/memohai/deckcrm/internal/db"
	"github.com/memohai/deckcrm/internal/realtime"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrHasDependents = errors.New("record still has dependent rows")
	ErrInvalidID     = errors.New("invalid record id")
	ErrUnknownTable  = errors.New("unknown table")
	// ErrMissingReference is returned when a write points at a row that does not exist.
	ErrMissingReference = errors.New("referenced record not found")
	// ErrDuplicate is returned when a write collides with a unique column.
	ErrDuplicate = errors.New("record conflicts with an existing unique value")
)

const DefaultListLimit = 200

// Queries is the record-level API shared by the pool and by transactions.
type Queries interface {
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error)
	GetCustomer(ctx context.Context, id string) (Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (Customer, error)
	CreateCustomer(ctx context.Context, fields CustomerFields) (Customer, error)
	UpdateCustomer(ctx context.Context, id string, fields CustomerFields) (Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	CountByCustomer(ctx context.Context, table, customerID string) (int64, error)
	ReassignCustomer(ctx context.Context, table, fromID, toID string) (int64, error)
	SyncLeadContacts(ctx context.Context, customerID string, contact ContactFields) (int64, error)

	CreateLead(ctx context.Context, fields LeadFields) (Lead, error)
	GetLead(ctx context.Context, id string) (Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error)
	UpdateLeadStatus(ctx context.Context, id, status string) (Lead, error)
	DeleteLead(ctx context.Context, id string) error
	AddLeadPhoto(ctx context.Context, leadID, url string, caption *string) (LeadPhoto, error)
	ListLeadPhotos(ctx context.Context, leadID string) ([]LeadPhoto, error)

	CreateEstimate(ctx context.Context, fields DocumentFields) (Estimate, error)
	ListEstimates(ctx context.Context, filter ListFilter) ([]Estimate, error)
	CreateInvoice(ctx context.Context, fields InvoiceFields) (Invoice, error)
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id, status string, externalStatus *string) (Invoice, error)

	InsertMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, channel Channel, id string) (Message, error)
	ListMessages(ctx context.Context, channel Channel, filter ListFilter) ([]Message, error)
	ListDueMessages(ctx context.Context, channel Channel, before time.Time, limit int) ([]Message, error)
	ClaimScheduledMessage(ctx context.Context, channel Channel, id string) (Message, bool, error)
	UpdateMessageStatus(ctx context.Context, channel Channel, id string, update MessageStatusUpdate) (Message, error)
	DeleteScheduledMessage(ctx context.Context, channel Channel, id string) (bool, error)

	InsertCall(ctx context.Context, call Call) (Call, error)
	ListCalls(ctx context.Context, filter ListFilter) ([]Call, error)

	InsertActivity(ctx context.Context, entry Activity) (Activity, error)
	ListActivities(ctx context.Context, filter ListFilter) ([]Activity, error)
}

// Store runs queries directly or inside a single transaction.
// Changes made inside WithTx are published only if fn returns nil and the commit succeeds.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// IsDependentTable reports whether table carries a customer_id foreign key.
func IsDependentTable(table string) bool {
	for _, t := range DependentTables {
		if t == table {
			return true
		}
	}
	return false
}

// NormalizeID validates a record id and returns its canonical form.
func NormalizeID(id string) (string, error) {
	normalized, err := db.NormalizeUUID(id)
	if err != nil {
		return "", ErrInvalidID
	}
	return normalized, nil
}

// NewChange builds a realtime change carrying record as JSON.
func NewChange(table string, op realtime.Op, customerID string, record any) realtime.Change {
	data, err := json.Marshal(record)
	if err != nil {
		data = nil
	}
	return realtime.Change{
		Table:      table,
		Op:         op,
		CustomerID: customerID,
		Record:     data,
		At:         time.Now().UTC(),
	}
}

// ChangeBuffer collects changes and forwards them to a publisher, holding them back while a
// transaction is open.
type ChangeBuffer struct {
	publisher realtime.Publisher
	pending   []realtime.Change
	buffering bool
}

func NewChangeBuffer(publisher realtime.Publisher, buffering bool) *ChangeBuffer {
	return &ChangeBuffer{publisher: publisher, buffering: buffering}
}

func (b *ChangeBuffer) Emit(change realtime.Change) {
	if b == nil || b.publisher == nil {
		return
	}
	if b.buffering {
		b.pending = append(b.pending, change)
		return
	}
	b.publisher.Publish(change)
}

// Flush publishes and clears pending changes.
func (b *ChangeBuffer) Flush() {
	if b == nil || b.publisher == nil {
		return
	}
	for _, change := range b.pending {
		b.publisher.Publish(change)
	}
	b.pending = nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/deckcrm/internal/db"
	"github.com/memohai/deckcrm/internal/realtime"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed Store.
type Postgres struct {
	*pgQueries
	pool      *pgxpool.Pool
	publisher realtime.Publisher
	logger    *slog.Logger
}

// NewPostgres wraps pool. publisher may be nil when no one listens for changes.
func NewPostgres(log *slog.Logger, pool *pgxpool.Pool, publisher realtime.Publisher) *Postgres {
	return &Postgres{
		pgQueries: &pgQueries{db: pool, changes: NewChangeBuffer(publisher, false)},
		pool:      pool,
		publisher: publisher,
		logger:    log.With(slog.String("component", "store")),
	}
}

// WithTx runs fn in one transaction and publishes its changes after commit.
func (p *Postgres) WithTx(ctx context.Context, fn func(q Queries) error) error {
	changes := NewChangeBuffer(p.publisher, true)
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(&pgQueries{db: tx, changes: changes})
	})
	if err != nil {
		return err
	}
	changes.Flush()
	return nil
}

type pgQueries struct {
	db      dbtx
	changes *ChangeBuffer
}

const customerColumns = `id, full_name, email, phone, address, language, internal_notes, access_token, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Address, &c.Language, &c.InternalNotes, &c.AccessToken, &c.CreatedAt, &c.UpdatedAt)
	return c, mapErr(err)
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrMissingReference, err)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *pgQueries) ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error) {
	rows, err := q.db.Query(ctx, `SELECT `+customerColumns+` FROM customers
		WHERE $1 = '' OR full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%'
		ORDER BY lower(full_name), created_at LIMIT $2`, filter.Query, limitOrDefault(filter.Limit))
	return collect(rows, err, scanCustomer)
}

func (q *pgQueries) GetCustomer(ctx context.Context, id string) (Customer, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return Customer{}, err
	}
	return scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (q *pgQueries) FindCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers
		WHERE regexp_replace(phone, '[^0-9]', '', 'g') = regexp_replace($1, '[^0-9]', '', 'g')
		ORDER BY created_at LIMIT 1`, phone))
}

func (q *pgQueries) CreateCustomer(ctx context.Context, f CustomerFields) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `INSERT INTO customers (full_name, email, phone, address, language, internal_notes, access_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+customerColumns,
		f.FullName, f.Email, f.Phone, f.Address, f.Language, f.InternalNotes, f.AccessToken))
	if err != nil {
		return Customer{}, err
	}
	q.changes.Emit(NewChange(TableCustomers, realtime.OpInsert, c.ID, c))
	return c, nil
}

func (q *pgQueries) UpdateCustomer(ctx context.Context, id string, f CustomerFields) (Customer, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return Customer{}, err
	}
	c, err := scanCustomer(q.db.QueryRow(ctx, `UPDATE customers SET full_name = $2, email = $3, phone = $4, address = $5,
		language = $6, internal_notes = $7, access_token = $8, updated_at = now()
		WHERE id = $1 RETURNING `+customerColumns,
		id, f.FullName, f.Email, f.Phone, f.Address, f.Language, f.InternalNotes, f.AccessToken))
	if err != nil {
		return Customer{}, err
	}
	q.changes.Emit(NewChange(TableCustomers, realtime.OpUpdate, c.ID, c))
	return c, nil
}

func (q *pgQueries) DeleteCustomer(ctx context.Context, id string) error {
	id, err := NormalizeID(id)
	if err != nil {
		return err
	}
	c, err := scanCustomer(q.db.QueryRow(ctx, `DELETE FROM customers WHERE id = $1 RETURNING `+customerColumns, id))
	if errors.Is(err, ErrMissingReference) {
		return fmt.Errorf("%w: %v", ErrHasDependents, err)
	}
	if err != nil {
		return err
	}
	q.changes.Emit(NewChange(TableCustomers, realtime.OpDelete, c.ID, c))
	return nil
}

func (q *pgQueries) CountByCustomer(ctx context.Context, table, customerID string) (int64, error) {
	if !IsDependentTable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	customerID, err := NormalizeID(customerID)
	if err != nil {
		return 0, err
	}
	var count int64
	sql := `SELECT count(*) FROM ` + pgx.Identifier{table}.Sanitize() + ` WHERE customer_id = $1`
	if err := q.db.QueryRow(ctx, sql, customerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (q *pgQueries) ReassignCustomer(ctx context.Context, table, fromID, toID string) (int64, error) {
	if !IsDependentTable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	fromID, err := NormalizeID(fromID)
	if err != nil {
		return 0, err
	}
	toID, err = NormalizeID(toID)
	if err != nil {
		return 0, err
	}
	sql := `UPDATE ` + pgx.Identifier{table}.Sanitize() + ` SET customer_id = $2 WHERE customer_id = $1`
	tag, err := q.db.Exec(ctx, sql, fromID, toID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) SyncLeadContacts(ctx context.Context, customerID string, c ContactFields) (int64, error) {
	customerID, err := NormalizeID(customerID)
	if err != nil {
		return 0, err
	}
	rows, err := q.db.Query(ctx, `UPDATE leads SET full_name = $2, email = $3, phone = $4, address = $5, updated_at = now()
		WHERE customer_id = $1 RETURNING `+leadColumns, customerID, c.FullName, c.Email, c.Phone, c.Address)
	leads, err := collect(rows, err, scanLead)
	if err != nil {
		return 0, err
	}
	for _, lead := range leads {
		q.changes.Emit(NewChange(TableLeads, realtime.OpUpdate, customerID, lead))
	}
	return int64(len(leads)), nil
}

const leadColumns = `id, customer_id, full_name, email, phone, address, status, source, condition, stain_choices, notes, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.CustomerID, &l.FullName, &l.Email, &l.Phone, &l.Address, &l.Status, &l.Source, &l.Condition, &l.StainChoices, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	return l, mapErr(err)
}

func leadCustomer(l Lead) string {
	if l.CustomerID == nil {
		return ""
	}
	return *l.CustomerID
}

func (q *pgQueries) CreateLead(ctx context.Context, f LeadFields) (Lead, error) {
	if f.StainChoices == nil {
		f.StainChoices = []string{}
	}
	l, err := scanLead(q.db.QueryRow(ctx, `INSERT INTO leads (customer_id, full_name, email, phone, address, status, source, condition, stain_choices, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING `+leadColumns,
		f.CustomerID, f.FullName, f.Email, f.Phone, f.Address, f.Status, f.Source, f.Condition, f.StainChoices, f.Notes))
	if err != nil {
		return Lead{}, err
	}
	q.changes.Emit(NewChange(TableLeads, realtime.OpInsert, leadCustomer(l), l))
	return l, nil
}

func (q *pgQueries) GetLead(ctx context.Context, id string) (Lead, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return Lead{}, err
	}
	return scanLead(q.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

func (q *pgQueries) ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error) {
	var customerID *string
	if filter.CustomerID != "" {
		id, err := NormalizeID(filter.CustomerID)
		if err != nil {
			return nil, err
		}
		customerID = &id
	}
	rows, err := q.db.Query(ctx, `SELECT `+leadColumns+` FROM leads
		WHERE ($1::uuid IS NULL OR customer_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC LIMIT $3`, customerID, filter.Status, limitOrDefault(filter.Limit))
	return collect(rows, err, scanLead)
}

func (q *pgQueries) UpdateLeadStatus(ctx context.Context, id, status string) (Lead, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return Lead{}, err
	}
	l, err := scanLead(q.db.QueryRow(ctx, `UPDATE leads SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+leadColumns, id, status))
	if err != nil {
		return Lead{}, err
	}
	q.changes.Emit(NewChange(TableLeads, realtime.OpUpdate, leadCustomer(l), l))
	return l, nil
}

func (q *pgQueries) DeleteLead(ctx context.Context, id string) error {
	id, err := NormalizeID(id)
	if err != nil {
		return err
	}
	l, err := scanLead(q.db.QueryRow(ctx, `DELETE FROM leads WHERE id = $1 RETURNING `+leadColumns, id))
	if err != nil {
		return err
	}
	q.changes.Emit(NewChange(TableLeads, realtime.OpDelete, leadCustomer(l), l))
	return nil
}

const photoColumns = `id, lead_id, url, caption, created_at`

func scanPhoto(row pgx.Row) (LeadPhoto, error) {
	var p LeadPhoto
	err := row.Scan(&p.ID, &p.LeadID, &p.URL, &p.Caption, &p.CreatedAt)
	return p, mapErr(err)
}

func (q *pgQueries) AddLeadPhoto(ctx context.Context, leadID, url string, caption *string) (LeadPhoto, error) {
	leadID, err := NormalizeID(leadID)
	if err != nil {
		return LeadPhoto{}, err
	}
	p, err := scanPhoto(q.db.QueryRow(ctx, `INSERT INTO lead_photos (lead_id, url, caption) VALUES ($1, $2, $3) RETURNING `+photoColumns, leadID, url, caption))
	if err != nil {
		return LeadPhoto{}, err
	}
	q.changes.Emit(NewChange(TableLeadPhotos, realtime.OpInsert, "", p))
	return p, nil
}

func (q *pgQueries) ListLeadPhotos(ctx context.Context, leadID string) ([]LeadPhoto, error) {
	leadID, err := NormalizeID(leadID)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+photoColumns+` FROM lead_photos WHERE lead_id = $1 ORDER BY created_at`, leadID)
	return collect(rows, err, scanPhoto)
}

const documentColumns = `id, customer_id, lead_id, external_id, external_url, price_cents, service_description, created_at, updated_at`

func documentDest(d *Document) []any {
	return []any{&d.ID, &d.CustomerID, &d.LeadID, &d.ExternalID, &d.ExternalURL, &d.PriceCents, &d.ServiceDescription, &d.CreatedAt, &d.UpdatedAt}
}

func scanEstimate(row pgx.Row) (Estimate, error) {
	var e Estimate
	err := row.Scan(documentDest(&e.Document)...)
	return e, mapErr(err)
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	dest := append(documentDest(&inv.Document), &inv.Status, &inv.ExternalStatus)
	err := row.Scan(dest...)
	return inv, mapErr(err)
}

func (q *pgQueries) CreateEstimate(ctx context.Context, f DocumentFields) (Estimate, error) {
	e, err := scanEstimate(q.db.QueryRow(ctx, `INSERT INTO estimates (customer_id, lead_id, external_id, external_url, price_cents, service_description)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+documentColumns,
		f.CustomerID, f.LeadID, f.ExternalID, f.ExternalURL, f.PriceCents, f.ServiceDescription))
	if err != nil {
		return Estimate{}, err
	}
	q.changes.Emit(NewChange(TableEstimates, realtime.OpInsert, e.CustomerID, e))
	return e, nil
}

func (q *pgQueries) ListEstimates(ctx context.Context, filter ListFilter) ([]Estimate, error) {
	customerID, err := optionalID(filter.CustomerID)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+documentColumns+` FROM estimates
		WHERE $1::uuid IS NULL OR customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limitOrDefault(filter.Limit))
	return collect(rows, err, scanEstimate)
}

func (q *pgQueries) CreateInvoice(ctx context.Context, f InvoiceFields) (Invoice, error) {
	inv, err := scanInvoice(q.db.QueryRow(ctx, `INSERT INTO invoices (customer_id, lead_id, external_id, external_url, price_cents, service_description, status, external_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+documentColumns+`, status, external_status`,
		f.CustomerID, f.LeadID, f.ExternalID, f.ExternalURL, f.PriceCents, f.ServiceDescription, f.Status, f.ExternalStatus))
	if err != nil {
		return Invoice{}, err
	}
	q.changes.Emit(NewChange(TableInvoices, realtime.OpInsert, inv.CustomerID, inv))
	return inv, nil
}

func (q *pgQueries) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return Invoice{}, err
	}
	return scanInvoice(q.db.QueryRow(ctx, `SELECT `+documentColumns+`, status, external_status FROM invoices WHERE id = $1`, id))
}

func (q *pgQueries) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	customerID, err := optionalID(filter.CustomerID)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+documentColumns+`, status, external_status FROM invoices
		WHERE $1::uuid IS NULL OR customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limitOrDefault(filter.Limit))
	return collect(rows, err, scanInvoice)
}

func (q *pgQueries) UpdateInvoiceStatus(ctx context.Context, id, status string, externalStatus *string) (Invoice, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := scanInvoice(q.db.QueryRow(ctx, `UPDATE invoices SET status = $2, external_status = COALESCE($3, external_status), updated_at = now()
		WHERE id = $1 RETURNING `+documentColumns+`, status, external_status`, id, status, externalStatus))
	if err != nil {
		return Invoice{}, err
	}
	q.changes.Emit(NewChange(TableInvoices, realtime.OpUpdate, inv.CustomerID, inv))
	return inv, nil
}

const messageColumns = `id, customer_id, direction, subject, body, from_address, to_address, status, scheduled_for, provider_id, error, reply_to_id, created_at`

func messageScanner(channel Channel) func(pgx.Row) (Message, error) {
	return func(row pgx.Row) (Message, error) {
		m := Message{Channel: channel}
		err := row.Scan(&m.ID, &m.CustomerID, &m.Direction, &m.Subject, &m.Body, &m.From, &m.To, &m.Status, &m.ScheduledFor, &m.ProviderID, &m.Error, &m.ReplyToID, &m.CreatedAt)
		return m, mapErr(err)
	}
}

func messageTable(channel Channel) (string, error) {
	table := channel.Table()
	if table == "" {
		return "", fmt.Errorf("%w: channel %q", ErrUnknownTable, channel)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func (q *pgQueries) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	table, err := messageTable(msg.Channel)
	if err != nil {
		return Message{}, err
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	m, err := messageScanner(msg.Channel)(q.db.QueryRow(ctx, `INSERT INTO `+table+` (customer_id, direction, subject, body, from_address, to_address, status, scheduled_for, provider_id, error, reply_to_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING `+messageColumns,
		msg.CustomerID, msg.Direction, msg.Subject, msg.Body, msg.From, msg.To, msg.Status, msg.ScheduledFor, msg.ProviderID, msg.Error, msg.ReplyToID, createdAt))
	if err != nil {
		return Message{}, err
	}
	q.changes.Emit(NewChange(msg.Channel.Table(), realtime.OpInsert, m.CustomerID, m))
	return m, nil
}

func (q *pgQueries) GetMessage(ctx context.Context, channel Channel, id string) (Message, error) {
	table, err := messageTable(channel)
	if err != nil {
		return Message{}, err
	}
	id, err = NormalizeID(id)
	if err != nil {
		return Message{}, err
	}
	return messageScanner(channel)(q.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM `+table+` WHERE id = $1`, id))
}

func (q *pgQueries) ListMessages(ctx context.Context, channel Channel, filter ListFilter) ([]Message, error) {
	table, err := messageTable(channel)
	if err != nil {
		return nil, err
	}
	customerID, err := optionalID(filter.CustomerID)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+messageColumns+` FROM `+table+`
		WHERE $1::uuid IS NULL OR customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limitOrDefault(filter.Limit))
	return collect(rows, err, messageScanner(channel))
}

func (q *pgQueries) ListDueMessages(ctx context.Context, channel Channel, before time.Time, limit int) ([]Message, error) {
	table, err := messageTable(channel)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+messageColumns+` FROM `+table+`
		WHERE status = 'scheduled' AND scheduled_for <= $1 ORDER BY scheduled_for LIMIT $2`, before, limitOrDefault(limit))
	return collect(rows, err, messageScanner(channel))
}

func (q *pgQueries) ClaimScheduledMessage(ctx context.Context, channel Channel, id string) (Message, bool, error) {
	table, err := messageTable(channel)
	if err != nil {
		return Message{}, false, err
	}
	id, err = NormalizeID(id)
	if err != nil {
		return Message{}, false, err
	}
	m, err := messageScanner(channel)(q.db.QueryRow(ctx, `UPDATE `+table+` SET status = 'sending'
		WHERE id = $1 AND status = 'scheduled' RETURNING `+messageColumns, id))
	if errors.Is(err, ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	q.changes.Emit(NewChange(channel.Table(), realtime.OpUpdate, m.CustomerID, m))
	return m, true, nil
}

func (q *pgQueries) UpdateMessageStatus(ctx context.Context, channel Channel, id string, u MessageStatusUpdate) (Message, error) {
	table, err := messageTable(channel)
	if err != nil {
		return Message{}, err
	}
	id, err = NormalizeID(id)
	if err != nil {
		return Message{}, err
	}
	m, err := messageScanner(channel)(q.db.QueryRow(ctx, `UPDATE `+table+` SET status = $2, provider_id = COALESCE($3, provider_id), error = $4
		WHERE id = $1 RETURNING `+messageColumns, id, u.Status, u.ProviderID, u.Error))
	if err != nil {
		return Message{}, err
	}
	q.changes.Emit(NewChange(channel.Table(), realtime.OpUpdate, m.CustomerID, m))
	return m, nil
}

func (q *pgQueries) DeleteScheduledMessage(ctx context.Context, channel Channel, id string) (bool, error) {
	table, err := messageTable(channel)
	if err != nil {
		return false, err
	}
	id, err = NormalizeID(id)
	if err != nil {
		return false, err
	}
	m, err := messageScanner(channel)(q.db.QueryRow(ctx, `DELETE FROM `+table+` WHERE id = $1 AND status = 'scheduled' RETURNING `+messageColumns, id))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.changes.Emit(NewChange(channel.Table(), realtime.OpDelete, m.CustomerID, m))
	return true, nil
}

const callColumns = `id, customer_id, direction, from_number, to_number, duration_seconds, outcome, notes, created_at`

func scanCall(row pgx.Row) (Call, error) {
	var c Call
	err := row.Scan(&c.ID, &c.CustomerID, &c.Direction, &c.FromNumber, &c.ToNumber, &c.DurationSeconds, &c.Outcome, &c.Notes, &c.CreatedAt)
	return c, mapErr(err)
}

func (q *pgQueries) InsertCall(ctx context.Context, call Call) (Call, error) {
	createdAt := call.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	c, err := scanCall(q.db.QueryRow(ctx, `INSERT INTO call_logs (customer_id, direction, from_number, to_number, duration_seconds, outcome, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING `+callColumns,
		call.CustomerID, call.Direction, call.FromNumber, call.ToNumber, call.DurationSeconds, call.Outcome, call.Notes, createdAt))
	if err != nil {
		return Call{}, err
	}
	q.changes.Emit(NewChange(TableCalls, realtime.OpInsert, c.CustomerID, c))
	return c, nil
}

func (q *pgQueries) ListCalls(ctx context.Context, filter ListFilter) ([]Call, error) {
	customerID, err := optionalID(filter.CustomerID)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+callColumns+` FROM call_logs
		WHERE $1::uuid IS NULL OR customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limitOrDefault(filter.Limit))
	return collect(rows, err, scanCall)
}

const activityColumns = `id, customer_id, entity_type, entity_id, action, description, metadata, created_at`

func scanActivity(row pgx.Row) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.CustomerID, &a.EntityType, &a.EntityID, &a.Action, &a.Description, &a.Metadata, &a.CreatedAt)
	return a, mapErr(err)
}

func (q *pgQueries) InsertActivity(ctx context.Context, entry Activity) (Activity, error) {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	a, err := scanActivity(q.db.QueryRow(ctx, `INSERT INTO activity_log (customer_id, entity_type, entity_id, action, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+activityColumns,
		entry.CustomerID, entry.EntityType, entry.EntityID, entry.Action, entry.Description, metadata))
	if err != nil {
		return Activity{}, err
	}
	q.changes.Emit(NewChange(TableActivity, realtime.OpInsert, a.CustomerID, a))
	return a, nil
}

func (q *pgQueries) ListActivities(ctx context.Context, filter ListFilter) ([]Activity, error) {
	customerID, err := optionalID(filter.CustomerID)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.Query(ctx, `SELECT `+activityColumns+` FROM activity_log
		WHERE $1::uuid IS NULL OR customer_id = $1 ORDER BY created_at DESC LIMIT $2`, customerID, limitOrDefault(filter.Limit))
	return collect(rows, err, scanActivity)
}

func optionalID(id string) (*string, error) {
	if id == "" {
		return nil, nil
	}
	normalized, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}
	return &normalized, nil
}

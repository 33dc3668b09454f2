// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/deckcrm/internal/realtime"
	"github.com/memohai/deckcrm/internal/store"
)

// Memory is an in-memory store.Store. It enforces the same foreign-key behavior as the
// schema (customer delete restricted, photos cascade with their lead), rolls back
// transactions that fail, and publishes changes like the Postgres store.
type Memory struct {
	mu        sync.Mutex
	state     *state
	publisher realtime.Publisher
	txChanges *store.ChangeBuffer
	failures  map[string]error
	writes    int

	// Now supplies timestamps for new rows. Defaults to time.Now.
	Now func() time.Time
}

type state struct {
	customers  map[string]store.Customer
	leads      map[string]store.Lead
	photos     map[string]store.LeadPhoto
	estimates  map[string]store.Estimate
	invoices   map[string]store.Invoice
	messages   map[store.Channel]map[string]store.Message
	calls      map[string]store.Call
	activities map[string]store.Activity
	seq        map[string]int64
	nextSeq    int64
}

func newState() *state {
	return &state{
		customers:  map[string]store.Customer{},
		leads:      map[string]store.Lead{},
		photos:     map[string]store.LeadPhoto{},
		estimates:  map[string]store.Estimate{},
		invoices:   map[string]store.Invoice{},
		messages:   map[store.Channel]map[string]store.Message{store.ChannelEmail: {}, store.ChannelSMS: {}},
		calls:      map[string]store.Call{},
		activities: map[string]store.Activity{},
		seq:        map[string]int64{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		customers:  cloneMap(s.customers),
		leads:      cloneMap(s.leads),
		photos:     cloneMap(s.photos),
		estimates:  cloneMap(s.estimates),
		invoices:   cloneMap(s.invoices),
		messages:   map[store.Channel]map[string]store.Message{store.ChannelEmail: cloneMap(s.messages[store.ChannelEmail]), store.ChannelSMS: cloneMap(s.messages[store.ChannelSMS])},
		calls:      cloneMap(s.calls),
		activities: cloneMap(s.activities),
		seq:        cloneMap(s.seq),
		nextSeq:    s.nextSeq,
	}
}

// NewMemory creates an empty store. publisher may be nil.
func NewMemory(publisher realtime.Publisher) *Memory {
	return &Memory{
		state:     newState(),
		publisher: publisher,
		failures:  map[string]error{},
	}
}

// FailOn makes the named operation return err. Reassignments can be targeted per table
// with "ReassignCustomer:<table>".
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Writes returns how many mutating calls were attempted.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	snapshot := m.state.clone()
	m.txChanges = store.NewChangeBuffer(m.publisher, true)
	m.mu.Unlock()

	err := fn(m)

	m.mu.Lock()
	changes := m.txChanges
	m.txChanges = nil
	if err != nil {
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	changes.Flush()
	return nil
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Memory) emit(change realtime.Change) {
	if m.txChanges != nil {
		m.txChanges.Emit(change)
		return
	}
	if m.publisher != nil {
		m.publisher.Publish(change)
	}
}

// begin locks the store and checks ctx and injected failures. Callers must unlock.
func (m *Memory) begin(ctx context.Context, op string, write bool) error {
	m.mu.Lock()
	if write {
		m.writes++
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.failures[op]; err != nil {
		return err
	}
	return nil
}

func (m *Memory) track(id string) {
	m.state.nextSeq++
	m.state.seq[id] = m.state.nextSeq
}

func newID() string {
	return uuid.NewString()
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func contains(haystack *string, needle string) bool {
	return haystack != nil && strings.Contains(strings.ToLower(*haystack), needle)
}

func limit[T any](items []T, n int) []T {
	if n <= 0 {
		n = store.DefaultListLimit
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

// newestFirst sorts by timestamp descending, newest insert first on ties.
func newestFirst[T any](m *Memory, items []T, at func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := at(items[i]), at(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return m.state.seq[id(items[i])] > m.state.seq[id(items[j])]
	})
}

func (m *Memory) customerExists(id string) bool {
	_, ok := m.state.customers[id]
	return ok
}

func (m *Memory) ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]store.Customer, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListCustomers", false); err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	items := make([]store.Customer, 0)
	for _, c := range m.state.customers {
		if query == "" || strings.Contains(strings.ToLower(c.FullName), query) || contains(c.Email, query) || contains(c.Phone, query) {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := strings.ToLower(items[i].FullName), strings.ToLower(items[j].FullName)
		if a != b {
			return a < b
		}
		return m.state.seq[items[i].ID] < m.state.seq[items[j].ID]
	})
	return limit(items, filter.Limit), nil
}

func (m *Memory) GetCustomer(ctx context.Context, id string) (store.Customer, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetCustomer", false); err != nil {
		return store.Customer{}, err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return store.Customer{}, err
	}
	c, ok := m.state.customers[id]
	if !ok {
		return store.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (m *Memory) FindCustomerByPhone(ctx context.Context, phone string) (store.Customer, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "FindCustomerByPhone", false); err != nil {
		return store.Customer{}, err
	}
	want := digits(phone)
	var found *store.Customer
	for _, c := range m.state.customers {
		if c.Phone == nil || want == "" || digits(*c.Phone) != want {
			continue
		}
		if found == nil || m.state.seq[c.ID] < m.state.seq[found.ID] {
			candidate := c
			found = &candidate
		}
	}
	if found == nil {
		return store.Customer{}, store.ErrNotFound
	}
	return *found, nil
}

// checkAccessToken mirrors the UNIQUE constraint on customers.access_token.
func (m *Memory) checkAccessToken(selfID string, token *string) error {
	if token == nil {
		return nil
	}
	for id, c := range m.state.customers {
		if id != selfID && c.AccessToken != nil && *c.AccessToken == *token {
			return fmt.Errorf("%w: access_token", store.ErrDuplicate)
		}
	}
	return nil
}

func (m *Memory) CreateCustomer(ctx context.Context, f store.CustomerFields) (store.Customer, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "CreateCustomer", true); err != nil {
		return store.Customer{}, err
	}
	if strings.TrimSpace(f.FullName) == "" {
		return store.Customer{}, fmt.Errorf("full_name violates not-empty check")
	}
	if err := m.checkAccessToken("", f.AccessToken); err != nil {
		return store.Customer{}, err
	}
	now := m.now()
	c := store.Customer{
		ID:            newID(),
		FullName:      f.FullName,
		Email:         f.Email,
		Phone:         f.Phone,
		Address:       f.Address,
		Language:      f.Language,
		InternalNotes: f.InternalNotes,
		AccessToken:   f.AccessToken,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c.Language == "" {
		c.Language = "en"
	}
	m.state.customers[c.ID] = c
	m.track(c.ID)
	m.emit(store.NewChange(store.TableCustomers, realtime.OpInsert, c.ID, c))
	return c, nil
}

func (m *Memory) UpdateCustomer(ctx context.Context, id string, f store.CustomerFields) (store.Customer, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateCustomer", true); err != nil {
		return store.Customer{}, err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return store.Customer{}, err
	}
	c, ok := m.state.customers[id]
	if !ok {
		return store.Customer{}, store.ErrNotFound
	}
	if strings.TrimSpace(f.FullName) == "" {
		return store.Customer{}, fmt.Errorf("full_name violates not-empty check")
	}
	if err := m.checkAccessToken(id, f.AccessToken); err != nil {
		return store.Customer{}, err
	}
	c.FullName = f.FullName
	c.Email = f.Email
	c.Phone = f.Phone
	c.Address = f.Address
	c.Language = f.Language
	c.InternalNotes = f.InternalNotes
	c.AccessToken = f.AccessToken
	c.UpdatedAt = m.now()
	m.state.customers[id] = c
	m.emit(store.NewChange(store.TableCustomers, realtime.OpUpdate, c.ID, c))
	return c, nil
}

func (m *Memory) DeleteCustomer(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "DeleteCustomer", true); err != nil {
		return err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return err
	}
	c, ok := m.state.customers[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, table := range store.DependentTables {
		if m.countLocked(table, id) > 0 {
			return fmt.Errorf("%w: %s", store.ErrHasDependents, table)
		}
	}
	delete(m.state.customers, id)
	m.emit(store.NewChange(store.TableCustomers, realtime.OpDelete, c.ID, c))
	return nil
}

func (m *Memory) countLocked(table, customerID string) int64 {
	var n int64
	switch table {
	case store.TableLeads:
		for _, l := range m.state.leads {
			if l.CustomerID != nil && *l.CustomerID == customerID {
				n++
			}
		}
	case store.TableEstimates:
		for _, e := range m.state.estimates {
			if e.CustomerID == customerID {
				n++
			}
		}
	case store.TableInvoices:
		for _, inv := range m.state.invoices {
			if inv.CustomerID == customerID {
				n++
			}
		}
	case store.TableEmails, store.TableSMS:
		channel := store.ChannelEmail
		if table == store.TableSMS {
			channel = store.ChannelSMS
		}
		for _, msg := range m.state.messages[channel] {
			if msg.CustomerID == customerID {
				n++
			}
		}
	case store.TableCalls:
		for _, c := range m.state.calls {
			if c.CustomerID == customerID {
				n++
			}
		}
	case store.TableActivity:
		for _, a := range m.state.activities {
			if a.CustomerID == customerID {
				n++
			}
		}
	}
	return n
}

func (m *Memory) CountByCustomer(ctx context.Context, table, customerID string) (int64, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "CountByCustomer", false); err != nil {
		return 0, err
	}
	if !store.IsDependentTable(table) {
		return 0, fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
	customerID, err := store.NormalizeID(customerID)
	if err != nil {
		return 0, err
	}
	return m.countLocked(table, customerID), nil
}

func (m *Memory) ReassignCustomer(ctx context.Context, table, fromID, toID string) (int64, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ReassignCustomer", true); err != nil {
		return 0, err
	}
	if err := m.failures["ReassignCustomer:"+table]; err != nil {
		return 0, err
	}
	if !store.IsDependentTable(table) {
		return 0, fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
	fromID, err := store.NormalizeID(fromID)
	if err != nil {
		return 0, err
	}
	toID, err = store.NormalizeID(toID)
	if err != nil {
		return 0, err
	}
	if !m.customerExists(toID) {
		return 0, store.ErrMissingReference
	}
	var n int64
	switch table {
	case store.TableLeads:
		for id, l := range m.state.leads {
			if l.CustomerID != nil && *l.CustomerID == fromID {
				target := toID
				l.CustomerID = &target
				m.state.leads[id] = l
				n++
			}
		}
	case store.TableEstimates:
		for id, e := range m.state.estimates {
			if e.CustomerID == fromID {
				e.CustomerID = toID
				m.state.estimates[id] = e
				n++
			}
		}
	case store.TableInvoices:
		for id, inv := range m.state.invoices {
			if inv.CustomerID == fromID {
				inv.CustomerID = toID
				m.state.invoices[id] = inv
				n++
			}
		}
	case store.TableEmails, store.TableSMS:
		channel := store.ChannelEmail
		if table == store.TableSMS {
			channel = store.ChannelSMS
		}
		for id, msg := range m.state.messages[channel] {
			if msg.CustomerID == fromID {
				msg.CustomerID = toID
				m.state.messages[channel][id] = msg
				n++
			}
		}
	case store.TableCalls:
		for id, c := range m.state.calls {
			if c.CustomerID == fromID {
				c.CustomerID = toID
				m.state.calls[id] = c
				n++
			}
		}
	case store.TableActivity:
		for id, a := range m.state.activities {
			if a.CustomerID == fromID {
				a.CustomerID = toID
				m.state.activities[id] = a
				n++
			}
		}
	}
	return n, nil
}

func (m *Memory) SyncLeadContacts(ctx context.Context, customerID string, contact store.ContactFields) (int64, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "SyncLeadContacts", true); err != nil {
		return 0, err
	}
	customerID, err := store.NormalizeID(customerID)
	if err != nil {
		return 0, err
	}
	var n int64
	for id, l := range m.state.leads {
		if l.CustomerID == nil || *l.CustomerID != customerID {
			continue
		}
		l.FullName = contact.FullName
		l.Email = contact.Email
		l.Phone = contact.Phone
		l.Address = contact.Address
		l.UpdatedAt = m.now()
		m.state.leads[id] = l
		m.emit(store.NewChange(store.TableLeads, realtime.OpUpdate, customerID, l))
		n++
	}
	return n, nil
}

func leadCustomer(l store.Lead) string {
	if l.CustomerID == nil {
		return ""
	}
	return *l.CustomerID
}

func (m *Memory) CreateLead(ctx context.Context, f store.LeadFields) (store.Lead, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "CreateLead", true); err != nil {
		return store.Lead{}, err
	}
	if f.CustomerID != nil && !m.customerExists(*f.CustomerID) {
		return store.Lead{}, store.ErrMissingReference
	}
	now := m.now()
	l := store.Lead{
		ID:           newID(),
		CustomerID:   f.CustomerID,
		FullName:     f.FullName,
		Email:        f.Email,
		Phone:        f.Phone,
		Address:      f.Address,
		Status:       f.Status,
		Source:       f.Source,
		Condition:    f.Condition,
		StainChoices: copyStrings(f.StainChoices),
		Notes:        f.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.state.leads[l.ID] = l
	m.track(l.ID)
	m.emit(store.NewChange(store.TableLeads, realtime.OpInsert, leadCustomer(l), l))
	return l, nil
}

func (m *Memory) GetLead(ctx context.Context, id string) (store.Lead, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetLead", false); err != nil {
		return store.Lead{}, err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return store.Lead{}, err
	}
	l, ok := m.state.leads[id]
	if !ok {
		return store.Lead{}, store.ErrNotFound
	}
	return l, nil
}

func (m *Memory) ListLeads(ctx context.Context, filter store.LeadFilter) ([]store.Lead, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListLeads", false); err != nil {
		return nil, err
	}
	items := make([]store.Lead, 0)
	for _, l := range m.state.leads {
		if filter.CustomerID != "" && leadCustomer(l) != filter.CustomerID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		items = append(items, l)
	}
	newestFirst(m, items, func(l store.Lead) time.Time { return l.CreatedAt }, func(l store.Lead) string { return l.ID })
	return limit(items, filter.Limit), nil
}

func (m *Memory) UpdateLeadStatus(ctx context.Context, id, status string) (store.Lead, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateLeadStatus", true); err != nil {
		return store.Lead{}, err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return store.Lead{}, err
	}
	l, ok := m.state.leads[id]
	if !ok {
		return store.Lead{}, store.ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = m.now()
	m.state.leads[id] = l
	m.emit(store.NewChange(store.TableLeads, realtime.OpUpdate, leadCustomer(l), l))
	return l, nil
}

func (m *Memory) DeleteLead(ctx context.Context, id string) error {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "DeleteLead", true); err != nil {
		return err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return err
	}
	l, ok := m.state.leads[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(m.state.leads, id)
	for photoID, p := range m.state.photos {
		if p.LeadID == id {
			delete(m.state.photos, photoID)
		}
	}
	for docID, e := range m.state.estimates {
		if e.LeadID != nil && *e.LeadID == id {
			e.LeadID = nil
			m.state.estimates[docID] = e
		}
	}
	for docID, inv := range m.state.invoices {
		if inv.LeadID != nil && *inv.LeadID == id {
			inv.LeadID = nil
			m.state.invoices[docID] = inv
		}
	}
	m.emit(store.NewChange(store.TableLeads, realtime.OpDelete, leadCustomer(l), l))
	return nil
}

func (m *Memory) AddLeadPhoto(ctx context.Context, leadID, url string, caption *string) (store.LeadPhoto, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "AddLeadPhoto", true); err != nil {
		return store.LeadPhoto{}, err
	}
	leadID, err := store.NormalizeID(leadID)
	if err != nil {
		return store.LeadPhoto{}, err
	}
	if _, ok := m.state.leads[leadID]; !ok {
		return store.LeadPhoto{}, store.ErrMissingReference
	}
	p := store.LeadPhoto{ID: newID(), LeadID: leadID, URL: url, Caption: caption, CreatedAt: m.now()}
	m.state.photos[p.ID] = p
	m.track(p.ID)
	m.emit(store.NewChange(store.TableLeadPhotos, realtime.OpInsert, "", p))
	return p, nil
}

func (m *Memory) ListLeadPhotos(ctx context.Context, leadID string) ([]store.LeadPhoto, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListLeadPhotos", false); err != nil {
		return nil, err
	}
	items := make([]store.LeadPhoto, 0)
	for _, p := range m.state.photos {
		if p.LeadID == leadID {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool { return m.state.seq[items[i].ID] < m.state.seq[items[j].ID] })
	return items, nil
}

func (m *Memory) checkDocumentRefs(f store.DocumentFields) error {
	if !m.customerExists(f.CustomerID) {
		return store.ErrMissingReference
	}
	if f.LeadID != nil {
		if _, ok := m.state.leads[*f.LeadID]; !ok {
			return store.ErrMissingReference
		}
	}
	return nil
}

func newDocument(f store.DocumentFields, now time.Time) store.Document {
	return store.Document{
		ID:                 newID(),
		CustomerID:         f.CustomerID,
		LeadID:             f.LeadID,
		ExternalID:         f.ExternalID,
		ExternalURL:        f.ExternalURL,
		PriceCents:         f.PriceCents,
		ServiceDescription: f.ServiceDescription,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (m *Memory) CreateEstimate(ctx context.Context, f store.DocumentFields) (store.Estimate, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "CreateEstimate", true); err != nil {
		return store.Estimate{}, err
	}
	if err := m.checkDocumentRefs(f); err != nil {
		return store.Estimate{}, err
	}
	e := store.Estimate{Document: newDocument(f, m.now())}
	m.state.estimates[e.ID] = e
	m.track(e.ID)
	m.emit(store.NewChange(store.TableEstimates, realtime.OpInsert, e.CustomerID, e))
	return e, nil
}

func (m *Memory) ListEstimates(ctx context.Context, filter store.ListFilter) ([]store.Estimate, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListEstimates", false); err != nil {
		return nil, err
	}
	items := make([]store.Estimate, 0)
	for _, e := range m.state.estimates {
		if filter.CustomerID == "" || e.CustomerID == filter.CustomerID {
			items = append(items, e)
		}
	}
	newestFirst(m, items, func(e store.Estimate) time.Time { return e.CreatedAt }, func(e store.Estimate) string { return e.ID })
	return limit(items, filter.Limit), nil
}

func (m *Memory) CreateInvoice(ctx context.Context, f store.InvoiceFields) (store.Invoice, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "CreateInvoice", true); err != nil {
		return store.Invoice{}, err
	}
	if err := m.checkDocumentRefs(f.DocumentFields); err != nil {
		return store.Invoice{}, err
	}
	inv := store.Invoice{Document: newDocument(f.DocumentFields, m.now()), Status: f.Status, ExternalStatus: f.ExternalStatus}
	m.state.invoices[inv.ID] = inv
	m.track(inv.ID)
	m.emit(store.NewChange(store.TableInvoices, realtime.OpInsert, inv.CustomerID, inv))
	return inv, nil
}

func (m *Memory) GetInvoice(ctx context.Context, id string) (store.Invoice, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetInvoice", false); err != nil {
		return store.Invoice{}, err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return store.Invoice{}, err
	}
	inv, ok := m.state.invoices[id]
	if !ok {
		return store.Invoice{}, store.ErrNotFound
	}
	return inv, nil
}

func (m *Memory) ListInvoices(ctx context.Context, filter store.ListFilter) ([]store.Invoice, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListInvoices", false); err != nil {
		return nil, err
	}
	items := make([]store.Invoice, 0)
	for _, inv := range m.state.invoices {
		if filter.CustomerID == "" || inv.CustomerID == filter.CustomerID {
			items = append(items, inv)
		}
	}
	newestFirst(m, items, func(i store.Invoice) time.Time { return i.CreatedAt }, func(i store.Invoice) string { return i.ID })
	return limit(items, filter.Limit), nil
}

func (m *Memory) UpdateInvoiceStatus(ctx context.Context, id, status string, externalStatus *string) (store.Invoice, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateInvoiceStatus", true); err != nil {
		return store.Invoice{}, err
	}
	id, err := store.NormalizeID(id)
	if err != nil {
		return store.Invoice{}, err
	}
	inv, ok := m.state.invoices[id]
	if !ok {
		return store.Invoice{}, store.ErrNotFound
	}
	inv.Status = status
	if externalStatus != nil {
		inv.ExternalStatus = externalStatus
	}
	inv.UpdatedAt = m.now()
	m.state.invoices[id] = inv
	m.emit(store.NewChange(store.TableInvoices, realtime.OpUpdate, inv.CustomerID, inv))
	return inv, nil
}

func (m *Memory) messageTable(channel store.Channel) (map[string]store.Message, error) {
	table, ok := m.state.messages[channel]
	if !ok {
		return nil, fmt.Errorf("%w: channel %q", store.ErrUnknownTable, channel)
	}
	return table, nil
}

func (m *Memory) InsertMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "InsertMessage", true); err != nil {
		return store.Message{}, err
	}
	table, err := m.messageTable(msg.Channel)
	if err != nil {
		return store.Message{}, err
	}
	if !m.customerExists(msg.CustomerID) {
		return store.Message{}, store.ErrMissingReference
	}
	msg.ID = newID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	table[msg.ID] = msg
	m.track(msg.ID)
	m.emit(store.NewChange(msg.Channel.Table(), realtime.OpInsert, msg.CustomerID, msg))
	return msg, nil
}

func (m *Memory) GetMessage(ctx context.Context, channel store.Channel, id string) (store.Message, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "GetMessage", false); err != nil {
		return store.Message{}, err
	}
	table, err := m.messageTable(channel)
	if err != nil {
		return store.Message{}, err
	}
	id, err = store.NormalizeID(id)
	if err != nil {
		return store.Message{}, err
	}
	msg, ok := table[id]
	if !ok {
		return store.Message{}, store.ErrNotFound
	}
	return msg, nil
}

func (m *Memory) ListMessages(ctx context.Context, channel store.Channel, filter store.ListFilter) ([]store.Message, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListMessages", false); err != nil {
		return nil, err
	}
	table, err := m.messageTable(channel)
	if err != nil {
		return nil, err
	}
	items := make([]store.Message, 0)
	for _, msg := range table {
		if filter.CustomerID == "" || msg.CustomerID == filter.CustomerID {
			items = append(items, msg)
		}
	}
	newestFirst(m, items, func(msg store.Message) time.Time { return msg.CreatedAt }, func(msg store.Message) string { return msg.ID })
	return limit(items, filter.Limit), nil
}

func (m *Memory) ListDueMessages(ctx context.Context, channel store.Channel, before time.Time, n int) ([]store.Message, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListDueMessages", false); err != nil {
		return nil, err
	}
	table, err := m.messageTable(channel)
	if err != nil {
		return nil, err
	}
	items := make([]store.Message, 0)
	for _, msg := range table {
		if msg.Status == store.StatusScheduled && msg.ScheduledFor != nil && !msg.ScheduledFor.After(before) {
			items = append(items, msg)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledFor.Equal(*items[j].ScheduledFor) {
			return items[i].ScheduledFor.Before(*items[j].ScheduledFor)
		}
		return m.state.seq[items[i].ID] < m.state.seq[items[j].ID]
	})
	return limit(items, n), nil
}

func (m *Memory) ClaimScheduledMessage(ctx context.Context, channel store.Channel, id string) (store.Message, bool, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ClaimScheduledMessage", true); err != nil {
		return store.Message{}, false, err
	}
	table, err := m.messageTable(channel)
	if err != nil {
		return store.Message{}, false, err
	}
	id, err = store.NormalizeID(id)
	if err != nil {
		return store.Message{}, false, err
	}
	msg, ok := table[id]
	if !ok || msg.Status != store.StatusScheduled {
		return store.Message{}, false, nil
	}
	msg.Status = store.StatusSending
	table[id] = msg
	m.emit(store.NewChange(channel.Table(), realtime.OpUpdate, msg.CustomerID, msg))
	return msg, true, nil
}

func (m *Memory) UpdateMessageStatus(ctx context.Context, channel store.Channel, id string, u store.MessageStatusUpdate) (store.Message, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "UpdateMessageStatus", true); err != nil {
		return store.Message{}, err
	}
	table, err := m.messageTable(channel)
	if err != nil {
		return store.Message{}, err
	}
	id, err = store.NormalizeID(id)
	if err != nil {
		return store.Message{}, err
	}
	msg, ok := table[id]
	if !ok {
		return store.Message{}, store.ErrNotFound
	}
	msg.Status = u.Status
	if u.ProviderID != nil {
		msg.ProviderID = u.ProviderID
	}
	msg.Error = u.Error
	table[id] = msg
	m.emit(store.NewChange(channel.Table(), realtime.OpUpdate, msg.CustomerID, msg))
	return msg, nil
}

func (m *Memory) DeleteScheduledMessage(ctx context.Context, channel store.Channel, id string) (bool, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "DeleteScheduledMessage", true); err != nil {
		return false, err
	}
	table, err := m.messageTable(channel)
	if err != nil {
		return false, err
	}
	id, err = store.NormalizeID(id)
	if err != nil {
		return false, err
	}
	msg, ok := table[id]
	if !ok || msg.Status != store.StatusScheduled {
		return false, nil
	}
	delete(table, id)
	m.emit(store.NewChange(channel.Table(), realtime.OpDelete, msg.CustomerID, msg))
	return true, nil
}

func (m *Memory) InsertCall(ctx context.Context, call store.Call) (store.Call, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "InsertCall", true); err != nil {
		return store.Call{}, err
	}
	if !m.customerExists(call.CustomerID) {
		return store.Call{}, store.ErrMissingReference
	}
	call.ID = newID()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = m.now()
	}
	m.state.calls[call.ID] = call
	m.track(call.ID)
	m.emit(store.NewChange(store.TableCalls, realtime.OpInsert, call.CustomerID, call))
	return call, nil
}

func (m *Memory) ListCalls(ctx context.Context, filter store.ListFilter) ([]store.Call, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListCalls", false); err != nil {
		return nil, err
	}
	items := make([]store.Call, 0)
	for _, c := range m.state.calls {
		if filter.CustomerID == "" || c.CustomerID == filter.CustomerID {
			items = append(items, c)
		}
	}
	newestFirst(m, items, func(c store.Call) time.Time { return c.CreatedAt }, func(c store.Call) string { return c.ID })
	return limit(items, filter.Limit), nil
}

func (m *Memory) InsertActivity(ctx context.Context, entry store.Activity) (store.Activity, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "InsertActivity", true); err != nil {
		return store.Activity{}, err
	}
	if !m.customerExists(entry.CustomerID) {
		return store.Activity{}, store.ErrMissingReference
	}
	entry.ID = newID()
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.CreatedAt = m.now()
	m.state.activities[entry.ID] = entry
	m.track(entry.ID)
	m.emit(store.NewChange(store.TableActivity, realtime.OpInsert, entry.CustomerID, entry))
	return entry, nil
}

func (m *Memory) ListActivities(ctx context.Context, filter store.ListFilter) ([]store.Activity, error) {
	defer m.mu.Unlock()
	if err := m.begin(ctx, "ListActivities", false); err != nil {
		return nil, err
	}
	items := make([]store.Activity, 0)
	for _, a := range m.state.activities {
		if filter.CustomerID == "" || a.CustomerID == filter.CustomerID {
			items = append(items, a)
		}
	}
	newestFirst(m, items, func(a store.Activity) time.Time { return a.CreatedAt }, func(a store.Activity) string { return a.ID })
	return limit(items, filter.Limit), nil
}

var _ store.Store = (*Memory)(nil)

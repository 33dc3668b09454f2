package store

import "time"

// Table names. They double as realtime change table identifiers.
const (
	TableCustomers  = "customers"
	TableLeads      = "leads"
	TableLeadPhotos = "lead_photos"
	TableEstimates  = "estimates"
	TableInvoices   = "invoices"
	TableEmails     = "email_logs"
	TableSMS        = "sms_logs"
	TableCalls      = "call_logs"
	TableActivity   = "activity_log"
)

// DependentTables lists every table holding a customer_id foreign key.
var DependentTables = []string{
	TableLeads,
	TableEstimates,
	TableInvoices,
	TableEmails,
	TableSMS,
	TableCalls,
	TableActivity,
}

// Direction of a communication or timeline event.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionSystem   = "system"
)

// Message statuses.
const (
	StatusScheduled = "scheduled"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusReceived  = "received"
)

// Channel selects the email or SMS log table.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Table returns the log table backing the channel, or "" if unknown.
func (c Channel) Table() string {
	switch c {
	case ChannelEmail:
		return TableEmails
	case ChannelSMS:
		return TableSMS
	default:
		return ""
	}
}

type Customer struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Email         *string   `json:"email"`
	Phone         *string   `json:"phone"`
	Address       *string   `json:"address"`
	Language      string    `json:"language"`
	InternalNotes *string   `json:"internal_notes"`
	AccessToken   *string   `json:"access_token,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CustomerFields is the full writable state of a customer.
type CustomerFields struct {
	FullName      string
	Email         *string
	Phone         *string
	Address       *string
	Language      string
	InternalNotes *string
	AccessToken   *string
}

// Fields returns the writable state of c.
func (c Customer) Fields() CustomerFields {
	return CustomerFields{
		FullName:      c.FullName,
		Email:         c.Email,
		Phone:         c.Phone,
		Address:       c.Address,
		Language:      c.Language,
		InternalNotes: c.InternalNotes,
		AccessToken:   c.AccessToken,
	}
}

// ContactFields are the customer fields copied onto linked leads.
type ContactFields struct {
	FullName string
	Email    *string
	Phone    *string
	Address  *string
}

type Lead struct {
	ID           string    `json:"id"`
	CustomerID   *string   `json:"customer_id"`
	FullName     string    `json:"full_name"`
	Email        *string   `json:"email"`
	Phone        *string   `json:"phone"`
	Address      *string   `json:"address"`
	Status       string    `json:"status"`
	Source       *string   `json:"source"`
	Condition    *string   `json:"condition"`
	StainChoices []string  `json:"stain_choices"`
	Notes        *string   `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type LeadFields struct {
	CustomerID   *string
	FullName     string
	Email        *string
	Phone        *string
	Address      *string
	Status       string
	Source       *string
	Condition    *string
	StainChoices []string
	Notes        *string
}

type LeadPhoto struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	URL       string    `json:"url"`
	Caption   *string   `json:"caption"`
	CreatedAt time.Time `json:"created_at"`
}

// Document holds the columns shared by estimates and invoices.
type Document struct {
	ID                 string    `json:"id"`
	CustomerID         string    `json:"customer_id"`
	LeadID             *string   `json:"lead_id"`
	ExternalID         *string   `json:"external_id"`
	ExternalURL        *string   `json:"external_url"`
	PriceCents         int64     `json:"price_cents"`
	ServiceDescription *string   `json:"service_description"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type DocumentFields struct {
	CustomerID         string
	LeadID             *string
	ExternalID         *string
	ExternalURL        *string
	PriceCents         int64
	ServiceDescription *string
}

type Estimate struct {
	Document
}

type Invoice struct {
	Document
	Status         string  `json:"status"`
	ExternalStatus *string `json:"external_status"`
}

type InvoiceFields struct {
	DocumentFields
	Status         string
	ExternalStatus *string
}

// Message is one row of email_logs or sms_logs.
type Message struct {
	ID           string     `json:"id"`
	Channel      Channel    `json:"channel"`
	CustomerID   string     `json:"customer_id"`
	Direction    string     `json:"direction"`
	Subject      *string    `json:"subject"`
	Body         string     `json:"body"`
	From         *string    `json:"from_address"`
	To           *string    `json:"to_address"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for"`
	ProviderID   *string    `json:"provider_id"`
	Error        *string    `json:"error"`
	ReplyToID    *string    `json:"reply_to_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

type MessageStatusUpdate struct {
	Status     string
	ProviderID *string
	Error      *string
}

type Call struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	Direction       string    `json:"direction"`
	FromNumber      *string   `json:"from_number"`
	ToNumber        *string   `json:"to_number"`
	DurationSeconds int       `json:"duration_seconds"`
	Outcome         *string   `json:"outcome"`
	Notes           *string   `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}

type Activity struct {
	ID          string         `json:"id"`
	CustomerID  string         `json:"customer_id"`
	EntityType  string         `json:"entity_type"`
	EntityID    *string        `json:"entity_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

type CustomerFilter struct {
	Query string
	Limit int
}

type LeadFilter struct {
	CustomerID string
	Status     string
	Limit      int
}

// ListFilter scopes a listing to one customer when CustomerID is set.
type ListFilter struct {
	CustomerID string
	Limit      int
}

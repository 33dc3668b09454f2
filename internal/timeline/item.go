package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/memohai/deckcrm/internal/realtime"
	"github.com/memohai/deckcrm/internal/store"
)

type ItemType string

const (
	TypeEmail    ItemType = "email"
	TypeSMS      ItemType = "sms"
	TypeCall     ItemType = "call"
	TypeLead     ItemType = "lead"
	TypeEstimate ItemType = "estimate"
	TypeInvoice  ItemType = "invoice"
)

// Item is one entry of the communications timeline. Items from different tables may share
// an id, so identity is the (id, type) pair.
type Item struct {
	ID          string         `json:"id"`
	Type        ItemType       `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Direction   string         `json:"direction"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	CustomerID  string         `json:"customer_id,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

type Key struct {
	ID   string   `json:"id"`
	Type ItemType `json:"type"`
}

func (i Item) Key() Key {
	return Key{ID: i.ID, Type: i.Type}
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// tableTypes maps store tables onto the item type they produce.
var tableTypes = map[string]ItemType{
	store.TableEmails:    TypeEmail,
	store.TableSMS:       TypeSMS,
	store.TableCalls:     TypeCall,
	store.TableLeads:     TypeLead,
	store.TableEstimates: TypeEstimate,
	store.TableInvoices:  TypeInvoice,
}

// Tables lists the tables feeding the timeline.
func Tables() []string {
	return []string{
		store.TableEmails,
		store.TableSMS,
		store.TableCalls,
		store.TableLeads,
		store.TableEstimates,
		store.TableInvoices,
	}
}

type metadata map[string]any

func (m metadata) put(key string, value *string) {
	if value != nil && *value != "" {
		m[key] = *value
	}
}

func (m metadata) putTime(key string, value *time.Time) {
	if value != nil {
		m[key] = value.UTC()
	}
}

func orDefault(value *string, fallback string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return fallback
	}
	return *value
}

func FromMessage(msg store.Message) Item {
	meta := metadata{"status": msg.Status}
	meta.put("from", msg.From)
	meta.put("to", msg.To)
	meta.putTime("scheduled_for", msg.ScheduledFor)
	meta.put("reply_to_id", msg.ReplyToID)
	meta.put("provider_id", msg.ProviderID)
	meta.put("error", msg.Error)

	item := Item{
		ID:          msg.ID,
		Timestamp:   msg.CreatedAt,
		Direction:   msg.Direction,
		Description: msg.Body,
		CustomerID:  msg.CustomerID,
		Metadata:    meta,
	}
	if msg.Channel == store.ChannelSMS {
		item.Type = TypeSMS
		item.Title = "Text message"
		return item
	}
	item.Type = TypeEmail
	item.Title = orDefault(msg.Subject, "(no subject)")
	meta.put("subject", msg.Subject)
	return item
}

func FromCall(call store.Call) Item {
	meta := metadata{"duration_seconds": call.DurationSeconds}
	meta.put("from", call.FromNumber)
	meta.put("to", call.ToNumber)
	meta.put("outcome", call.Outcome)

	title := "Call"
	switch call.Direction {
	case store.DirectionInbound:
		title = "Inbound call"
	case store.DirectionOutbound:
		title = "Outbound call"
	}
	return Item{
		ID:          call.ID,
		Type:        TypeCall,
		Timestamp:   call.CreatedAt,
		Direction:   call.Direction,
		Title:       title,
		Description: orDefault(call.Notes, orDefault(call.Outcome, "")),
		CustomerID:  call.CustomerID,
		Metadata:    meta,
	}
}

func FromLead(lead store.Lead) Item {
	meta := metadata{"status": lead.Status, "full_name": lead.FullName}
	meta.put("source", lead.Source)
	meta.put("condition", lead.Condition)
	if len(lead.StainChoices) > 0 {
		meta["stain_choices"] = lead.StainChoices
	}
	item := Item{
		ID:          lead.ID,
		Type:        TypeLead,
		Timestamp:   lead.CreatedAt,
		Direction:   store.DirectionSystem,
		Title:       "Lead " + strings.ReplaceAll(lead.Status, "_", " "),
		Description: orDefault(lead.Notes, lead.FullName),
		Metadata:    meta,
	}
	if lead.CustomerID != nil {
		item.CustomerID = *lead.CustomerID
	}
	return item
}

func documentMeta(d store.Document) metadata {
	meta := metadata{"price_cents": d.PriceCents}
	meta.put("external_id", d.ExternalID)
	meta.put("external_url", d.ExternalURL)
	meta.put("lead_id", d.LeadID)
	return meta
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func FromEstimate(e store.Estimate) Item {
	return Item{
		ID:          e.ID,
		Type:        TypeEstimate,
		Timestamp:   e.CreatedAt,
		Direction:   store.DirectionSystem,
		Title:       "Estimate " + formatCents(e.PriceCents),
		Description: orDefault(e.ServiceDescription, ""),
		CustomerID:  e.CustomerID,
		Metadata:    documentMeta(e.Document),
	}
}

func FromInvoice(inv store.Invoice) Item {
	meta := documentMeta(inv.Document)
	meta["status"] = inv.Status
	meta.put("external_status", inv.ExternalStatus)
	return Item{
		ID:          inv.ID,
		Type:        TypeInvoice,
		Timestamp:   inv.CreatedAt,
		Direction:   store.DirectionSystem,
		Title:       fmt.Sprintf("Invoice %s (%s)", formatCents(inv.PriceCents), strings.ReplaceAll(inv.Status, "_", " ")),
		Description: orDefault(inv.ServiceDescription, ""),
		CustomerID:  inv.CustomerID,
		Metadata:    meta,
	}
}

// FromChange decodes the record carried by a realtime change. ok is false for tables that
// do not feed the timeline.
func FromChange(change realtime.Change) (item Item, ok bool, err error) {
	itemType, ok := tableTypes[change.Table]
	if !ok {
		return Item{}, false, nil
	}
	if len(change.Record) == 0 {
		return Item{}, true, fmt.Errorf("change on %s carries no record", change.Table)
	}
	switch itemType {
	case TypeEmail, TypeSMS:
		var msg store.Message
		if err := json.Unmarshal(change.Record, &msg); err != nil {
			return Item{}, true, err
		}
		msg.Channel = store.ChannelEmail
		if itemType == TypeSMS {
			msg.Channel = store.ChannelSMS
		}
		return FromMessage(msg), true, nil
	case TypeCall:
		var call store.Call
		if err := json.Unmarshal(change.Record, &call); err != nil {
			return Item{}, true, err
		}
		return FromCall(call), true, nil
	case TypeLead:
		var lead store.Lead
		if err := json.Unmarshal(change.Record, &lead); err != nil {
			return Item{}, true, err
		}
		return FromLead(lead), true, nil
	case TypeEstimate:
		var e store.Estimate
		if err := json.Unmarshal(change.Record, &e); err != nil {
			return Item{}, true, err
		}
		return FromEstimate(e), true, nil
	default:
		var inv store.Invoice
		if err := json.Unmarshal(change.Record, &inv); err != nil {
			return Item{}, true, err
		}
		return FromInvoice(inv), true, nil
	}
}

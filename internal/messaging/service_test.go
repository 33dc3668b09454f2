package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/store"
	"github.com/memohai/deckcrm/internal/store/storetest"
)

func strPtr(s string) *string { return &s }

type fakeEmail struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, email Email) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, email)
	return "mail-" + email.To, nil
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, from, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, from+">"+to+":"+body)
	return "SM123", nil
}

type harness struct {
	mem      *storetest.Memory
	email    *fakeEmail
	sms      *fakeSMS
	svc      *Service
	customer store.Customer
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := storetest.NewMemory(nil)
	customer, err := mem.CreateCustomer(context.Background(), store.CustomerFields{
		FullName: "Ana",
		Email:    strPtr("ana@example.com"),
		Phone:    strPtr("+1 (555) 000-1111"),
	})
	require.NoError(t, err)
	h := &harness{
		mem:      mem,
		email:    &fakeEmail{},
		sms:      &fakeSMS{},
		customer: customer,
		now:      time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(logger.Nop(), mem, h.email, h.sms, Options{EmailFrom: "crm@deck.test", SMSFrom: "+15559999999", SendTimeout: time.Second})
	h.svc.nowFunc = func() time.Time { return h.now }
	return h
}

func TestSendSMSNow(t *testing.T) {
	h := newHarness(t)
	msg, err := h.svc.Send(context.Background(), SendRequest{CustomerID: h.customer.ID, Type: store.ChannelSMS, Message: " On our way "})
	require.NoError(t, err)

	assert.Equal(t, store.StatusSent, msg.Status)
	assert.Equal(t, "SM123", *msg.ProviderID)
	assert.Equal(t, []string{"+15559999999>+1 (555) 000-1111:On our way"}, h.sms.sent)
}

func TestSendEmailReplyThreadsProviderID(t *testing.T) {
	h := newHarness(t)
	first, err := h.svc.Send(context.Background(), SendRequest{CustomerID: h.customer.ID, Type: store.ChannelEmail, Subject: strPtr("Quote"), Message: "Attached"})
	require.NoError(t, err)

	_, err = h.svc.Send(context.Background(), SendRequest{CustomerID: h.customer.ID, Type: store.ChannelEmail, Message: "Following up", ReplyToID: &first.ID})
	require.NoError(t, err)

	require.Len(t, h.email.sent, 2)
	assert.Equal(t, "Quote", h.email.sent[0].Subject)
	assert.Equal(t, "(no subject)", h.email.sent[1].Subject)
	assert.Equal(t, "mail-ana@example.com", h.email.sent[1].InReplyTo)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	cases := []SendRequest{
		{CustomerID: h.customer.ID, Type: "fax", Message: "x"},
		{CustomerID: "", Type: store.ChannelSMS, Message: "x"},
		{CustomerID: h.customer.ID, Type: store.ChannelSMS, Message: "  "},
		{CustomerID: h.customer.ID, Type: store.ChannelSMS, Message: "x", ReplyToID: strPtr("nope")},
	}
	for _, req := range cases {
		_, err := h.svc.Send(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Empty(t, h.sms.sent)
}

func TestSendWithoutRecipient(t *testing.T) {
	h := newHarness(t)
	bare, err := h.mem.CreateCustomer(context.Background(), store.CustomerFields{FullName: "No Contact"})
	require.NoError(t, err)

	_, err = h.svc.Send(context.Background(), SendRequest{CustomerID: bare.ID, Type: store.ChannelEmail, Message: "hi"})
	require.ErrorIs(t, err, ErrNoRecipient)
}

func TestSendFailureIsStored(t *testing.T) {
	h := newHarness(t)
	h.sms.err = errors.New("carrier rejected")

	msg, err := h.svc.Send(context.Background(), SendRequest{CustomerID: h.customer.ID, Type: store.ChannelSMS, Message: "hi"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, store.StatusFailed, msg.Status)
	assert.Contains(t, *msg.Error, "carrier rejected")

	stored, err := h.mem.GetMessage(context.Background(), store.ChannelSMS, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, stored.Status)
}

func TestScheduleCancelAndDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	later := h.now.Add(time.Hour)

	keep, err := h.svc.Send(ctx, SendRequest{CustomerID: h.customer.ID, Type: store.ChannelSMS, Message: "reminder", ScheduledTime: &later})
	require.NoError(t, err)
	assert.Equal(t, store.StatusScheduled, keep.Status)
	drop, err := h.svc.Send(ctx, SendRequest{CustomerID: h.customer.ID, Type: store.ChannelSMS, Message: "oops", ScheduledTime: &later})
	require.NoError(t, err)
	assert.Empty(t, h.sms.sent)

	require.NoError(t, h.svc.Cancel(ctx, store.ChannelSMS, drop.ID))
	_, err = h.mem.GetMessage(ctx, store.ChannelSMS, drop.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	result, err := h.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{}, result)

	h.now = later.Add(time.Second)
	result, err = h.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Sent: 1}, result)
	assert.Equal(t, []string{"+15559999999>+1 (555) 000-1111:reminder"}, h.sms.sent)

	sent, err := h.mem.GetMessage(ctx, store.ChannelSMS, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSent, sent.Status)

	require.ErrorIs(t, h.svc.Cancel(ctx, store.ChannelSMS, keep.ID), ErrNotCancellable)
}

func TestCancelUnknownMessage(t *testing.T) {
	h := newHarness(t)
	err := h.svc.Cancel(context.Background(), store.ChannelEmail, "0f8fad5b-d9cb-469f-a165-70867728950e")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDispatchMarksFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	soon := h.now.Add(time.Minute)
	msg, err := h.svc.Send(ctx, SendRequest{CustomerID: h.customer.ID, Type: store.ChannelEmail, Message: "hi", ScheduledTime: &soon})
	require.NoError(t, err)

	h.email.err = errors.New("smtp down")
	h.now = soon
	result, err := h.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Failed: 1}, result)

	stored, err := h.mem.GetMessage(ctx, store.ChannelEmail, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, stored.Status)
	assert.Equal(t, "smtp down", *stored.Error)
}

func TestReceiveSMSMatchesByPhone(t *testing.T) {
	h := newHarness(t)
	msg, err := h.svc.ReceiveSMS(context.Background(), InboundSMS{From: "+15550001111", To: "+15559999999", Body: "Yes please", ProviderID: "SMin"})
	require.NoError(t, err)
	assert.Equal(t, h.customer.ID, msg.CustomerID)
	assert.Equal(t, store.DirectionInbound, msg.Direction)
	assert.Equal(t, store.StatusReceived, msg.Status)

	_, err = h.svc.ReceiveSMS(context.Background(), InboundSMS{From: "+19998887777", Body: "who?"})
	require.ErrorIs(t, err, ErrUnknownSender)
}

func TestLogCall(t *testing.T) {
	h := newHarness(t)
	when := h.now.Add(-time.Hour)
	call, err := h.svc.LogCall(context.Background(), CallRequest{CustomerID: h.customer.ID, Direction: "Inbound", DurationSeconds: 95, OccurredAt: &when})
	require.NoError(t, err)
	assert.Equal(t, store.DirectionInbound, call.Direction)
	assert.True(t, when.Equal(call.CreatedAt))

	_, err = h.svc.LogCall(context.Background(), CallRequest{CustomerID: h.customer.ID, Direction: "sideways"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.svc.LogCall(context.Background(), CallRequest{CustomerID: "0f8fad5b-d9cb-469f-a165-70867728950e", Direction: "outbound"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

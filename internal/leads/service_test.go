package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/store"
	"github.com/memohai/deckcrm/internal/store/storetest"
)

func strPtr(s string) *string { return &s }

func TestNormalizeStainChoices(t *testing.T) {
	got, err := NormalizeStainChoices([]string{"Solid", "solid", " ", "clear_sealer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"solid", "clear_sealer"}, got)

	_, err = NormalizeStainChoices([]string{"purple"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestCreateCopiesCustomerContactAndLogsActivity(t *testing.T) {
	mem := storetest.NewMemory(nil)
	svc := NewService(logger.Nop(), mem)
	ctx := context.Background()
	customer, err := mem.CreateCustomer(ctx, store.CustomerFields{FullName: "Ana", Email: strPtr("ana@example.com")})
	require.NoError(t, err)

	lead, err := svc.Create(ctx, CreateRequest{CustomerID: &customer.ID, FullName: "typed by hand", Source: strPtr("website")})
	require.NoError(t, err)
	assert.Equal(t, "Ana", lead.FullName)
	assert.Equal(t, "ana@example.com", *lead.Email)
	assert.Equal(t, "new", lead.Status)

	activity, err := mem.ListActivities(ctx, store.ListFilter{CustomerID: customer.ID})
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, ActionLeadCreated, activity[0].Action)
	assert.Equal(t, lead.ID, *activity[0].EntityID)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(logger.Nop(), storetest.NewMemory(nil))
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = svc.Create(ctx, CreateRequest{FullName: "Ana", Status: "lost"})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = svc.Create(ctx, CreateRequest{CustomerID: strPtr("0f8fad5b-d9cb-469f-a165-70867728950e")})
	require.ErrorIs(t, err, ErrUnknownCustomer)

	lead, err := svc.Create(ctx, CreateRequest{FullName: "Walk-in", StainChoices: []string{"solid"}})
	require.NoError(t, err)
	assert.Nil(t, lead.CustomerID)
}

func TestStatusAndPhotos(t *testing.T) {
	mem := storetest.NewMemory(nil)
	svc := NewService(logger.Nop(), mem)
	ctx := context.Background()
	lead, err := svc.Create(ctx, CreateRequest{FullName: "Walk-in"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, lead.ID, "teleported")
	require.ErrorIs(t, err, ErrInvalid)
	updated, err := svc.UpdateStatus(ctx, lead.ID, "quote_sent")
	require.NoError(t, err)
	assert.Equal(t, "quote_sent", updated.Status)

	_, err = svc.AddPhoto(ctx, lead.ID, "ftp://example.com/x.jpg", nil)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = svc.AddPhoto(ctx, lead.ID, "https://cdn.example.com/deck.jpg", strPtr(" before "))
	require.NoError(t, err)

	photos, err := svc.Photos(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "before", *photos[0].Caption)

	require.NoError(t, svc.Delete(ctx, lead.ID))
	_, err = svc.Photos(ctx, lead.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	listed, err := svc.List(ctx, store.LeadFilter{Status: "quote_sent"})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

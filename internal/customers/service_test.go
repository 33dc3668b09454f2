package customers

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

func TestCreateValidatesAndDefaults(t *testing.T) {
	svc := NewService(logger.Nop(), storetest.NewMemory(nil))
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{FullName: "  "})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = svc.Create(ctx, CreateRequest{FullName: "Ana", Language: "de"})
	require.ErrorIs(t, err, ErrInvalid)

	c, err := svc.Create(ctx, CreateRequest{FullName: " Ana ", Email: strPtr(" "), Phone: strPtr("555-0100")})
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.FullName)
	assert.Equal(t, "en", c.Language)
	assert.Nil(t, c.Email)
	assert.Equal(t, "555-0100", *c.Phone)
}

func TestUpdateSyncsLinkedLeads(t *testing.T) {
	mem := storetest.NewMemory(nil)
	svc := NewService(logger.Nop(), mem)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateRequest{FullName: "Ana", Phone: strPtr("555-0100")})
	require.NoError(t, err)
	lead, err := mem.CreateLead(ctx, store.LeadFields{CustomerID: &c.ID, FullName: "Ana", Phone: c.Phone, Status: "new"})
	require.NoError(t, err)
	unlinked, err := mem.CreateLead(ctx, store.LeadFields{FullName: "Walk-in", Status: "new"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, UpdateRequest{FullName: strPtr("Ana Smith"), Email: strPtr("ana@example.com"), Language: strPtr("FR")})
	require.NoError(t, err)
	assert.Equal(t, "Ana Smith", updated.FullName)
	assert.Equal(t, "fr", updated.Language)
	assert.Equal(t, "555-0100", *updated.Phone)

	got, err := mem.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Smith", got.FullName)
	assert.Equal(t, "ana@example.com", *got.Email)

	other, err := mem.GetLead(ctx, unlinked.ID)
	require.NoError(t, err)
	assert.Equal(t, "Walk-in", other.FullName)
}

func TestUpdateRejectsEmptyNameWithoutWriting(t *testing.T) {
	mem := storetest.NewMemory(nil)
	svc := NewService(logger.Nop(), mem)
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateRequest{FullName: "Ana"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, c.ID, UpdateRequest{FullName: strPtr(""), Phone: strPtr("1")})
	require.ErrorIs(t, err, ErrInvalid)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Phone)
}

func TestDeleteWithDependents(t *testing.T) {
	mem := storetest.NewMemory(nil)
	svc := NewService(logger.Nop(), mem)
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateRequest{FullName: "Ana"})
	require.NoError(t, err)
	_, err = mem.InsertActivity(ctx, store.Activity{CustomerID: c.ID, EntityType: "customer", Action: "note", Description: "called"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, c.ID), store.ErrHasDependents)

	activity, err := svc.Activity(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Len(t, activity, 1)

	empty, err := svc.Create(ctx, CreateRequest{FullName: "Bo"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, empty.ID))
	_, err = svc.Get(ctx, empty.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListSearches(t *testing.T) {
	svc := NewService(logger.Nop(), storetest.NewMemory(nil))
	ctx := context.Background()
	for _, name := range []string{"Zed", "ana", "Bo"} {
		_, err := svc.Create(ctx, CreateRequest{FullName: name})
		require.NoError(t, err)
	}
	all, err := svc.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ana", all[0].FullName)

	found, err := svc.List(ctx, "ZE", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Zed", found[0].FullName)
}

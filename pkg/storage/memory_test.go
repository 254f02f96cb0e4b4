package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbsec/organization-service/pkg/faults"
)

func sampleRecord(id string) *Record {
	return &Record{
		ID:           id,
		Name:         "Acme",
		ContactName:  "Jane Doe",
		ContactEmail: "jane@acme.com",
		ContactPhone: "4105551212",
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, sampleRecord("42"))
	require.NoError(t, err)
	assert.Equal(t, "42", saved.ID)

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, sampleRecord("42"), got)

	// returned records are copies
	got.Name = "Changed"
	again, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Name)
}

func TestMemoryStore_SaveReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Save(ctx, sampleRecord("42"))
	require.NoError(t, err)

	updated := sampleRecord("42")
	updated.ContactPhone = "5551234567"
	_, err = store.Save(ctx, updated)
	require.NoError(t, err)

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "5551234567", got.ContactPhone)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_SaveRequiresID(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Save(context.Background(), &Record{Name: "Acme"})
	assert.True(t, faults.Is(err, faults.ValidationFailed))

	_, err = store.Save(context.Background(), nil)
	assert.True(t, faults.Is(err, faults.ValidationFailed))
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.NotFound))
}

func TestMemoryStore_GetAllEmpty(t *testing.T) {
	store := NewMemoryStore()

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestMemoryStore_GetAllOrdered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		_, err := store.Save(ctx, sampleRecord(id))
		require.NoError(t, err)
	}

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Save(ctx, sampleRecord("42"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "42"))

	_, err = store.Get(ctx, "42")
	assert.True(t, faults.Is(err, faults.NotFound))

	err = store.Delete(ctx, "42")
	assert.True(t, faults.Is(err, faults.NotFound))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, "42")
	assert.True(t, faults.Is(err, faults.Unavailable))

	_, err = store.GetAll(ctx)
	assert.True(t, faults.Is(err, faults.Unavailable))
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("org-%d", i)
			_, err := store.Save(ctx, sampleRecord(id))
			assert.NoError(t, err)
			_, err = store.Get(ctx, id)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

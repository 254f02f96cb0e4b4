package orgs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/faults"
	"github.com/orbsec/organization-service/pkg/licensing"
	"github.com/orbsec/organization-service/pkg/resilience"
	"github.com/orbsec/organization-service/pkg/storage"
)

// failingStore fails every operation with err
type failingStore struct {
	err   error
	calls atomic.Int32
}

func (f *failingStore) Get(context.Context, string) (*storage.Record, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingStore) GetAll(context.Context) ([]*storage.Record, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingStore) Save(context.Context, *storage.Record) (*storage.Record, error) {
	f.calls.Add(1)
	return nil, f.err
}

func (f *failingStore) Delete(context.Context, string) error {
	f.calls.Add(1)
	return f.err
}

func (f *failingStore) HealthCheck(context.Context) error { return f.err }
func (f *failingStore) Close() error                      { return nil }

type gatewayFunc func(ctx context.Context, token, orgID string) ([]licensing.License, error)

func (fn gatewayFunc) FetchLicenses(ctx context.Context, token, orgID string) ([]licensing.License, error) {
	return fn(ctx, token, orgID)
}

func testRegistry() *resilience.Registry {
	return resilience.NewRegistry(resilience.WithDefaults(resilience.Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		AttemptTimeout: time.Second,
		MinimumCalls:   100,
		WindowSize:     100,
	}))
}

func strPtr(s string) *string { return &s }

func acmeInput() OrganizationInput {
	return OrganizationInput{
		Name:         strPtr("Acme"),
		ContactName:  strPtr("Jane Doe"),
		ContactEmail: strPtr("jane@acme.com"),
		ContactPhone: strPtr("4105551212"),
	}
}

type fixture struct {
	svc      *Service
	store    *storage.MemoryStore
	recorder *events.Recorder
}

func newFixture(t *testing.T, gateway licensing.Gateway) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	recorder := events.NewRecorder()
	if gateway == nil {
		gateway = gatewayFunc(func(context.Context, string, string) ([]licensing.License, error) {
			return nil, nil
		})
	}
	svc := NewService(store, gateway, recorder, testRegistry())
	return &fixture{svc: svc, store: store, recorder: recorder}
}

func seed(t *testing.T, store storage.Store, id string) {
	t.Helper()
	_, err := store.Save(context.Background(), &storage.Record{
		ID:           id,
		Name:         "Acme",
		ContactName:  "Jane Doe",
		ContactEmail: "jane@acme.com",
		ContactPhone: "4105551212",
	})
	require.NoError(t, err)
}

func TestService_CreateAssignsIDAndPublishes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	org, err := f.svc.Create(ctx, acmeInput())
	require.NoError(t, err)
	require.NotEmpty(t, org.ID)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, "jane@acme.com", org.ContactEmail)
	assert.False(t, org.Degraded)

	got, err := f.svc.FindByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, org, got)

	evs := f.recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Created, evs[0].ChangeType)
	assert.Equal(t, org.ID, evs[0].OrganizationID)
	assert.Equal(t, "A new Organization with id "+org.ID+" has been saved to the database.", evs[0].Description)
}

func TestService_CreateUsesDistinctIDs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.Create(ctx, acmeInput())
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, acmeInput())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	all, err := f.svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_CreateWithIDGenerator(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, nil, events.NewRecorder(), testRegistry(),
		WithIDGenerator(func() string { return "fixed-id" }))

	org, err := svc.Create(context.Background(), acmeInput())
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", org.ID)
}

func TestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OrganizationInput)
	}{
		{"missing name", func(in *OrganizationInput) { in.Name = nil }},
		{"blank contact name", func(in *OrganizationInput) { in.ContactName = strPtr("  ") }},
		{"missing phone", func(in *OrganizationInput) { in.ContactPhone = nil }},
		{"invalid email", func(in *OrganizationInput) { in.ContactEmail = strPtr("not-an-email") }},
		{"display name email", func(in *OrganizationInput) { in.ContactEmail = strPtr("Jane <jane@acme.com>") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			in := acmeInput()
			tt.mutate(&in)

			_, err := f.svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.True(t, faults.Is(err, faults.ValidationFailed))
			assert.Empty(t, f.recorder.Events())

			all, err := f.store.GetAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestService_FindByIDNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.NotFound))
	assert.Equal(t, MsgNotFound, faults.Message(err))
}

func TestService_UpdateMergesSuppliedFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seed(t, f.store, "42")

	org, err := f.svc.Update(ctx, "42", OrganizationInput{ContactPhone: strPtr("5551234")})
	require.NoError(t, err)
	assert.Equal(t, &Organization{
		ID:           "42",
		Name:         "Acme",
		ContactName:  "Jane Doe",
		ContactEmail: "jane@acme.com",
		ContactPhone: "5551234",
	}, org)

	got, err := f.svc.FindByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "5551234", got.ContactPhone)

	evs := f.recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Updated, evs[0].ChangeType)
	assert.Equal(t, "Organization with id 42 has been updated", evs[0].Description)
}

func TestService_UpdateMissing(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Update(context.Background(), "missing", OrganizationInput{Name: strPtr("X")})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.NotFound))
	assert.Equal(t, "No organization found for this id: missing", faults.Message(err))
	assert.Empty(t, f.recorder.Events())
}

func TestService_UpdateRejectsBlankField(t *testing.T) {
	f := newFixture(t, nil)
	seed(t, f.store, "42")

	_, err := f.svc.Update(context.Background(), "42", OrganizationInput{Name: strPtr("")})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.ValidationFailed))

	rec, err := f.store.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.Name)
}

func TestService_DeleteThenFind(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seed(t, f.store, "42")

	msg, err := f.svc.Delete(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Organization with id 42 has been deleted", msg)

	_, err = f.svc.FindByID(ctx, "42")
	assert.True(t, faults.Is(err, faults.NotFound))

	evs := f.recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.Deleted, evs[0].ChangeType)
	assert.Equal(t, msg, evs[0].Description)
}

func TestService_DeleteMissing(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.NotFound))
	assert.Equal(t, "No organization found for this id: missing", faults.Message(err))
	assert.Empty(t, f.recorder.Events())
}

func TestService_ReadsDegradeToPlaceholders(t *testing.T) {
	store := &failingStore{err: faults.New(faults.Unavailable, "store", "connection refused")}
	svc := NewService(store, nil, events.NewRecorder(), testRegistry())
	ctx := context.Background()

	org, err := svc.FindByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", org.ID)
	assert.Equal(t, PlaceholderOrganizationName, org.Name)
	assert.Equal(t, PlaceholderText, org.ContactEmail)
	assert.True(t, org.Degraded)
	// transient failures are retried before degrading
	assert.Equal(t, int32(2), store.calls.Load())

	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, PlaceholderOrganizationID, all[0].ID)
	assert.True(t, all[0].Degraded)
}

func TestService_WritesFailWhenStoreUnavailable(t *testing.T) {
	store := &failingStore{err: faults.New(faults.Unavailable, "store", "connection refused")}
	recorder := events.NewRecorder()
	svc := NewService(store, nil, recorder, testRegistry())
	ctx := context.Background()

	_, err := svc.Create(ctx, acmeInput())
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Unavailable))
	assert.Equal(t, MsgWriteUnavailable, faults.Message(err))

	_, err = svc.Update(ctx, "42", OrganizationInput{Name: strPtr("X")})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Unavailable))
	assert.Equal(t, MsgWriteUnavailable, faults.Message(err))

	_, err = svc.Delete(ctx, "42")
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Unavailable))
	assert.Equal(t, MsgDeleteUnavailable, faults.Message(err))

	assert.Empty(t, recorder.Events())
}

func TestService_OpenBreakerServesPlaceholderWithoutCallingStore(t *testing.T) {
	store := &failingStore{err: faults.New(faults.Unavailable, "store", "connection refused")}
	registry := testRegistry()
	registry.Configure(resilience.PolicyStoreRead, resilience.Config{
		MaxAttempts:  1,
		MinimumCalls: 2,
		WindowSize:   2,
		OpenTimeout:  time.Hour,
	})
	svc := NewService(store, nil, events.NewRecorder(), registry)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.FindByID(ctx, "42")
		require.NoError(t, err)
	}
	require.Equal(t, resilience.StateOpen, registry.Policy(resilience.PolicyStoreRead).Breaker().State())

	calls := store.calls.Load()
	org, err := svc.FindByID(ctx, "42")
	require.NoError(t, err)
	assert.True(t, org.Degraded)
	assert.Equal(t, calls, store.calls.Load())
}

func TestService_FindLicenses(t *testing.T) {
	var gotToken, gotOrg string
	f := newFixture(t, gatewayFunc(func(_ context.Context, token, orgID string) ([]licensing.License, error) {
		gotToken, gotOrg = token, orgID
		return []licensing.License{{LicenseID: "l-1", OrganizationID: orgID, ProductName: "CustomerPro"}}, nil
	}))

	licenses, err := f.svc.FindLicenses(context.Background(), "Bearer abc", "42")
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	assert.Equal(t, "l-1", licenses[0].LicenseID)
	assert.Equal(t, "Bearer abc", gotToken)
	assert.Equal(t, "42", gotOrg)
}

func TestService_FindLicensesDegrades(t *testing.T) {
	f := newFixture(t, gatewayFunc(func(context.Context, string, string) ([]licensing.License, error) {
		return nil, faults.New(faults.Unavailable, "licensing", "503")
	}))

	licenses, err := f.svc.FindLicenses(context.Background(), "Bearer abc", "42")
	require.NoError(t, err)
	require.Len(t, licenses, 1)
	assert.Equal(t, PlaceholderLicenseID, licenses[0].LicenseID)
	assert.Equal(t, PlaceholderText, licenses[0].ProductName)
	assert.True(t, licenses[0].Degraded)
}

func TestService_FindLicensesDomainErrorsPropagate(t *testing.T) {
	for _, kind := range []faults.Kind{faults.Unauthorized, faults.NotFound} {
		t.Run(kind.String(), func(t *testing.T) {
			var calls atomic.Int32
			f := newFixture(t, gatewayFunc(func(context.Context, string, string) ([]licensing.License, error) {
				calls.Add(1)
				return nil, faults.New(kind, "licensing", "rejected")
			}))

			_, err := f.svc.FindLicenses(context.Background(), "Bearer bad", "42")
			require.Error(t, err)
			assert.True(t, faults.Is(err, kind))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestService_UnclassifiedStoreErrorDegrades(t *testing.T) {
	store := &failingStore{err: errors.New("boom")}
	svc := NewService(store, nil, events.NewRecorder(), testRegistry())

	org, err := svc.FindByID(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, org.Degraded)
	// unclassified failures are not retried
	assert.Equal(t, int32(1), store.calls.Load())
}

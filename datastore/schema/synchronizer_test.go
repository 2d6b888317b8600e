package schema

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TristanCP/kapua/datastore"
	"github.com/TristanCP/kapua/datastore/store"
	"github.com/TristanCP/kapua/errors"
)

// countingBackend counts store round-trips so tests can assert the caches
// actually suppress them.
type countingBackend struct {
	store.Backend
	creates atomic.Int64
	gets    atomic.Int64
}

func newCountingBackend() *countingBackend {
	return &countingBackend{Backend: store.NewMemBackend()}
}

func (b *countingBackend) Create(ctx context.Context, key string, value []byte) error {
	b.creates.Add(1)
	return b.Backend.Create(ctx, key, value)
}

func (b *countingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.gets.Add(1)
	return b.Backend.Get(ctx, key)
}

var augustTs = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC).UnixMilli()

func TestMetadataCreatesPartitionOnce(t *testing.T) {
	backend := newCountingBackend()
	s, err := NewSynchronizer(backend)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	assert.Equal(t, datastore.ScopeID("S1"), first.Scope)
	assert.True(t, first.Contains(augustTs))
	assert.Equal(t, "S1-2026-35", first.Name())

	// Same window an hour later: served from cache, no store call.
	second, err := s.Metadata(ctx, "S1", augustTs+int64(time.Hour/time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, first.Key(), second.Key())
	assert.Equal(t, int64(1), backend.creates.Load())

	// Next week gets its own partition.
	nextWeek, err := s.Metadata(ctx, "S1", augustTs+7*24*int64(time.Hour/time.Millisecond))
	require.NoError(t, err)
	assert.NotEqual(t, first.Key(), nextWeek.Key())
	assert.Equal(t, int64(2), backend.creates.Load())
}

func TestMetadataScopesArePartitioned(t *testing.T) {
	s, err := NewSynchronizer(store.NewMemBackend())
	require.NoError(t, err)
	ctx := context.Background()

	p1, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	p2, err := s.Metadata(ctx, "S2", augustTs)
	require.NoError(t, err)

	assert.Equal(t, p1.Window, p2.Window)
	assert.NotEqual(t, p1.Key(), p2.Key())
}

func TestMetadataValidation(t *testing.T) {
	s, err := NewSynchronizer(store.NewMemBackend())
	require.NoError(t, err)

	_, err = s.Metadata(context.Background(), "", augustTs)
	assert.True(t, errors.IsInvalid(err))
	_, err = s.Metadata(context.Background(), "S1", 0)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetadataSurvivesLostCreationRace(t *testing.T) {
	backend := newCountingBackend()
	ctx := context.Background()

	// Another process already registered the partition document.
	other, err := NewSynchronizer(backend)
	require.NoError(t, err)
	_, err = other.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)

	s, err := NewSynchronizer(backend)
	require.NoError(t, err)
	p, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	assert.True(t, p.Contains(augustTs))
}

func TestEnsureMetricMappingRegistersOnce(t *testing.T) {
	backend := newCountingBackend()
	s, err := NewSynchronizer(backend)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	createsAfterPartition := backend.creates.Load()

	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))
	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))
	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))

	assert.Equal(t, createsAfterPartition+1, backend.creates.Load(),
		"repeat registrations must be served from cache")
}

func TestEnsureMetricMappingConflict(t *testing.T) {
	s, err := NewSynchronizer(store.NewMemBackend())
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)

	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))

	err = s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeString)
	require.Error(t, err)
	assert.True(t, errors.IsMappingConflict(err))

	var conflict *errors.MappingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "temp", conflict.Name)
	assert.Equal(t, string(datastore.TypeDouble), conflict.Existing)
	assert.Equal(t, string(datastore.TypeString), conflict.Requested)
}

func TestEnsureMetricMappingConflictAgainstStore(t *testing.T) {
	backend := newCountingBackend()
	ctx := context.Background()

	// The winning registration came from a different process; this
	// synchronizer's cache is cold and must consult the store.
	other, err := NewSynchronizer(backend)
	require.NoError(t, err)
	p, err := other.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	require.NoError(t, other.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))

	s, err := NewSynchronizer(backend)
	require.NoError(t, err)
	err = s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeString)
	assert.True(t, errors.IsMappingConflict(err))

	// Same type from a cold cache is accepted and cached.
	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))
}

func TestEnsureMetricMappingFreeFormNames(t *testing.T) {
	s, err := NewSynchronizer(store.NewMemBackend())
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)

	// Names with dots, slashes and spaces must not corrupt store keys.
	names := []string{"temp.avg", "a/b c", "température", "x|y"}
	for _, name := range names {
		require.NoError(t, s.EnsureMetricMapping(ctx, p, name, datastore.TypeDouble))
	}
	for _, name := range names {
		err := s.EnsureMetricMapping(ctx, p, name, datastore.TypeString)
		assert.True(t, errors.IsMappingConflict(err), "name %q must map to its own registration", name)
	}
}

func TestConcurrentMappingRegistration(t *testing.T) {
	backend := newCountingBackend()
	s, err := NewSynchronizer(backend)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errC := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble); err != nil {
				errC <- err
			}
		}()
	}
	wg.Wait()
	close(errC)
	for err := range errC {
		t.Errorf("concurrent registration failed: %v", err)
	}
}

func TestInvalidateScope(t *testing.T) {
	backend := newCountingBackend()
	s, err := NewSynchronizer(backend)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))
	creates := backend.creates.Load()

	s.InvalidateScope("S1")

	// Re-registration goes back to the store; the repeat Create is
	// idempotent against the existing documents.
	_, err = s.Metadata(ctx, "S1", augustTs)
	require.NoError(t, err)
	require.NoError(t, s.EnsureMetricMapping(ctx, p, "temp", datastore.TypeDouble))
	assert.Equal(t, creates+2, backend.creates.Load())
}

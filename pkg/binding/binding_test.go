package binding_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/internal/clock"
	"github.com/scoutline/discovery/pkg/binding"
	"github.com/scoutline/discovery/pkg/types"
)

type memStore struct {
	mu   sync.Mutex
	byID map[string]*types.RuntimeBinding
}

func newMemStore() *memStore { return &memStore{byID: make(map[string]*types.RuntimeBinding)} }

func key(entityID, templateID string) string { return entityID + "|" + templateID }

func (s *memStore) Get(_ context.Context, entityID, templateID string) (*types.RuntimeBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[key(entityID, templateID)], nil
}

func (s *memStore) Put(_ context.Context, b *types.RuntimeBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[key(b.EntityID, b.TemplateID)] = b
	return nil
}

func (s *memStore) List(_ context.Context, templateID string) ([]*types.RuntimeBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.RuntimeBinding
	for _, b := range s.byID {
		if b.TemplateID == templateID {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestGetOrCreate_StartsExploring(t *testing.T) {
	store := newMemStore()
	m := binding.New(store, clock.NewSystem())
	b, err := m.GetOrCreate(context.Background(), "e1", "Arsenal", "t1")
	require.NoError(t, err)
	assert.Equal(t, types.BindingExploring, b.State)
	assert.Zero(t, b.UsageCount)
}

func TestRecordUse_PromotesAfterThreeSuccessfulUses(t *testing.T) {
	store := newMemStore()
	m := binding.New(store, clock.NewSystem())
	b, err := m.GetOrCreate(context.Background(), "e1", "Arsenal", "t1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordUse(context.Background(), b, true, "instagram", "https://instagram.com/arsenal", "", ""))
	}
	assert.Equal(t, types.BindingPromoted, b.State)
	require.NotNil(t, b.PromotedAt)
}

func TestRecordUse_RetiresOnSustainedFailure(t *testing.T) {
	store := newMemStore()
	m := binding.New(store, clock.NewSystem())
	b, err := m.GetOrCreate(context.Background(), "e1", "Arsenal", "t1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.RecordUse(context.Background(), b, false, "", "", "", ""))
	}
	assert.Equal(t, types.BindingRetired, b.State)
}

func TestRecordUse_DemotesPromotedOnDrop(t *testing.T) {
	store := newMemStore()
	m := binding.New(store, clock.NewSystem())
	b, err := m.GetOrCreate(context.Background(), "e1", "Arsenal", "t1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordUse(context.Background(), b, true, "", "", "", ""))
	}
	require.Equal(t, types.BindingPromoted, b.State)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordUse(context.Background(), b, false, "", "", "", ""))
	}
	assert.Equal(t, types.BindingExploring, b.State)
}

func TestRecordUse_RecordsDiscoveredChannelOnce(t *testing.T) {
	store := newMemStore()
	m := binding.New(store, clock.NewSystem())
	b, err := m.GetOrCreate(context.Background(), "e1", "Arsenal", "t1")
	require.NoError(t, err)

	require.NoError(t, m.RecordUse(context.Background(), b, true, "instagram", "https://instagram.com/arsenal", "", ""))
	require.NoError(t, m.RecordUse(context.Background(), b, true, "instagram", "https://instagram.com/arsenal", "", ""))
	assert.Len(t, b.DiscoveredChannels["instagram"], 1)
}

func TestSweepFrozen_FreezesStalePromoted(t *testing.T) {
	store := newMemStore()
	fake := clock.NewFake(time.Now())
	m := binding.New(store, fake)
	b, err := m.GetOrCreate(context.Background(), "e1", "Arsenal", "t1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordUse(context.Background(), b, true, "", "", "", ""))
	}
	require.Equal(t, types.BindingPromoted, b.State)

	fake.Advance(8 * 24 * time.Hour)
	require.NoError(t, m.SweepFrozen(context.Background(), "t1"))

	got, err := store.Get(context.Background(), "e1", "t1")
	require.NoError(t, err)
	assert.Equal(t, types.BindingFrozen, got.State)
}

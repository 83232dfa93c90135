package hypothesis_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/hypothesis"
	"github.com/scoutline/discovery/pkg/ralph"
	"github.com/scoutline/discovery/pkg/types"
)

type memStore struct {
	mu   sync.Mutex
	byID map[string]*types.Hypothesis
}

func newMemStore() *memStore { return &memStore{byID: make(map[string]*types.Hypothesis)} }

func (s *memStore) Get(_ context.Context, id string) (*types.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id], nil
}

func (s *memStore) List(_ context.Context, entityID string) ([]*types.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Hypothesis
	for _, h := range s.byID {
		if h.EntityID == entityID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) Put(_ context.Context, h *types.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[h.HypothesisID] = h
	return nil
}

func TestInitialise_OneHypothesisPerSignalPattern(t *testing.T) {
	store := newMemStore()
	m := hypothesis.New(store)
	tmpl := types.Template{TemplateID: "t1", SignalPatterns: []string{"rfp_mention", "vendor_change"}}
	entity := types.Entity{EntityID: "e1", Name: "Arsenal"}

	hs, err := m.Initialise(context.Background(), tmpl, entity)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	for _, h := range hs {
		assert.Equal(t, 0.50, h.Confidence)
		assert.Equal(t, types.HypothesisActive, h.State)
	}
}

func TestInitialise_IsIdempotentForSameStatement(t *testing.T) {
	store := newMemStore()
	m := hypothesis.New(store)
	tmpl := types.Template{TemplateID: "t1", SignalPatterns: []string{"rfp_mention"}}
	entity := types.Entity{EntityID: "e1", Name: "Arsenal"}

	first, err := m.Initialise(context.Background(), tmpl, entity)
	require.NoError(t, err)
	second, err := m.Initialise(context.Background(), tmpl, entity)
	require.NoError(t, err)
	assert.Equal(t, first[0].HypothesisID, second[0].HypothesisID)
}

func TestUpdate_IncrementsReinforcementOnAccept(t *testing.T) {
	store := newMemStore()
	m := hypothesis.New(store)
	tmpl := types.Template{TemplateID: "t1", SignalPatterns: []string{"rfp_mention"}}
	entity := types.Entity{EntityID: "e1", Name: "Arsenal"}
	hs, _ := m.Initialise(context.Background(), tmpl, entity)

	decision := ralph.Decision{Decision: types.DecisionAccept, RawDelta: 0.06, AppliedDelta: 0.05, Justification: "quote here"}
	updated, err := m.Update(context.Background(), hs[0].HypothesisID, decision, "rfp_mention", "https://x.com", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReinforcementCount)
	assert.Len(t, updated.ConfidenceHistory, 1)
	assert.InDelta(t, 0.55, updated.Confidence, 1e-9)
}

func TestUpdate_InactivatesAfterThreeConsecutiveRejects(t *testing.T) {
	store := newMemStore()
	m := hypothesis.New(store)
	tmpl := types.Template{TemplateID: "t1", SignalPatterns: []string{"rfp_mention"}}
	entity := types.Entity{EntityID: "e1", Name: "Arsenal"}
	hs, _ := m.Initialise(context.Background(), tmpl, entity)

	reject := ralph.Decision{Decision: types.DecisionReject, RawDelta: 0, AppliedDelta: 0}
	var updated *types.Hypothesis
	for i := 0; i < 3; i++ {
		var err error
		updated, err = m.Update(context.Background(), hs[0].HypothesisID, reject, "rfp_mention", "", i+1)
		require.NoError(t, err)
	}
	assert.Equal(t, types.HypothesisInactive, updated.State)
}

func TestBatchGet_ChunksAcrossManyEntities(t *testing.T) {
	store := newMemStore()
	m := hypothesis.New(store)
	ids := make([]string, 0, 250)
	for i := 0; i < 250; i++ {
		entity := types.Entity{EntityID: "e" + string(rune('a'+i%26)) + string(rune(i)), Name: "X"}
		ids = append(ids, entity.EntityID)
		_, err := m.Initialise(context.Background(), types.Template{TemplateID: "t", SignalPatterns: []string{"p"}}, entity)
		require.NoError(t, err)
	}
	results, err := m.BatchGet(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, results, len(ids))
}

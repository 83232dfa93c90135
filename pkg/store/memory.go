package store

import (
	"context"
	"sync"
	"time"

	"github.com/scoutline/discovery/pkg/types"
)

// MemoryEpisodeStore is an in-process EpisodeStore substitute for dry
// runs and tests that do not need a Postgres instance.
type MemoryEpisodeStore struct {
	mu       sync.RWMutex
	episodes []types.Episode
}

// NewMemoryEpisodeStore constructs an empty MemoryEpisodeStore.
func NewMemoryEpisodeStore() *MemoryEpisodeStore {
	return &MemoryEpisodeStore{}
}

func (m *MemoryEpisodeStore) Put(ctx context.Context, ep types.Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes = append(m.episodes, ep)
	return nil
}

func (m *MemoryEpisodeStore) Query(ctx context.Context, entityID string, since time.Time) ([]types.Episode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Episode
	for _, ep := range m.episodes {
		if ep.EntityID == entityID && !ep.Timestamp.Before(since) {
			out = append(out, ep)
		}
	}
	return out, nil
}

// MemoryBindingStore is an in-process pkg/binding.Store substitute.
type MemoryBindingStore struct {
	mu       sync.RWMutex
	bindings map[string]*types.RuntimeBinding
}

// NewMemoryBindingStore constructs an empty MemoryBindingStore.
func NewMemoryBindingStore() *MemoryBindingStore {
	return &MemoryBindingStore{bindings: make(map[string]*types.RuntimeBinding)}
}

func bindingKey(entityID, templateID string) string { return entityID + "/" + templateID }

func (m *MemoryBindingStore) Get(ctx context.Context, entityID, templateID string) (*types.RuntimeBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[bindingKey(entityID, templateID)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryBindingStore) Put(ctx context.Context, b *types.RuntimeBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bindings[bindingKey(b.EntityID, b.TemplateID)] = &cp
	return nil
}

func (m *MemoryBindingStore) List(ctx context.Context, templateID string) ([]*types.RuntimeBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.RuntimeBinding
	for _, b := range m.bindings {
		if b.TemplateID == templateID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryHypothesisStore is an in-process pkg/hypothesis.Store substitute.
type MemoryHypothesisStore struct {
	mu          sync.RWMutex
	hypotheses map[string]*types.Hypothesis
}

// NewMemoryHypothesisStore constructs an empty MemoryHypothesisStore.
func NewMemoryHypothesisStore() *MemoryHypothesisStore {
	return &MemoryHypothesisStore{hypotheses: make(map[string]*types.Hypothesis)}
}

func (m *MemoryHypothesisStore) Get(ctx context.Context, hypothesisID string) (*types.Hypothesis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hypotheses[hypothesisID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (m *MemoryHypothesisStore) List(ctx context.Context, entityID string) ([]*types.Hypothesis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Hypothesis
	for _, h := range m.hypotheses {
		if h.EntityID == entityID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryHypothesisStore) Put(ctx context.Context, h *types.Hypothesis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.hypotheses[h.HypothesisID] = &cp
	return nil
}

// MemoryClusterStore is an in-process pkg/intelligence.Store substitute.
type MemoryClusterStore struct {
	mu    sync.RWMutex
	stats map[string]*types.ClusterStats
}

// NewMemoryClusterStore constructs an empty MemoryClusterStore.
func NewMemoryClusterStore() *MemoryClusterStore {
	return &MemoryClusterStore{stats: make(map[string]*types.ClusterStats)}
}

func (m *MemoryClusterStore) Get(ctx context.Context, clusterID string) (*types.ClusterStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[clusterID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryClusterStore) Put(ctx context.Context, stats *types.ClusterStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *stats
	m.stats[stats.ClusterID] = &cp
	return nil
}

// MemoryOutcomeStore is an in-process OutcomeStore substitute.
type MemoryOutcomeStore struct {
	mu       sync.RWMutex
	outcomes map[string]types.OutcomeRecord
}

// NewMemoryOutcomeStore constructs an empty MemoryOutcomeStore.
func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{outcomes: make(map[string]types.OutcomeRecord)}
}

func (m *MemoryOutcomeStore) RecordOutcome(ctx context.Context, rec types.OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[rec.SignalID] = rec
	return nil
}

func (m *MemoryOutcomeStore) EntitySummary(ctx context.Context, entityID string) (EntitySummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := EntitySummary{EntityID: entityID}
	for _, rec := range m.outcomes {
		if rec.EntityID != entityID {
			continue
		}
		switch rec.Status {
		case types.OutcomeWon:
			summary.WonCount++
			summary.TotalValue += rec.ValueActual
		case types.OutcomeLost:
			summary.LostCount++
		case types.OutcomePending:
			summary.PendingCount++
		}
	}
	return summary, nil
}

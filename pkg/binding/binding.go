// Package binding implements the Runtime Binding + Lifecycle component
// (spec §4.C10): per-(entity,template) learned channel/pattern state with
// a promotion state machine, grounded on
// original_source/apps/signal-noise-app/backend/cluster_intelligence.py's
// RuntimeBinding consumer expectations.
package binding

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/internal/clock"
	"github.com/scoutline/discovery/pkg/types"
)

// Promotion thresholds (spec §4.C10 invariant 5 and state table).
const (
	PromoteMinUsage       = 3
	PromoteMinSuccessRate = 0.75
	RetireMinUsage        = 5
	RetireMaxSuccessRate  = 0.30
	FreezeAfterDays       = 7
	DemoteSuccessRate     = 0.50
	DemoteLookbackUses    = 5
)

// Store is the persistence contract for bindings (spec §4.C13).
type Store interface {
	Get(ctx context.Context, entityID, templateID string) (*types.RuntimeBinding, error)
	Put(ctx context.Context, b *types.RuntimeBinding) error
	List(ctx context.Context, templateID string) ([]*types.RuntimeBinding, error)
}

// Manager owns binding lifecycle transitions.
type Manager struct {
	store Store
	clock clock.Clock
	log   *logrus.Entry
}

// New constructs a Manager.
func New(store Store, clk clock.Clock) *Manager {
	return &Manager{store: store, clock: clk, log: logrus.WithField("component", "runtime_binding")}
}

// GetOrCreate returns the binding for (entity, template), creating an
// EXPLORING one if none exists.
func (m *Manager) GetOrCreate(ctx context.Context, entityID, entityName, templateID string) (*types.RuntimeBinding, error) {
	b, err := m.store.Get(ctx, entityID, templateID)
	if err != nil {
		return nil, fmt.Errorf("binding: loading (%s,%s): %w", entityID, templateID, err)
	}
	if b != nil {
		return b, nil
	}
	b = &types.RuntimeBinding{
		TemplateID:         templateID,
		EntityID:           entityID,
		EntityName:         entityName,
		DiscoveredChannels: make(map[string][]string),
		EnrichedPatterns:   make(map[string][]string),
		State:              types.BindingExploring,
		LastUsedAt:         m.clock.Now(),
	}
	if err := m.store.Put(ctx, b); err != nil {
		return nil, fmt.Errorf("binding: persisting new binding: %w", err)
	}
	return b, nil
}

// RecordUse records one use of the binding (a hop that replayed or
// discovered via it), its outcome, and any newly discovered channel or
// pattern, then recomputes lifecycle state per the transition table in
// spec §4.C10.
func (m *Manager) RecordUse(ctx context.Context, b *types.RuntimeBinding, success bool, channel, discoveredURL, pattern, example string) error {
	b.UsageCount++
	b.SuccessRate = runningSuccessRate(b.SuccessRate, b.UsageCount, success)
	b.RecentOutcomes = appendBounded(b.RecentOutcomes, success, DemoteLookbackUses)
	b.LastUsedAt = m.clock.Now()

	if channel != "" && discoveredURL != "" {
		if b.DiscoveredChannels == nil {
			b.DiscoveredChannels = make(map[string][]string)
		}
		if !contains(b.DiscoveredChannels[channel], discoveredURL) {
			b.DiscoveredChannels[channel] = append(b.DiscoveredChannels[channel], discoveredURL)
		}
	}
	if pattern != "" && example != "" {
		if b.EnrichedPatterns == nil {
			b.EnrichedPatterns = make(map[string][]string)
		}
		if !contains(b.EnrichedPatterns[pattern], example) {
			b.EnrichedPatterns[pattern] = append(b.EnrichedPatterns[pattern], example)
		}
	}

	m.transition(b)

	if err := m.store.Put(ctx, b); err != nil {
		return fmt.Errorf("binding: persisting use: %w", err)
	}
	return nil
}

// transition applies the state machine from spec §4.C10. FROZEN ->
// PROMOTED on use is handled implicitly: any RecordUse call on a FROZEN
// binding re-validates it by running this same transition after the use
// is recorded.
func (m *Manager) transition(b *types.RuntimeBinding) {
	now := m.clock.Now()

	switch b.State {
	case types.BindingExploring:
		if b.UsageCount >= PromoteMinUsage && b.SuccessRate >= PromoteMinSuccessRate {
			b.State = types.BindingPromoted
			t := now
			b.PromotedAt = &t
			m.log.WithField("entity_id", b.EntityID).Info("binding promoted")
		} else if b.UsageCount >= RetireMinUsage && b.SuccessRate < RetireMaxSuccessRate {
			b.State = types.BindingRetired
			m.log.WithField("entity_id", b.EntityID).Info("binding retired")
		}
	case types.BindingPromoted:
		// Demotion looks at the last DemoteLookbackUses uses only, not the
		// all-time rate: a binding that earned promotion can still regress
		// without a long run of history dragging the cumulative rate down
		// slowly (spec §4.C10: "success_rate drops below 0.50 over last 5
		// uses"). Below the lookback window, there isn't enough recent
		// history to demote on yet.
		if len(b.RecentOutcomes) >= DemoteLookbackUses && windowedSuccessRate(b.RecentOutcomes) < DemoteSuccessRate {
			b.State = types.BindingExploring
			b.PromotedAt = nil
			m.log.WithField("entity_id", b.EntityID).Info("binding demoted to exploring")
		}
	case types.BindingFrozen:
		// Any use re-validates a frozen binding back to promoted.
		b.State = types.BindingPromoted
		m.log.WithField("entity_id", b.EntityID).Info("frozen binding re-validated to promoted")
	case types.BindingRetired:
		// terminal
	}
}

// SweepFrozen transitions PROMOTED bindings unused for FreezeAfterDays
// into FROZEN. Call periodically (e.g. once per batch tick) since the
// transition isn't triggered by a use.
func (m *Manager) SweepFrozen(ctx context.Context, templateID string) error {
	bindings, err := m.store.List(ctx, templateID)
	if err != nil {
		return fmt.Errorf("binding: listing for sweep: %w", err)
	}
	now := m.clock.Now()
	for _, b := range bindings {
		if b.State != types.BindingPromoted {
			continue
		}
		if now.Sub(b.LastUsedAt) >= FreezeAfterDays*24*time.Hour {
			b.State = types.BindingFrozen
			if err := m.store.Put(ctx, b); err != nil {
				return fmt.Errorf("binding: persisting freeze: %w", err)
			}
		}
	}
	return nil
}

func runningSuccessRate(current float64, usageCount int, success bool) float64 {
	if usageCount <= 1 {
		if success {
			return 1.0
		}
		return 0.0
	}
	prevTotal := current * float64(usageCount-1)
	if success {
		prevTotal++
	}
	return prevTotal / float64(usageCount)
}

// appendBounded appends outcome to outcomes, dropping from the front
// once the window exceeds limit so only the most recent limit uses
// are retained.
func appendBounded(outcomes []bool, outcome bool, limit int) []bool {
	outcomes = append(outcomes, outcome)
	if len(outcomes) > limit {
		outcomes = outcomes[len(outcomes)-limit:]
	}
	return outcomes
}

// windowedSuccessRate is the fraction of true values in outcomes.
func windowedSuccessRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	successes := 0
	for _, o := range outcomes {
		if o {
			successes++
		}
	}
	return float64(successes) / float64(len(outcomes))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Package hypothesis implements the Hypothesis Manager (spec §4.C8): CRUD
// plus lifecycle state, confidence history, reinforcement counting, and
// batch updates with bounded parallelism.
package hypothesis

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scoutline/discovery/pkg/ralph"
	"github.com/scoutline/discovery/pkg/types"
)

// ResolveConsecutiveRequired and InactiveAfterConsecutive mirror the
// budget controller's own consecutive-high-confidence threshold and the
// spec's "three consecutive REJECT/NO_PROGRESS" inactivation rule (spec
// §4.C8).
const (
	ResolveThreshold            = 0.85
	ResolveConsecutiveRequired  = 3
	InactiveAfterConsecutive    = 3
)

// Store is the persistence contract for hypotheses (spec §4.C13).
type Store interface {
	Get(ctx context.Context, hypothesisID string) (*types.Hypothesis, error)
	List(ctx context.Context, entityID string) ([]*types.Hypothesis, error)
	Put(ctx context.Context, h *types.Hypothesis) error
}

// Manager owns hypothesis creation and state transitions.
type Manager struct {
	store Store
}

// New constructs a Manager over store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Initialise creates one hypothesis per template signal_pattern, starting
// at confidence 0.50 and state ACTIVE (spec §4.C8). Duplicate statements
// for the same entity are forbidden: a pattern whose statement already
// exists for the entity returns the stored hypothesis unchanged rather
// than creating a second row; nothing is merged into its metadata.
func (m *Manager) Initialise(ctx context.Context, tmpl types.Template, entity types.Entity) ([]*types.Hypothesis, error) {
	existing, err := m.store.List(ctx, entity.EntityID)
	if err != nil {
		return nil, fmt.Errorf("hypothesis: listing existing hypotheses: %w", err)
	}
	byStatement := make(map[string]*types.Hypothesis, len(existing))
	for _, h := range existing {
		byStatement[h.Statement] = h
	}

	var out []*types.Hypothesis
	for _, category := range tmpl.SignalPatterns {
		statement := fmt.Sprintf("%s exhibits signal pattern %q", entity.Name, category)
		if h, ok := byStatement[statement]; ok {
			out = append(out, h)
			continue
		}
		h := &types.Hypothesis{
			HypothesisID: uuid.NewString(),
			EntityID:     entity.EntityID,
			TemplateID:   tmpl.TemplateID,
			Statement:    statement,
			Category:     category,
			TargetEntityType: entity.Type,
			Confidence:   0.50,
			State:        types.HypothesisActive,
		}
		if err := m.store.Put(ctx, h); err != nil {
			return nil, fmt.Errorf("hypothesis: persisting new hypothesis: %w", err)
		}
		out = append(out, h)
	}
	return out, nil
}

// Update applies a RalphDecision to a hypothesis: the applied delta,
// history append, iteration increment, reinforcement on ACCEPT, and state
// recomputation (spec §4.C8).
func (m *Manager) Update(ctx context.Context, hypothesisID string, decision ralph.Decision, category, sourceURL string, iteration int) (*types.Hypothesis, error) {
	h, err := m.store.Get(ctx, hypothesisID)
	if err != nil {
		return nil, fmt.Errorf("hypothesis: loading %s: %w", hypothesisID, err)
	}

	h.Confidence = types.ClampConfidence(h.Confidence + decision.AppliedDelta)
	h.Iterations++
	h.ConfidenceHistory = append(h.ConfidenceHistory, types.ConfidenceHistoryEntry{
		Iteration:    iteration,
		RawDelta:     decision.RawDelta,
		AppliedDelta: decision.AppliedDelta,
		Decision:     decision.Decision,
		Category:     category,
		SourceURL:    sourceURL,
		Reason:       decision.Justification,
	})

	if decision.Decision == types.DecisionAccept {
		h.ReinforcementCount++
	}

	h.State = recomputeState(h)

	if err := m.store.Put(ctx, h); err != nil {
		return nil, fmt.Errorf("hypothesis: persisting update: %w", err)
	}
	return h, nil
}

func recomputeState(h *types.Hypothesis) types.HypothesisState {
	if h.State != types.HypothesisActive {
		return h.State
	}

	if h.Confidence >= ResolveThreshold && consecutiveHighConfidence(h.ConfidenceHistory) >= ResolveConsecutiveRequired {
		return types.HypothesisResolved
	}
	if consecutiveNonProgress(h.ConfidenceHistory) >= InactiveAfterConsecutive {
		return types.HypothesisInactive
	}
	return types.HypothesisActive
}

func consecutiveHighConfidence(history []types.ConfidenceHistoryEntry) int {
	count := 0
	running := 0.0
	for i, e := range history {
		if i == 0 {
			running = 0.5
		}
		running = types.ClampConfidence(running + e.AppliedDelta)
		if running >= ResolveThreshold {
			count++
		} else {
			count = 0
		}
	}
	return count
}

func consecutiveNonProgress(history []types.ConfidenceHistoryEntry) int {
	count := 0
	for i := len(history) - 1; i >= 0; i-- {
		d := history[i].Decision
		if d == types.DecisionReject || d == types.DecisionNoProgress {
			count++
		} else {
			break
		}
	}
	return count
}

// BatchGet loads many hypotheses' state, chunking by 100 entity ids with
// bounded parallelism of at most 10 concurrent chunks (spec §4.C8).
func (m *Manager) BatchGet(ctx context.Context, entityIDs []string) (map[string][]*types.Hypothesis, error) {
	const chunkSize = 100
	const maxParallel = 10

	var chunks [][]string
	for i := 0; i < len(entityIDs); i += chunkSize {
		end := i + chunkSize
		if end > len(entityIDs) {
			end = len(entityIDs)
		}
		chunks = append(chunks, entityIDs[i:end])
	}

	results := make(map[string][]*types.Hypothesis)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			for _, id := range chunk {
				list, err := m.store.List(gctx, id)
				if err != nil {
					return fmt.Errorf("hypothesis: batch listing %s: %w", id, err)
				}
				mu.Lock()
				results[id] = list
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

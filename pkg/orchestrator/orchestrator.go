// Package orchestrator implements the Discovery Orchestrator (spec §4.C9):
// the per-entity outer loop that gates on budget, plans a hop, resolves
// and fetches a URL, judges it through the Ralph Loop, and folds the
// result back into hypothesis and binding state.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/scoutline/discovery/pkg/budget"
	"github.com/scoutline/discovery/pkg/hypothesis"
	"github.com/scoutline/discovery/pkg/llm"
	"github.com/scoutline/discovery/pkg/promptbuilder"
	"github.com/scoutline/discovery/pkg/ralph"
	"github.com/scoutline/discovery/pkg/scorer"
	"github.com/scoutline/discovery/pkg/scrape"
	"github.com/scoutline/discovery/pkg/search"
	"github.com/scoutline/discovery/pkg/types"
	"github.com/scoutline/discovery/pkg/verifier"
)

// URLScoreFloor is the minimum argmax URL score required before scraping;
// below it the orchestrator emits NO_PROGRESS without a fetch (spec
// §4.C9 step 4).
const URLScoreFloor = 0.2

// SearchResultsPerHop bounds how many results the search client returns
// per hop before scoring.
const SearchResultsPerHop = 10

var tracer = otel.Tracer("github.com/scoutline/discovery/pkg/orchestrator")

// HopTypePriors weights hop-type selection in the EIG formula (spec
// §4.C9 step 3). Entities with richer digital presences lean toward
// official channels; sparser ones lean toward discoverable third-party
// mentions. The values are fixed package defaults graded from RFP pages
// (1.0) down to jobs boards (0.4); there is no per-cluster override.
var HopTypePriors = map[types.HopType]float64{
	types.HopRFPPage:      1.0,
	types.HopOfficialNews: 0.9,
	types.HopPressRelease: 0.8,
	types.HopPartnerSite:  0.6,
	types.HopCareersPage:  0.5,
	types.HopJobsBoard:    0.4,
}

// BindingManager is the subset of pkg/binding's Manager the orchestrator
// depends on.
type BindingManager interface {
	GetOrCreate(ctx context.Context, entityID, entityName, templateID string) (*types.RuntimeBinding, error)
	RecordUse(ctx context.Context, b *types.RuntimeBinding, success bool, channel, discoveredURL, pattern, example string) error
}

// IntelligenceEngine is the subset of pkg/intelligence's Engine the
// orchestrator consults for discovery shortcuts.
type IntelligenceEngine interface {
	ChannelPriorities(ctx context.Context, clusterID string) ([]string, error)
}

// EpisodeSink persists append-only episodes (spec §4.C13 episode store).
type EpisodeSink interface {
	Put(ctx context.Context, ep types.Episode) error
}

// Clock abstracts wall-clock reads for dossier timestamps.
type Clock interface {
	Now() time.Time
}

// Run is everything one invocation of Discover needs: the entity, its
// template, and every collaborator.
type Run struct {
	Entity   types.Entity
	Template types.Template

	Budget       *budget.Controller
	Search       *search.Client
	Scorer       *scorer.Scorer
	Scrape       *scrape.Client
	Prompts      *promptbuilder.Builder
	Cascade      *llm.Cascade
	Hypotheses   *hypothesis.Manager
	Bindings     BindingManager
	Intelligence IntelligenceEngine
	Episodes     EpisodeSink
	Clock        Clock

	// Verifier gates a resolved URL before it is scraped and judged. Nil
	// skips verification entirely (tests commonly leave it unset).
	Verifier *verifier.Verifier
}

// Orchestrator drives the discovery loop for one entity at a time.
type Orchestrator struct {
	novelty ralph.NoveltyConfig
	log     *logrus.Entry
}

// New constructs an Orchestrator.
func New(novelty ralph.NoveltyConfig) *Orchestrator {
	return &Orchestrator{novelty: novelty, log: logrus.WithField("component", "discovery_orchestrator")}
}

// Discover runs the full per-entity loop to completion (budget
// exhaustion, all-hypotheses-terminal, or context cancellation) and
// returns the assembled dossier.
func (o *Orchestrator) Discover(ctx context.Context, run Run) (types.Dossier, error) {
	startedAt := run.Clock.Now()
	o.log.WithField("entity_id", run.Entity.EntityID).Info("starting discovery run")

	hypotheses, err := run.Hypotheses.Initialise(ctx, run.Template, run.Entity)
	if err != nil {
		return types.Dossier{}, fmt.Errorf("orchestrator: initialising hypotheses: %w", err)
	}

	state := &types.RalphState{EntityID: run.Entity.EntityID, CurrentConfidence: 0.20, ConfidenceCeiling: 0.95}
	loop := ralph.New(run.Cascade, o.novelty)

	binding, err := run.Bindings.GetOrCreate(ctx, run.Entity.EntityID, run.Entity.Name, run.Template.TemplateID)
	if err != nil {
		return types.Dossier{}, fmt.Errorf("orchestrator: loading binding: %w", err)
	}

	// Cluster Intelligence shortcuts are a hint, not a dependency: a
	// lookup failure (e.g. no cluster yet) just leaves hop planning to
	// its usual priors (spec §4.C9 step 2, §4.C11).
	var shortcuts []string
	if run.Intelligence != nil {
		shortcuts, err = run.Intelligence.ChannelPriorities(ctx, run.Entity.ClusterID)
		if err != nil {
			o.log.WithError(err).WithField("cluster_id", run.Entity.ClusterID).Warn("failed to load cluster channel priorities, falling back to default hop priors")
			shortcuts = nil
		}
	}

	iteration := 0
	reason := types.ReasonAllHypothesesTerminal
	var failedSteps []string

	for {
		// A cancelled context ends the run between iterations, never
		// mid-iteration.
		if ctx.Err() != nil {
			reason = types.ReasonTimeLimitReached
			break
		}
		iteration++
		target, ok := pickActiveHypothesis(hypotheses)
		if !ok {
			reason = types.ReasonAllHypothesesTerminal
			break
		}

		haveConfidence := state.IterationsCompleted > 0
		canContinue, stopReason, _ := run.Budget.CanContinue(target.Category, state.CurrentConfidence, haveConfidence)
		if !canContinue {
			reason = stopReason
			break
		}

		hopType := planHop(target, run.Entity, shortcuts, binding)

		iterCtx, span := tracer.Start(ctx, "orchestrator.iteration", trace.WithAttributes())
		decision, err := o.runIteration(iterCtx, run, target, hopType, binding, state, loop, iteration)
		if err != nil {
			span.End()
			failedSteps = append(failedSteps, fmt.Sprintf("iteration %d: %v", iteration, err))
			run.Budget.RecordIteration(budget.IterationRecord{Category: target.Category})
			continue
		}

		run.Budget.RecordIteration(budget.IterationRecord{
			Category:      target.Category,
			LLMCalls:      decision.LLMCalls,
			ValidationCalls: 0,
			ScrapeCalls:   1,
			Confidence:    state.CurrentConfidence,
			HasConfidence: true,
		})

		updated, err := run.Hypotheses.Update(iterCtx, target.HypothesisID, decision, target.Category, target.lastURL, iteration)
		if err != nil {
			span.End()
			return types.Dossier{}, fmt.Errorf("orchestrator: updating hypothesis %s: %w", target.HypothesisID, err)
		}
		replaceHypothesis(hypotheses, updated)

		if err := run.Episodes.Put(iterCtx, types.Episode{
			ID:          uuid.NewString(),
			EntityID:    run.Entity.EntityID,
			Type:        "discovery_iteration",
			Subtype:     string(decision.Decision),
			Description: decision.Justification,
			Timestamp:   run.Clock.Now(),
			Confidence:  updated.Confidence,
			SourceRefs:  []string{target.lastURL},
		}); err != nil {
			o.log.WithError(err).Warn("failed to persist episode")
		}

		success := decision.Decision == types.DecisionAccept || decision.Decision == types.DecisionWeakAccept
		if err := run.Bindings.RecordUse(iterCtx, binding, success, string(hopType), target.lastURL, target.Category, target.lastURL); err != nil {
			o.log.WithError(err).Warn("failed to record binding use")
		}

		span.End()

		if !hasActiveHypothesis(hypotheses) {
			reason = types.ReasonAllHypothesesTerminal
			break
		}
	}

	finalConfidence := ralph.ApplyGuardrail1(state)
	completedAt := run.Clock.Now()

	dossier := types.Dossier{
		EntityID:            run.Entity.EntityID,
		EntityName:          run.Entity.Name,
		TemplateID:          run.Template.TemplateID,
		FinalConfidence:     finalConfidence,
		ConfidenceBand:      types.ConfidenceBandFor(finalConfidence),
		IsActionable:        types.ConfidenceBandFor(finalConfidence) == types.BandActionable,
		IterationsCompleted: run.Budget.TotalIterations(),
		TotalCostUSD:        run.Budget.TotalCostUSD(),
		Hypotheses:          derefAll(hypotheses),
		CategoryStats:       dereferenceCategoryStats(state.CategoryStats),
		StoppingReason:      reason,
		FailedSteps:         failedSteps,
		StartedAt:           startedAt,
		CompletedAt:         completedAt,
	}
	return dossier, nil
}

// hypothesisTarget pairs a hypothesis with the URL most recently
// resolved for it, so the post-iteration update can attribute the
// source.
type hypothesisTarget struct {
	*types.Hypothesis
	lastURL string
}

// pickActiveHypothesis selects the ACTIVE hypothesis with the highest
// Expected Information Gain proxy: confidence_gap (distance to ceiling)
// scaled by a category saturation multiplier, tie-broken by lowest
// iteration count in category (spec §4.C9 step 3).
func pickActiveHypothesis(hypotheses []*types.Hypothesis) (*hypothesisTarget, bool) {
	var best *types.Hypothesis
	bestEIG := -1.0
	for _, h := range hypotheses {
		if h.State != types.HypothesisActive {
			continue
		}
		gap := 0.95 - h.Confidence
		eig := gap * ralph.CategoryMultiplier(h.ReinforcementCount)
		if eig > bestEIG || (eig == bestEIG && best != nil && h.Iterations < best.Iterations) {
			best = h
			bestEIG = eig
		}
	}
	if best == nil {
		return nil, false
	}
	return &hypothesisTarget{Hypothesis: best}, true
}

func hasActiveHypothesis(hypotheses []*types.Hypothesis) bool {
	for _, h := range hypotheses {
		if h.State == types.HypothesisActive {
			return true
		}
	}
	return false
}

func replaceHypothesis(hypotheses []*types.Hypothesis, updated *types.Hypothesis) {
	for i, h := range hypotheses {
		if h.HypothesisID == updated.HypothesisID {
			hypotheses[i] = updated
			return
		}
	}
}

// planHop picks the next hop type to try. A Cluster Intelligence
// shortcut channel not yet discovered on this binding takes priority
// over the default priors (spec §4.C9 step 2: "if discovery shortcuts
// exist for the entity's cluster, pick the next unused shortcut
// channel"); absent a usable shortcut, it falls back to the highest
// prior, biased toward official channels for digitally mature entities
// (spec §4.C9 step 3).
func planHop(target *hypothesisTarget, entity types.Entity, clusterShortcuts []string, b *types.RuntimeBinding) types.HopType {
	if hop, ok := nextUnusedShortcut(clusterShortcuts, b); ok {
		return hop
	}

	type scored struct {
		hop   types.HopType
		score float64
	}
	var candidates []scored
	for hop, prior := range HopTypePriors {
		score := prior
		if entity.DigitalMaturity == types.DigitalMaturityLow && (hop == types.HopPressRelease || hop == types.HopPartnerSite) {
			score *= 1.2
		}
		candidates = append(candidates, scored{hop, score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return candidates[0].hop
}

// nextUnusedShortcut returns the first cluster shortcut channel that is
// both a valid hop type and not yet represented among b's discovered
// channels.
func nextUnusedShortcut(clusterShortcuts []string, b *types.RuntimeBinding) (types.HopType, bool) {
	for _, channel := range clusterShortcuts {
		hop := types.HopType(channel)
		if _, validHop := HopTypePriors[hop]; !validHop {
			continue
		}
		if urls, discovered := b.DiscoveredChannels[channel]; discovered && len(urls) > 0 {
			continue
		}
		return hop, true
	}
	return "", false
}

func (o *Orchestrator) runIteration(
	ctx context.Context,
	run Run,
	target *hypothesisTarget,
	hopType types.HopType,
	binding *types.RuntimeBinding,
	state *types.RalphState,
	loop *ralph.Loop,
	iteration int,
) (ralph.Decision, error) {
	url, ok, err := o.resolveURL(ctx, run, target, hopType, binding)
	if err != nil {
		return ralph.Decision{}, err
	}
	if !ok {
		return ralph.Decision{Decision: types.DecisionNoProgress, Justification: "no URL scored above the relevance floor"}, nil
	}
	target.lastURL = url

	if run.Verifier != nil {
		ev := run.Verifier.Verify(ctx, types.Evidence{SourceURL: url})
		if !ev.Verified {
			return ralph.Decision{Decision: types.DecisionNoProgress, Justification: "evidence source failed verification: " + url}, nil
		}
	}

	page := run.Scrape.Scrape(ctx, url)
	if page.Status == scrape.StatusError {
		return ralph.Decision{Decision: types.DecisionNoProgress, Justification: "scrape failed: " + page.Error}, nil
	}

	prompt, err := run.Prompts.Build(promptbuilder.Input{
		EntityName:             run.Entity.Name,
		EntityType:             run.Entity.Type,
		TemplateSignalPatterns: run.Template.SignalPatterns,
		HopType:                hopType,
		HypothesisStatement:    target.Statement,
		CurrentConfidence:      state.CurrentConfidence,
		FetchedContent:         page.Content,
	})
	if err != nil {
		return ralph.Decision{}, fmt.Errorf("building prompt: %w", err)
	}

	iterInCategory := run.Budget.IterationsInCategory(target.Category) + 1

	decision, err := loop.Run(ctx, ralph.Input{
		Prompt:              prompt,
		Category:            target.Category,
		SourceURL:           url,
		Iteration:           iteration,
		IterationInCategory: iterInCategory,
	}, state)
	if err != nil {
		return ralph.Decision{}, fmt.Errorf("running ralph loop: %w", err)
	}
	return decision, nil
}

// resolveURL consults a promoted binding's discovered channels first
// (bypassing search, spec §4.C10), then falls back to search + scoring.
func (o *Orchestrator) resolveURL(ctx context.Context, run Run, target *hypothesisTarget, hopType types.HopType, b *types.RuntimeBinding) (string, bool, error) {
	if b.State == types.BindingPromoted {
		if urls, ok := b.DiscoveredChannels[string(hopType)]; ok && len(urls) > 0 {
			return urls[0], true, nil
		}
	}

	query := fmt.Sprintf("%s %s", run.Entity.Name, hopType)
	results, err := run.Search.SearchForHop(ctx, query, hopType, SearchResultsPerHop)
	if err != nil {
		return "", false, fmt.Errorf("searching for hop: %w", err)
	}
	if len(results) == 0 {
		return "", false, nil
	}

	candidates := make([]scorer.Candidate, len(results))
	for i, r := range results {
		candidates[i] = scorer.Candidate{URL: r.URL, Title: r.Title, Snippet: r.Snippet, Rank: r.Rank}
	}
	best, score, found, err := run.Scorer.SelectBest(ctx, candidates, string(hopType), run.Entity.Name)
	if err != nil {
		return "", false, fmt.Errorf("scoring candidates: %w", err)
	}
	if !found || score <= URLScoreFloor {
		return "", false, nil
	}
	return best.URL, true, nil
}

func derefAll(hypotheses []*types.Hypothesis) []types.Hypothesis {
	out := make([]types.Hypothesis, len(hypotheses))
	for i, h := range hypotheses {
		out[i] = *h
	}
	return out
}

func dereferenceCategoryStats(m map[string]*types.CategoryStats) map[string]types.CategoryStats {
	out := make(map[string]types.CategoryStats, len(m))
	for k, v := range m {
		out[k] = *v
	}
	return out
}

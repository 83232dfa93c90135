// Package ralph implements the Ralph Loop (spec §4.C7): the judge-and-
// update state machine that turns one piece of scraped content into a
// typed decision, a governed confidence delta, and updated per-category
// saturation bookkeeping. This is the heart of the system.
package ralph

import (
	"context"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/pkg/llm"
	"github.com/scoutline/discovery/pkg/types"
)

// NoveltyConfig carries the calibrated iteration-index boundaries (spec §9
// Open Question 1: "exact novelty step boundaries are calibrated values;
// they should be configurable").
type NoveltyConfig struct {
	FullThroughIteration   int     // novelty 1.0 through this iteration (default 5)
	MediumThroughIteration int     // novelty 0.6 through this iteration (default 12)
	LowThroughIteration    int     // novelty 0.3 through this iteration (default 18)
	FullValue              float64 // default 1.0
	MediumValue            float64 // default 0.6
	LowValue                float64 // default 0.3
}

// DefaultNoveltyConfig returns the calibrated defaults from spec §4.C7.
func DefaultNoveltyConfig() NoveltyConfig {
	return NoveltyConfig{
		FullThroughIteration:   5,
		MediumThroughIteration: 12,
		LowThroughIteration:    18,
		FullValue:              1.0,
		MediumValue:            0.6,
		LowValue:               0.3,
	}
}

// Novelty returns the decay factor for iteration (1-indexed within the
// run, not the category: a run exhausts its appetite for new evidence
// as a whole, regardless of how iterations are split across
// categories).
func (c NoveltyConfig) Novelty(iteration int) float64 {
	switch {
	case iteration <= c.FullThroughIteration:
		return c.FullValue
	case iteration <= c.MediumThroughIteration:
		return c.MediumValue
	case iteration <= c.LowThroughIteration:
		return c.LowValue
	default:
		return 0.0
	}
}

// ConsecutiveRejectsToSaturate is the threshold at which a category is
// marked SATURATED (spec §4.C7).
const ConsecutiveRejectsToSaturate = 3

// DuplicateJaccardThreshold is the 5-gram Jaccard similarity at or above
// which two evidence strings are duplicates (spec §4.C7).
const DuplicateJaccardThreshold = 0.9

// Decision is the outcome of one judge-and-update cycle (spec §4.C7).
type Decision struct {
	Decision          types.RalphDecisionType
	RawDelta          float64
	AppliedDelta      float64
	Justification     string
	EvidenceItems     []string
	CategorySaturated bool
	LLMCalls          int
	LLMCostUSD        float64
	Tier              llm.Tier
}

// Input is what the Discovery Orchestrator hands the Loop for one
// iteration.
type Input struct {
	Prompt            string
	Category          string
	SourceURL         string
	Iteration         int // 1-indexed within the run
	IterationInCategory int // 1-indexed within the category
}

// Loop is the Ralph Loop: judge -> guardrails -> category state update.
type Loop struct {
	cascade *llm.Cascade
	novelty NoveltyConfig
	log     *logrus.Entry
}

// New constructs a Loop.
func New(cascade *llm.Cascade, novelty NoveltyConfig) *Loop {
	return &Loop{cascade: cascade, novelty: novelty, log: logrus.WithField("component", "ralph_loop")}
}

// Run executes one judge-and-update cycle, mutating state in place (its
// CategoryStats and CurrentConfidence fields are both read and written).
func (l *Loop) Run(ctx context.Context, in Input, state *types.RalphState) (Decision, error) {
	cat := state.StatsFor(in.Category)

	// A category already marked SATURATED short-circuits without spending
	// an LLM call (spec §4.C7: "subsequent iterations in that category
	// short-circuit to a SATURATED decision with delta 0").
	if cat.Saturated {
		return l.shortCircuitSaturated(cat), nil
	}

	novelty := l.novelty.Novelty(in.Iteration)
	if novelty == 0.0 {
		return l.applyDecision(types.DecisionNoProgress, 0, 0, "novelty exhausted for this run", nil, state, cat), nil
	}

	outcome, err := l.cascade.Run(ctx, in.Prompt, state.CurrentConfidence)
	if err != nil {
		return Decision{}, fmt.Errorf("ralph: cascade invocation failed: %w", err)
	}

	decision := Decision{LLMCalls: outcome.TotalCalls, LLMCostUSD: outcome.TotalCost, Tier: outcome.Tier}

	// A JudgeParseError downgrades to NO_PROGRESS, never aborts the
	// iteration (spec §6, §7).
	if outcome.ParseError {
		l.log.Warn("judge returned unparseable JSON after cascade exhausted, downgrading to NO_PROGRESS")
		d := l.applyDecision(types.DecisionNoProgress, 0, 0, "judge response was not parseable JSON", nil, state, cat)
		d.LLMCalls, d.LLMCostUSD, d.Tier = decision.LLMCalls, decision.LLMCostUSD, decision.Tier
		return d, nil
	}

	label := types.RalphDecisionType(strings.ToUpper(strings.TrimSpace(outcome.Output.Decision)))
	if !validLabel(label) {
		d := l.applyDecision(types.DecisionNoProgress, 0, 0, "judge returned an unrecognised decision label", nil, state, cat)
		d.LLMCalls, d.LLMCostUSD, d.Tier = decision.LLMCalls, decision.LLMCostUSD, decision.Tier
		return d, nil
	}

	// Duplicate detection forces REJECT regardless of the judge's label
	// (spec §4.C7).
	if isDuplicate(outcome.Output.EvidenceFound, state.NoveltyPool) {
		d := l.applyDecision(types.DecisionReject, 0, 0, "duplicate of previously seen evidence", outcome.Output.EvidenceFound, state, cat)
		d.LLMCalls, d.LLMCostUSD, d.Tier = decision.LLMCalls, decision.LLMCostUSD, decision.Tier
		return d, nil
	}

	rawDelta := types.RawDeltaFor(label)
	d := l.applyDecisionWithNovelty(label, rawDelta, novelty, outcome.Output.Justification, outcome.Output.EvidenceFound, state, cat)
	d.LLMCalls, d.LLMCostUSD, d.Tier = decision.LLMCalls, decision.LLMCostUSD, decision.Tier

	if len(outcome.Output.EvidenceFound) > 0 {
		state.NoveltyPool = append(state.NoveltyPool, outcome.Output.EvidenceFound...)
	}

	return d, nil
}

func (l *Loop) shortCircuitSaturated(cat *types.CategoryStats) Decision {
	cat.TotalIterations++
	cat.SaturatedCount++
	cat.LastDecision = types.DecisionSaturated
	return Decision{Decision: types.DecisionSaturated, CategorySaturated: true, Justification: "category previously marked saturated"}
}

func (l *Loop) applyDecision(decision types.RalphDecisionType, rawDelta, appliedDelta float64, justification string, evidence []string, state *types.RalphState, cat *types.CategoryStats) Decision {
	l.updateCategoryStats(decision, cat)
	if appliedDelta != 0 {
		state.CurrentConfidence = types.ClampConfidence(state.CurrentConfidence + appliedDelta)
	}
	state.IterationsCompleted++
	return Decision{
		Decision:          decision,
		RawDelta:          rawDelta,
		AppliedDelta:       appliedDelta,
		Justification:      justification,
		EvidenceItems:      evidence,
		CategorySaturated:  cat.Saturated,
	}
}

// applyDecisionWithNovelty computes the full multiplier chain (spec
// §4.C7): applied = raw * novelty * damping * category_multiplier.
func (l *Loop) applyDecisionWithNovelty(decision types.RalphDecisionType, rawDelta, novelty float64, justification string, evidence []string, state *types.RalphState, cat *types.CategoryStats) Decision {
	damping := Damping(state.CurrentConfidence, ceilingOr(state.ConfidenceCeiling))

	categoryMultiplier := 1.0
	if decision == types.DecisionWeakAccept {
		categoryMultiplier = CategoryMultiplier(cat.WeakAcceptCount)
	}

	appliedDelta := rawDelta * novelty * damping * categoryMultiplier

	l.updateCategoryStats(decision, cat)
	if appliedDelta != 0 {
		state.CurrentConfidence = types.ClampConfidence(state.CurrentConfidence + appliedDelta)
	}
	state.IterationsCompleted++

	return Decision{
		Decision:          decision,
		RawDelta:          rawDelta,
		AppliedDelta:       appliedDelta,
		Justification:      justification,
		EvidenceItems:      evidence,
		CategorySaturated:  cat.Saturated,
	}
}

func (l *Loop) updateCategoryStats(decision types.RalphDecisionType, cat *types.CategoryStats) {
	cat.TotalIterations++
	cat.LastDecision = decision

	switch decision {
	case types.DecisionAccept:
		cat.AcceptCount++
		cat.ConsecutiveRejects = 0
	case types.DecisionWeakAccept:
		cat.WeakAcceptCount++
		cat.ConsecutiveRejects = 0
	case types.DecisionReject:
		cat.RejectCount++
		cat.ConsecutiveRejects++
	case types.DecisionNoProgress:
		cat.NoProgressCount++
		cat.ConsecutiveRejects++
	case types.DecisionSaturated:
		cat.SaturatedCount++
	}

	if cat.ConsecutiveRejects >= ConsecutiveRejectsToSaturate {
		cat.Saturated = true
	}
}

// Damping implements Guardrail 2: damping = max(0.1, 1 -
// (current/ceiling)^2).
func Damping(current, ceiling float64) float64 {
	if ceiling == 0 {
		return 0.1
	}
	ratio := current / ceiling
	d := 1.0 - ratio*ratio
	if d < 0.1 {
		return 0.1
	}
	return d
}

// CategoryMultiplier implements Guardrail 3: 1 / (1 + 0.5 *
// weak_accept_count_before_this_one).
func CategoryMultiplier(weakAcceptCountSoFar int) float64 {
	return 1.0 / (1.0 + 0.5*float64(weakAcceptCountSoFar))
}

func ceilingOr(c float64) float64 {
	if c == 0 {
		return 0.95
	}
	return c
}

// ApplyGuardrail1 implements "if Σ category_stats[c].accept_count == 0,
// clamp final_confidence = min(final_confidence, 0.70)". Call once, after
// the run completes.
func ApplyGuardrail1(state *types.RalphState) float64 {
	if state.TotalAcceptCount() == 0 {
		if state.CurrentConfidence > 0.70 {
			return 0.70
		}
	}
	return state.CurrentConfidence
}

func validLabel(d types.RalphDecisionType) bool {
	switch d {
	case types.DecisionAccept, types.DecisionWeakAccept, types.DecisionReject, types.DecisionNoProgress, types.DecisionSaturated:
		return true
	default:
		return false
	}
}

// isDuplicate reports whether any new evidence string is a near-duplicate
// (5-gram Jaccard >= threshold) or an exact match of anything already in
// the pool (spec §4.C7 duplicate detection).
func isDuplicate(newEvidence, pool []string) bool {
	for _, n := range newEvidence {
		normN := normalize(n)
		for _, p := range pool {
			normP := normalize(p)
			if normN == normP {
				return true
			}
			if jaccard5gram(normN, normP) >= DuplicateJaccardThreshold {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastWasSpace = false
		default:
			// strip punctuation
		}
	}
	return strings.TrimSpace(b.String())
}

func fiveGrams(s string) map[string]struct{} {
	runes := []rune(s)
	grams := make(map[string]struct{})
	if len(runes) < 5 {
		if len(runes) > 0 {
			grams[s] = struct{}{}
		}
		return grams
	}
	for i := 0; i+5 <= len(runes); i++ {
		grams[string(runes[i:i+5])] = struct{}{}
	}
	return grams
}

func jaccard5gram(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ga, gb := fiveGrams(a), fiveGrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	intersection := 0
	for g := range ga {
		if _, ok := gb[g]; ok {
			intersection++
		}
	}
	union := len(ga) + len(gb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ExtractEvidenceType evaluates an MCP gojq query against the judge's
// parsed JSON output to pull out the opaque evidence_type tag (spec §9
// Open Question 2: evidence-type tags are a deploy-time data table, not
// code). query defaults to ".evidence_type" when empty.
func ExtractEvidenceType(rawJSON map[string]any, query string) (string, error) {
	if query == "" {
		query = ".evidence_type"
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", fmt.Errorf("ralph: invalid MCP evidence-pattern query: %w", err)
	}
	iter := parsed.Run(rawJSON)
	v, ok := iter.Next()
	if !ok {
		return "", nil
	}
	if err, isErr := v.(error); isErr {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

package ralph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/llm"
	"github.com/scoutline/discovery/pkg/ralph"
	"github.com/scoutline/discovery/pkg/types"
)

type scriptedJudge struct {
	responses []llm.Response
	idx       int
}

func (s *scriptedJudge) Judge(_ context.Context, _ string) (llm.Response, error) {
	r := s.responses[s.idx]
	if s.idx < len(s.responses)-1 {
		s.idx++
	}
	return r, nil
}

func weakAcceptResp() llm.Response {
	return llm.Response{Text: `{"decision":"WEAK_ACCEPT","confidence":0.9,"justification":"quote: capability present","evidence_found":["capability signal"]}`}
}

func TestDamping_AtHighConfidence(t *testing.T) {
	d := ralph.Damping(0.93, 0.95)
	assert.InDelta(t, 0.1, d, 1e-9, "damping at 0.93/0.95 should clamp to the 0.1 floor")
}

func TestCategoryMultiplier_Sequence(t *testing.T) {
	assert.InDelta(t, 1.0, ralph.CategoryMultiplier(0), 1e-9)
	assert.InDelta(t, 1.0/1.5, ralph.CategoryMultiplier(1), 1e-9)
	assert.InDelta(t, 0.5, ralph.CategoryMultiplier(2), 1e-9)
}

func TestRun_AppliedDeltaNeverExceedsRaw(t *testing.T) {
	cheap := &scriptedJudge{responses: []llm.Response{weakAcceptResp()}}
	cascade := llm.NewCascade(cheap, cheap, cheap)
	loop := ralph.New(cascade, ralph.DefaultNoveltyConfig())

	state := &types.RalphState{CurrentConfidence: 0.2, ConfidenceCeiling: 0.95}
	decision, err := loop.Run(context.Background(), ralph.Input{Category: "cat1", Iteration: 1, IterationInCategory: 1}, state)
	require.NoError(t, err)
	assert.LessOrEqual(t, decision.AppliedDelta, decision.RawDelta)
}

func TestRun_SuccessiveWeakAcceptsDecrease(t *testing.T) {
	cheap := &scriptedJudge{responses: []llm.Response{weakAcceptResp()}}
	cascade := llm.NewCascade(cheap, cheap, cheap)
	loop := ralph.New(cascade, ralph.DefaultNoveltyConfig())

	state := &types.RalphState{CurrentConfidence: 0.2, ConfidenceCeiling: 0.95}
	var deltas []float64
	for i := 1; i <= 3; i++ {
		// avoid duplicate detection by varying text (and resetting pool)
		state.NoveltyPool = nil
		d, err := loop.Run(context.Background(), ralph.Input{Category: "cat1", Iteration: i, IterationInCategory: i}, state)
		require.NoError(t, err)
		deltas = append(deltas, d.AppliedDelta)
	}
	assert.Greater(t, deltas[0], deltas[1])
	assert.Greater(t, deltas[1], deltas[2])
}

func TestRun_ThreeConsecutiveRejectsSaturateCategory(t *testing.T) {
	rejectResp := llm.Response{Text: `{"decision":"REJECT","confidence":0.9}`}
	cheap := &scriptedJudge{responses: []llm.Response{rejectResp}}
	cascade := llm.NewCascade(cheap, cheap, cheap)
	loop := ralph.New(cascade, ralph.DefaultNoveltyConfig())

	state := &types.RalphState{CurrentConfidence: 0.2, ConfidenceCeiling: 0.95}
	var last ralph.Decision
	for i := 1; i <= 4; i++ {
		d, err := loop.Run(context.Background(), ralph.Input{Category: "cat1", Iteration: i, IterationInCategory: i}, state)
		require.NoError(t, err)
		last = d
	}
	assert.Equal(t, types.DecisionSaturated, last.Decision, "a fourth attempt in a saturated category short-circuits")
	assert.Equal(t, 0.0, last.AppliedDelta)
}

func TestRun_DuplicateEvidenceForcesReject(t *testing.T) {
	dup := llm.Response{Text: `{"decision":"WEAK_ACCEPT","confidence":0.9,"evidence_found":["Team wins match"]}`}
	cheap := &scriptedJudge{responses: []llm.Response{dup}}
	cascade := llm.NewCascade(cheap, cheap, cheap)
	loop := ralph.New(cascade, ralph.DefaultNoveltyConfig())

	state := &types.RalphState{CurrentConfidence: 0.2, ConfidenceCeiling: 0.95, NoveltyPool: []string{"Team wins match"}}
	d, err := loop.Run(context.Background(), ralph.Input{Category: "cat1", Iteration: 1, IterationInCategory: 1}, state)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionReject, d.Decision)
	assert.Equal(t, 0.0, d.RawDelta)
}

func TestRun_NoveltyExhaustedYieldsNoProgress(t *testing.T) {
	cheap := &scriptedJudge{responses: []llm.Response{weakAcceptResp()}}
	cascade := llm.NewCascade(cheap, cheap, cheap)
	loop := ralph.New(cascade, ralph.DefaultNoveltyConfig())

	state := &types.RalphState{CurrentConfidence: 0.2, ConfidenceCeiling: 0.95}
	// Iteration 19 is a run-level index past LowThroughIteration (18), the
	// boundary a real run can actually reach (unlike IterationInCategory,
	// which is capped at max_iterations_per_category).
	d, err := loop.Run(context.Background(), ralph.Input{Category: "cat1", Iteration: 19, IterationInCategory: 1}, state)
	require.NoError(t, err)
	assert.Equal(t, types.DecisionNoProgress, d.Decision)
}

func TestApplyGuardrail1_ClampsWhenNoAccepts(t *testing.T) {
	state := &types.RalphState{CurrentConfidence: 0.82}
	state.StatsFor("cat1").WeakAcceptCount = 10
	clamped := ralph.ApplyGuardrail1(state)
	assert.LessOrEqual(t, clamped, 0.70)
}

func TestApplyGuardrail1_NoClampWithAccepts(t *testing.T) {
	state := &types.RalphState{CurrentConfidence: 0.82}
	state.StatsFor("cat1").AcceptCount = 1
	clamped := ralph.ApplyGuardrail1(state)
	assert.InDelta(t, 0.82, clamped, 1e-9)
}

func TestExtractEvidenceType(t *testing.T) {
	parsed := map[string]any{"evidence_type": "multi_year_partnership"}
	tag, err := ralph.ExtractEvidenceType(parsed, "")
	require.NoError(t, err)
	assert.Equal(t, "multi_year_partnership", tag)
}

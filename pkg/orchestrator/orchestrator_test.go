package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/internal/clock"
	"github.com/scoutline/discovery/pkg/budget"
	"github.com/scoutline/discovery/pkg/hypothesis"
	"github.com/scoutline/discovery/pkg/llm"
	"github.com/scoutline/discovery/pkg/orchestrator"
	"github.com/scoutline/discovery/pkg/promptbuilder"
	"github.com/scoutline/discovery/pkg/ralph"
	"github.com/scoutline/discovery/pkg/scorer"
	"github.com/scoutline/discovery/pkg/scrape"
	"github.com/scoutline/discovery/pkg/search"
	"github.com/scoutline/discovery/pkg/types"
)

type stubEngine struct{ name string }

func (s *stubEngine) Name() string { return s.name }
func (s *stubEngine) Search(_ context.Context, query string, n int) ([]search.Result, error) {
	return []search.Result{{URL: "https://arsenal.com/news/rfp-open", Title: "Arsenal RFP", Snippet: "request for proposal vendor", Rank: 1}}, nil
}

type stubBackend struct{}

func (s *stubBackend) Fetch(_ context.Context, url string) (string, error) {
	return "Arsenal announces a multi-year partnership RFP for digital vendors.", nil
}

type stubJudge struct{ text string }

func (s *stubJudge) Judge(_ context.Context, _ string) (llm.Response, error) {
	return llm.Response{Text: s.text}, nil
}

type memHypothesisStore struct {
	byID map[string]*types.Hypothesis
}

func newMemHypothesisStore() *memHypothesisStore {
	return &memHypothesisStore{byID: make(map[string]*types.Hypothesis)}
}

func (s *memHypothesisStore) Get(_ context.Context, id string) (*types.Hypothesis, error) {
	return s.byID[id], nil
}

func (s *memHypothesisStore) List(_ context.Context, entityID string) ([]*types.Hypothesis, error) {
	var out []*types.Hypothesis
	for _, h := range s.byID {
		if h.EntityID == entityID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memHypothesisStore) Put(_ context.Context, h *types.Hypothesis) error {
	s.byID[h.HypothesisID] = h
	return nil
}

type memBindingManager struct {
	binding *types.RuntimeBinding
	uses    int
}

func (m *memBindingManager) GetOrCreate(_ context.Context, entityID, entityName, templateID string) (*types.RuntimeBinding, error) {
	if m.binding == nil {
		m.binding = &types.RuntimeBinding{
			EntityID: entityID, EntityName: entityName, TemplateID: templateID,
			State:              types.BindingExploring,
			DiscoveredChannels: make(map[string][]string),
			EnrichedPatterns:   make(map[string][]string),
		}
	}
	return m.binding, nil
}

func (m *memBindingManager) RecordUse(_ context.Context, b *types.RuntimeBinding, success bool, channel, url, pattern, example string) error {
	m.uses++
	b.UsageCount++
	return nil
}

type noopIntelligence struct{}

func (noopIntelligence) ChannelPriorities(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

type memEpisodeSink struct{ episodes []types.Episode }

func (m *memEpisodeSink) Put(_ context.Context, ep types.Episode) error {
	m.episodes = append(m.episodes, ep)
	return nil
}

type fakeRunClock struct{ t time.Time }

func (f fakeRunClock) Now() time.Time { return f.t }

func acceptResponse() string {
	return `{"decision":"ACCEPT","confidence":0.9,"justification":"quote: multi-year partnership RFP","evidence_found":["multi-year partnership RFP"]}`
}

func TestDiscover_ProducesDossierWithConfidenceBand(t *testing.T) {
	entity := types.Entity{EntityID: "e1", Name: "Arsenal", Type: types.EntityTypeSportClub}
	tmpl := types.Template{TemplateID: "t1", SignalPatterns: []string{"rfp_mention"}}

	hypoStore := newMemHypothesisStore()
	hypoMgr := hypothesis.New(hypoStore)

	budgetCfg := budget.DefaultConfig()
	budgetCfg.MaxIterationsPerEntity = 2
	budgetCtrl := budget.New(budgetCfg, clock.NewSystem(), entity.EntityID)

	engines := []search.Engine{&stubEngine{name: "google"}, &stubEngine{name: "bing"}, &stubEngine{name: "duckduckgo"}}
	searchClient := search.New(engines, nil, nil, 24*time.Hour)

	scrapeClient := scrape.New(&stubBackend{}, nil)

	sc := scorer.New(scorer.DefaultTables())

	judge := &stubJudge{text: acceptResponse()}
	cascade := llm.NewCascade(judge, judge, judge)

	builder := promptbuilder.New()

	run := orchestrator.Run{
		Entity:       entity,
		Template:     tmpl,
		Budget:       budgetCtrl,
		Search:       searchClient,
		Scorer:       sc,
		Scrape:       scrapeClient,
		Prompts:      builder,
		Cascade:      cascade,
		Hypotheses:   hypoMgr,
		Bindings:     &memBindingManager{},
		Intelligence: noopIntelligence{},
		Episodes:     &memEpisodeSink{},
		Clock:        fakeRunClock{t: time.Now()},
	}

	o := orchestrator.New(ralph.DefaultNoveltyConfig())
	dossier, err := o.Discover(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, entity.EntityID, dossier.EntityID)
	assert.NotEmpty(t, dossier.ConfidenceBand)
	assert.LessOrEqual(t, dossier.IterationsCompleted, budgetCfg.MaxIterationsPerEntity)
	assert.Equal(t, types.ReasonMaxIterationsReached, dossier.StoppingReason)
}

func TestDiscover_StopsWhenAllHypothesesTerminalAfterRejects(t *testing.T) {
	entity := types.Entity{EntityID: "e2", Name: "Chelsea", Type: types.EntityTypeSportClub}
	tmpl := types.Template{TemplateID: "t1", SignalPatterns: []string{"rfp_mention"}}

	hypoStore := newMemHypothesisStore()
	hypoMgr := hypothesis.New(hypoStore)

	budgetCfg := budget.DefaultConfig()
	budgetCtrl := budget.New(budgetCfg, clock.NewSystem(), entity.EntityID)

	engines := []search.Engine{&stubEngine{name: "google"}, &stubEngine{name: "bing"}, &stubEngine{name: "duckduckgo"}}
	searchClient := search.New(engines, nil, nil, 24*time.Hour)
	scrapeClient := scrape.New(&stubBackend{}, nil)
	sc := scorer.New(scorer.DefaultTables())

	judge := &stubJudge{text: `{"decision":"REJECT","confidence":0.9,"justification":"no evidence"}`}
	cascade := llm.NewCascade(judge, judge, judge)
	builder := promptbuilder.New()

	run := orchestrator.Run{
		Entity:       entity,
		Template:     tmpl,
		Budget:       budgetCtrl,
		Search:       searchClient,
		Scorer:       sc,
		Scrape:       scrapeClient,
		Prompts:      builder,
		Cascade:      cascade,
		Hypotheses:   hypoMgr,
		Bindings:     &memBindingManager{},
		Intelligence: noopIntelligence{},
		Episodes:     &memEpisodeSink{},
		Clock:        fakeRunClock{t: time.Now()},
	}

	o := orchestrator.New(ralph.DefaultNoveltyConfig())
	dossier, err := o.Discover(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonAllHypothesesTerminal, dossier.StoppingReason)
}

package scorer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/scorer"
)

func TestScoreURL_ForbiddenChannelCapped(t *testing.T) {
	s := scorer.New(scorer.DefaultTables())
	score, err := s.ScoreURL(context.Background(), "https://facebook.com/arsenal", "RFP_PAGE", "Arsenal", "Arsenal FC", "official facebook")
	require.NoError(t, err)
	assert.LessOrEqual(t, score, 0.1)
}

func TestScoreURL_RFPKeywordMatch(t *testing.T) {
	s := scorer.New(scorer.DefaultTables())
	score, err := s.ScoreURL(context.Background(), "https://arsenal.com/procurement/tender-2026", "RFP_PAGE", "Arsenal", "Arsenal FC Tender Notice", "request for proposal for digital partner")
	require.NoError(t, err)
	assert.Greater(t, score, 0.5)
}

func TestSelectBest_TieBreaksOnRank(t *testing.T) {
	s := scorer.New(scorer.DefaultTables())
	candidates := []scorer.Candidate{
		{URL: "https://example.com/a", Title: "nothing relevant", Snippet: "", Rank: 2},
		{URL: "https://example.com/b", Title: "nothing relevant either", Snippet: "", Rank: 1},
	}
	best, _, ok, err := s.SelectBest(context.Background(), candidates, "RFP_PAGE", "Example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", best.URL)
}

func TestCredibility_OfficialHighUnreachableLow(t *testing.T) {
	s := scorer.New(scorer.DefaultTables())

	high, err := s.Credibility(context.Background(), "https://arsenal.fifa.com/news", true, false)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, high, 0.9)

	low, err := s.Credibility(context.Background(), "https://arsenal.fifa.com/news", false, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, low, 0.2)

	placeholder, err := s.Credibility(context.Background(), "https://example.com/placeholder", true, true)
	require.NoError(t, err)
	assert.LessOrEqual(t, placeholder, 0.2)
}

package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/search"
	"github.com/scoutline/discovery/pkg/types"
)

type stubEngine struct {
	name    string
	results []search.Result
	err     error
	calls   int
}

func (s *stubEngine) Name() string { return s.name }
func (s *stubEngine) Search(_ context.Context, _ string, _ int) ([]search.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestSearchForHop_FallsThroughOnEmpty(t *testing.T) {
	google := &stubEngine{name: "google"}
	bing := &stubEngine{name: "bing", results: []search.Result{{URL: "https://arsenal.com/tender", Rank: 1}}}
	duck := &stubEngine{name: "duckduckgo"}

	c := search.New([]search.Engine{google, bing, duck}, search.NewMemoryCache(), nil, time.Hour)
	results, err := c.SearchForHop(context.Background(), "arsenal tender", types.HopRFPPage, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://arsenal.com/tender", results[0].URL)
	assert.Equal(t, 1, google.calls)
	assert.Equal(t, 1, bing.calls)
	assert.Equal(t, 0, duck.calls)
}

func TestSearchForHop_FallsThroughOnError(t *testing.T) {
	google := &stubEngine{name: "google", err: errors.New("rate limited")}
	bing := &stubEngine{name: "bing", results: []search.Result{{URL: "https://arsenal.com/tender"}}}

	c := search.New([]search.Engine{google, bing}, search.NewMemoryCache(), nil, time.Hour)
	results, err := c.SearchForHop(context.Background(), "arsenal tender", types.HopRFPPage, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearch_CacheHitAvoidsSecondCall(t *testing.T) {
	google := &stubEngine{name: "google", results: []search.Result{{URL: "https://arsenal.com/tender"}}}
	cache := search.NewMemoryCache()
	c := search.New([]search.Engine{google}, cache, nil, time.Hour)

	_, err := c.Search(context.Background(), "Arsenal   Tender!!", "google", 5)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "arsenal tender", "google", 5)
	require.NoError(t, err)

	assert.Equal(t, 1, google.calls, "semantically equivalent query should hit cache, not call the engine twice")
}

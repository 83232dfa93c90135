package scrape_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/scrape"
)

type stubBackend struct {
	calls   int
	failN   int
	content string
	err     error
}

func (s *stubBackend) Fetch(_ context.Context, _ string) (string, error) {
	s.calls++
	if s.calls <= s.failN {
		return "", s.err
	}
	return s.content, nil
}

func TestScrape_SucceedsOnRetry(t *testing.T) {
	backend := &stubBackend{failN: 1, err: errors.New("timeout"), content: "# Arsenal Tender"}
	c := scrape.New(backend, nil)
	page := c.Scrape(context.Background(), "https://arsenal.com/tender")
	require.Equal(t, scrape.StatusSuccess, page.Status)
	assert.Equal(t, "# Arsenal Tender", page.Content)
	assert.Equal(t, 2, backend.calls)
}

func TestScrape_FailsAfterOneRetry(t *testing.T) {
	backend := &stubBackend{failN: 10, err: errors.New("timeout")}
	c := scrape.New(backend, nil)
	page := c.Scrape(context.Background(), "https://arsenal.com/tender")
	require.Equal(t, scrape.StatusError, page.Status)
	assert.Equal(t, 2, backend.calls)
	assert.NotEmpty(t, page.Error)
}

// routedBackend sends each URL to its own stub backend.
type routedBackend map[string]*stubBackend

func (r routedBackend) Fetch(ctx context.Context, url string) (string, error) {
	return r[url].Fetch(ctx, url)
}

func TestBatchScrape_IsolatesFailures(t *testing.T) {
	backend := routedBackend{
		"a": {content: "ok1"},
		"b": {failN: 10, err: errors.New("nope")},
		"c": {content: "ok2"},
	}
	// Each URL routed through its own backend via a small fan-out wrapper.
	urls := []string{"a", "b", "c"}
	pages := scrape.New(backend, nil).BatchScrape(context.Background(), urls)
	assert.Equal(t, scrape.StatusSuccess, pages[0].Status)
	assert.Equal(t, scrape.StatusError, pages[1].Status)
	assert.Equal(t, scrape.StatusSuccess, pages[2].Status)
}

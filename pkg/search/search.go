// Package search implements the Search Client collaborator (spec §4.C3):
// multi-engine fallback, per-hop-type engine preference, and a 24h result
// cache keyed by normalised (query, engine).
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/internal/circuitbreaker"
	"github.com/scoutline/discovery/pkg/types"
)

// Result is one search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"`
}

// Engine performs a single-provider search. Implementations are the
// concrete vendor collaborators named as out-of-scope in spec §1.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string, n int) ([]Result, error)
}

// Cache is the 24h result cache contract; satisfied by a Redis-backed
// implementation in production and by an in-process map in tests.
type Cache interface {
	Get(ctx context.Context, key string) ([]Result, bool, error)
	Set(ctx context.Context, key string, results []Result, ttl time.Duration) error
}

// EnginePreference maps a hop type to an ordered engine-name fallback
// chain (spec §4.C3: "RFP hops: google -> bing -> duckduckgo").
var EnginePreference = map[types.HopType][]string{
	types.HopRFPPage:      {"google", "bing", "duckduckgo"},
	types.HopCareersPage:  {"google", "bing", "duckduckgo"},
	types.HopPressRelease: {"google", "bing", "duckduckgo"},
	types.HopPartnerSite:  {"google", "bing", "duckduckgo"},
	types.HopOfficialNews: {"google", "bing", "duckduckgo"},
	types.HopJobsBoard:    {"google", "bing", "duckduckgo"},
}

// Client is the Search Client: multi-engine fallback with caching and
// circuit breaking per outbound engine (spec §5 retry discipline: one
// retry on transient failure with a 1-second delay).
type Client struct {
	engines map[string]Engine
	cache   Cache
	breaker *circuitbreaker.Manager
	ttl     time.Duration
	log     *logrus.Entry
}

// New constructs a Client from a set of engines keyed by their Name().
func New(engines []Engine, cache Cache, breaker *circuitbreaker.Manager, ttl time.Duration) *Client {
	byName := make(map[string]Engine, len(engines))
	for _, e := range engines {
		byName[e.Name()] = e
	}
	return &Client{engines: byName, cache: cache, breaker: breaker, ttl: ttl, log: logrus.WithField("component", "search_client")}
}

// SearchForHop runs the engine preference list for hopType, falling
// through on empty result or error, and caches the winning (non-empty)
// result set.
func (c *Client) SearchForHop(ctx context.Context, query string, hopType types.HopType, n int) ([]Result, error) {
	preference, ok := EnginePreference[hopType]
	if !ok {
		preference = []string{"google", "bing", "duckduckgo"}
	}

	var lastErr error
	for _, engineName := range preference {
		results, err := c.Search(ctx, query, engineName, n)
		if err != nil {
			lastErr = err
			c.log.WithError(err).WithField("engine", engineName).Debug("engine failed, falling through")
			continue
		}
		if len(results) == 0 {
			c.log.WithField("engine", engineName).Debug("engine returned empty result, falling through")
			continue
		}
		return results, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// Search runs one engine, consulting the cache first.
func (c *Client) Search(ctx context.Context, query, engineName string, n int) ([]Result, error) {
	key := cacheKey(query, engineName)

	if c.cache != nil {
		if cached, hit, err := c.cache.Get(ctx, key); err == nil && hit {
			c.log.WithField("cache_key", key).Debug("search cache hit")
			return cached, nil
		}
	}

	engine, ok := c.engines[engineName]
	if !ok {
		return nil, fmt.Errorf("search: unknown engine %q", engineName)
	}

	run := func() ([]Result, error) {
		return engine.Search(ctx, query, n)
	}

	var (
		results []Result
		err     error
	)
	if c.breaker != nil {
		results, err = circuitbreaker.Execute(c.breaker, "search:"+engineName, run)
	} else {
		results, err = run()
	}
	if err != nil {
		// spec §5: retry once on transient failure.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
		if c.breaker != nil {
			results, err = circuitbreaker.Execute(c.breaker, "search:"+engineName, run)
		} else {
			results, err = run()
		}
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil && len(results) > 0 {
		if serr := c.cache.Set(ctx, key, results, c.ttl); serr != nil {
			c.log.WithError(serr).Warn("failed to populate search cache")
		}
	}
	return results, nil
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)
var spaces = regexp.MustCompile(`\s+`)

// cacheKey normalises a query for cache lookups: strips casing,
// punctuation, and collapses whitespace so semantically equivalent
// queries hit the same cache entry (spec §4.C3).
func cacheKey(query, engine string) string {
	q := strings.ToLower(query)
	q = nonAlnum.ReplaceAllString(q, " ")
	q = strings.TrimSpace(spaces.ReplaceAllString(q, " "))
	sum := sha256.Sum256([]byte(q + "|" + engine))
	return "search:" + engine + ":" + hex.EncodeToString(sum[:])[:32]
}

// encodeResults / decodeResults are shared by Redis-backed cache
// implementations to avoid duplicating the JSON envelope.
func encodeResults(results []Result) ([]byte, error) { return json.Marshal(results) }
func decodeResults(data []byte) ([]Result, error) {
	var results []Result
	err := json.Unmarshal(data, &results)
	return results, err
}

// Package verifier implements the Evidence Verifier (spec §4.C2):
// best-effort reachability + credibility annotation for each evidence
// item. Verification never aborts a run; failures only downgrade
// credibility.
package verifier

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/internal/circuitbreaker"
	"github.com/scoutline/discovery/pkg/scorer"
	sharedhttp "github.com/scoutline/discovery/pkg/shared/http"
	"github.com/scoutline/discovery/pkg/types"
)

// MinCredibilityToVerify is the threshold below which an accessible
// evidence item is still not considered verified (spec §4.C2).
const MinCredibilityToVerify = 0.4

// HTTPDoer is satisfied by *http.Client; narrowed for testability.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Verifier checks reachability and scores credibility for Evidence items.
type Verifier struct {
	client  HTTPDoer
	breaker *circuitbreaker.Manager
	scorer  *scorer.Scorer
	log     *logrus.Entry
}

// New constructs a Verifier. breaker may be nil to skip circuit breaking
// (tests commonly inject a fake HTTPDoer instead).
func New(client HTTPDoer, breaker *circuitbreaker.Manager, sc *scorer.Scorer) *Verifier {
	return &Verifier{
		client:  client,
		breaker: breaker,
		scorer:  sc,
		log:     logrus.WithField("component", "evidence_verifier"),
	}
}

// NewWithDefaultClient builds a Verifier over an HTTP client made from
// the shared DefaultClientConfig, unchanged.
func NewWithDefaultClient(breaker *circuitbreaker.Manager, sc *scorer.Scorer) *Verifier {
	client := sharedhttp.NewClient(sharedhttp.DefaultClientConfig())
	return New(client, breaker, sc)
}

// Verify returns a copy of ev annotated with Accessible,
// CredibilityScore, and Verified; the caller's ev is not modified, since
// it is passed by value. It never returns an error: a
// failed reachability check is reflected as Accessible=false, not an
// aborted call (spec §4.C2 failure policy).
func (v *Verifier) Verify(ctx context.Context, ev types.Evidence) types.Evidence {
	placeholder := isPlaceholder(ev.SourceURL)
	accessible := false
	if !placeholder {
		accessible = v.checkAccessible(ctx, ev.SourceURL)
	}

	credibility, err := v.scorer.Credibility(ctx, ev.SourceURL, accessible, placeholder)
	if err != nil {
		v.log.WithError(err).WithField("source_url", ev.SourceURL).Warn("credibility policy evaluation failed, defaulting low")
		credibility = 0.2
	}

	ev.Accessible = accessible
	ev.CredibilityScore = credibility
	ev.Verified = accessible && credibility >= MinCredibilityToVerify
	return ev
}

// VerifyBatch verifies every item, preserving order.
func (v *Verifier) VerifyBatch(ctx context.Context, items []types.Evidence) []types.Evidence {
	out := make([]types.Evidence, len(items))
	for i, ev := range items {
		out[i] = v.Verify(ctx, ev)
	}
	return out
}

func (v *Verifier) checkAccessible(ctx context.Context, sourceURL string) bool {
	do := func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceURL, nil)
		if err != nil {
			return false, err
		}
		resp, err := v.client.Do(req)
		if err != nil {
			return false, err
		}
		defer resp.Body.Close()
		ok := resp.StatusCode >= 200 && resp.StatusCode < 400
		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "text") && !strings.Contains(ct, "html") && !strings.Contains(ct, "json") {
			ok = false
		}
		return ok, nil
	}

	var (
		ok  bool
		err error
	)
	if v.breaker != nil {
		ok, err = circuitbreaker.Execute(v.breaker, "verifier:"+hostOf(sourceURL), do)
	} else {
		ok, err = do()
	}
	if err != nil {
		v.log.WithError(err).WithField("source_url", sourceURL).Debug("reachability check failed")
		return false
	}
	return ok
}

func isPlaceholder(sourceURL string) bool {
	lower := strings.ToLower(sourceURL)
	return sourceURL == "" ||
		strings.Contains(lower, "example.com") ||
		strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "todo")
}

func hostOf(rawURL string) string {
	u := rawURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

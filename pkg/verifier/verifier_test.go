package verifier_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/scorer"
	"github.com/scoutline/discovery/pkg/types"
	"github.com/scoutline/discovery/pkg/verifier"
)

type fakeDoer struct {
	status int
	err    error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       http.NoBody,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
	}, nil
}

func TestVerify_OfficialReachable(t *testing.T) {
	v := verifier.New(&fakeDoer{status: 200}, nil, scorer.New(scorer.DefaultTables()))
	ev := v.Verify(context.Background(), types.Evidence{SourceURL: "https://arsenal.fifa.com/news"})
	require.True(t, ev.Accessible)
	assert.True(t, ev.Verified)
	assert.GreaterOrEqual(t, ev.CredibilityScore, 0.9)
}

func TestVerify_UnreachableNeverAborts(t *testing.T) {
	v := verifier.New(&fakeDoer{err: assertErr{}}, nil, scorer.New(scorer.DefaultTables()))
	ev := v.Verify(context.Background(), types.Evidence{SourceURL: "https://arsenal.fifa.com/news"})
	assert.False(t, ev.Accessible)
	assert.False(t, ev.Verified)
	assert.LessOrEqual(t, ev.CredibilityScore, 0.2)
}

func TestVerify_PlaceholderURLCappedLow(t *testing.T) {
	v := verifier.New(&fakeDoer{status: 200}, nil, scorer.New(scorer.DefaultTables()))
	ev := v.Verify(context.Background(), types.Evidence{SourceURL: "https://example.com/placeholder"})
	assert.False(t, ev.Accessible)
	assert.LessOrEqual(t, ev.CredibilityScore, 0.2)
	assert.False(t, ev.Verified)
}

type assertErr struct{}

func (assertErr) Error() string { return "connection refused" }

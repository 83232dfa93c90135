package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() gobreaker.Settings {
	return gobreaker.Settings{
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
}

func TestGetCreatesAndCachesPerName(t *testing.T) {
	m := NewManager(testSettings())

	a1 := m.Get("search")
	a2 := m.Get("search")
	b := m.Get("scrape")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, "search", a1.Name())
	assert.Equal(t, "scrape", b.Name())
}

func TestExecuteTripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(testSettings())
	boom := errors.New("boom")

	failing := func() (int, error) { return 0, boom }

	for i := 0; i < 3; i++ {
		_, err := Execute(m, "llm-cheap", failing)
		assert.ErrorIs(t, err, boom)
	}

	_, err := Execute(m, "llm-cheap", failing)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, m.State("llm-cheap"))
}

func TestExecutePassesThroughResultOnSuccess(t *testing.T) {
	m := NewManager(testSettings())

	result, err := Execute(m, "search", func() (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, gobreaker.StateClosed, m.State("search"))
}

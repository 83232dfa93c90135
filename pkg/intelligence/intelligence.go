// Package intelligence implements Cluster Intelligence (spec §4.C11):
// statistical rollups learned from PROMOTED bindings across entities in a
// cluster, grounded directly on
// original_source/apps/signal-noise-app/backend/cluster_intelligence.py.
//
// Clusters do not scrape; they learn from bindings. Only PROMOTED bindings
// feed a rollup, since that is the engine's high-trust threshold.
package intelligence

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/internal/clock"
	"github.com/scoutline/discovery/pkg/types"
)

// FrequencyBoostPerUse and MaxFrequencyBoost bound how much a frequently
// observed signal pattern's reliability is boosted over its raw average
// success rate.
const (
	FrequencyBoostPerUse = 0.01
	MaxFrequencyBoost    = 0.1
)

// BindingSource supplies the promoted bindings a rollup aggregates over.
type BindingSource interface {
	List(ctx context.Context, templateID string) ([]*types.RuntimeBinding, error)
}

// Store persists computed ClusterStats.
type Store interface {
	Get(ctx context.Context, clusterID string) (*types.ClusterStats, error)
	Put(ctx context.Context, stats *types.ClusterStats) error
}

// Engine computes and caches cluster intelligence rollups.
type Engine struct {
	bindings BindingSource
	store    Store
	clock    clock.Clock
	log      *logrus.Entry
}

// New constructs an Engine.
func New(bindings BindingSource, store Store, clk clock.Clock) *Engine {
	return &Engine{bindings: bindings, store: store, clock: clk, log: logrus.WithField("component", "cluster_intelligence")}
}

// Rollup aggregates promoted bindings for clusterID into channel
// effectiveness, signal reliability, and discovery shortcuts, then
// persists the result.
func (e *Engine) Rollup(ctx context.Context, clusterID string) (*types.ClusterStats, error) {
	all, err := e.bindings.List(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("intelligence: listing bindings for %s: %w", clusterID, err)
	}

	var promoted []*types.RuntimeBinding
	for _, b := range all {
		if b.State == types.BindingPromoted {
			promoted = append(promoted, b)
		}
	}

	if len(promoted) == 0 {
		e.log.WithField("cluster_id", clusterID).Warn("no promoted bindings for rollup")
		stats := &types.ClusterStats{ClusterID: clusterID, LastUpdated: e.clock.Now()}
		if err := e.store.Put(ctx, stats); err != nil {
			return nil, fmt.Errorf("intelligence: persisting empty rollup: %w", err)
		}
		return stats, nil
	}

	channelEffectiveness := channelEffectiveness(promoted)
	signalReliability := signalReliability(promoted)
	shortcuts := discoveryShortcuts(channelEffectiveness)

	stats := &types.ClusterStats{
		ClusterID:            clusterID,
		ChannelEffectiveness: channelEffectiveness,
		SignalReliability:    signalReliability,
		DiscoveryShortcuts:   shortcuts,
		TotalBindings:        len(promoted),
		LastUpdated:          e.clock.Now(),
	}

	if err := e.store.Put(ctx, stats); err != nil {
		return nil, fmt.Errorf("intelligence: persisting rollup: %w", err)
	}
	e.log.WithField("cluster_id", clusterID).WithField("channels", len(channelEffectiveness)).
		WithField("signals", len(signalReliability)).Info("cluster intelligence rolled up")
	return stats, nil
}

// ChannelPriorities returns channels sorted by effectiveness for clusterID,
// rolling up fresh data if nothing is cached.
func (e *Engine) ChannelPriorities(ctx context.Context, clusterID string) ([]string, error) {
	stats, err := e.store.Get(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("intelligence: loading cached stats for %s: %w", clusterID, err)
	}
	if stats == nil {
		stats, err = e.Rollup(ctx, clusterID)
		if err != nil {
			return nil, err
		}
	}
	return stats.DiscoveryShortcuts, nil
}

// channelEffectiveness computes, per channel, the usage-count-weighted
// average success rate across promoted bindings that discovered it.
func channelEffectiveness(promoted []*types.RuntimeBinding) map[string]float64 {
	weightedSum := make(map[string]float64)
	totalWeight := make(map[string]float64)

	for _, b := range promoted {
		for channel := range b.DiscoveredChannels {
			weight := float64(b.UsageCount)
			weightedSum[channel] += b.SuccessRate * weight
			totalWeight[channel] += weight
		}
	}

	out := make(map[string]float64, len(weightedSum))
	for channel, sum := range weightedSum {
		if totalWeight[channel] > 0 {
			out[channel] = sum / totalWeight[channel]
		}
	}
	return out
}

// signalReliability computes, per enriched pattern, the mean success rate
// of bindings that observed it, boosted by how often it was observed
// (capped at MaxFrequencyBoost) and clamped to 1.0.
func signalReliability(promoted []*types.RuntimeBinding) map[string]float64 {
	scores := make(map[string][]float64)
	counts := make(map[string]int)

	for _, b := range promoted {
		for pattern, examples := range b.EnrichedPatterns {
			if len(examples) == 0 {
				continue
			}
			scores[pattern] = append(scores[pattern], b.SuccessRate)
			counts[pattern]++
		}
	}

	out := make(map[string]float64, len(scores))
	for pattern, vals := range scores {
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		avg := sum / float64(len(vals))
		boost := float64(counts[pattern]) * FrequencyBoostPerUse
		if boost > MaxFrequencyBoost {
			boost = MaxFrequencyBoost
		}
		score := avg + boost
		if score > 1.0 {
			score = 1.0
		}
		out[pattern] = score
	}
	return out
}

// discoveryShortcuts sorts channels by effectiveness, descending.
func discoveryShortcuts(channelEffectiveness map[string]float64) []string {
	type pair struct {
		channel string
		score   float64
	}
	pairs := make([]pair, 0, len(channelEffectiveness))
	for ch, score := range channelEffectiveness {
		pairs = append(pairs, pair{ch, score})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		return pairs[i].channel < pairs[j].channel
	})
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.channel
	}
	return out
}

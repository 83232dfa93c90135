// Package budget implements the sole arbiter of "may I run another
// iteration?" for one entity's discovery run (spec §4.C1).
package budget

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/scoutline/discovery/internal/clock"
	"github.com/scoutline/discovery/pkg/types"
)

// Config holds every budget knob, all configurable per spec §4.C1.
type Config struct {
	MaxIterationsPerEntity   int     `yaml:"max_iterations_per_entity" json:"max_iterations_per_entity" validate:"gt=0"`
	MaxIterationsPerCategory int     `yaml:"max_iterations_per_category" json:"max_iterations_per_category" validate:"gt=0"`
	MaxCategories            int     `yaml:"max_categories" json:"max_categories" validate:"gt=0"`
	CostCapUSD               float64 `yaml:"cost_cap_usd" json:"cost_cap_usd" validate:"gt=0"`
	TimeLimitSeconds         int     `yaml:"time_limit_seconds" json:"time_limit_seconds" validate:"gt=0"`
	ConfidenceThreshold      float64 `yaml:"confidence_threshold" json:"confidence_threshold" validate:"gt=0,lt=1"`
	ConsecutiveHighConfidence int    `yaml:"consecutive_high_confidence" json:"consecutive_high_confidence" validate:"gt=0"`
	EvidenceCountThreshold   int     `yaml:"evidence_count_threshold" json:"evidence_count_threshold" validate:"gt=0"`

	// Cost-per-call constants used by record_iteration's cost accounting.
	LLMCallCost       float64 `yaml:"llm_call_cost_usd" json:"llm_call_cost_usd"`
	ValidationCallCost float64 `yaml:"validation_call_cost_usd" json:"validation_call_cost_usd"`
	ScrapeCallCost    float64 `yaml:"scrape_call_cost_usd" json:"scrape_call_cost_usd"`
}

// DefaultConfig returns the calibrated defaults from spec §4.C1.
func DefaultConfig() Config {
	return Config{
		MaxIterationsPerEntity:    26,
		MaxIterationsPerCategory:  3,
		MaxCategories:             8,
		CostCapUSD:                0.50,
		TimeLimitSeconds:          300,
		ConfidenceThreshold:       0.85,
		ConsecutiveHighConfidence: 3,
		EvidenceCountThreshold:    5,
		LLMCallCost:               0.03,
		ValidationCallCost:        0.01,
		ScrapeCallCost:            0.001,
	}
}

// IterationRecord is what a caller reports back after running one iteration.
type IterationRecord struct {
	Category        string
	LLMCalls        int
	ValidationCalls int
	ScrapeCalls     int
	EvidenceDelta   int
	Confidence      float64
	HasConfidence   bool
}

// Remaining summarises unused budget.
type Remaining struct {
	CostUSD          float64
	TimeSeconds      float64
	TotalIterations  int
}

var (
	costGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "discovery",
		Subsystem: "budget",
		Name:      "cost_usd",
		Help:      "Accumulated cost in USD for the current entity run.",
	}, []string{"entity_id"})
	iterationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "discovery",
		Subsystem: "budget",
		Name:      "iterations_total",
		Help:      "Iterations recorded, by entity and category.",
	}, []string{"entity_id", "category"})
)

func init() {
	prometheus.MustRegister(costGauge, iterationsCounter)
}

// Controller is the per-entity budget arbiter. Not safe to share across
// entity runs; each run constructs its own Controller.
type Controller struct {
	mu                           sync.Mutex
	cfg                          Config
	clock                        clock.Clock
	entityID                     string
	totalIterations              int
	iterationsPerCategory        map[string]int
	totalCostUSD                 float64
	totalEvidenceCount           int
	consecutiveHighConfidenceCnt int
	currentConfidence            float64
	log                          *logrus.Entry
}

// New constructs a Controller for one entity run.
func New(cfg Config, clk clock.Clock, entityID string) *Controller {
	return &Controller{
		cfg:                   cfg,
		clock:                 clk,
		entityID:               entityID,
		iterationsPerCategory: make(map[string]int),
		currentConfidence:      0.20,
		log:                    logrus.WithField("component", "budget_controller").WithField("entity_id", entityID),
	}
}

// CanContinue implements the ordered check from spec §4.C1. Order matters:
// the entity-level cap must win over max_per_category × max_categories.
func (c *Controller) CanContinue(category string, currentConfidence float64, haveConfidence bool) (bool, types.StoppingReason, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// (a) entity-level cap always wins.
	if c.totalIterations >= c.cfg.MaxIterationsPerEntity {
		c.log.WithField("total_iterations", c.totalIterations).Info("entity iteration cap reached")
		return false, types.ReasonMaxIterationsReached, true
	}

	// (b) per-category cap.
	if c.iterationsPerCategory[category] >= c.cfg.MaxIterationsPerCategory {
		c.log.WithField("category", category).Debug("category iteration cap reached")
		return false, types.ReasonMaxIterationsReached, true
	}

	// (c) cost cap.
	if c.totalCostUSD >= c.cfg.CostCapUSD {
		c.log.WithField("total_cost_usd", c.totalCostUSD).Warn("cost cap reached")
		return false, types.ReasonCostLimitReached, true
	}

	// (d) wall-clock cap.
	if c.clock.Monotonic().Seconds() >= float64(c.cfg.TimeLimitSeconds) {
		c.log.Warn("time limit reached")
		return false, types.ReasonTimeLimitReached, true
	}

	// (e) sustained high confidence.
	if haveConfidence {
		if currentConfidence >= c.cfg.ConfidenceThreshold {
			c.consecutiveHighConfidenceCnt++
			if c.consecutiveHighConfidenceCnt >= c.cfg.ConsecutiveHighConfidence {
				c.log.WithField("confidence", currentConfidence).Info("consecutive high confidence met")
				return false, types.ReasonConsecutiveHighConfidence, true
			}
		} else {
			c.consecutiveHighConfidenceCnt = 0
		}
	}

	// (f) evidence count threshold.
	if c.totalEvidenceCount >= c.cfg.EvidenceCountThreshold {
		c.log.WithField("evidence_count", c.totalEvidenceCount).Info("evidence count threshold met")
		return false, types.ReasonEvidenceCountMet, true
	}

	return true, "", false
}

// RecordIteration increments counters and adds cost for one iteration.
func (c *Controller) RecordIteration(r IterationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost := float64(r.LLMCalls)*c.cfg.LLMCallCost +
		float64(r.ValidationCalls)*c.cfg.ValidationCallCost +
		float64(r.ScrapeCalls)*c.cfg.ScrapeCallCost

	c.totalIterations++
	c.iterationsPerCategory[r.Category]++
	c.totalCostUSD += cost
	c.totalEvidenceCount += r.EvidenceDelta
	if r.HasConfidence {
		c.currentConfidence = r.Confidence
	}

	costGauge.WithLabelValues(c.entityID).Set(c.totalCostUSD)
	iterationsCounter.WithLabelValues(c.entityID, r.Category).Inc()

	c.log.WithFields(logrus.Fields{
		"category":    r.Category,
		"iteration_cost_usd": cost,
		"total_cost_usd":     c.totalCostUSD,
	}).Debug("iteration recorded")
}

// Remaining reports unused budget.
func (c *Controller) Remaining() Remaining {
	c.mu.Lock()
	defer c.mu.Unlock()

	remainingCost := c.cfg.CostCapUSD - c.totalCostUSD
	if remainingCost < 0 {
		remainingCost = 0
	}
	remainingTime := float64(c.cfg.TimeLimitSeconds) - c.clock.Monotonic().Seconds()
	if remainingTime < 0 {
		remainingTime = 0
	}
	return Remaining{
		CostUSD:         remainingCost,
		TimeSeconds:     remainingTime,
		TotalIterations: c.cfg.MaxIterationsPerEntity - c.totalIterations,
	}
}

// TotalCostUSD returns the cost accumulated so far.
func (c *Controller) TotalCostUSD() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCostUSD
}

// TotalIterations returns the iteration count so far.
func (c *Controller) TotalIterations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalIterations
}

// IterationsInCategory returns the iteration count for one category.
func (c *Controller) IterationsInCategory(category string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iterationsPerCategory[category]
}

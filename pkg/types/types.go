// Package types defines the data model shared by every component of the
// discovery engine: entities, templates, hypotheses, evidence, signals,
// Ralph Loop state, runtime bindings, cluster statistics, and episodes.
package types

import "time"

// EntityType enumerates the kinds of sports organisation the engine can
// evaluate. Tagged as a named string type with one constant per value
// rather than an implicit dict shape.
type EntityType string

const (
	EntityTypeSportClub       EntityType = "SPORT_CLUB"
	EntityTypeSportFederation EntityType = "SPORT_FEDERATION"
	EntityTypeSportLeague     EntityType = "SPORT_LEAGUE"
)

// DigitalMaturity is a coarse classification of an entity's online presence,
// used to bias hop-type priors during planning.
type DigitalMaturity string

const (
	DigitalMaturityLow    DigitalMaturity = "LOW"
	DigitalMaturityMedium DigitalMaturity = "MEDIUM"
	DigitalMaturityHigh   DigitalMaturity = "HIGH"
)

// Entity is the immutable input the engine explores. entity_domain and
// estimated_revenue_band are optional enrichments recovered from the
// original outcome-tracking source. EntityDomain is carried unchanged;
// no component reads it, so setting it does not skip any search hop.
type Entity struct {
	EntityID              string
	Name                  string
	Type                  EntityType
	OrgType               string
	Sport                 string
	Country               string
	ClusterID             string
	PriorityTier          int
	DigitalMaturity       DigitalMaturity
	EntityDomain          string
	EstimatedRevenueBand  string
}

// Template is an immutable, versioned pattern set describing what evidence
// to look for, selected by entity priority tier and type.
type Template struct {
	TemplateID        string
	Version           int
	ClusterID         string
	SignalChannels    []string
	SignalPatterns    []string
	NegativeFilters   []string
	VerificationRules []string
}

// HypothesisState is the lifecycle state of a Hypothesis.
type HypothesisState string

const (
	HypothesisActive   HypothesisState = "ACTIVE"
	HypothesisResolved HypothesisState = "RESOLVED"
	HypothesisInactive HypothesisState = "INACTIVE"
)

// ConfidenceHistoryEntry is one append-only record of a confidence update.
type ConfidenceHistoryEntry struct {
	Iteration    int
	RawDelta     float64
	AppliedDelta float64
	Decision     RalphDecisionType
	Category     string
	SourceURL    string
	Reason       string
	RecordedAt   time.Time
}

// Hypothesis is created from a template at discovery start and mutated only
// by the Ralph Loop and Hypothesis Manager.
type Hypothesis struct {
	HypothesisID       string
	EntityID           string
	TemplateID         string
	Statement          string
	Category           string
	TargetEntityType   EntityType
	Confidence         float64
	State              HypothesisState
	Iterations         int
	ReinforcementCount int
	CreatedAt          time.Time
	LastTestedAt       time.Time
	Metadata           map[string]string
	ConfidenceHistory  []ConfidenceHistoryEntry
}

// Evidence is a verified artifact produced by the Evidence Verifier;
// immutable thereafter.
type Evidence struct {
	ID               string
	SignalID         string
	Source           string
	SourceURL        string
	Date             time.Time
	ExtractedText    string
	CredibilityScore float64
	Verified         bool
	Accessible       bool
}

// SignalCandidate is transient state accumulated while a category is being
// explored, prior to three-pass validation.
type SignalCandidate struct {
	ID                string
	EntityID          string
	Category          string
	Evidence          []Evidence
	RawConfidence     float64
	TemporalMultiplier float64
	DiscoveredAt      time.Time
}

// ValidationPass is the pass number (1, 2, or 3) a ValidatedSignal cleared.
type ValidationPass int

// ValidatedSignal is produced once the Ralph Loop / three-pass validation
// promotes a SignalCandidate.
type ValidatedSignal struct {
	ID                 string
	Type               string
	Subtype             string
	EntityID            string
	Confidence           float64
	ValidationPass       ValidationPass
	FirstSeen            time.Time
	TemporalMultiplier   float64
	PrimaryReason        string
	Urgency              string
	YPFitScore           float64
}

// OutcomeStatus is the realized sales outcome of a ValidatedSignal,
// supplemental to the core spec (see SPEC_FULL.md §3), grounded in
// original_source/outcome_service.py.
type OutcomeStatus string

const (
	OutcomeWon     OutcomeStatus = "WON"
	OutcomeLost    OutcomeStatus = "LOST"
	OutcomePending OutcomeStatus = "PENDING"
)

// OutcomeRecord closes the loop from a signal to a realized result.
type OutcomeRecord struct {
	SignalID    string
	EntityID    string
	Status      OutcomeStatus
	ValueActual float64
	RecordedAt  time.Time
}

// RalphDecisionType is the exhaustive set of labels the judge may return.
type RalphDecisionType string

const (
	DecisionAccept      RalphDecisionType = "ACCEPT"
	DecisionWeakAccept   RalphDecisionType = "WEAK_ACCEPT"
	DecisionReject        RalphDecisionType = "REJECT"
	DecisionNoProgress    RalphDecisionType = "NO_PROGRESS"
	DecisionSaturated     RalphDecisionType = "SATURATED"
)

// RawDeltaFor returns the pre-multiplier confidence delta for a decision.
func RawDeltaFor(d RalphDecisionType) float64 {
	switch d {
	case DecisionAccept:
		return 0.06
	case DecisionWeakAccept:
		return 0.02
	default:
		return 0.0
	}
}

// CategoryStats tracks per-category iteration bookkeeping within a run.
type CategoryStats struct {
	TotalIterations    int
	AcceptCount        int
	WeakAcceptCount    int
	RejectCount        int
	NoProgressCount    int
	SaturatedCount     int
	ConsecutiveRejects int
	Saturated          bool
	LastDecision       RalphDecisionType
}

// RalphState is transient per-run state for one entity.
type RalphState struct {
	EntityID             string
	CurrentConfidence    float64
	ConfidenceCeiling    float64
	IterationsCompleted  int
	CategoryStats        map[string]*CategoryStats
	ConfidenceSaturated  bool
	NoveltyPool          []string
}

// StatsFor returns (creating if needed) the CategoryStats for a category.
func (s *RalphState) StatsFor(category string) *CategoryStats {
	if s.CategoryStats == nil {
		s.CategoryStats = make(map[string]*CategoryStats)
	}
	cs, ok := s.CategoryStats[category]
	if !ok {
		cs = &CategoryStats{}
		s.CategoryStats[category] = cs
	}
	return cs
}

// TotalAcceptCount sums AcceptCount across all categories.
func (s *RalphState) TotalAcceptCount() int {
	total := 0
	for _, cs := range s.CategoryStats {
		total += cs.AcceptCount
	}
	return total
}

// BindingState is the lifecycle state of a RuntimeBinding.
type BindingState string

const (
	BindingExploring BindingState = "EXPLORING"
	BindingPromoted  BindingState = "PROMOTED"
	BindingFrozen    BindingState = "FROZEN"
	BindingRetired   BindingState = "RETIRED"
)

// RuntimeBinding is per-(entity,template) learned state.
type RuntimeBinding struct {
	TemplateID          string
	EntityID              string
	EntityName            string
	DiscoveredDomains     []string
	DiscoveredChannels    map[string][]string
	EnrichedPatterns      map[string][]string
	ConfidenceAdjustment  float64
	UsageCount            int
	SuccessRate           float64
	RecentOutcomes        []bool
	State                 BindingState
	PromotedAt            *time.Time
	LastUsedAt            time.Time
}

// ClusterStats is the cross-entity statistical roll-up of PROMOTED bindings
// for a cluster.
type ClusterStats struct {
	ClusterID           string
	ChannelEffectiveness map[string]float64
	SignalReliability    map[string]float64
	DiscoveryShortcuts    []string
	TotalBindings         int
	LastUpdated           time.Time
}

// Episode is an append-only persisted record of something that happened
// during discovery.
type Episode struct {
	ID          string
	EntityID    string
	Type        string
	Subtype     string
	Description string
	Timestamp   time.Time
	Confidence  float64
	SourceRefs  []string
}

// ClusteredEpisode groups near-duplicate episodes within a time window
// without mutating the originals (see pkg/intelligence).
type ClusteredEpisode struct {
	ID               string
	EntityID         string
	MemberEpisodeIDs []string
	Description      string
	WindowStart      time.Time
	WindowEnd        time.Time
	CompressionRatio float64
}

// HopType enumerates the kinds of page the Discovery Orchestrator can
// target on a given hop.
type HopType string

const (
	HopRFPPage       HopType = "RFP_PAGE"
	HopCareersPage    HopType = "CAREERS_PAGE"
	HopPressRelease   HopType = "PRESS_RELEASE"
	HopPartnerSite    HopType = "PARTNER_SITE"
	HopOfficialNews   HopType = "OFFICIAL_NEWS"
	HopJobsBoard      HopType = "JOBS_BOARD"
)

// StoppingReason is the exhaustive set of budget/orchestrator exits.
type StoppingReason string

const (
	ReasonMaxIterationsReached      StoppingReason = "MAX_ITERATIONS_REACHED"
	ReasonCostLimitReached          StoppingReason = "COST_LIMIT_REACHED"
	ReasonTimeLimitReached          StoppingReason = "TIME_LIMIT_REACHED"
	ReasonConsecutiveHighConfidence StoppingReason = "CONSECUTIVE_HIGH_CONFIDENCE"
	ReasonEvidenceCountMet          StoppingReason = "EVIDENCE_COUNT_MET"
	ReasonCategorySaturated         StoppingReason = "CATEGORY_SATURATED"
	ReasonAllHypothesesTerminal     StoppingReason = "ALL_HYPOTHESES_TERMINAL"
)

// ConfidenceBand buckets final_confidence for dossier presentation.
type ConfidenceBand string

const (
	BandExploratory ConfidenceBand = "EXPLORATORY"
	BandInformed    ConfidenceBand = "INFORMED"
	BandConfident   ConfidenceBand = "CONFIDENT"
	BandActionable  ConfidenceBand = "ACTIONABLE"
)

// ConfidenceBandFor classifies a final confidence value.
func ConfidenceBandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence < 0.30:
		return BandExploratory
	case confidence < 0.60:
		return BandInformed
	case confidence < 0.80:
		return BandConfident
	default:
		return BandActionable
	}
}

// Dossier is the stable per-entity emitted envelope.
type Dossier struct {
	EntityID            string                 `json:"entity_id"`
	EntityName          string                 `json:"entity_name"`
	TemplateID          string                 `json:"template_id"`
	FinalConfidence     float64                `json:"final_confidence"`
	ConfidenceBand      ConfidenceBand         `json:"confidence_band"`
	IsActionable        bool                   `json:"is_actionable"`
	IterationsCompleted int                    `json:"iterations_completed"`
	TotalCostUSD        float64                `json:"total_cost_usd"`
	ValidatedSignals    []ValidatedSignal      `json:"validated_signals"`
	Hypotheses          []Hypothesis           `json:"hypotheses"`
	CategoryStats       map[string]CategoryStats `json:"category_stats"`
	StoppingReason      StoppingReason         `json:"stopping_reason"`
	FailedSteps         []string               `json:"failed_steps,omitempty"`
	StartedAt           time.Time              `json:"started_at"`
	CompletedAt         time.Time              `json:"completed_at"`
}

// ClampConfidence enforces invariant 1: confidence is always in [0.05, 0.95].
func ClampConfidence(c float64) float64 {
	if c < 0.05 {
		return 0.05
	}
	if c > 0.95 {
		return 0.95
	}
	return c
}

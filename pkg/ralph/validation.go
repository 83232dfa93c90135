package ralph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scoutline/discovery/pkg/llm"
	"github.com/scoutline/discovery/pkg/types"
)

func parseJudgeJSON(text string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MinEvidenceCount and MinAggregateConfidence are Pass 1's minimums (spec
// §4.C7 three-pass validation).
const (
	MinEvidenceCount      = 3
	MinAggregateConfidence = 0.7
	MaxAdjustmentMagnitude = 0.25
)

// ConfidenceValidation is the judge's Pass 2 adjudication record (spec
// §4.C7).
type ConfidenceValidation struct {
	Original             float64
	Validated            float64
	Adjustment           float64
	Rationale            string
	RequiresManualReview bool
}

// PassResult reports why a candidate was rejected, or that it survived.
type PassResult struct {
	Survived   bool
	RejectedAt string // "pass1" | "pass1.5" | "pass2" | ""
	Reason     string
	Validation *ConfidenceValidation
}

// ValidateCandidate runs the three-pass validation for signal promotion
// (spec §4.C7). judge performs Pass 2's LLM adjudication.
func ValidateCandidate(ctx context.Context, candidate types.SignalCandidate, judge llm.Judge, adjudicationPrompt string) (PassResult, error) {
	// Pass 1 — minimums.
	if len(candidate.Evidence) < MinEvidenceCount || candidate.RawConfidence < MinAggregateConfidence {
		return PassResult{RejectedAt: "pass1", Reason: "below minimum evidence count or aggregate confidence"}, nil
	}

	// Pass 1.5 — verification: discard unverified evidence, re-check minima.
	verified := make([]types.Evidence, 0, len(candidate.Evidence))
	for _, e := range candidate.Evidence {
		if e.Verified {
			verified = append(verified, e)
		}
	}
	if len(verified) < MinEvidenceCount {
		return PassResult{RejectedAt: "pass1.5", Reason: "insufficient verified evidence after discarding unverified items"}, nil
	}

	// Pass 2 — LLM adjudication.
	resp, err := judge.Judge(ctx, adjudicationPrompt)
	if err != nil {
		return PassResult{}, fmt.Errorf("ralph: pass 2 adjudication call failed: %w", err)
	}
	validation, err := parseConfidenceValidation(resp.Text, candidate.RawConfidence)
	if err != nil {
		return PassResult{RejectedAt: "pass2", Reason: "adjudication response was not parseable"}, nil
	}
	if validation.Adjustment > MaxAdjustmentMagnitude {
		validation.Adjustment = MaxAdjustmentMagnitude
	} else if validation.Adjustment < -MaxAdjustmentMagnitude {
		validation.Adjustment = -MaxAdjustmentMagnitude
	}
	validation.Validated = types.ClampConfidence(validation.Original + validation.Adjustment)

	return PassResult{Survived: true, Validation: &validation}, nil
}

func parseConfidenceValidation(text string, original float64) (ConfidenceValidation, error) {
	parsed, err := parseJudgeJSON(text)
	if err != nil {
		return ConfidenceValidation{}, err
	}
	cv := ConfidenceValidation{Original: original}
	if v, ok := parsed["validated"].(float64); ok {
		cv.Validated = v
	}
	if v, ok := parsed["adjustment"].(float64); ok {
		cv.Adjustment = v
	} else {
		cv.Adjustment = cv.Validated - original
	}
	if v, ok := parsed["rationale"].(string); ok {
		cv.Rationale = v
	}
	if v, ok := parsed["requires_manual_review"].(bool); ok {
		cv.RequiresManualReview = v
	}
	return cv, nil
}

// Package llm implements the LLM judge collaborator named in spec §6
// (`LLM.judge(prompt) -> {text, input_tokens, output_tokens, cost_usd,
// model_id}`) and the three-tier cascade used by the Ralph Loop (spec
// §4.C7): cheap -> mid -> expensive, escalating on parse failure, low
// confidence, or the "lock-in" validation path.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Tier names the three cascade rungs.
type Tier string

const (
	TierCheap     Tier = "cheap"
	TierMid       Tier = "mid"
	TierExpensive Tier = "expensive"
)

// Response is the raw judge response contract (spec §6).
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	ModelID      string
}

// Judge is a single-tier backend. Concrete implementations (local
// OpenAI-compatible endpoint, Anthropic, Bedrock) are vendor collaborators
// out of the core's scope.
type Judge interface {
	Judge(ctx context.Context, prompt string) (Response, error)
}

// JudgeOutput is the parsed shape of Response.Text per spec §6.
type JudgeOutput struct {
	Decision         string  `json:"decision"`
	ConfidenceDelta  float64 `json:"confidence_delta"`
	Justification    string  `json:"justification"`
	EvidenceFound    []string `json:"evidence_found"`
	EvidenceType     string  `json:"evidence_type,omitempty"`
	Confidence       float64 `json:"confidence"`
}

// Cascade tries tiers in order cheap -> mid -> expensive, escalating per
// spec §4.C7's promotion rules.
type Cascade struct {
	cheap     Judge
	mid       Judge
	expensive Judge
	log       *logrus.Entry
}

// NewCascade constructs a Cascade from the three tier backends.
func NewCascade(cheap, mid, expensive Judge) *Cascade {
	return &Cascade{cheap: cheap, mid: mid, expensive: expensive, log: logrus.WithField("component", "llm_cascade")}
}

// Outcome is what one cascade invocation produces: the parsed output, the
// tier that ultimately answered, and the total cost across every tier
// attempted (cost is accounted back to the Budget Controller regardless
// of which tier succeeded, per spec §4.C7).
type Outcome struct {
	Output     JudgeOutput
	Tier       Tier
	TotalCalls int
	TotalCost  float64
	ParseError bool
}

// Run invokes the cascade. currentConfidence, together with the
// cheap/mid answer, decides whether to promote to the expensive
// "lock-in" tier.
func (c *Cascade) Run(ctx context.Context, prompt string, currentConfidence float64) (Outcome, error) {
	out := Outcome{}

	resp, err := c.cheap.Judge(ctx, prompt)
	out.TotalCalls++
	if err != nil {
		return out, fmt.Errorf("llm cascade: cheap tier call failed: %w", err)
	}
	out.TotalCost += resp.CostUSD
	out.Tier = TierCheap

	parsed, perr := parse(resp.Text)
	needMid := perr != nil || (parsed.Decision == "WEAK_ACCEPT" && parsed.Confidence < 0.5)

	if needMid {
		c.log.WithField("reason", "invalid_json_or_low_confidence_weak_accept").Debug("promoting to mid tier")
		resp, err = c.mid.Judge(ctx, prompt)
		out.TotalCalls++
		if err != nil {
			return out, fmt.Errorf("llm cascade: mid tier call failed: %w", err)
		}
		out.TotalCost += resp.CostUSD
		out.Tier = TierMid
		parsed, perr = parse(resp.Text)
	}

	if perr != nil {
		out.ParseError = true
		return out, nil
	}
	out.Output = parsed

	if parsed.Decision == "ACCEPT" && currentConfidence >= 0.70 {
		c.log.Debug("promoting to expensive tier for lock-in validation")
		resp, err = c.expensive.Judge(ctx, prompt)
		out.TotalCalls++
		if err != nil {
			return out, fmt.Errorf("llm cascade: expensive tier call failed: %w", err)
		}
		out.TotalCost += resp.CostUSD
		out.Tier = TierExpensive
		if lockIn, lerr := parse(resp.Text); lerr == nil {
			out.Output = lockIn
		}
	}

	return out, nil
}

func parse(text string) (JudgeOutput, error) {
	var out JudgeOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return JudgeOutput{}, err
	}
	return out, nil
}

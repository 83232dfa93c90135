// Package promptbuilder implements the Context Builder collaborator (spec
// §4.C6): a pure, deterministic function from (entity, hypothesis,
// hop_type, evidence, content) to the prompt text handed to the LLM judge.
package promptbuilder

import (
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/scoutline/discovery/pkg/types"
)

// MaxContentChars truncates fetched_content to K characters (spec §4.C6).
const MaxContentChars = 6000

// Input is exactly the fields spec §4.C6 lists as the builder's input.
type Input struct {
	EntityName          string
	EntityType          types.EntityType
	TemplateSignalPatterns []string
	HopType             types.HopType
	HypothesisStatement string
	CurrentConfidence   float64
	PreviousEvidence    []string
	FetchedContent      string
	MCPEvidencePatterns []string
}

const judgeTemplate = `You are judging procurement-signal evidence for a sports entity.

Entity: {{.entity_name}} (type: {{.entity_type}})
Hop type: {{.hop_type}}
Signal patterns of interest: {{.signal_patterns}}

Hypothesis under test: {{.hypothesis_statement}}
Current confidence: {{.current_confidence}}

Previously seen evidence (do not re-accept duplicates of these):
{{.previous_evidence}}

MCP evidence-pattern tags to consider: {{.mcp_patterns}}

Fetched content:
---
{{.fetched_content}}
---

Return exactly one JSON object with fields: decision (one of ACCEPT,
WEAK_ACCEPT, REJECT, NO_PROGRESS, SATURATED), confidence_delta,
justification (must quote the content or cite its URL when
decision is ACCEPT or WEAK_ACCEPT), evidence_found (list of strings),
evidence_type (optional).`

// Builder assembles judge prompts deterministically.
type Builder struct {
	template *prompts.PromptTemplate
}

// New constructs a Builder from the fixed judge template.
func New() *Builder {
	tmpl := prompts.NewPromptTemplate(judgeTemplate, []string{
		"entity_name", "entity_type", "signal_patterns", "hop_type",
		"hypothesis_statement", "current_confidence", "previous_evidence",
		"fetched_content", "mcp_patterns",
	})
	tmpl.TemplateFormat = prompts.TemplateFormatGoTemplate
	return &Builder{template: &tmpl}
}

// Build renders the prompt. It is pure: identical Input values always
// produce identical output (spec §4.C6 determinism contract).
func (b *Builder) Build(in Input) (string, error) {
	content := in.FetchedContent
	if len(content) > MaxContentChars {
		content = content[:MaxContentChars]
	}

	values := map[string]any{
		"entity_name":          in.EntityName,
		"entity_type":          string(in.EntityType),
		"signal_patterns":      strings.Join(in.TemplateSignalPatterns, ", "),
		"hop_type":             string(in.HopType),
		"hypothesis_statement": in.HypothesisStatement,
		"current_confidence":   formatConfidence(in.CurrentConfidence),
		"previous_evidence":    bulletList(in.PreviousEvidence),
		"fetched_content":      content,
		"mcp_patterns":         strings.Join(in.MCPEvidencePatterns, ", "),
	}

	return b.template.Format(values)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

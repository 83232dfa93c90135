package promptbuilder_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/promptbuilder"
	"github.com/scoutline/discovery/pkg/types"
)

func TestBuild_IsDeterministic(t *testing.T) {
	b := promptbuilder.New()
	in := promptbuilder.Input{
		EntityName:             "Arsenal FC",
		EntityType:             types.EntityTypeSportClub,
		TemplateSignalPatterns: []string{"rfp_mention", "vendor_change"},
		HopType:                types.HopRFPPage,
		HypothesisStatement:    "Arsenal is soliciting a new digital partner",
		CurrentConfidence:      0.42,
		PreviousEvidence:       []string{"Team wins match"},
		FetchedContent:         "Arsenal FC announces tender for digital transformation partner.",
		MCPEvidencePatterns:    []string{"multi_year_partnership"},
	}

	first, err := b.Build(in)
	require.NoError(t, err)
	second, err := b.Build(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "Arsenal FC")
	assert.Contains(t, first, "0.42")
	assert.Contains(t, first, "Team wins match")
}

func TestBuild_TruncatesContent(t *testing.T) {
	b := promptbuilder.New()
	longContent := strings.Repeat("z", promptbuilder.MaxContentChars+500)
	out, err := b.Build(promptbuilder.Input{EntityName: "E", FetchedContent: longContent})
	require.NoError(t, err)
	assert.LessOrEqual(t, strings.Count(out, "z"), promptbuilder.MaxContentChars)
}

func TestBuild_NoEvidenceYet(t *testing.T) {
	b := promptbuilder.New()
	out, err := b.Build(promptbuilder.Input{EntityName: "E"})
	require.NoError(t, err)
	assert.Contains(t, out, "(none yet)")
}

package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/types"
)

func writeDocument(t *testing.T, doc Document) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func sampleDocument() Document {
	return Document{
		Entities: []types.Entity{
			{EntityID: "e1", Name: "Riverside FC", Type: types.EntityTypeSportClub, PriorityTier: 1},
			{EntityID: "e2", Name: "National Federation", Type: types.EntityTypeSportFederation, PriorityTier: 2},
		},
		Templates: []types.Template{
			{TemplateID: "t-club-v1", Version: 1, ClusterID: "clubs"},
			{TemplateID: "t-club-v2", Version: 2, ClusterID: "clubs"},
			{TemplateID: "t-fed-v1", Version: 1, ClusterID: "feds"},
		},
		Rules: []SelectionRule{
			{PriorityTier: 1, EntityType: types.EntityTypeSportClub, TemplateID: "t-club-v1"},
			{PriorityTier: 1, EntityType: types.EntityTypeSportClub, TemplateID: "t-club-v2"},
		},
	}
}

func TestLoadIndexesEntitiesAndTemplates(t *testing.T) {
	path := writeDocument(t, sampleDocument())

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cat.Entities(), 2)

	tmpl, ok := cat.Template("t-fed-v1")
	require.True(t, ok)
	assert.Equal(t, "feds", tmpl.ClusterID)

	_, ok = cat.Template("does-not-exist")
	assert.False(t, ok)
}

func TestSelectTemplatePicksHighestVersionForMatchingRule(t *testing.T) {
	cat := index(sampleDocument())

	tmpl, err := cat.SelectTemplate(types.Entity{EntityID: "e1", Type: types.EntityTypeSportClub, PriorityTier: 1})
	require.NoError(t, err)
	assert.Equal(t, "t-club-v2", tmpl.TemplateID, "two rules target the same tier/type pair, the higher version should win")
}

func TestSelectTemplateFallsBackWhenNoRuleMatches(t *testing.T) {
	cat := index(sampleDocument())

	tmpl, err := cat.SelectTemplate(types.Entity{EntityID: "e3", Type: types.EntityTypeSportLeague, PriorityTier: 9})
	require.NoError(t, err)
	assert.Equal(t, "t-club-v2", tmpl.TemplateID, "no rule matches a tier-9 league, fallback should be the highest-version template overall")
}

func TestSelectTemplateErrorsWhenCatalogHasNoTemplates(t *testing.T) {
	cat := index(Document{Entities: sampleDocument().Entities})

	_, err := cat.SelectTemplate(types.Entity{EntityID: "e1", Type: types.EntityTypeSportClub, PriorityTier: 1})
	assert.Error(t, err)
}

func TestByIDPreservesCatalogOrderAndSkipsUnknown(t *testing.T) {
	cat := index(sampleDocument())

	got := cat.ByID([]string{"e2", "missing", "e1"})
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].EntityID)
	assert.Equal(t, "e2", got[1].EntityID)
}

func TestLoadErrorsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

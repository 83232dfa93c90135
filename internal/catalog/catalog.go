// Package catalog loads the entity and template definitions the batch
// entry point iterates over. Neither the entity list nor the template
// selection rule has a store of its own (spec §4.C13 only names the five
// episode/binding/hypothesis/cluster/outcome stores) so both live in a
// single flat JSON document read once at process start.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/scoutline/discovery/pkg/types"
)

// SelectionRule assigns a template to every entity matching a (priority
// tier, entity type) pair (spec §3: "Selected by entity priority tier +
// type").
type SelectionRule struct {
	PriorityTier int             `json:"priority_tier"`
	EntityType   types.EntityType `json:"entity_type"`
	TemplateID   string          `json:"template_id"`
}

// Document is the on-disk shape: a flat entity list, the template set
// selectable for them, and the rules assigning one to the other.
type Document struct {
	Entities  []types.Entity   `json:"entities"`
	Templates []types.Template `json:"templates"`
	Rules     []SelectionRule  `json:"selection_rules"`
}

// Catalog indexes a loaded Document for entity filtering and template
// selection.
type Catalog struct {
	entities  []types.Entity
	templates map[string]types.Template

	// byTierAndType selects the template a given (priority_tier, entity_type)
	// pair should run, keyed on "tier:type".
	byTierAndType map[string]types.Template
}

// Load reads path and indexes its contents.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return index(doc), nil
}

func index(doc Document) *Catalog {
	c := &Catalog{
		entities:      doc.Entities,
		templates:     make(map[string]types.Template, len(doc.Templates)),
		byTierAndType: make(map[string]types.Template),
	}
	for _, t := range doc.Templates {
		c.templates[t.TemplateID] = t
	}
	for _, r := range doc.Rules {
		t, ok := c.templates[r.TemplateID]
		if !ok {
			continue
		}
		key := tierTypeKey(r.PriorityTier, r.EntityType)
		if existing, ok := c.byTierAndType[key]; !ok || t.Version > existing.Version {
			c.byTierAndType[key] = t
		}
	}
	return c
}

func tierTypeKey(tier int, entityType types.EntityType) string {
	return fmt.Sprintf("%d:%s", tier, entityType)
}

// Entities returns every entity in the catalog.
func (c *Catalog) Entities() []types.Entity {
	return c.entities
}

// ByID returns the entities in ids, preserving catalog order, skipping
// any id the catalog doesn't contain.
func (c *Catalog) ByID(ids []string) []types.Entity {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []types.Entity
	for _, e := range c.entities {
		if want[e.EntityID] {
			out = append(out, e)
		}
	}
	return out
}

// Template looks up a template by ID.
func (c *Catalog) Template(id string) (types.Template, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// SelectTemplate picks the template for an entity by priority tier and
// type (spec §3). Falls back to the highest-version template in the
// catalog, regardless of tier/type, when nothing matches exactly —
// better a mismatched template than no run at all.
func (c *Catalog) SelectTemplate(e types.Entity) (types.Template, error) {
	if t, ok := c.byTierAndType[tierTypeKey(e.PriorityTier, e.Type)]; ok {
		return t, nil
	}
	var fallback types.Template
	var found bool
	for _, t := range c.templates {
		if !found || t.Version > fallback.Version {
			fallback = t
			found = true
		}
	}
	if !found {
		return types.Template{}, fmt.Errorf("catalog: no template available for entity %s (tier %d, type %s)", e.EntityID, e.PriorityTier, e.Type)
	}
	return fallback, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/scoutline/discovery/internal/errors"
	"github.com/scoutline/discovery/pkg/types"
)

// bindingRow mirrors the runtime_bindings table for sqlx scanning; the
// map-shaped fields are marshalled through jsonColumn at the call site
// since sqlx has no native JSONB support.
type bindingRow struct {
	EntityID             string         `db:"entity_id"`
	TemplateID           string         `db:"template_id"`
	EntityName           string         `db:"entity_name"`
	DiscoveredDomains    pq.StringArray `db:"discovered_domains"`
	DiscoveredChannels   []byte         `db:"discovered_channels"`
	EnrichedPatterns     []byte         `db:"enriched_patterns"`
	ConfidenceAdjustment float64        `db:"confidence_adjustment"`
	UsageCount           int            `db:"usage_count"`
	SuccessRate          float64        `db:"success_rate"`
	State                string         `db:"state"`
	PromotedAt           *time.Time     `db:"promoted_at"`
	LastUsedAt           time.Time      `db:"last_used_at"`
}

// BindingStore persists RuntimeBindings (spec §4.C13), satisfying
// pkg/binding's Store contract.
type BindingStore struct {
	db *sqlx.DB
}

// NewBindingStore constructs a BindingStore over db.
func NewBindingStore(db *sqlx.DB) *BindingStore {
	return &BindingStore{db: db}
}

// Get returns the binding for (entityID, templateID), or nil if none has
// been created yet.
func (s *BindingStore) Get(ctx context.Context, entityID, templateID string) (*types.RuntimeBinding, error) {
	const q = `
		SELECT entity_id, template_id, entity_name, discovered_domains, discovered_channels,
		       enriched_patterns, confidence_adjustment, usage_count, success_rate, state,
		       promoted_at, last_used_at
		FROM runtime_bindings WHERE entity_id = $1 AND template_id = $2`
	var row bindingRow
	if err := s.db.GetContext(ctx, &row, q, entityID, templateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("loading binding", goerrors.Wrap(err, "runtime_bindings get"))
	}
	return rowToBinding(row)
}

// Put upserts b, keyed by (entity_id, template_id).
func (s *BindingStore) Put(ctx context.Context, b *types.RuntimeBinding) error {
	channels := jsonColumn{dest: &b.DiscoveredChannels}
	channelsVal, err := channels.Value()
	if err != nil {
		return apperrors.NewStoreError("marshalling discovered channels", err)
	}
	patterns := jsonColumn{dest: &b.EnrichedPatterns}
	patternsVal, err := patterns.Value()
	if err != nil {
		return apperrors.NewStoreError("marshalling enriched patterns", err)
	}

	const q = `
		INSERT INTO runtime_bindings (entity_id, template_id, entity_name, discovered_domains,
			discovered_channels, enriched_patterns, confidence_adjustment, usage_count,
			success_rate, state, promoted_at, last_used_at)
		VALUES (:entity_id, :template_id, :entity_name, :discovered_domains,
			:discovered_channels, :enriched_patterns, :confidence_adjustment, :usage_count,
			:success_rate, :state, :promoted_at, :last_used_at)
		ON CONFLICT (entity_id, template_id) DO UPDATE SET
			entity_name = EXCLUDED.entity_name,
			discovered_domains = EXCLUDED.discovered_domains,
			discovered_channels = EXCLUDED.discovered_channels,
			enriched_patterns = EXCLUDED.enriched_patterns,
			confidence_adjustment = EXCLUDED.confidence_adjustment,
			usage_count = EXCLUDED.usage_count,
			success_rate = EXCLUDED.success_rate,
			state = EXCLUDED.state,
			promoted_at = EXCLUDED.promoted_at,
			last_used_at = EXCLUDED.last_used_at`

	row := bindingRow{
		EntityID:             b.EntityID,
		TemplateID:           b.TemplateID,
		EntityName:           b.EntityName,
		DiscoveredDomains:    pq.StringArray(b.DiscoveredDomains),
		DiscoveredChannels:   channelsVal.([]byte),
		EnrichedPatterns:     patternsVal.([]byte),
		ConfidenceAdjustment: b.ConfidenceAdjustment,
		UsageCount:           b.UsageCount,
		SuccessRate:          b.SuccessRate,
		State:                string(b.State),
		PromotedAt:           b.PromotedAt,
		LastUsedAt:           b.LastUsedAt,
	}
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return apperrors.NewStoreError("upserting binding", goerrors.Wrap(err, "runtime_bindings upsert"))
	}
	return nil
}

// List returns every binding for templateID, across all entities, for
// Cluster Intelligence rollups (spec §4.C11).
func (s *BindingStore) List(ctx context.Context, templateID string) ([]*types.RuntimeBinding, error) {
	const q = `
		SELECT entity_id, template_id, entity_name, discovered_domains, discovered_channels,
		       enriched_patterns, confidence_adjustment, usage_count, success_rate, state,
		       promoted_at, last_used_at
		FROM runtime_bindings WHERE template_id = $1`
	var rows []bindingRow
	if err := s.db.SelectContext(ctx, &rows, q, templateID); err != nil {
		return nil, apperrors.NewStoreError("listing bindings", goerrors.Wrap(err, "runtime_bindings list"))
	}
	out := make([]*types.RuntimeBinding, 0, len(rows))
	for _, r := range rows {
		b, err := rowToBinding(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func rowToBinding(row bindingRow) (*types.RuntimeBinding, error) {
	b := &types.RuntimeBinding{
		EntityID:             row.EntityID,
		TemplateID:           row.TemplateID,
		EntityName:           row.EntityName,
		DiscoveredDomains:    []string(row.DiscoveredDomains),
		ConfidenceAdjustment: row.ConfidenceAdjustment,
		UsageCount:           row.UsageCount,
		SuccessRate:          row.SuccessRate,
		State:                types.BindingState(row.State),
		PromotedAt:           row.PromotedAt,
		LastUsedAt:           row.LastUsedAt,
	}
	if err := (jsonColumn{dest: &b.DiscoveredChannels}).Scan(row.DiscoveredChannels); err != nil {
		return nil, apperrors.NewStoreError("unmarshalling discovered channels", err)
	}
	if err := (jsonColumn{dest: &b.EnrichedPatterns}).Scan(row.EnrichedPatterns); err != nil {
		return nil, apperrors.NewStoreError("unmarshalling enriched patterns", err)
	}
	return b, nil
}

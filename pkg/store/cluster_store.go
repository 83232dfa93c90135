package store

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/scoutline/discovery/internal/errors"
	"github.com/scoutline/discovery/pkg/types"
)

type clusterRow struct {
	ClusterID            string         `db:"cluster_id"`
	ChannelEffectiveness []byte         `db:"channel_effectiveness"`
	SignalReliability    []byte         `db:"signal_reliability"`
	DiscoveryShortcuts   pq.StringArray `db:"discovery_shortcuts"`
	TotalBindings        int            `db:"total_bindings"`
	LastUpdated          sql.NullTime   `db:"last_updated"`
}

// ClusterStore persists ClusterStats (spec §4.C13), satisfying
// pkg/intelligence's Store contract.
type ClusterStore struct {
	db *sqlx.DB
}

// NewClusterStore constructs a ClusterStore over db.
func NewClusterStore(db *sqlx.DB) *ClusterStore {
	return &ClusterStore{db: db}
}

// Get returns the cached rollup for clusterID, or nil if none exists yet.
func (s *ClusterStore) Get(ctx context.Context, clusterID string) (*types.ClusterStats, error) {
	const q = `
		SELECT cluster_id, channel_effectiveness, signal_reliability, discovery_shortcuts,
		       total_bindings, last_updated
		FROM cluster_stats WHERE cluster_id = $1`
	var row clusterRow
	if err := s.db.GetContext(ctx, &row, q, clusterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("loading cluster stats", goerrors.Wrap(err, "cluster_stats get"))
	}

	stats := &types.ClusterStats{
		ClusterID:          row.ClusterID,
		DiscoveryShortcuts: []string(row.DiscoveryShortcuts),
		TotalBindings:      row.TotalBindings,
		LastUpdated:        row.LastUpdated.Time,
	}
	if err := (jsonColumn{dest: &stats.ChannelEffectiveness}).Scan(row.ChannelEffectiveness); err != nil {
		return nil, apperrors.NewStoreError("unmarshalling channel effectiveness", err)
	}
	if err := (jsonColumn{dest: &stats.SignalReliability}).Scan(row.SignalReliability); err != nil {
		return nil, apperrors.NewStoreError("unmarshalling signal reliability", err)
	}
	return stats, nil
}

// Put upserts stats, keyed by cluster_id.
func (s *ClusterStore) Put(ctx context.Context, stats *types.ClusterStats) error {
	effVal, err := (jsonColumn{dest: &stats.ChannelEffectiveness}).Value()
	if err != nil {
		return apperrors.NewStoreError("marshalling channel effectiveness", err)
	}
	relVal, err := (jsonColumn{dest: &stats.SignalReliability}).Value()
	if err != nil {
		return apperrors.NewStoreError("marshalling signal reliability", err)
	}

	const q = `
		INSERT INTO cluster_stats (cluster_id, channel_effectiveness, signal_reliability,
			discovery_shortcuts, total_bindings, last_updated)
		VALUES (:cluster_id, :channel_effectiveness, :signal_reliability,
			:discovery_shortcuts, :total_bindings, :last_updated)
		ON CONFLICT (cluster_id) DO UPDATE SET
			channel_effectiveness = EXCLUDED.channel_effectiveness,
			signal_reliability = EXCLUDED.signal_reliability,
			discovery_shortcuts = EXCLUDED.discovery_shortcuts,
			total_bindings = EXCLUDED.total_bindings,
			last_updated = EXCLUDED.last_updated`

	row := clusterRow{
		ClusterID:            stats.ClusterID,
		ChannelEffectiveness: effVal.([]byte),
		SignalReliability:    relVal.([]byte),
		DiscoveryShortcuts:   pq.StringArray(stats.DiscoveryShortcuts),
		TotalBindings:        stats.TotalBindings,
		LastUpdated:          sql.NullTime{Time: stats.LastUpdated, Valid: !stats.LastUpdated.IsZero()},
	}
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return apperrors.NewStoreError("upserting cluster stats", goerrors.Wrap(err, "cluster_stats upsert"))
	}
	return nil
}

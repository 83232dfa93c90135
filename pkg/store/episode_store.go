package store

import (
	"context"
	"time"

	goerrors "github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/scoutline/discovery/internal/errors"
	"github.com/scoutline/discovery/pkg/types"
)

// EpisodeStore persists the append-only episode log (spec §4.C13) to
// Postgres. It satisfies pkg/orchestrator's EpisodeSink.
type EpisodeStore struct {
	db *sqlx.DB
}

// NewEpisodeStore constructs an EpisodeStore over db.
func NewEpisodeStore(db *sqlx.DB) *EpisodeStore {
	return &EpisodeStore{db: db}
}

// Put inserts ep. Episode IDs are generated by the caller and are
// immutable once written, so a conflicting ID is an internal bug rather
// than something worth silently upserting over.
func (s *EpisodeStore) Put(ctx context.Context, ep types.Episode) error {
	const q = `
		INSERT INTO episodes (id, entity_id, type, subtype, description, timestamp, confidence, source_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, q,
		ep.ID, ep.EntityID, ep.Type, ep.Subtype, ep.Description, ep.Timestamp, ep.Confidence, pq.Array(ep.SourceRefs))
	if err != nil {
		return apperrors.NewStoreError("inserting episode", goerrors.Wrap(err, "episodes insert"))
	}
	return nil
}

// Query returns every episode for entityID recorded at or after since,
// ordered by timestamp, for clustering and dossier assembly.
func (s *EpisodeStore) Query(ctx context.Context, entityID string, since time.Time) ([]types.Episode, error) {
	const q = `
		SELECT id, entity_id, type, subtype, description, timestamp, confidence, source_refs
		FROM episodes
		WHERE entity_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC`
	rows, err := s.db.QueryxContext(ctx, q, entityID, since)
	if err != nil {
		return nil, apperrors.NewStoreError("querying episodes", goerrors.Wrap(err, "episodes query"))
	}
	defer rows.Close()

	var out []types.Episode
	for rows.Next() {
		var ep types.Episode
		var refs pq.StringArray
		if err := rows.Scan(&ep.ID, &ep.EntityID, &ep.Type, &ep.Subtype, &ep.Description, &ep.Timestamp, &ep.Confidence, &refs); err != nil {
			return nil, apperrors.NewStoreError("scanning episode row", goerrors.Wrap(err, "episodes scan"))
		}
		ep.SourceRefs = []string(refs)
		out = append(out, ep)
	}
	return out, rows.Err()
}

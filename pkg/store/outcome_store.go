package store

import (
	"context"

	goerrors "github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/scoutline/discovery/internal/errors"
	"github.com/scoutline/discovery/pkg/types"
)

// EntitySummary is a roll-up of realized outcomes for one entity,
// supplemental to the core spec (SPEC_FULL.md §3), grounded in
// original_source/apps/signal-noise-app/backend/outcome_service.py.
type EntitySummary struct {
	EntityID    string
	WonCount    int
	LostCount   int
	PendingCount int
	TotalValue  float64
}

// OutcomeStore persists OutcomeRecords and serves entity-level summaries.
type OutcomeStore struct {
	db *sqlx.DB
}

// NewOutcomeStore constructs an OutcomeStore over db.
func NewOutcomeStore(db *sqlx.DB) *OutcomeStore {
	return &OutcomeStore{db: db}
}

// RecordOutcome upserts an OutcomeRecord keyed by signal ID; a signal's
// outcome may move from PENDING to WON/LOST as sales data lands.
func (s *OutcomeStore) RecordOutcome(ctx context.Context, rec types.OutcomeRecord) error {
	const q = `
		INSERT INTO outcome_records (signal_id, entity_id, status, value_actual, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (signal_id) DO UPDATE SET
			status = EXCLUDED.status,
			value_actual = EXCLUDED.value_actual,
			recorded_at = EXCLUDED.recorded_at`
	_, err := s.db.ExecContext(ctx, q, rec.SignalID, rec.EntityID, string(rec.Status), rec.ValueActual, rec.RecordedAt)
	if err != nil {
		return apperrors.NewStoreError("recording outcome", goerrors.Wrap(err, "outcome_records upsert"))
	}
	return nil
}

// EntitySummary aggregates every recorded outcome for entityID.
func (s *OutcomeStore) EntitySummary(ctx context.Context, entityID string) (EntitySummary, error) {
	const q = `
		SELECT status, COALESCE(SUM(value_actual), 0) AS total, COUNT(*) AS n
		FROM outcome_records WHERE entity_id = $1
		GROUP BY status`
	rows, err := s.db.QueryxContext(ctx, q, entityID)
	if err != nil {
		return EntitySummary{}, apperrors.NewStoreError("summarising outcomes", goerrors.Wrap(err, "outcome_records summary"))
	}
	defer rows.Close()

	summary := EntitySummary{EntityID: entityID}
	for rows.Next() {
		var status string
		var total float64
		var n int
		if err := rows.Scan(&status, &total, &n); err != nil {
			return EntitySummary{}, apperrors.NewStoreError("scanning outcome summary row", goerrors.Wrap(err, "outcome_records scan"))
		}
		switch types.OutcomeStatus(status) {
		case types.OutcomeWon:
			summary.WonCount = n
			summary.TotalValue += total
		case types.OutcomeLost:
			summary.LostCount = n
		case types.OutcomePending:
			summary.PendingCount = n
		}
	}
	return summary, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/scoutline/discovery/internal/errors"
	"github.com/scoutline/discovery/pkg/types"
)

type hypothesisRow struct {
	HypothesisID       string         `db:"hypothesis_id"`
	EntityID           string         `db:"entity_id"`
	TemplateID         string         `db:"template_id"`
	Statement          string         `db:"statement"`
	Category           string         `db:"category"`
	TargetEntityType   string         `db:"target_entity_type"`
	Confidence         float64        `db:"confidence"`
	State              string         `db:"state"`
	Iterations         int            `db:"iterations"`
	ReinforcementCount int            `db:"reinforcement_count"`
	CreatedAt          sql.NullTime   `db:"created_at"`
	LastTestedAt        sql.NullTime   `db:"last_tested_at"`
	Metadata           []byte         `db:"metadata"`
	ConfidenceHistory  []byte         `db:"confidence_history"`
}

// HypothesisStore persists Hypotheses (spec §4.C13), satisfying
// pkg/hypothesis's Store contract.
type HypothesisStore struct {
	db *sqlx.DB
}

// NewHypothesisStore constructs a HypothesisStore over db.
func NewHypothesisStore(db *sqlx.DB) *HypothesisStore {
	return &HypothesisStore{db: db}
}

// Get returns the hypothesis by ID, or nil if it does not exist.
func (s *HypothesisStore) Get(ctx context.Context, hypothesisID string) (*types.Hypothesis, error) {
	const q = `
		SELECT hypothesis_id, entity_id, template_id, statement, category, target_entity_type,
		       confidence, state, iterations, reinforcement_count, created_at, last_tested_at,
		       metadata, confidence_history
		FROM hypotheses WHERE hypothesis_id = $1`
	var row hypothesisRow
	if err := s.db.GetContext(ctx, &row, q, hypothesisID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("loading hypothesis", goerrors.Wrap(err, "hypotheses get"))
	}
	return rowToHypothesis(row)
}

// List returns every hypothesis for entityID.
func (s *HypothesisStore) List(ctx context.Context, entityID string) ([]*types.Hypothesis, error) {
	const q = `
		SELECT hypothesis_id, entity_id, template_id, statement, category, target_entity_type,
		       confidence, state, iterations, reinforcement_count, created_at, last_tested_at,
		       metadata, confidence_history
		FROM hypotheses WHERE entity_id = $1`
	var rows []hypothesisRow
	if err := s.db.SelectContext(ctx, &rows, q, entityID); err != nil {
		return nil, apperrors.NewStoreError("listing hypotheses", goerrors.Wrap(err, "hypotheses list"))
	}
	out := make([]*types.Hypothesis, 0, len(rows))
	for _, r := range rows {
		h, err := rowToHypothesis(r)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Put upserts h.
func (s *HypothesisStore) Put(ctx context.Context, h *types.Hypothesis) error {
	metaVal, err := (jsonColumn{dest: &h.Metadata}).Value()
	if err != nil {
		return apperrors.NewStoreError("marshalling hypothesis metadata", err)
	}
	historyVal, err := (jsonColumn{dest: &h.ConfidenceHistory}).Value()
	if err != nil {
		return apperrors.NewStoreError("marshalling confidence history", err)
	}

	const q = `
		INSERT INTO hypotheses (hypothesis_id, entity_id, template_id, statement, category,
			target_entity_type, confidence, state, iterations, reinforcement_count, created_at,
			last_tested_at, metadata, confidence_history)
		VALUES (:hypothesis_id, :entity_id, :template_id, :statement, :category,
			:target_entity_type, :confidence, :state, :iterations, :reinforcement_count, :created_at,
			:last_tested_at, :metadata, :confidence_history)
		ON CONFLICT (hypothesis_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			state = EXCLUDED.state,
			iterations = EXCLUDED.iterations,
			reinforcement_count = EXCLUDED.reinforcement_count,
			last_tested_at = EXCLUDED.last_tested_at,
			metadata = EXCLUDED.metadata,
			confidence_history = EXCLUDED.confidence_history`

	row := hypothesisRow{
		HypothesisID:       h.HypothesisID,
		EntityID:           h.EntityID,
		TemplateID:         h.TemplateID,
		Statement:          h.Statement,
		Category:           h.Category,
		TargetEntityType:   string(h.TargetEntityType),
		Confidence:         h.Confidence,
		State:              string(h.State),
		Iterations:         h.Iterations,
		ReinforcementCount: h.ReinforcementCount,
		CreatedAt:          sql.NullTime{Time: h.CreatedAt, Valid: !h.CreatedAt.IsZero()},
		LastTestedAt:       sql.NullTime{Time: h.LastTestedAt, Valid: !h.LastTestedAt.IsZero()},
		Metadata:           metaVal.([]byte),
		ConfidenceHistory:  historyVal.([]byte),
	}
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return apperrors.NewStoreError("upserting hypothesis", goerrors.Wrap(err, "hypotheses upsert"))
	}
	return nil
}

func rowToHypothesis(row hypothesisRow) (*types.Hypothesis, error) {
	h := &types.Hypothesis{
		HypothesisID:       row.HypothesisID,
		EntityID:           row.EntityID,
		TemplateID:         row.TemplateID,
		Statement:          row.Statement,
		Category:           row.Category,
		TargetEntityType:   types.EntityType(row.TargetEntityType),
		Confidence:         row.Confidence,
		State:              types.HypothesisState(row.State),
		Iterations:         row.Iterations,
		ReinforcementCount: row.ReinforcementCount,
		CreatedAt:          row.CreatedAt.Time,
		LastTestedAt:       row.LastTestedAt.Time,
	}
	if err := (jsonColumn{dest: &h.Metadata}).Scan(row.Metadata); err != nil {
		return nil, apperrors.NewStoreError("unmarshalling hypothesis metadata", err)
	}
	if err := (jsonColumn{dest: &h.ConfidenceHistory}).Scan(row.ConfidenceHistory); err != nil {
		return nil, apperrors.NewStoreError("unmarshalling confidence history", err)
	}
	return h, nil
}

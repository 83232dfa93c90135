// Package batch implements the Batch Orchestrator (spec §4.C12):
// checkpointed, concurrency-bounded processing of an entity list with
// resume semantics and failure isolation.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	sharedlogging "github.com/scoutline/discovery/pkg/shared/logging"
	"github.com/scoutline/discovery/pkg/types"
)

// ProgressLogEvery is how often a progress line is emitted (spec §4.C12).
const ProgressLogEvery = 10

// Checkpoint is the persisted resume state, written atomically after
// every processed entity.
type Checkpoint struct {
	LastProcessedIndex int       `json:"last_processed_index"`
	ProcessedEntityIDs []string  `json:"processed_entity_ids"`
	FailedEntityIDs    []string  `json:"failed_entity_ids"`
	Timestamp          time.Time `json:"timestamp"`
}

// EntityRunner runs one entity's discovery to completion and returns its
// dossier; errors are isolated by the batch loop and recorded, never
// fatal to the batch.
type EntityRunner interface {
	Run(ctx context.Context, entity types.Entity) (types.Dossier, error)
}

// Clock abstracts wall-clock reads for checkpoint timestamps.
type Clock interface {
	Now() time.Time
}

// Orchestrator iterates an ordered entity list with checkpointed resume.
type Orchestrator struct {
	runner         EntityRunner
	checkpointPath string
	maxConcurrent  int64
	clock          Clock
	log            *logrus.Entry
}

// New constructs an Orchestrator. maxConcurrent bounds how many entities
// run concurrently (default 1 is safe since each entity run is
// self-contained and budget-gated per entity).
func New(runner EntityRunner, checkpointPath string, maxConcurrent int64, clk Clock) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		runner:         runner,
		checkpointPath: checkpointPath,
		maxConcurrent:  maxConcurrent,
		clock:          clk,
		log:            logrus.WithField("component", "batch_orchestrator"),
	}
}

// Result is the outcome of one Run invocation.
type Result struct {
	Dossiers      []types.Dossier
	FailedEntities []string
}

// Run processes entities in order, resuming from any existing checkpoint
// at checkpointPath, writing a new checkpoint after each entity
// completes (success or isolated failure).
func (o *Orchestrator) Run(ctx context.Context, entities []types.Entity) (Result, error) {
	checkpoint, err := o.loadCheckpoint()
	if err != nil {
		return Result{}, fmt.Errorf("batch: loading checkpoint: %w", err)
	}

	processed := make(map[string]bool, len(checkpoint.ProcessedEntityIDs))
	for _, id := range checkpoint.ProcessedEntityIDs {
		processed[id] = true
	}

	type indexed struct {
		index  int
		entity types.Entity
	}
	pending := make([]indexed, 0, len(entities))
	for i, e := range entities {
		if i <= checkpoint.LastProcessedIndex || processed[e.EntityID] {
			continue
		}
		pending = append(pending, indexed{index: i, entity: e})
	}

	o.log.WithField("pending", len(pending)).WithField("already_processed", len(processed)).Info("starting batch run")

	var (
		mu            sync.Mutex
		dossiers      []types.Dossier
		failed        = append([]string{}, checkpoint.FailedEntityIDs...)
		count         int
		maxSeenIndex  = checkpoint.LastProcessedIndex
	)

	sem := semaphore.NewWeighted(o.maxConcurrent)
	g, gctx := errgroup.WithContext(ctx)

	for _, p := range pending {
		entity := p.entity
		index := p.index

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			dossier, runErr := o.runOne(gctx, entity)

			mu.Lock()
			defer mu.Unlock()

			if runErr != nil {
				o.log.WithFields(sharedlogging.WorkflowFields("discover_entity", entity.EntityID).Error(runErr).ToLogrus()).
					Error("entity run failed, isolating")
				failed = append(failed, entity.EntityID)
			} else {
				dossiers = append(dossiers, dossier)
			}
			processed[entity.EntityID] = true
			count++
			if index > maxSeenIndex {
				maxSeenIndex = index
			}

			if count%ProgressLogEvery == 0 {
				o.log.WithField("processed", count).WithField("of", len(pending)).Info("batch progress")
			}

			ids := make([]string, 0, len(processed))
			for id := range processed {
				ids = append(ids, id)
			}
			cp := Checkpoint{
				LastProcessedIndex: maxSeenIndex,
				ProcessedEntityIDs: ids,
				FailedEntityIDs:    failed,
				Timestamp:          o.clock.Now(),
			}
			if err := o.writeCheckpoint(cp); err != nil {
				o.log.WithError(err).Error("failed to persist checkpoint")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{Dossiers: dossiers, FailedEntities: failed}, err
	}

	o.log.WithField("succeeded", len(dossiers)).WithField("failed", len(failed)).Info("batch run complete")
	return Result{Dossiers: dossiers, FailedEntities: failed}, nil
}

func (o *Orchestrator) runOne(ctx context.Context, entity types.Entity) (dossier types.Dossier, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch: entity %s panicked: %v", entity.EntityID, r)
		}
	}()
	return o.runner.Run(ctx, entity)
}

func (o *Orchestrator) loadCheckpoint() (Checkpoint, error) {
	data, err := os.ReadFile(o.checkpointPath)
	if os.IsNotExist(err) {
		return Checkpoint{LastProcessedIndex: -1}, nil
	}
	if err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return cp, nil
}

// writeCheckpoint persists cp atomically: write to a temp file in the
// same directory, then rename over the checkpoint path (spec §4.C12).
func (o *Orchestrator) writeCheckpoint(cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(o.checkpointPath)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, o.checkpointPath)
}

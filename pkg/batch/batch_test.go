package batch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutline/discovery/pkg/batch"
	"github.com/scoutline/discovery/pkg/types"
)

type scriptedRunner struct {
	mu      sync.Mutex
	failIDs map[string]bool
	seen    []string
}

func (r *scriptedRunner) Run(_ context.Context, entity types.Entity) (types.Dossier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, entity.EntityID)
	if r.failIDs[entity.EntityID] {
		return types.Dossier{}, fmt.Errorf("simulated failure for %s", entity.EntityID)
	}
	return types.Dossier{EntityID: entity.EntityID}, nil
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func entities(n int) []types.Entity {
	out := make([]types.Entity, n)
	for i := 0; i < n; i++ {
		out[i] = types.Entity{EntityID: fmt.Sprintf("e%d", i), Name: fmt.Sprintf("Entity %d", i)}
	}
	return out
}

func TestRun_ProcessesAllEntitiesAndWritesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cpPath := filepath.Join(dir, "checkpoint.json")
	runner := &scriptedRunner{failIDs: map[string]bool{}}
	o := batch.New(runner, cpPath, 1, fixedClock{t: time.Now()})

	result, err := o.Run(context.Background(), entities(5))
	require.NoError(t, err)
	assert.Len(t, result.Dossiers, 5)
	assert.Empty(t, result.FailedEntities)

	data, err := os.ReadFile(cpPath)
	require.NoError(t, err)
	var cp batch.Checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	assert.Equal(t, 4, cp.LastProcessedIndex)
	assert.Len(t, cp.ProcessedEntityIDs, 5)
}

func TestRun_IsolatesFailuresWithoutAbortingBatch(t *testing.T) {
	dir := t.TempDir()
	cpPath := filepath.Join(dir, "checkpoint.json")
	runner := &scriptedRunner{failIDs: map[string]bool{"e2": true}}
	o := batch.New(runner, cpPath, 1, fixedClock{t: time.Now()})

	result, err := o.Run(context.Background(), entities(5))
	require.NoError(t, err)
	assert.Len(t, result.Dossiers, 4)
	assert.Equal(t, []string{"e2"}, result.FailedEntities)
}

func TestRun_ResumesFromExistingCheckpoint(t *testing.T) {
	dir := t.TempDir()
	cpPath := filepath.Join(dir, "checkpoint.json")

	cp := batch.Checkpoint{LastProcessedIndex: 1, ProcessedEntityIDs: []string{"e0", "e1"}}
	data, err := json.Marshal(cp)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cpPath, data, 0o644))

	runner := &scriptedRunner{failIDs: map[string]bool{}}
	o := batch.New(runner, cpPath, 1, fixedClock{t: time.Now()})

	result, err := o.Run(context.Background(), entities(5))
	require.NoError(t, err)
	assert.Len(t, result.Dossiers, 3)
	assert.NotContains(t, runner.seen, "e0")
	assert.NotContains(t, runner.seen, "e1")
}

func TestRun_RespectsConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	cpPath := filepath.Join(dir, "checkpoint.json")
	runner := &scriptedRunner{failIDs: map[string]bool{}}
	o := batch.New(runner, cpPath, 3, fixedClock{t: time.Now()})

	result, err := o.Run(context.Background(), entities(10))
	require.NoError(t, err)
	assert.Len(t, result.Dossiers, 10)
}

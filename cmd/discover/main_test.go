package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	f, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.batchSize)
	assert.False(t, f.resume)
	assert.Equal(t, "", f.entities)
	assert.Equal(t, "config.yaml", f.configPath)
	assert.Equal(t, "catalog.json", f.catalogPath)
	assert.Equal(t, "checkpoint.json", f.checkpointPath)
}

func TestParseFlagsOverrides(t *testing.T) {
	f, err := parseFlags([]string{
		"--batch-size", "10",
		"--resume",
		"--entities", "e1,e2,e3",
		"--max-iterations", "30",
		"--cost-cap", "12.5",
		"--config", "custom.yaml",
		"--catalog", "custom-catalog.json",
		"--checkpoint", "custom-checkpoint.json",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, f.batchSize)
	assert.True(t, f.resume)
	assert.Equal(t, "e1,e2,e3", f.entities)
	assert.Equal(t, 30, f.maxIterations)
	assert.InDelta(t, 12.5, f.costCap, 0.0001)
	assert.Equal(t, "custom.yaml", f.configPath)
	assert.Equal(t, "custom-catalog.json", f.catalogPath)
	assert.Equal(t, "custom-checkpoint.json", f.checkpointPath)
}

func TestParseFlagsRejectsUnknownFlag(t *testing.T) {
	_, err := parseFlags([]string{"--not-a-real-flag"})
	assert.Error(t, err)
}

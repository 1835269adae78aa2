// File: cmd/root_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, _, err := executeCommand(t, "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "feedpilot version "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	resetForTest(t)
	out, _, err := executeCommand(t)

	require.NoError(t, err)
	assert.Contains(t, out, "natural-language instructions")
	for _, sub := range []string{"run", "batch", "login", "sites"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_InvalidConfigFile(t *testing.T) {
	resetForTest(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_total_retries: 0\n"), 0o600))

	_, _, err := executeCommand(t, "--config", path, "sites")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_total_retries")
}

func TestRootCmd_EnvOverride(t *testing.T) {
	resetForTest(t)
	t.Setenv("FEEDPILOT_ENGINE_CONCURRENCY", "0")

	_, _, err := executeCommand(t, "sites")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.concurrency")
}

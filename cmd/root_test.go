// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/observability"
)

// resetState restores package-level state between tests.
func resetState() {
	setConfig(nil)
	observability.ResetForTest()
}

func TestRootCmd_VersionFlag(t *testing.T) {
	defer resetState()

	testRootCmd := NewRootCommand()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"--version"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), Version)
}

func TestRootCmd_NoArgsShowsHelp(t *testing.T) {
	defer resetState()

	testRootCmd := NewRootCommand()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{})

	err := testRootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Sirius drives a real browser")
	assert.Contains(t, out.String(), "run")
}

func TestRootCmd_MissingConfigFileFails(t *testing.T) {
	defer resetState()

	testRootCmd := NewRootCommand()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"--config", "does-not-exist.yaml", "run", "some task"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRunCmd_RequiresTask(t *testing.T) {
	defer resetState()

	testRootCmd := NewRootCommand()
	var out bytes.Buffer
	testRootCmd.SetOut(&out)
	testRootCmd.SetErr(&out)
	testRootCmd.SetArgs([]string{"run"})

	err := testRootCmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestCurrentConfig_FallsBackToDefaults(t *testing.T) {
	defer resetState()

	setConfig(nil)
	cfg := currentConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 20, cfg.Agent.MaxSteps)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	defer resetState()

	t.Setenv("SIRIUS_AGENT_MAX_STEPS", "7")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Agent.MaxSteps)
}

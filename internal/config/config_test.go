package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 1280, cfg.Browser.Width)
	assert.Equal(t, "claude", cfg.Agent.Primary.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Agent.Cheap.Model)
	assert.Equal(t, 1200*time.Millisecond, cfg.Agent.MinCallGap)
	assert.Equal(t, 5, cfg.Fill.MaxCycles)
	assert.Equal(t, 3, cfg.Orchestrator.StuckThreshold)
	assert.Equal(t, 0.7, cfg.Fill.ScanStepFraction)
	assert.Equal(t, 2, cfg.Matcher.MinWordOverlap)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero budget", func(c *Config) { c.Budget.TaskBudget = 0 }, "budget.task_budget"},
		{"no primary", func(c *Config) { c.Agent.Primary.Provider = "" }, "agent.primary.provider"},
		{"soft cap too high", func(c *Config) { c.Fill.EscalationSoftCap = 1.5 }, "escalation_soft_cap"},
		{"zero cycles", func(c *Config) { c.Fill.MaxCycles = 0 }, "max_cycles"},
		{"stuck threshold", func(c *Config) { c.Orchestrator.StuckThreshold = 1 }, "stuck_threshold"},
		{"poll longer than timeout", func(c *Config) {
			c.Orchestrator.ChallengeTimeout = time.Second
			c.Orchestrator.ChallengePoll = 2 * time.Second
		}, "challenge_timeout"},
		{"scan step", func(c *Config) { c.Fill.ScanStepFraction = 0 }, "scan_step_fraction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "applypilot.yaml")
	content := `
budget:
  task_budget: 3.5
fill:
  max_cycles: 2
orchestrator:
  platform: workday
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 3.5, cfg.Budget.TaskBudget)
	assert.Equal(t, 2, cfg.Fill.MaxCycles)
	assert.Equal(t, "workday", cfg.Orchestrator.Platform)
	// untouched defaults survive
	assert.Equal(t, 25, cfg.Orchestrator.MaxPages)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

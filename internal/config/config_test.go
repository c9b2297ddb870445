// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 0.12, cfg.Pheromone.DecayRate)
	assert.Equal(t, 0.05, cfg.Pheromone.MinStrength)
	assert.Equal(t, 0.55, cfg.Pheromone.CriticalDensity)
	assert.Equal(t, 18, cfg.Pheromone.CooldownSteps)
	assert.Equal(t, 2000, cfg.Agent.SyncIntervalMs)
	assert.Equal(t, 10000, cfg.Agent.EngineeringStepIntervalMs)
	assert.Equal(t, 50000, cfg.Agent.TokenBudget)
	assert.Equal(t, 3*time.Second, cfg.Agent.PeerTimeout)

	// Derived fields.
	assert.Equal(t, 3001, cfg.Agent.Port, "port defaults to 3001+index")
	assert.Equal(t, "agent-0", cfg.Agent.Name)
	assert.Equal(t, 1, cfg.Swarm.AgentCount, "no peers means a population of one")
}

func TestNormalize_DerivesFromIndexAndPeers(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("agent.index", 3)
	v.Set("agent.peer_urls", "http://a:3001, http://b:3002/,http://c:3003")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 3004, cfg.Agent.Port)
	assert.Equal(t, "agent-3", cfg.Agent.Name)
	assert.Equal(t, []string{"http://a:3001", "http://b:3002", "http://c:3003"}, cfg.Agent.PeerURLs,
		"comma-separated env lists are split and trailing slashes trimmed")
	assert.Equal(t, 4, cfg.Swarm.AgentCount)
}

func TestLegacyEnvBindings(t *testing.T) {
	t.Setenv("PHEROMONE_DECAY", "0.3")
	t.Setenv("CRITICAL_DENSITY", "0.7")
	t.Setenv("TOKEN_BUDGET_PER_AGENT", "12345")
	t.Setenv("AGENT_INDEX", "2")
	t.Setenv("DA_PROXY_URL", "http://da:4242/put")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 0.3, cfg.Pheromone.DecayRate)
	assert.Equal(t, 0.7, cfg.Pheromone.CriticalDensity)
	assert.Equal(t, 12345, cfg.Agent.TokenBudget)
	assert.Equal(t, 2, cfg.Agent.Index)
	assert.Equal(t, 3003, cfg.Agent.Port)
	assert.Equal(t, "http://da:4242/put", cfg.DA.ProxyURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"decay out of range", func(c *Config) { c.Pheromone.DecayRate = 1.5 }, "decay_rate"},
		{"zero decay", func(c *Config) { c.Pheromone.DecayRate = 0 }, "decay_rate"},
		{"density out of range", func(c *Config) { c.Pheromone.CriticalDensity = 0 }, "critical_density"},
		{"bad saturation", func(c *Config) { c.Pheromone.SaturationPerAgent = 0 }, "saturation_per_agent"},
		{"bad interval", func(c *Config) { c.Agent.SyncIntervalMs = 0 }, "sync_interval_ms"},
		{"negative budget", func(c *Config) { c.Agent.TokenBudget = -1 }, "token_budget"},
		{"inverted thresholds", func(c *Config) { c.Credits.ThresholdNormal = 100; c.Credits.ThresholdLow = 200 }, "threshold_normal"},
		{"no population", func(c *Config) { c.Swarm.AgentCount = 0 }, "agent_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

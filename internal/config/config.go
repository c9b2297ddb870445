// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built exactly
// once at startup and passed by reference; nothing re-reads the
// environment mid-run.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Swarm      SwarmConfig      `mapstructure:"swarm" yaml:"swarm"`
	Pheromone  PheromoneConfig  `mapstructure:"pheromone" yaml:"pheromone"`
	Credits    CreditsConfig    `mapstructure:"credits" yaml:"credits"`
	Reasoning  ReasoningConfig  `mapstructure:"reasoning" yaml:"reasoning"`
	DataSource DataSourceConfig `mapstructure:"datasource" yaml:"datasource"`
	DA         DAConfig         `mapstructure:"da" yaml:"da"`
	Aggregator AggregatorConfig `mapstructure:"aggregator" yaml:"aggregator"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AgentConfig configures one agent process.
type AgentConfig struct {
	Index                     int      `mapstructure:"index" yaml:"index"`
	Port                      int      `mapstructure:"port" yaml:"port"`
	Name                      string   `mapstructure:"name" yaml:"name"`
	Role                      string   `mapstructure:"role" yaml:"role"`
	PeerURLs                  []string `mapstructure:"peer_urls" yaml:"peer_urls"`
	DBPath                    string   `mapstructure:"db_path" yaml:"db_path"`
	SyncIntervalMs            int      `mapstructure:"sync_interval_ms" yaml:"sync_interval_ms"`
	EngineeringStepIntervalMs int      `mapstructure:"engineering_step_interval_ms" yaml:"engineering_step_interval_ms"`
	MaxSteps                  int      `mapstructure:"max_steps" yaml:"max_steps"`
	TokenBudget               int      `mapstructure:"token_budget" yaml:"token_budget"`
	EngineeringEnabled        bool     `mapstructure:"engineering_enabled" yaml:"engineering_enabled"`
	PeerTimeout               time.Duration `mapstructure:"peer_timeout" yaml:"peer_timeout"`
	PersistEverySteps         int      `mapstructure:"persist_every_steps" yaml:"persist_every_steps"`
}

// SwarmConfig describes the population this process believes it belongs to.
type SwarmConfig struct {
	// AgentCount is the population size used as the density saturation
	// term. Zero means "derive from peer_urls + 1".
	AgentCount int `mapstructure:"agent_count" yaml:"agent_count"`
	// WorldSize is the half-extent of the clamping rectangle for agent
	// positions, centered on the origin.
	WorldSize float64 `mapstructure:"world_size" yaml:"world_size"`
}

// PheromoneConfig tunes the signal channel dynamics.
type PheromoneConfig struct {
	DecayRate       float64 `mapstructure:"decay_rate" yaml:"decay_rate"`
	MinStrength     float64 `mapstructure:"min_strength" yaml:"min_strength"`
	CriticalDensity float64 `mapstructure:"critical_density" yaml:"critical_density"`
	// SaturationPerAgent is the per-agent signal count at which the
	// density count term saturates (the "agentCount x 8" denominator).
	SaturationPerAgent int `mapstructure:"saturation_per_agent" yaml:"saturation_per_agent"`
	// CooldownSteps is the post-transition cycle-reset delay.
	CooldownSteps int `mapstructure:"cooldown_steps" yaml:"cooldown_steps"`
}

// CreditsConfig tunes the credit governor thresholds.
type CreditsConfig struct {
	Initial         float64 `mapstructure:"initial" yaml:"initial"`
	ThresholdNormal float64 `mapstructure:"threshold_normal" yaml:"threshold_normal"`
	ThresholdLow    float64 `mapstructure:"threshold_low" yaml:"threshold_low"`
}

// ReasoningProvider identifies a reasoning backend implementation.
type ReasoningProvider string

const (
	ProviderGemini ReasoningProvider = "gemini"
	ProviderOpenAI ReasoningProvider = "openai"
	ProviderOllama ReasoningProvider = "ollama"
	ProviderNone   ReasoningProvider = "none"
)

// ReasoningConfig configures the reasoning backend and its tier router.
type ReasoningConfig struct {
	Provider   ReasoningProvider `mapstructure:"provider" yaml:"provider"`
	APIURL     string            `mapstructure:"api_url" yaml:"api_url"`
	APIKey     string            `mapstructure:"api_key" yaml:"-"`
	Model      string            `mapstructure:"model" yaml:"model"`
	FastModel  string            `mapstructure:"fast_model" yaml:"fast_model"`
	APITimeout time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxRetries int               `mapstructure:"max_retries" yaml:"max_retries"`
}

// DataSourceConfig configures the external dataset client.
type DataSourceConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
}

// DAConfig configures data-availability dispersal. An empty ProxyURL
// disables dispersal entirely.
type DAConfig struct {
	ProxyURL string `mapstructure:"proxy_url" yaml:"proxy_url"`
	// UpdateLocal controls commitment write-back: when true the local
	// signal copy is mutated once the commitment arrives and re-gossiped
	// on the next push; when false peers may permanently lack it.
	UpdateLocal bool          `mapstructure:"update_local" yaml:"update_local"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AggregatorConfig configures the read-only presentation service.
type AggregatorConfig struct {
	Port      int           `mapstructure:"port" yaml:"port"`
	AgentURLs []string      `mapstructure:"agent_urls" yaml:"agent_urls"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "swarmmind")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Agent --
	v.SetDefault("agent.index", 0)
	v.SetDefault("agent.port", 0) // 0 means 3001+index
	v.SetDefault("agent.name", "")
	v.SetDefault("agent.role", "")
	v.SetDefault("agent.peer_urls", []string{})
	v.SetDefault("agent.db_path", "")
	v.SetDefault("agent.sync_interval_ms", 2000)
	v.SetDefault("agent.engineering_step_interval_ms", 10000)
	v.SetDefault("agent.max_steps", 0)
	v.SetDefault("agent.token_budget", 50000)
	v.SetDefault("agent.engineering_enabled", true)
	v.SetDefault("agent.peer_timeout", 3*time.Second)
	v.SetDefault("agent.persist_every_steps", 10)

	// -- Swarm --
	v.SetDefault("swarm.agent_count", 0)
	v.SetDefault("swarm.world_size", 100.0)

	// -- Pheromone channel --
	v.SetDefault("pheromone.decay_rate", 0.12)
	v.SetDefault("pheromone.min_strength", 0.05)
	v.SetDefault("pheromone.critical_density", 0.55)
	v.SetDefault("pheromone.saturation_per_agent", 8)
	v.SetDefault("pheromone.cooldown_steps", 18)

	// -- Credits --
	v.SetDefault("credits.initial", 5000.0)
	v.SetDefault("credits.threshold_normal", 1000.0)
	v.SetDefault("credits.threshold_low", 200.0)

	// -- Reasoning backend --
	v.SetDefault("reasoning.provider", "none")
	v.SetDefault("reasoning.api_url", "")
	v.SetDefault("reasoning.model", "gemini-2.5-pro")
	v.SetDefault("reasoning.fast_model", "gemini-2.5-flash")
	v.SetDefault("reasoning.api_timeout", 30*time.Second)
	v.SetDefault("reasoning.max_retries", 2)

	// -- Data source --
	v.SetDefault("datasource.base_url", "https://api.nasa.gov")
	v.SetDefault("datasource.cache_ttl", 10*time.Minute)
	v.SetDefault("datasource.timeout", 10*time.Second)
	v.SetDefault("datasource.rate_per_second", 1.0)

	// -- DA dispersal --
	v.SetDefault("da.proxy_url", "")
	v.SetDefault("da.update_local", false)
	v.SetDefault("da.queue_size", 64)
	v.SetDefault("da.timeout", 10*time.Second)

	// -- Aggregator --
	v.SetDefault("aggregator.port", 3000)
	v.SetDefault("aggregator.agent_urls", []string{})
	v.SetDefault("aggregator.timeout", 3*time.Second)
}

// bindLegacyEnv wires the flat environment names the deployment tooling
// uses onto their viper keys.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("agent.index", "AGENT_INDEX")
	v.BindEnv("agent.port", "AGENT_PORT")
	v.BindEnv("agent.peer_urls", "PEER_URLS")
	v.BindEnv("agent.db_path", "DB_PATH")
	v.BindEnv("agent.sync_interval_ms", "SYNC_INTERVAL_MS")
	v.BindEnv("agent.engineering_step_interval_ms", "ENGINEERING_STEP_INTERVAL_MS")
	v.BindEnv("agent.max_steps", "MAX_STEPS")
	v.BindEnv("agent.token_budget", "TOKEN_BUDGET_PER_AGENT")
	v.BindEnv("swarm.agent_count", "AGENT_COUNT")
	v.BindEnv("pheromone.decay_rate", "PHEROMONE_DECAY")
	v.BindEnv("pheromone.critical_density", "CRITICAL_DENSITY")
	v.BindEnv("reasoning.provider", "REASONING_PROVIDER")
	v.BindEnv("reasoning.api_url", "REASONING_API_URL")
	v.BindEnv("reasoning.api_key", "REASONING_API_KEY")
	v.BindEnv("reasoning.model", "REASONING_MODEL")
	v.BindEnv("datasource.api_key", "DATA_API_KEY")
	v.BindEnv("da.proxy_url", "DA_PROXY_URL")
	v.BindEnv("da.update_local", "DA_UPDATE_LOCAL")
	v.BindEnv("aggregator.port", "AGGREGATOR_PORT")
	v.BindEnv("aggregator.agent_urls", "AGENT_URLS")
}

// NewConfigFromViper creates a validated configuration from a viper
// instance that has already read its file and environment.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	bindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with defaults only.
// Used by tests; the CLI builds its config through NewConfigFromViper.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.normalize()
	return &cfg
}

// normalize fills derived fields: the listen port, the agent name, the
// population count, and comma-separated URL lists arriving from flat env
// vars.
func (c *Config) normalize() {
	c.Agent.PeerURLs = splitURLList(c.Agent.PeerURLs)
	c.Aggregator.AgentURLs = splitURLList(c.Aggregator.AgentURLs)

	if c.Agent.Port == 0 {
		c.Agent.Port = 3001 + c.Agent.Index
	}
	if c.Agent.Name == "" {
		c.Agent.Name = fmt.Sprintf("agent-%d", c.Agent.Index)
	}
	if c.Swarm.AgentCount == 0 {
		c.Swarm.AgentCount = len(c.Agent.PeerURLs) + 1
	}
}

// splitURLList expands any comma-separated entries (viper delivers a flat
// env var as a single-element slice).
func splitURLList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, u := range strings.Split(entry, ",") {
			u = strings.TrimSpace(strings.TrimSuffix(u, "/"))
			if u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Pheromone.DecayRate <= 0 || c.Pheromone.DecayRate >= 1 {
		return fmt.Errorf("pheromone.decay_rate must be in (0,1)")
	}
	if c.Pheromone.CriticalDensity <= 0 || c.Pheromone.CriticalDensity >= 1 {
		return fmt.Errorf("pheromone.critical_density must be in (0,1)")
	}
	if c.Pheromone.SaturationPerAgent <= 0 {
		return fmt.Errorf("pheromone.saturation_per_agent must be positive")
	}
	if c.Agent.SyncIntervalMs <= 0 {
		return fmt.Errorf("agent.sync_interval_ms must be positive")
	}
	if c.Agent.TokenBudget < 0 {
		return fmt.Errorf("agent.token_budget must not be negative")
	}
	if c.Credits.ThresholdNormal <= c.Credits.ThresholdLow {
		return fmt.Errorf("credits.threshold_normal must exceed credits.threshold_low")
	}
	if c.Swarm.AgentCount <= 0 {
		return fmt.Errorf("swarm.agent_count must be positive")
	}
	return nil
}

package config

// ProviderType identifies the wire codec used to talk to a provider.
type ProviderType string

const (
	ProviderOpenAI       ProviderType = "OpenAI"
	ProviderAnthropic    ProviderType = "Anthropic"
	ProviderGoogle       ProviderType = "Google"
	ProviderDeepSeek     ProviderType = "DeepSeek"
	ProviderXAI          ProviderType = "XAI"
	ProviderCustomOpenAI ProviderType = "CustomOpenAI"
)

// Valid reports whether t is one of the known provider types.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderDeepSeek, ProviderXAI, ProviderCustomOpenAI:
		return true
	}
	return false
}

// ProviderTier is the commercial category of a provider. It is used for
// display and filtering, not for candidate ordering.
type ProviderTier string

const (
	TierSubscription  ProviderTier = "Subscription"
	TierCheap         ProviderTier = "Cheap"
	TierFree          ProviderTier = "Free"
	TierPayPerRequest ProviderTier = "PayPerRequest"
)

// Valid reports whether t is one of the known provider tiers.
func (t ProviderTier) Valid() bool {
	switch t {
	case TierSubscription, TierCheap, TierFree, TierPayPerRequest:
		return true
	}
	return false
}

// Model describes a single model offered by a provider.
// Costs are USD per million tokens.
type Model struct {
	ID                      string  `json:"id" yaml:"id" toml:"id"`
	Name                    string  `json:"name" yaml:"name" toml:"name"`
	InputCostPer1M          float64 `json:"input_cost_per_1m" yaml:"input_cost_per_1m" toml:"input_cost_per_1m"`
	OutputCostPer1M         float64 `json:"output_cost_per_1m" yaml:"output_cost_per_1m" toml:"output_cost_per_1m"`
	ContextWindow           int     `json:"context_window" yaml:"context_window" toml:"context_window"`
	SupportsVision          bool    `json:"supports_vision" yaml:"supports_vision" toml:"supports_vision"`
	SupportsFunctionCalling bool    `json:"supports_function_calling" yaml:"supports_function_calling" toml:"supports_function_calling"`
}

// Provider is a configured upstream endpoint and its model catalogue.
type Provider struct {
	ID       string       `json:"id" yaml:"id" toml:"id"`
	Name     string       `json:"name" yaml:"name" toml:"name"`
	Type     ProviderType `json:"provider_type" yaml:"provider_type" toml:"provider_type"`
	APIKey   string       `json:"api_key,omitempty" yaml:"api_key" toml:"api_key"`
	Endpoint string       `json:"endpoint,omitempty" yaml:"endpoint" toml:"endpoint"`
	Tier     ProviderTier `json:"tier" yaml:"tier" toml:"tier"`
	Enabled  bool         `json:"enabled" yaml:"enabled" toml:"enabled"`
	Priority int          `json:"priority" yaml:"priority" toml:"priority"`
	Models   []Model      `json:"models" yaml:"models" toml:"models"`
}

// HasModel reports whether the provider carries the given model id.
func (p *Provider) HasModel(modelID string) bool {
	for i := range p.Models {
		if p.Models[i].ID == modelID {
			return true
		}
	}
	return false
}

// Model returns the provider's model entry for the given id.
func (p *Provider) Model(modelID string) (*Model, bool) {
	for i := range p.Models {
		if p.Models[i].ID == modelID {
			return &p.Models[i], true
		}
	}
	return nil, false
}

// ModelMapping binds a complexity tier to a target model and, optionally,
// a specific provider. An empty ProviderID means any provider carrying
// the model is eligible.
type ModelMapping struct {
	ModelID    string `json:"model_id" yaml:"model_id" toml:"model_id"`
	ProviderID string `json:"provider_id,omitempty" yaml:"provider_id" toml:"provider_id"`
}

// Profile is a named routing profile: complexity tier → model mapping.
// Map keys are the wire tier names: simple, medium, complex, reasoning.
type Profile struct {
	Name         string                  `json:"name" yaml:"name" toml:"name"`
	Description  string                  `json:"description" yaml:"description" toml:"description"`
	ModelMapping map[string]ModelMapping `json:"model_mapping" yaml:"model_mapping" toml:"model_mapping"`
}

// TierBoundaries split the scorer's [0,1] value into the four tiers.
type TierBoundaries struct {
	SimpleUpper  float64 `json:"simple_upper" yaml:"simple_upper" toml:"simple_upper"`
	MediumUpper  float64 `json:"medium_upper" yaml:"medium_upper" toml:"medium_upper"`
	ComplexUpper float64 `json:"complex_upper" yaml:"complex_upper" toml:"complex_upper"`
}

// TokenThresholds configure the token_count feature's piecewise ramp.
type TokenThresholds struct {
	ShortUpper int `json:"short_upper" yaml:"short_upper" toml:"short_upper"`
	LongLower  int `json:"long_lower" yaml:"long_lower" toml:"long_lower"`
}

// ScorerConfig configures the complexity scorer.
type ScorerConfig struct {
	Enabled               bool               `json:"enabled" yaml:"enabled" toml:"enabled"`
	Weights               map[string]float64 `json:"weights" yaml:"weights" toml:"weights"`
	TierBoundaries        TierBoundaries     `json:"tier_boundaries" yaml:"tier_boundaries" toml:"tier_boundaries"`
	TokenThresholds       TokenThresholds    `json:"token_thresholds" yaml:"token_thresholds" toml:"token_thresholds"`
	ConfidenceSteepness   float64            `json:"confidence_steepness" yaml:"confidence_steepness" toml:"confidence_steepness"`
	ConfidenceThreshold   float64            `json:"confidence_threshold" yaml:"confidence_threshold" toml:"confidence_threshold"`
	MaxTokensForceComplex int                `json:"max_tokens_force_complex" yaml:"max_tokens_force_complex" toml:"max_tokens_force_complex"`
}

// CacheConfig configures the response cache. TTLSeconds == 0 disables
// expiration; negative values are rejected at load.
type CacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	TTLSeconds int64  `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
	CacheDir   string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
}

// Failover policies for non-retryable upstream client errors.
const (
	OnClientErrorContinue = "continue"
	OnClientErrorStrict   = "strict"
)

// RoutingConfig holds the failover loop's knobs.
type RoutingConfig struct {
	OnClientError         string `json:"on_client_error" yaml:"on_client_error" toml:"on_client_error"`
	AttemptTimeoutSeconds int    `json:"attempt_timeout_seconds" yaml:"attempt_timeout_seconds" toml:"attempt_timeout_seconds"`
	TotalTimeoutSeconds   int    `json:"total_timeout_seconds" yaml:"total_timeout_seconds" toml:"total_timeout_seconds"`
}

// SessionConfig configures session pinning.
type SessionConfig struct {
	Enabled    bool  `json:"enabled" yaml:"enabled" toml:"enabled"`
	TTLSeconds int64 `json:"ttl_seconds" yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// TelemetryConfig configures the telemetry store.
type TelemetryConfig struct {
	MaxLogs     int    `json:"max_logs" yaml:"max_logs" toml:"max_logs"`
	ArchivePath string `json:"archive_path,omitempty" yaml:"archive_path" toml:"archive_path"`
}

// SecurityConfig configures management-API auth. An empty AdminKeyHash
// leaves the management API open (local daemon default).
type SecurityConfig struct {
	AdminKeyHash  string `json:"admin_key_hash,omitempty" yaml:"admin_key_hash" toml:"admin_key_hash"`
	JWTSecret     string `json:"jwt_secret,omitempty" yaml:"jwt_secret" toml:"jwt_secret"`
	TokenTTLHours int    `json:"token_ttl_hours" yaml:"token_ttl_hours" toml:"token_ttl_hours"`
}

// JanitorConfig holds cron schedules for background maintenance.
type JanitorConfig struct {
	CacheSweep   string `json:"cache_sweep" yaml:"cache_sweep" toml:"cache_sweep"`
	SessionSweep string `json:"session_sweep" yaml:"session_sweep" toml:"session_sweep"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port     int    `json:"port" yaml:"port" toml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Config is the full configuration document. Loaded once at startup and
// replaced atomically on save; in-flight requests keep the snapshot they
// captured at entry.
type Config struct {
	Server        ServerConfig    `json:"server" yaml:"server" toml:"server"`
	ActiveProfile string          `json:"active_profile" yaml:"active_profile" toml:"active_profile"`
	Profiles      []Profile       `json:"profiles" yaml:"profiles" toml:"profiles"`
	Providers     []Provider      `json:"providers" yaml:"providers" toml:"providers"`
	Scorer        ScorerConfig    `json:"scorer" yaml:"scorer" toml:"scorer"`
	Cache         CacheConfig     `json:"cache" yaml:"cache" toml:"cache"`
	Routing       RoutingConfig   `json:"routing" yaml:"routing" toml:"routing"`
	Session       SessionConfig   `json:"session" yaml:"session" toml:"session"`
	Telemetry     TelemetryConfig `json:"telemetry" yaml:"telemetry" toml:"telemetry"`
	Security      SecurityConfig  `json:"security" yaml:"security" toml:"security"`
	Janitor       JanitorConfig   `json:"janitor" yaml:"janitor" toml:"janitor"`
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (*Profile, bool) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], true
		}
	}
	return nil, false
}

// Active returns the active profile. Validation guarantees it exists.
func (c *Config) Active() *Profile {
	p, _ := c.Profile(c.ActiveProfile)
	return p
}

// DefaultConfig returns a sensible default configuration with the stock
// provider catalogue and three routing profiles.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8420,
			LogLevel: "info",
		},
		ActiveProfile: "balanced",
		Profiles: []Profile{
			{
				Name:        "balanced",
				Description: "Balanced cost and quality",
				ModelMapping: map[string]ModelMapping{
					"simple":    {ModelID: "deepseek-chat"},
					"medium":    {ModelID: "gpt-4-turbo"},
					"complex":   {ModelID: "claude-3-opus"},
					"reasoning": {ModelID: "claude-3-opus"},
				},
			},
			{
				Name:        "eco",
				Description: "Focus on low cost",
				ModelMapping: map[string]ModelMapping{
					"simple":  {ModelID: "deepseek-chat"},
					"medium":  {ModelID: "deepseek-chat"},
					"complex": {ModelID: "gpt-4-turbo"},
				},
			},
			{
				Name:         "premium",
				Description:  "Focus on best quality",
				ModelMapping: map[string]ModelMapping{},
			},
		},
		Providers: []Provider{
			{
				ID:       "openai",
				Name:     "OpenAI",
				Type:     ProviderOpenAI,
				Endpoint: "https://api.openai.com/v1/chat/completions",
				Tier:     TierSubscription,
				Enabled:  true,
				Priority: 1,
				Models: []Model{
					{
						ID:                      "gpt-4-turbo",
						Name:                    "GPT-4 Turbo",
						InputCostPer1M:          10.0,
						OutputCostPer1M:         30.0,
						ContextWindow:           128000,
						SupportsVision:          true,
						SupportsFunctionCalling: true,
					},
				},
			},
			{
				ID:       "anthropic",
				Name:     "Anthropic",
				Type:     ProviderAnthropic,
				Endpoint: "https://api.anthropic.com/v1/messages",
				Tier:     TierSubscription,
				Enabled:  true,
				Priority: 1,
				Models: []Model{
					{
						ID:                      "claude-3-opus",
						Name:                    "Claude 3 Opus",
						InputCostPer1M:          15.0,
						OutputCostPer1M:         75.0,
						ContextWindow:           200000,
						SupportsVision:          true,
						SupportsFunctionCalling: true,
					},
				},
			},
			{
				ID:       "deepseek",
				Name:     "DeepSeek",
				Type:     ProviderDeepSeek,
				Endpoint: "https://api.deepseek.com/chat/completions",
				Tier:     TierCheap,
				Enabled:  true,
				Priority: 1,
				Models: []Model{
					{
						ID:                      "deepseek-chat",
						Name:                    "DeepSeek Chat",
						InputCostPer1M:          0.14,
						OutputCostPer1M:         0.28,
						ContextWindow:           128000,
						SupportsFunctionCalling: true,
					},
				},
			},
		},
		Scorer:    DefaultScorerConfig(),
		Cache:     CacheConfig{Enabled: false, TTLSeconds: 3600, CacheDir: "cache"},
		Routing:   RoutingConfig{OnClientError: OnClientErrorContinue, AttemptTimeoutSeconds: 120, TotalTimeoutSeconds: 300},
		Session:   SessionConfig{Enabled: false, TTLSeconds: 1800},
		Telemetry: TelemetryConfig{MaxLogs: 1000},
		Security:  SecurityConfig{TokenTTLHours: 24},
		Janitor:   JanitorConfig{CacheSweep: "*/10 * * * *", SessionSweep: "*/10 * * * *"},
	}
}

// DefaultScorerConfig returns the stock scorer tuning.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Enabled: true,
		Weights: map[string]float64{
			"token_count":          0.08,
			"code_presence":        0.15,
			"reasoning_markers":    0.18,
			"technical_terms":      0.10,
			"creative_markers":     0.05,
			"simple_indicators":    0.02,
			"multi_step_patterns":  0.12,
			"question_complexity":  0.05,
			"imperative_verbs":     0.03,
			"constraint_count":     0.04,
			"output_format":        0.03,
			"reference_complexity": 0.02,
			"negation_complexity":  0.01,
			"domain_specificity":   0.02,
			"agentic_task":         0.04,
		},
		TierBoundaries:        TierBoundaries{SimpleUpper: 0.05, MediumUpper: 0.3, ComplexUpper: 0.5},
		TokenThresholds:       TokenThresholds{ShortUpper: 500, LongLower: 3000},
		ConfidenceSteepness:   12.0,
		ConfidenceThreshold:   0.7,
		MaxTokensForceComplex: 100000,
	}
}

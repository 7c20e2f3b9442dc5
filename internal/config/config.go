// Package config assembles the daemon's runtime configuration: server
// bind address, storage bucket, background store tuning, logging, and the
// modelconfig.RuntimeConfig + provider credentials internal/llmprovider
// needs to build a client.
//
// Grounded on blackcoderx-falcon's cmd/falcon/main.go viper+godotenv
// combination: a .env file (if present) is loaded first, then viper reads
// from the environment (with a THREATDESIGNER_ prefix) and an optional
// config file, and the result is validated with go-playground/validator.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/clcummin/threat-designer/internal/logging"
	"github.com/clcummin/threat-designer/internal/modelconfig"
)

// Config is the fully assembled, validated configuration for
// cmd/threatdesignerd.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Logging logging.Config
	Model   ModelConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         string `mapstructure:"port" validate:"required"`
	UploadBucket string `mapstructure:"upload_bucket" validate:"required"`
}

// StoreConfig mirrors the tunables of store.Options that make sense to
// expose at the process boundary.
type StoreConfig struct {
	MaxJobs         int           `mapstructure:"max_jobs"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	TerminalTTL     time.Duration `mapstructure:"terminal_ttl"`
}

// ModelConfig is the raw, file/env-shaped provider configuration before it
// is turned into a modelconfig.RuntimeConfig plus credentials.
type ModelConfig struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=bedrock openai"`

	// Bedrock-class credentials.
	AWSAccessKey    string `mapstructure:"aws_access_key"`
	AWSSecretKey    string `mapstructure:"aws_secret_key"`
	AWSSessionToken string `mapstructure:"aws_session_token"`
	AWSRegion       string `mapstructure:"aws_region"`

	// OpenAI-class credentials.
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	// StageModel maps a stage name (matching modelconfig.Stage) to the
	// model id used for that stage; a "struct" entry is the fallback.
	StageModel map[string]string `mapstructure:"stage_model"`
	// StageMaxTokens optionally overrides the default max_tokens per stage;
	// unset stages fall back to DefaultMaxTokens.
	StageMaxTokens   map[string]int `mapstructure:"stage_max_tokens"`
	DefaultMaxTokens int            `mapstructure:"default_max_tokens"`

	// StageReasoningBudgets maps a stage name to reasoning level ("1", "2",
	// "3") to a Bedrock/Anthropic thinking-token budget. Only consulted
	// when Provider is "bedrock".
	StageReasoningBudgets map[string]map[string]int `mapstructure:"stage_reasoning_budgets"`
	// StageReasoningEfforts maps a stage name to reasoning level ("1", "2",
	// "3") to an OpenAI effort tier name. Only consulted when Provider is
	// "openai".
	StageReasoningEfforts map[string]map[string]string `mapstructure:"stage_reasoning_efforts"`
}

// DefaultMaxTokens is used when a stage has no explicit override and
// ModelConfig.DefaultMaxTokens is zero.
const DefaultMaxTokens = 4096

var cfgValidator = validator.New()

// Load reads a .env file (if present, tolerating its absence), then layers
// THREATDESIGNER_-prefixed environment variables and an optional config
// file (name "threatdesigner", searched in "." and "/etc/threatdesigner")
// on top, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("threatdesigner")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/threatdesigner")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	// Every leaf key must have a registered default (even an empty one) for
	// AutomaticEnv to intercept it during Unmarshal — viper only resolves
	// env vars for keys it already knows about.
	v.SetEnvPrefix("THREATDESIGNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfgValidator.Struct(cfg.Server); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfgValidator.Struct(cfg.Model); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every leaf key with a default value (the empty
// string where there is no sensible default), so AutomaticEnv can
// intercept it during Unmarshal even when neither a config file nor a
// prior v.Set has touched it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.upload_bucket", "")

	v.SetDefault("store.max_jobs", 0)
	v.SetDefault("store.cleanup_interval", time.Duration(0))
	v.SetDefault("store.terminal_ttl", time.Duration(0))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("model.provider", "")
	v.SetDefault("model.aws_access_key", "")
	v.SetDefault("model.aws_secret_key", "")
	v.SetDefault("model.aws_session_token", "")
	v.SetDefault("model.aws_region", "")
	v.SetDefault("model.openai_api_key", "")
	v.SetDefault("model.stage_model", map[string]string{})
	v.SetDefault("model.stage_max_tokens", map[string]int{})
	v.SetDefault("model.default_max_tokens", DefaultMaxTokens)
	v.SetDefault("model.stage_reasoning_budgets", map[string]map[string]int{})
	v.SetDefault("model.stage_reasoning_efforts", map[string]map[string]string{})
}

// parseReasoningLevel parses a config-file/env reasoning-level key ("1",
// "2", "3") into a modelconfig.ReasoningLevel.
func parseReasoningLevel(s string) (modelconfig.ReasoningLevel, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid reasoning level %q: %w", s, err)
	}
	return modelconfig.ReasoningLevel(n), nil
}

func isNotExist(err error) bool {
	// godotenv.Load wraps the plain *os.PathError from os.Open; a string
	// check keeps this package from importing "os" and "errors" just for
	// one predicate.
	return strings.Contains(err.Error(), "no such file or directory")
}

// RuntimeConfig turns m into a validated modelconfig.RuntimeConfig, filling
// every required stage from StageModel (falling back to the "struct"
// entry), every max_tokens from StageMaxTokens (falling back to
// DefaultMaxTokens), and, when present, the stage's reasoning budget
// (Bedrock) or effort (OpenAI) table so the client-supplied reasoning
// level actually reaches Factory.Resolve's per-stage lookup.
func (m ModelConfig) RuntimeConfig() (modelconfig.RuntimeConfig, error) {
	provider := modelconfig.ProviderKind(m.Provider)

	stages := make(map[modelconfig.Stage]modelconfig.StageModelConfig, len(modelconfig.RequiredStages))
	for _, stage := range modelconfig.RequiredStages {
		modelID := m.StageModel[string(stage)]
		if modelID == "" {
			modelID = m.StageModel["struct"]
		}
		if modelID == "" {
			return modelconfig.RuntimeConfig{}, fmt.Errorf("config: no model id configured for stage %q (or fallback %q)", stage, "struct")
		}

		maxTokens := m.StageMaxTokens[string(stage)]
		if maxTokens <= 0 {
			maxTokens = m.DefaultMaxTokens
		}
		if maxTokens <= 0 {
			maxTokens = DefaultMaxTokens
		}

		stageCfg := modelconfig.StageModelConfig{ModelID: modelID, MaxTokens: maxTokens}
		switch provider {
		case modelconfig.ProviderBedrock:
			if levels, ok := m.StageReasoningBudgets[string(stage)]; ok {
				budgets := make(modelconfig.BedrockBudgets, len(levels))
				for levelStr, tokens := range levels {
					level, err := parseReasoningLevel(levelStr)
					if err != nil {
						return modelconfig.RuntimeConfig{}, fmt.Errorf("config: stage %q reasoning budget: %w", stage, err)
					}
					budgets[level] = tokens
				}
				stageCfg.ReasoningBudgets = budgets
			}
		case modelconfig.ProviderOpenAI:
			if levels, ok := m.StageReasoningEfforts[string(stage)]; ok {
				efforts := make(modelconfig.OpenAIEfforts, len(levels))
				for levelStr, effort := range levels {
					level, err := parseReasoningLevel(levelStr)
					if err != nil {
						return modelconfig.RuntimeConfig{}, fmt.Errorf("config: stage %q reasoning effort: %w", stage, err)
					}
					efforts[level] = effort
				}
				stageCfg.ReasoningEfforts = efforts
			}
		}

		stages[stage] = stageCfg
	}

	rc := modelconfig.RuntimeConfig{Provider: provider, Stages: stages}
	if err := rc.Validate(); err != nil {
		return modelconfig.RuntimeConfig{}, err
	}
	return rc, nil
}

// BedrockCredentials extracts and validates m's Bedrock-class credentials.
func (m ModelConfig) BedrockCredentials() (modelconfig.BedrockCredentials, error) {
	creds := modelconfig.BedrockCredentials{
		AccessKey:    m.AWSAccessKey,
		SecretKey:    m.AWSSecretKey,
		SessionToken: m.AWSSessionToken,
		Region:       m.AWSRegion,
	}
	if err := modelconfig.ValidateBedrockCredentials(creds); err != nil {
		return modelconfig.BedrockCredentials{}, err
	}
	return creds, nil
}

// OpenAICredentials extracts and validates m's OpenAI-class credentials.
func (m ModelConfig) OpenAICredentials() (modelconfig.OpenAICredentials, error) {
	creds := modelconfig.OpenAICredentials{APIKey: m.OpenAIAPIKey}
	if err := modelconfig.ValidateOpenAICredentials(creds); err != nil {
		return modelconfig.OpenAICredentials{}, err
	}
	return creds, nil
}

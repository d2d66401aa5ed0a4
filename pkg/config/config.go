// Package config provides centralized configuration management for the agent
// runtime.
//
// Architecture:
//
//  1. SEPARATION OF CONCERNS
//     - User-configurable settings live in the Config struct and persist to
//       <projectDir>/.agentcore/config.json
//     - Static data (model pricing, provider mappings) is hardcoded in
//       KnownModels and never written to disk
//     - Runtime state (session ID) is never persisted
//
//  2. GLOBAL SINGLETON
//     - One process-wide config guarded by an RWMutex
//     - GetConfig returns BY VALUE so callers cannot mutate shared state
//     - All updates go through Update* functions that persist atomically
//
//  3. VALIDATION FIRST
//     - LoadConfig validates before installing the singleton; a config file
//       that exists but cannot be parsed is a fatal error rather than a
//       silent overwrite of user changes
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentcore/pkg/logx"
)

// Global configuration state.
//
//nolint:gochecknoglobals // Intentional global config singleton with mutex protection
var (
	config     *Config
	projectDir string
	logger     *logx.Logger
	mu         sync.RWMutex
)

// getLogger returns the package logger, creating it on first use.
func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config package logger.
func LogInfo(format string, args ...any) {
	getLogger().Info(format, args...)
}

// ModelInfo contains provider mapping and cost information for a model.
type ModelInfo struct {
	Provider         string  // Provider name: "anthropic", "openai", "google", "ollama"
	InputCPM         float64 // Cost per million input tokens in USD
	OutputCPM        float64 // Cost per million output tokens in USD
	MaxContextTokens int     // Maximum context window size
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels maps model names to their provider and cost information.
// This is static data - new models require a code change, which is
// intentional: pricing belongs in the binary, not in user config.
//
//nolint:gochecknoglobals // Static model registry
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnet3: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.00,
		OutputCPM:        15.00,
		MaxContextTokens: 200000,
		MaxOutputTokens:  64000,
	},
	ModelClaudeSonnet4: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.00,
		OutputCPM:        15.00,
		MaxContextTokens: 200000,
		MaxOutputTokens:  64000,
	},
	ModelClaudeSonnet4Old: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.00,
		OutputCPM:        15.00,
		MaxContextTokens: 200000,
		MaxOutputTokens:  64000,
	},
	ModelClaudeOpus41: {
		Provider:         ProviderAnthropic,
		InputCPM:         15.00,
		OutputCPM:        75.00,
		MaxContextTokens: 200000,
		MaxOutputTokens:  32000,
	},
	ModelClaudeOpus45: {
		Provider:         ProviderAnthropic,
		InputCPM:         5.00,
		OutputCPM:        25.00,
		MaxContextTokens: 200000,
		MaxOutputTokens:  64000,
	},
	ModelGPT4o: {
		Provider:         ProviderOpenAI,
		InputCPM:         2.50,
		OutputCPM:        10.00,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelOpenAIO3Mini: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.10,
		OutputCPM:        4.40,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},
	ModelOpenAIO3: {
		Provider:         ProviderOpenAI,
		InputCPM:         2.00,
		OutputCPM:        8.00,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},
	ModelOpenAIO4Mini: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.10,
		OutputCPM:        4.40,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},
	ModelGPT5: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.25,
		OutputCPM:        10.00,
		MaxContextTokens: 400000,
		MaxOutputTokens:  128000,
	},
	ModelGemini2Flash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  8192,
	},
	ModelGemini25Flash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  65536,
	},
	ModelGemini3Pro: {
		Provider:         ProviderGoogle,
		InputCPM:         2.00,
		OutputCPM:        12.00,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern defines a pattern for matching model names to providers.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns maps model name prefixes to providers for models not in
// KnownModels. Checked in order, so more specific prefixes come first.
//
//nolint:gochecknoglobals // Static provider detection patterns
var ProviderPatterns = []ProviderPattern{
	{Prefix: "claude", Provider: ProviderAnthropic},
	{Prefix: "gpt", Provider: ProviderOpenAI},
	{Prefix: "o1", Provider: ProviderOpenAI},
	{Prefix: "o3", Provider: ProviderOpenAI},
	{Prefix: "o4", Provider: ProviderOpenAI},
	{Prefix: "gemini", Provider: ProviderGoogle},
	{Prefix: "ollama:", Provider: ProviderOllama},
	{Prefix: "phi", Provider: ProviderOllama},
	{Prefix: "llama", Provider: ProviderOllama},
	{Prefix: "qwen", Provider: ProviderOllama},
	{Prefix: "mistral", Provider: ProviderOllama},
	{Prefix: "codellama", Provider: ProviderOllama},
	{Prefix: "deepseek", Provider: ProviderOllama},
}

// GetModelProvider returns the provider for a given model name.
// Checks KnownModels first, then falls back to prefix patterns.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	lowerModel := strings.ToLower(modelName)
	for _, pattern := range ProviderPatterns {
		if strings.HasPrefix(lowerModel, pattern.Prefix) {
			return pattern.Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': not in KnownModels and no provider pattern matches", modelName)
}

// GetModelInfo returns model information, with conservative defaults for
// models that match a provider pattern but are not in KnownModels.
func GetModelInfo(modelName string) (ModelInfo, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info, nil
	}

	provider, err := GetModelProvider(modelName)
	if err != nil {
		return ModelInfo{}, err
	}

	// Unknown but provider-matched model: assume a small context window and
	// zero cost so new models work without pricing data.
	return ModelInfo{
		Provider:         provider,
		InputCPM:         0,
		OutputCPM:        0,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, nil
}

// RetryConfig defines retry policy settings for model and tool calls.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"` // Maximum attempts including the initial one
	BaseDelay   time.Duration `json:"base_delay"`   // Delay after the first failed attempt
	MaxDelay    time.Duration `json:"max_delay"`    // Cap on the computed backoff
	Multiplier  float64       `json:"multiplier"`   // Exponential backoff multiplier
	Jitter      bool          `json:"jitter"`       // Add bounded random jitter between retries
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`        // Whether metrics collection is enabled
	Exporter      string `json:"exporter"`       // Metrics exporter type ("prometheus", "noop")
	Namespace     string `json:"namespace"`      // Metrics namespace for grouping
	PrometheusURL string `json:"prometheus_url"` // Prometheus server URL for querying metrics
}

// DebugConfig defines configuration for debug logging.
type DebugConfig struct {
	LLMMessages bool `json:"llm_messages"` // Log full LLM message payloads (default: false)
}

// LogsConfig contains log file management configuration.
type LogsConfig struct {
	RotationCount int `json:"rotation_count"` // Number of old log files to keep (default: 4)
}

// AgentConfig defines the model and execution limits for the agent loop.
type AgentConfig struct {
	Model                string        `json:"model"`                  // Model name (mapped to provider via KnownModels)
	Strategy             string        `json:"strategy"`               // Coordination strategy: sequential, parallel, smart, batched
	MaxSteps             int           `json:"max_steps"`              // Step budget per execution
	MaxConcurrentActions int           `json:"max_concurrent_actions"` // Wave width for parallel/smart coordination
	BatchSize            int           `json:"batch_size"`             // Chunk size for batched coordination
	StepTimeout          time.Duration `json:"step_timeout"`           // Wall-clock limit per step (0 = none)
	ExecutionTimeout     time.Duration `json:"execution_timeout"`      // Wall-clock limit per execution (0 = none)
	LLMTimeout           time.Duration `json:"llm_timeout"`            // Per-request timeout for model calls
	ContinueOnError      bool          `json:"continue_on_error"`      // Keep executing actions after a failure
	ParallelToolCalls    bool          `json:"parallel_tool_calls"`    // Selects parallel vs sequential as the non-smart default
	Retry                RetryConfig   `json:"retry"`                  // Retry policy settings
	Metrics              MetricsConfig `json:"metrics"`                // Metrics collection configuration
}

// ExecutorConfig defines how and where tools execute.
type ExecutorConfig struct {
	Type            string   `json:"type"`                    // Executor backend: "local" or "docker"
	Image           string   `json:"image,omitempty"`         // Container image for the docker executor
	WorkspacePath   string   `json:"workspace_path"`          // Working directory for tool execution
	ReadOnly        bool     `json:"read_only"`               // Reject mutating tools and mount read-only
	NetworkDisabled bool     `json:"network_disabled"`        // Disable network access for sandboxed commands
	AllowedTools    []string `json:"allowed_tools,omitempty"` // Tool allow-list (nil = default tool set)
	SandboxTools    []string `json:"sandbox_tools,omitempty"` // Tools routed through the sandbox executor
	CPUs            string   `json:"cpus"`                    // Docker --cpus limit
	Memory          string   `json:"memory"`                  // Docker --memory limit
	PIDs            int64    `json:"pids"`                    // Docker --pids-limit setting
}

// ProjectInfo contains basic project metadata.
type ProjectInfo struct {
	Name string `json:"name"` // Project name
}

// All constants bundled together for easy maintenance.
const (
	// Default execution limits. MaxSteps bounds runaway loops; the step
	// counter advances only after a step reaches a terminal state.
	DefaultMaxSteps             = 50
	DefaultMaxConcurrentActions = 5
	DefaultBatchSize            = 3
	DefaultStepTimeout          = 5 * time.Minute
	DefaultExecutionTimeout     = 30 * time.Minute
	DefaultLLMTimeout           = 3 * time.Minute // Generous for long reasoning models

	// Retry behavior defaults.
	DefaultRetryAttempts   = 3
	RetryBackoffMultiplier = 2.0

	// Graceful shutdown.
	GracefulShutdownTimeoutSec = 30

	// Coordination strategy names.
	StrategySequential = "sequential"
	StrategyParallel   = "parallel"
	StrategySmart      = "smart"
	StrategyBatched    = "batched"

	// Executor backend names.
	ExecutorLocal  = "local"
	ExecutorDocker = "docker"

	// Docker runtime defaults (applied when not specified in config).
	DefaultSandboxImage  = "ubuntu:22.04"
	DefaultDockerCPUs    = "2"
	DefaultDockerMemory  = "2g"
	DefaultDockerPIDs    = int64(1024)
	DefaultWorkspacePath = "/workspace"

	// Model name constants.
	ModelClaudeSonnet4      = "claude-sonnet-4-5"
	ModelClaudeSonnet4Old   = "claude-sonnet-4-20250514"
	ModelClaudeSonnet3      = "claude-3-7-sonnet-20250219"
	ModelClaudeSonnetLatest = ModelClaudeSonnet4
	ModelClaudeOpus41       = "claude-opus-4-1"
	ModelClaudeOpus45       = "claude-opus-4-5"
	ModelClaudeOpusLatest   = ModelClaudeOpus45
	ModelOpenAIO3           = "o3"
	ModelOpenAIO3Mini       = "o3-mini"
	ModelOpenAIO4Mini       = "o4-mini"
	ModelGPT4o              = "gpt-4o"
	ModelGPT5               = "gpt-5"
	ModelGemini2Flash       = "gemini-2.0-flash"
	ModelGemini25Flash      = "gemini-2.5-flash"
	ModelGemini3Pro         = "gemini-3-pro-preview"
	DefaultModel            = ModelClaudeSonnet4

	// Project config constants.
	ProjectConfigFilename = "config.json"
	ProjectConfigDir      = ".agentcore"
	DatabaseFilename      = "agentcore.db"
	SchemaVersion         = "1.0"

	// Provider constants.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// API key environment variable names.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	// Default Ollama host when OLLAMA_HOST is unset.
	DefaultOllamaHost = "http://localhost:11434"
)

// Config represents the main configuration for the agent runtime.
//
// IMPORTANT: This structure contains only user-configurable project settings.
// Model pricing and provider mappings are hardcoded in KnownModels.
//
// Schema versioning prevents breaking changes - increment SchemaVersion for
// any structural changes.
type Config struct {
	SchemaVersion string `json:"schema_version"` // MUST increment for breaking changes

	Project  *ProjectInfo    `json:"project"`  // Basic project metadata
	Agent    *AgentConfig    `json:"agent"`    // Model selection and execution limits
	Executor *ExecutorConfig `json:"executor"` // Tool execution backend settings
	Logs     *LogsConfig     `json:"logs"`     // Log file management settings
	Debug    *DebugConfig    `json:"debug"`    // Debug settings

	// === RUNTIME-ONLY STATE (NOT PERSISTED) ===
	SessionID string `json:"-"` // Current session ID (generated at startup)
}

// GetProjectConfigDir returns the path to the .agentcore directory.
// Must call LoadConfig first to initialize projectDir.
func GetProjectConfigDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return filepath.Join(projectDir, ProjectConfigDir), nil
}

// GetProjectDir returns the current project directory.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetWorkspacePath returns the working directory for tool execution.
// Falls back to the default when config is not loaded or unset.
func GetWorkspacePath() string {
	cfg, err := GetConfig()
	if err != nil {
		return DefaultWorkspacePath
	}
	if cfg.Executor != nil && cfg.Executor.WorkspacePath != "" {
		return cfg.Executor.WorkspacePath
	}
	return DefaultWorkspacePath
}

// GetDebugLLMMessages returns whether debug logging of LLM message payloads
// is enabled. Returns false when config is not loaded.
func GetDebugLLMMessages() bool {
	cfg, err := GetConfig()
	if err != nil {
		return false
	}
	if cfg.Debug != nil {
		return cfg.Debug.LLMMessages
	}
	return false
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// This prevents external mutation - all updates must go through Update*
// functions. Must call LoadConfig first to initialize the global config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset. This bypasses normal initialization and should only be
// used in tests.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// LoadConfig loads the entire configuration from
// <projectDir>/.agentcore/config.json into the global singleton.
//
// Behavior:
//   - Missing file: creates a new config with defaults and saves it
//   - Existing file: loads and validates, applying defaults for missing fields
//   - Unparseable file: returns an error to avoid overwriting user changes
//
// This should typically be called once at application startup.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	// Store project directory - immutable after this point
	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		getLogger().Info("📝 Config file not found, creating new config at %s", configPath)
		config = createDefaultConfig()

		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigLocked(); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		getLogger().Info("✅ New config file created and validated")
		return nil
	}

	getLogger().Info("📝 Loading config from %s", configPath)
	loadedConfig, err := loadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	applyDefaults(loadedConfig)
	if err := validateConfig(loadedConfig); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = loadedConfig

	// Save config back to disk with applied defaults so old configs pick up
	// new fields.
	if err := saveConfigLocked(); err != nil {
		return fmt.Errorf("failed to save config with applied defaults: %w", err)
	}

	getLogger().Info("✅ Config loaded and validated successfully")
	return nil
}

// UpdateAgent updates the agent configuration and persists to disk.
func UpdateAgent(agent *AgentConfig) error {
	mu.Lock()
	defer mu.Unlock()

	oldAgent := config.Agent
	config.Agent = agent

	if _, err := GetModelProvider(agent.Model); err != nil {
		config.Agent = oldAgent
		return fmt.Errorf("invalid model: %w", err)
	}

	return saveConfigLocked()
}

// UpdateExecutor updates the executor configuration and persists to disk.
func UpdateExecutor(executor *ExecutorConfig) error {
	mu.Lock()
	defer mu.Unlock()

	config.Executor = executor
	applyExecutorDefaults(config.Executor)
	return saveConfigLocked()
}

// UpdateProject updates the project information and persists to disk.
func UpdateProject(project *ProjectInfo) error {
	mu.Lock()
	defer mu.Unlock()

	config.Project = project
	return saveConfigLocked()
}

// loadConfigFromFile loads a config file and parses JSON.
func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", configPath, err)
	}

	return &cfg, nil
}

// createDefaultConfig creates a new config with sensible defaults.
func createDefaultConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,

		Project: &ProjectInfo{},
		Agent: &AgentConfig{
			Model:                DefaultModel,
			Strategy:             StrategySmart,
			MaxSteps:             DefaultMaxSteps,
			MaxConcurrentActions: DefaultMaxConcurrentActions,
			BatchSize:            DefaultBatchSize,
			StepTimeout:          DefaultStepTimeout,
			ExecutionTimeout:     DefaultExecutionTimeout,
			LLMTimeout:           DefaultLLMTimeout,
			ContinueOnError:      true,
			ParallelToolCalls:    true,
			Retry: RetryConfig{
				MaxAttempts: DefaultRetryAttempts,
				BaseDelay:   1 * time.Second,
				MaxDelay:    30 * time.Second,
				Multiplier:  RetryBackoffMultiplier,
				Jitter:      true,
			},
			Metrics: MetricsConfig{
				Enabled:       true,
				Exporter:      "prometheus",
				Namespace:     "agentcore",
				PrometheusURL: "",
			},
		},
		Executor: &ExecutorConfig{
			Type:          ExecutorLocal,
			Image:         DefaultSandboxImage,
			WorkspacePath: DefaultWorkspacePath,
			CPUs:          DefaultDockerCPUs,
			Memory:        DefaultDockerMemory,
			PIDs:          DefaultDockerPIDs,
		},
		Logs: &LogsConfig{
			RotationCount: 4,
		},
		Debug: &DebugConfig{
			LLMMessages: false,
		},
	}
}

// saveConfigLocked saves config to disk using the stored project directory.
// Must be called with the mutex locked.
func saveConfigLocked() error {
	if projectDir == "" {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Project == nil {
		cfg.Project = &ProjectInfo{}
	}
	if cfg.Agent == nil {
		cfg.Agent = &AgentConfig{}
	}
	if cfg.Executor == nil {
		cfg.Executor = &ExecutorConfig{}
	}
	if cfg.Logs == nil {
		cfg.Logs = &LogsConfig{RotationCount: 4}
	}
	if cfg.Debug == nil {
		cfg.Debug = &DebugConfig{}
	}

	applyAgentDefaults(cfg.Agent)
	applyExecutorDefaults(cfg.Executor)

	if cfg.Logs.RotationCount <= 0 {
		cfg.Logs.RotationCount = 4
	}
}

func applyAgentDefaults(agent *AgentConfig) {
	if agent.Model == "" {
		agent.Model = DefaultModel
	}
	if agent.Strategy == "" {
		agent.Strategy = StrategySmart
	}
	if agent.MaxSteps <= 0 {
		agent.MaxSteps = DefaultMaxSteps
	}
	if agent.MaxConcurrentActions <= 0 {
		agent.MaxConcurrentActions = DefaultMaxConcurrentActions
	}
	if agent.BatchSize <= 0 {
		agent.BatchSize = DefaultBatchSize
	}
	if agent.StepTimeout < 0 {
		agent.StepTimeout = DefaultStepTimeout
	}
	if agent.ExecutionTimeout < 0 {
		agent.ExecutionTimeout = DefaultExecutionTimeout
	}
	if agent.LLMTimeout <= 0 {
		agent.LLMTimeout = DefaultLLMTimeout
	}
	if agent.Retry.MaxAttempts <= 0 {
		agent.Retry.MaxAttempts = DefaultRetryAttempts
	}
	if agent.Retry.BaseDelay <= 0 {
		agent.Retry.BaseDelay = 1 * time.Second
	}
	if agent.Retry.MaxDelay <= 0 {
		agent.Retry.MaxDelay = 30 * time.Second
	}
	if agent.Retry.Multiplier <= 0 {
		agent.Retry.Multiplier = RetryBackoffMultiplier
	}
}

func applyExecutorDefaults(executor *ExecutorConfig) {
	if executor.Type == "" {
		executor.Type = ExecutorLocal
	}
	if executor.Image == "" {
		executor.Image = DefaultSandboxImage
	}
	if executor.WorkspacePath == "" {
		executor.WorkspacePath = DefaultWorkspacePath
	}
	if executor.CPUs == "" {
		executor.CPUs = DefaultDockerCPUs
	}
	if executor.Memory == "" {
		executor.Memory = DefaultDockerMemory
	}
	if executor.PIDs == 0 {
		executor.PIDs = DefaultDockerPIDs
	}
}

// validateConfig checks that the configuration is internally consistent.
func validateConfig(cfg *Config) error {
	if cfg.Agent == nil {
		return fmt.Errorf("agent config is required")
	}

	if _, err := GetModelProvider(cfg.Agent.Model); err != nil {
		return fmt.Errorf("agent model '%s': %w", cfg.Agent.Model, err)
	}

	switch cfg.Agent.Strategy {
	case StrategySequential, StrategyParallel, StrategySmart, StrategyBatched:
	default:
		return fmt.Errorf("strategy must be one of %s, %s, %s, %s; got '%s'",
			StrategySequential, StrategyParallel, StrategySmart, StrategyBatched, cfg.Agent.Strategy)
	}

	if cfg.Agent.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive")
	}
	if cfg.Agent.MaxConcurrentActions <= 0 {
		return fmt.Errorf("max_concurrent_actions must be positive")
	}
	if cfg.Agent.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}

	if cfg.Executor != nil {
		switch cfg.Executor.Type {
		case ExecutorLocal, ExecutorDocker:
		default:
			return fmt.Errorf("executor type must be '%s' or '%s', got '%s'",
				ExecutorLocal, ExecutorDocker, cfg.Executor.Type)
		}
		if cfg.Executor.Type == ExecutorDocker && cfg.Executor.Image == "" {
			return fmt.Errorf("executor image is required for the docker executor")
		}
	}

	return nil
}

// CalculateCost calculates the cost in USD for a given model and token usage.
// Uses separate input and output token pricing from the KnownModels registry.
// Returns 0 cost for unknown models (allows using new models without pricing
// data).
func CalculateCost(modelName string, promptTokens, completionTokens int) (float64, error) {
	if info, exists := KnownModels[modelName]; exists {
		inputCost := (float64(promptTokens) / 1_000_000.0) * info.InputCPM
		outputCost := (float64(completionTokens) / 1_000_000.0) * info.OutputCPM
		return inputCost + outputCost, nil
	}

	// Unknown models cost nothing rather than failing - supports new models
	// without pricing data.
	return 0.0, nil
}

// GetAPIKey returns the API key for a given provider.
// Checks the secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		// Ollama doesn't use API keys - return the host URL instead.
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = DefaultOllamaHost
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}

	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}

// GenerateSessionID generates a new session ID for the current run.
// Must be called after LoadConfig and before any database operations.
func GenerateSessionID() error {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	// Timestamp-based IDs keep logs and debugging readable while still
	// being unique per run.
	sessionID := fmt.Sprintf("%d", time.Now().UnixNano())
	config.SessionID = sessionID

	getLogger().Info("Generated session ID: %s", sessionID)
	return nil
}

// SetSessionID sets a specific session ID (used for resume mode).
func SetSessionID(sessionID string) error {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	config.SessionID = sessionID
	getLogger().Info("Restored session ID: %s", sessionID)
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetModelProvider_KnownModels(t *testing.T) {
	tests := []struct {
		model    string
		provider string
	}{
		{ModelClaudeSonnet4, ProviderAnthropic},
		{ModelClaudeOpus45, ProviderAnthropic},
		{ModelGPT5, ProviderOpenAI},
		{ModelOpenAIO3, ProviderOpenAI},
		{ModelGemini3Pro, ProviderGoogle},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := GetModelProvider(tt.model)
			if err != nil {
				t.Fatalf("GetModelProvider(%q) error: %v", tt.model, err)
			}
			if provider != tt.provider {
				t.Errorf("GetModelProvider(%q) = %q, want %q", tt.model, provider, tt.provider)
			}
		})
	}
}

func TestGetModelProvider_PatternFallback(t *testing.T) {
	tests := []struct {
		model    string
		provider string
	}{
		{"claude-next-experimental", ProviderAnthropic},
		{"gpt-6-preview", ProviderOpenAI},
		{"o1-pro", ProviderOpenAI},
		{"gemini-4-flash", ProviderGoogle},
		{"llama3.3:70b", ProviderOllama},
		{"qwen2.5-coder:32b", ProviderOllama},
		{"mistral-nemo:latest", ProviderOllama},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := GetModelProvider(tt.model)
			if err != nil {
				t.Fatalf("GetModelProvider(%q) error: %v", tt.model, err)
			}
			if provider != tt.provider {
				t.Errorf("GetModelProvider(%q) = %q, want %q", tt.model, provider, tt.provider)
			}
		})
	}
}

func TestGetModelProvider_Unknown(t *testing.T) {
	if _, err := GetModelProvider("totally-made-up-model"); err == nil {
		t.Error("expected error for unknown model, got nil")
	}
}

func TestGetModelInfo_UnknownModelGetsConservativeDefaults(t *testing.T) {
	info, err := GetModelInfo("claude-next-experimental")
	if err != nil {
		t.Fatalf("GetModelInfo error: %v", err)
	}
	if info.Provider != ProviderAnthropic {
		t.Errorf("Provider = %q, want %q", info.Provider, ProviderAnthropic)
	}
	if info.MaxContextTokens != 32000 {
		t.Errorf("MaxContextTokens = %d, want 32000", info.MaxContextTokens)
	}
	if info.MaxOutputTokens != 4096 {
		t.Errorf("MaxOutputTokens = %d, want 4096", info.MaxOutputTokens)
	}
}

func TestCalculateCost(t *testing.T) {
	// claude-sonnet-4-5: $3/M input, $15/M output
	cost, err := CalculateCost(ModelClaudeSonnet4, 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("CalculateCost error: %v", err)
	}
	if cost != 18.00 {
		t.Errorf("CalculateCost = %f, want 18.00", cost)
	}

	// Unknown models cost nothing.
	cost, err = CalculateCost("totally-made-up-model", 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("CalculateCost error for unknown model: %v", err)
	}
	if cost != 0 {
		t.Errorf("CalculateCost for unknown model = %f, want 0", cost)
	}
}

func TestGetConfig_NotInitialized(t *testing.T) {
	SetConfigForTesting(nil)

	if _, err := GetConfig(); err == nil {
		t.Error("expected error when config not initialized, got nil")
	}
}

func TestGetConfig_ReturnsByValue(t *testing.T) {
	SetConfigForTesting(&Config{
		SchemaVersion: SchemaVersion,
		Agent:         &AgentConfig{Model: ModelGPT5},
	})
	defer SetConfigForTesting(nil)

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig error: %v", err)
	}

	// Mutating the copy's top-level fields must not affect the singleton.
	cfg.SchemaVersion = "mutated"

	cfg2, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig error: %v", err)
	}
	if cfg2.SchemaVersion != SchemaVersion {
		t.Errorf("singleton mutated through returned copy: SchemaVersion = %q", cfg2.SchemaVersion)
	}
}

func TestLoadConfig_CreatesDefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()
	defer SetConfigForTesting(nil)

	if err := LoadConfig(tmpDir); err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	configPath := filepath.Join(tmpDir, ProjectConfigDir, ProjectConfigFilename)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig error: %v", err)
	}
	if cfg.Agent == nil {
		t.Fatal("Agent config is nil")
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Agent.Strategy != StrategySmart {
		t.Errorf("Strategy = %q, want %q", cfg.Agent.Strategy, StrategySmart)
	}
	if cfg.Agent.MaxSteps != DefaultMaxSteps {
		t.Errorf("MaxSteps = %d, want %d", cfg.Agent.MaxSteps, DefaultMaxSteps)
	}
	if cfg.Agent.Retry.MaxAttempts != DefaultRetryAttempts {
		t.Errorf("Retry.MaxAttempts = %d, want %d", cfg.Agent.Retry.MaxAttempts, DefaultRetryAttempts)
	}
	if cfg.Executor == nil || cfg.Executor.Type != ExecutorLocal {
		t.Errorf("Executor default not applied: %+v", cfg.Executor)
	}
}

func TestLoadConfig_AppliesDefaultsToSparseFile(t *testing.T) {
	tmpDir := t.TempDir()
	defer SetConfigForTesting(nil)

	configDir := filepath.Join(tmpDir, ProjectConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	sparse := `{"schema_version":"1.0","agent":{"model":"gpt-5"}}`
	configPath := filepath.Join(configDir, ProjectConfigFilename)
	if err := os.WriteFile(configPath, []byte(sparse), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := LoadConfig(tmpDir); err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig error: %v", err)
	}
	if cfg.Agent.Model != ModelGPT5 {
		t.Errorf("Model = %q, want %q (user value must survive defaulting)", cfg.Agent.Model, ModelGPT5)
	}
	if cfg.Agent.MaxSteps != DefaultMaxSteps {
		t.Errorf("MaxSteps = %d, want default %d", cfg.Agent.MaxSteps, DefaultMaxSteps)
	}
	if cfg.Agent.Retry.BaseDelay != 1*time.Second {
		t.Errorf("Retry.BaseDelay = %v, want 1s default", cfg.Agent.Retry.BaseDelay)
	}
	if cfg.Agent.LLMTimeout != DefaultLLMTimeout {
		t.Errorf("LLMTimeout = %v, want default %v", cfg.Agent.LLMTimeout, DefaultLLMTimeout)
	}
}

func TestLoadConfig_RejectsUnparseableFile(t *testing.T) {
	tmpDir := t.TempDir()
	defer SetConfigForTesting(nil)

	configDir := filepath.Join(tmpDir, ProjectConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	configPath := filepath.Join(configDir, ProjectConfigFilename)
	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := LoadConfig(tmpDir); err == nil {
		t.Fatal("expected error for unparseable config file, got nil")
	}

	// The broken file must survive untouched.
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != "{not json" {
		t.Error("unparseable config file was overwritten")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			cfg:     createDefaultConfig(),
			wantErr: false,
		},
		{
			name:    "missing agent section",
			cfg:     &Config{SchemaVersion: SchemaVersion},
			wantErr: true,
		},
		{
			name: "unknown model",
			cfg: &Config{
				Agent: &AgentConfig{
					Model:                "not-a-model",
					Strategy:             StrategySmart,
					MaxSteps:             10,
					MaxConcurrentActions: 2,
					BatchSize:            2,
				},
			},
			wantErr: true,
		},
		{
			name: "invalid strategy",
			cfg: &Config{
				Agent: &AgentConfig{
					Model:                DefaultModel,
					Strategy:             "chaotic",
					MaxSteps:             10,
					MaxConcurrentActions: 2,
					BatchSize:            2,
				},
			},
			wantErr: true,
		},
		{
			name: "zero max steps",
			cfg: &Config{
				Agent: &AgentConfig{
					Model:                DefaultModel,
					Strategy:             StrategySequential,
					MaxSteps:             0,
					MaxConcurrentActions: 2,
					BatchSize:            2,
				},
			},
			wantErr: true,
		},
		{
			name: "invalid executor type",
			cfg: &Config{
				Agent: &AgentConfig{
					Model:                DefaultModel,
					Strategy:             StrategySequential,
					MaxSteps:             10,
					MaxConcurrentActions: 2,
					BatchSize:            2,
				},
				Executor: &ExecutorConfig{Type: "kubernetes"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetAPIKey_Ollama(t *testing.T) {
	t.Setenv(EnvOllamaHost, "")

	host, err := GetAPIKey(ProviderOllama)
	if err != nil {
		t.Fatalf("GetAPIKey(ollama) error: %v", err)
	}
	if host != DefaultOllamaHost {
		t.Errorf("host = %q, want %q", host, DefaultOllamaHost)
	}

	t.Setenv(EnvOllamaHost, "http://gpu-box:11434")
	host, err = GetAPIKey(ProviderOllama)
	if err != nil {
		t.Fatalf("GetAPIKey(ollama) error: %v", err)
	}
	if host != "http://gpu-box:11434" {
		t.Errorf("host = %q, want env override", host)
	}
}

func TestGetAPIKey_FromEnvironment(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Setenv(EnvAnthropicAPIKey, "sk-ant-from-env")

	key, err := GetAPIKey(ProviderAnthropic)
	if err != nil {
		t.Fatalf("GetAPIKey error: %v", err)
	}
	if key != "sk-ant-from-env" {
		t.Errorf("key = %q, want env value", key)
	}
}

func TestGetAPIKey_SecretsFilePrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{EnvOpenAIAPIKey: "sk-from-secrets"})
	defer SetDecryptedSecrets(nil)
	t.Setenv(EnvOpenAIAPIKey, "sk-from-env")

	key, err := GetAPIKey(ProviderOpenAI)
	if err != nil {
		t.Fatalf("GetAPIKey error: %v", err)
	}
	if key != "sk-from-secrets" {
		t.Errorf("key = %q, want secrets file value to win", key)
	}
}

func TestGetAPIKey_UnknownProvider(t *testing.T) {
	if _, err := GetAPIKey("watson"); err == nil {
		t.Error("expected error for unknown provider, got nil")
	}
}

func TestGetWorkspacePath(t *testing.T) {
	SetConfigForTesting(nil)
	if got := GetWorkspacePath(); got != DefaultWorkspacePath {
		t.Errorf("GetWorkspacePath() = %q, want default when uninitialized", got)
	}

	SetConfigForTesting(&Config{
		Executor: &ExecutorConfig{WorkspacePath: "/srv/work"},
	})
	defer SetConfigForTesting(nil)

	if got := GetWorkspacePath(); got != "/srv/work" {
		t.Errorf("GetWorkspacePath() = %q, want /srv/work", got)
	}
}

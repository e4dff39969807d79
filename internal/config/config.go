package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
	Database  struct {
		Driver string `json:"driver" yaml:"driver"`
		DSN    string `json:"dsn" yaml:"dsn"`
	} `json:"database" yaml:"database"`
	LLM struct {
		Provider         string  `json:"provider" yaml:"provider"`
		BaseURL          string  `json:"base_url" yaml:"base_url"`
		APIKey           string  `json:"api_key" yaml:"api_key"`
		Model            string  `json:"model" yaml:"model"`
		MaxTokens        int     `json:"max_tokens" yaml:"max_tokens"`
		Temperature      float32 `json:"temperature" yaml:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens" yaml:"max_context_tokens"`
	} `json:"llm" yaml:"llm"`
	WhatsApp struct {
		BridgeURL      string `json:"bridge_url" yaml:"bridge_url"`
		TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	} `json:"whatsapp" yaml:"whatsapp"`
	Telegram struct {
		Token string `json:"token" yaml:"token"`
	} `json:"telegram" yaml:"telegram"`
	HTTP struct {
		Listen         string   `json:"listen" yaml:"listen"`
		AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	} `json:"http" yaml:"http"`
	Pipeline struct {
		RealtimeIntervalSeconds int  `json:"realtime_interval_seconds" yaml:"realtime_interval_seconds"`
		RealtimeAutostart       bool `json:"realtime_autostart" yaml:"realtime_autostart"`
		RealtimeChatLimit       int  `json:"realtime_chat_limit" yaml:"realtime_chat_limit"`
		RealtimeMessageLimit    int  `json:"realtime_message_limit" yaml:"realtime_message_limit"`
		BatchMessageLimit       int  `json:"batch_message_limit" yaml:"batch_message_limit"`
	} `json:"pipeline" yaml:"pipeline"`
	Delivery struct {
		ChunkSize         int  `json:"chunk_size" yaml:"chunk_size"`
		InterChunkDelayMS int  `json:"inter_chunk_delay_ms" yaml:"inter_chunk_delay_ms"`
		SimulateTyping    bool `json:"simulate_typing" yaml:"simulate_typing"`
		MaxConcurrent     int  `json:"max_concurrent" yaml:"max_concurrent"`
	} `json:"delivery" yaml:"delivery"`
}

// DefaultPath is where the config lives unless --config says otherwise.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".chatpilot", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:   filepath.Join(os.Getenv("HOME"), ".chatpilot"),
		LogLevel:  "info",
		LogFormat: "text",
	}
	cfg.Database.Driver = "sqlite"
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.BaseURL = "https://api.anthropic.com"
	cfg.LLM.Model = "claude-sonnet-4-5-20250929"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 6000
	cfg.WhatsApp.BridgeURL = "http://localhost:3000"
	cfg.WhatsApp.TimeoutSeconds = 30
	cfg.HTTP.Listen = ":3001"
	cfg.HTTP.AllowedOrigins = []string{"*"}
	cfg.Pipeline.RealtimeIntervalSeconds = 30
	cfg.Pipeline.RealtimeChatLimit = 20
	cfg.Pipeline.RealtimeMessageLimit = 10
	cfg.Pipeline.BatchMessageLimit = 50
	cfg.Delivery.ChunkSize = 80
	cfg.Delivery.InterChunkDelayMS = 2500
	cfg.Delivery.SimulateTyping = true
	cfg.Delivery.MaxConcurrent = 4
	return cfg
}

// Load reads the config at path, writing defaults there on first run. A .env
// file next to the config or in the working directory is loaded into the
// environment first; environment variables win over file values.
func Load(path string) (*Config, error) {
	loadDotEnv(path)
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "chatpilot.db")
	}
	return cfg, nil
}

func loadDotEnv(configPath string) {
	for _, p := range []string{".env", filepath.Join(filepath.Dir(configPath), ".env")} {
		if _, err := os.Stat(p); err == nil {
			godotenv.Load(p)
		}
	}
}

// applyEnv overrides file values from the environment (highest precedence).
func applyEnv(cfg *Config) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			cfg.Database.Driver = "postgres"
		}
	}
	switch cfg.LLM.Provider {
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if bridge := os.Getenv("WHATSAPP_BRIDGE_URL"); bridge != "" {
		cfg.WhatsApp.BridgeURL = bridge
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.HTTP.Listen = ":" + port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, out any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, out)
	}
	return json.Unmarshal(data, out)
}

func encode(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	return writeFile(path, cfg)
}

func writeFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := encode(path, v)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to its nested JSON object form. Numbers come back as
// float64.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns every config value keyed by dot path, with secrets
// masked when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// readRaw loads the file as a generic map, normalised to JSON value types
// whatever the file format.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := decode(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if !isYAML(path) {
		return m, nil
	}
	// yaml yields ints and nested map[string]any; round-trip through JSON so
	// callers see the same types for both formats.
	norm, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	m = nil
	if err := json.Unmarshal(norm, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetValue reads a single dot-path key straight from the file, creating the
// file with defaults first if it does not exist yet.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue sets a dot-path key in the file. The value is parsed as JSON when
// possible (numbers, booleans, arrays) and stored as a string otherwise.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	flat := Flatten(m)
	flat[key] = parsed
	return writeFile(path, Unflatten(flat))
}

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates the service configuration.
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Portal  PortalConfig
	AI      AIConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	var backend BackendConfig
	if err := env.Parse(&backend); err != nil {
		return nil, fmt.Errorf("parse backend config: %w", err)
	}
	backend.URL = strings.TrimRight(strings.TrimSpace(backend.URL), "/")

	var portal PortalConfig
	if err := env.Parse(&portal); err != nil {
		return nil, fmt.Errorf("parse portal config: %w", err)
	}
	if err := portal.validate(); err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Backend: backend, Portal: portal, AI: ai}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

// loadServerConfig resolves the listen address from PORT.
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// accepts ":8080" or "127.0.0.1:8080"
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig points the portal at the remote booking/upload/chat
// backend. An empty URL selects the in-process services.
type BackendConfig struct {
	URL          string        `env:"BACKEND_URL"`
	PatientID    string        `env:"BACKEND_PATIENT_ID" envDefault:"local-patient"`
	Timeout      time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	PollInterval time.Duration `env:"BACKEND_POLL_INTERVAL" envDefault:"500ms"`
}

// Remote reports whether a remote backend is configured.
func (c BackendConfig) Remote() bool {
	return c.URL != ""
}

// PortalConfig holds controller and local service timings.
type PortalConfig struct {
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	ReplyDelay     time.Duration `env:"PORTAL_REPLY_DELAY" envDefault:"2s"`
	ReplyTimeout   time.Duration `env:"PORTAL_REPLY_TIMEOUT" envDefault:"30s"`
	UploadDelay    time.Duration `env:"PORTAL_UPLOAD_DELAY" envDefault:"2s"`
	MaxUploadBytes int64         `env:"PORTAL_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	IdleTTL        time.Duration `env:"PORTAL_IDLE_TTL" envDefault:"30m"`
	AllowedOrigins []string      `env:"PORTAL_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

func (c PortalConfig) validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid PORTAL_MAX_UPLOAD_BYTES value %d: must be positive", c.MaxUploadBytes)
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("invalid PORTAL_REPLY_TIMEOUT value %s: must be positive", c.ReplyTimeout)
	}
	if c.ReplyDelay < 0 || c.UploadDelay < 0 {
		return fmt.Errorf("portal delays must not be negative")
	}
	if c.IdleTTL <= 0 {
		return fmt.Errorf("invalid PORTAL_IDLE_TTL value %s: must be positive", c.IdleTTL)
	}
	return nil
}

// AIConfig describes the optional LLM used to draft doctor replies.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether credentials and a model are configured.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

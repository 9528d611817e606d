package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	MetricsNamespace         string
	CORSAllowOrigin          string
	SessionInactivityTimeout time.Duration

	LogLevel string
	LogFile  string
	LogJSON  bool

	RedisURL          string
	DatabaseURL       string
	StoreOpTimeout    time.Duration
	FactLookupTimeout time.Duration

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIModel        string
	OpenAITemperature  float64
	OpenAIMaxTokens    int
	ProviderTimeout    time.Duration
	ProviderMaxRetries int

	ElevenLabsAPIKey    string
	ElevenLabsVoiceID   string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSModel  string
	TTSTimeout          time.Duration
	TTSCacheSize        int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":"+envOrDefault("PORT", "4000")),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "anuva"),
		CORSAllowOrigin:     envOrDefault("APP_CORS_ALLOW_ORIGIN", "*"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFile:             stringsTrimSpace("LOG_FILE"),
		RedisURL:            stringsTrimSpace("REDIS_URL"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		OpenAIAPIKey:        stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:       envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:         envOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:   stringsTrimSpace("ELEVENLABS_VOICE_ID"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		StoreOpTimeout:           2 * time.Second,
		FactLookupTimeout:        time.Second,
		OpenAITemperature:        0.7,
		OpenAIMaxTokens:          800,
		ProviderTimeout:          20 * time.Second,
		ProviderMaxRetries:       1,
		TTSTimeout:               15 * time.Second,
		TTSCacheSize:             64,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StoreOpTimeout, err = durationFromEnv("STORE_OP_TIMEOUT", cfg.StoreOpTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FactLookupTimeout, err = durationFromEnv("FACT_LOOKUP_TIMEOUT", cfg.FactLookupTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAITemperature, err = floatFromEnv("OPENAI_TEMPERATURE", cfg.OpenAITemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenAIMaxTokens, err = intFromEnv("OPENAI_MAX_TOKENS", cfg.OpenAIMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderMaxRetries, err = intFromEnv("PROVIDER_MAX_RETRIES", cfg.ProviderMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSCacheSize, err = intFromEnv("TTS_CACHE_SIZE", cfg.TTSCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.LogJSON, err = boolFromEnv("LOG_JSON", cfg.LogJSON)
	if err != nil {
		return Config{}, err
	}

	if cfg.StoreOpTimeout <= 0 {
		return Config{}, fmt.Errorf("STORE_OP_TIMEOUT must be positive")
	}
	if cfg.ProviderTimeout <= 0 {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.OpenAITemperature < 0 || cfg.OpenAITemperature > 2 {
		return Config{}, fmt.Errorf("OPENAI_TEMPERATURE must be within [0, 2]")
	}
	if cfg.OpenAIMaxTokens <= 0 {
		return Config{}, fmt.Errorf("OPENAI_MAX_TOKENS must be positive")
	}
	if cfg.ProviderMaxRetries < 0 {
		return Config{}, fmt.Errorf("PROVIDER_MAX_RETRIES must be >= 0")
	}
	if cfg.TTSCacheSize < 0 {
		return Config{}, fmt.Errorf("TTS_CACHE_SIZE must be >= 0")
	}

	return cfg, nil
}

// ProviderConfigured reports whether a generation provider credential is present.
func (c Config) ProviderConfigured() bool {
	return c.OpenAIAPIKey != ""
}

// TTSConfigured reports whether speech synthesis can be proxied.
func (c Config) TTSConfigured() bool {
	return c.ElevenLabsAPIKey != ""
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

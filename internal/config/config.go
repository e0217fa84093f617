package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// VoicesConfig controls the voice registry and the ingestion pipeline.
type VoicesConfig struct {
	Dir        string  `yaml:"dir"`
	MinSeconds float64 `yaml:"min_seconds"`
	MaxSeconds float64 `yaml:"max_seconds"`
	SampleRate int     `yaml:"sample_rate"`
}

type TTSConfig struct {
	Mode           string `yaml:"mode"` // mock, exec, http
	Command        string `yaml:"command"`
	Endpoint       string `yaml:"endpoint"`
	SampleRate     int    `yaml:"sample_rate"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type GeneratorConfig struct {
	Mode         string  `yaml:"mode"` // mock, ollama
	Endpoint     string  `yaml:"endpoint"`
	DefaultModel string  `yaml:"default_model"`
	Temperature  float64 `yaml:"temperature"`
	TopP         float64 `yaml:"top_p"`
}

type JournalConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Voices      VoicesConfig    `yaml:"voices"`
	TTS         TTSConfig       `yaml:"tts"`
	Generator   GeneratorConfig `yaml:"generator"`
	Journal     JournalConfig   `yaml:"journal"`
}

func Default() Config {
	return Config{
		ServiceName: "podforge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Voices: VoicesConfig{
			Dir:        "./data/voices",
			MinSeconds: 5,
			MaxSeconds: 300,
			SampleRate: 24000,
		},
		TTS: TTSConfig{
			Mode:           "mock",
			SampleRate:     24000,
			TimeoutSeconds: 120,
		},
		Generator: GeneratorConfig{
			Mode:         "ollama",
			Endpoint:     "http://localhost:11434",
			DefaultModel: "qwen2.5:32b",
			Temperature:  0.7,
			TopP:         0.9,
		},
		Journal: JournalConfig{
			Path:          "./data/podforge-journal.db",
			RetentionDays: 30,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "PODFORGE_SERVICE_NAME")
	overrideString(&cfg.Environment, "PODFORGE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PODFORGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PODFORGE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PODFORGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PODFORGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PODFORGE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "PODFORGE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "PODFORGE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "PODFORGE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PODFORGE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "PODFORGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PODFORGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PODFORGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PODFORGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PODFORGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PODFORGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Voices.Dir, "PODFORGE_VOICES_DIR")
	overrideFloat(&cfg.Voices.MinSeconds, "PODFORGE_VOICES_MIN_SECONDS")
	overrideFloat(&cfg.Voices.MaxSeconds, "PODFORGE_VOICES_MAX_SECONDS")
	overrideInt(&cfg.Voices.SampleRate, "PODFORGE_VOICES_SAMPLE_RATE")
	overrideString(&cfg.TTS.Mode, "PODFORGE_TTS_MODE")
	overrideString(&cfg.TTS.Command, "PODFORGE_TTS_COMMAND")
	overrideString(&cfg.TTS.Endpoint, "PODFORGE_TTS_ENDPOINT")
	overrideInt(&cfg.TTS.SampleRate, "PODFORGE_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.TimeoutSeconds, "PODFORGE_TTS_TIMEOUT_SECONDS")
	overrideString(&cfg.Generator.Mode, "PODFORGE_GENERATOR_MODE")
	overrideString(&cfg.Generator.Endpoint, "PODFORGE_GENERATOR_ENDPOINT")
	overrideString(&cfg.Generator.DefaultModel, "PODFORGE_GENERATOR_DEFAULT_MODEL")
	overrideFloat(&cfg.Generator.Temperature, "PODFORGE_GENERATOR_TEMPERATURE")
	overrideFloat(&cfg.Generator.TopP, "PODFORGE_GENERATOR_TOP_P")
	overrideString(&cfg.Journal.Path, "PODFORGE_JOURNAL_PATH")
	overrideInt(&cfg.Journal.RetentionDays, "PODFORGE_JOURNAL_RETENTION_DAYS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Voices.Dir == "" {
		return errors.New("voices.dir must not be empty")
	}
	if cfg.Voices.MinSeconds <= 0 {
		return errors.New("voices.min_seconds must be positive")
	}
	if cfg.Voices.MaxSeconds <= cfg.Voices.MinSeconds {
		return errors.New("voices.max_seconds must be greater than voices.min_seconds")
	}
	if cfg.Voices.SampleRate <= 0 {
		return errors.New("voices.sample_rate must be positive")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec", "http":
	default:
		return errors.New("tts.mode must be one of mock|exec|http")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.Mode == "http" && cfg.TTS.Endpoint == "" {
		return errors.New("tts.endpoint must be set when mode=http")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	switch cfg.Generator.Mode {
	case "mock", "ollama":
	default:
		return errors.New("generator.mode must be one of mock|ollama")
	}
	if cfg.Generator.Mode == "ollama" && cfg.Generator.Endpoint == "" {
		return errors.New("generator.endpoint must be set when mode=ollama")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return nil
}

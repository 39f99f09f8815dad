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
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Node        NodeConfig       `yaml:"node"`
	Engine      EngineConfig     `yaml:"engine"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	EventStore  EventStoreConfig `yaml:"event_store"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID               string `yaml:"id"`
	AnnounceInterval int    `yaml:"announce_interval_ms"`
}

// EngineConfig selects and parameterizes the synthesis engine adapter.
type EngineConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`

	// Mock engine shape, ignored when mode=exec.
	MockVoices   []string `yaml:"mock_voices"`
	MockInstruct bool     `yaml:"mock_instruct"`
}

// SynthesisConfig tunes the dispatch pipeline shared by every serving
// surface.
type SynthesisConfig struct {
	PromptSampleRate  int `yaml:"prompt_sample_rate"`
	MaxActive         int `yaml:"max_active"`
	MaxQueued         int `yaml:"max_queued"`
	PromptCacheSize   int `yaml:"prompt_cache_size"`
	GenerationTimeout int `yaml:"generation_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRequests   int    `yaml:"max_requests"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxgate",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:               "voxgate-node-1",
			AnnounceInterval: 5000,
		},
		Engine: EngineConfig{
			Mode:         "mock",
			SampleRate:   22050,
			MockVoices:   []string{"aria", "baritone"},
			MockInstruct: false,
		},
		Synthesis: SynthesisConfig{
			PromptSampleRate:  16000,
			MaxActive:         2,
			MaxQueued:         4,
			PromptCacheSize:   16,
			GenerationTimeout: 45000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voxgate-events.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRequests:   10000,
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
	overrideString(&cfg.RuntimeName, "VOXGATE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXGATE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXGATE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXGATE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXGATE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXGATE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXGATE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Enabled, "VOXGATE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXGATE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXGATE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOXGATE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOXGATE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXGATE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXGATE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXGATE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXGATE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXGATE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "VOXGATE_NODE_ID")
	overrideInt(&cfg.Node.AnnounceInterval, "VOXGATE_NODE_ANNOUNCE_INTERVAL_MS")
	overrideString(&cfg.Engine.Mode, "VOXGATE_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "VOXGATE_ENGINE_COMMAND")
	overrideInt(&cfg.Engine.SampleRate, "VOXGATE_ENGINE_SAMPLE_RATE")
	overrideStringSlice(&cfg.Engine.MockVoices, "VOXGATE_ENGINE_MOCK_VOICES")
	overrideBool(&cfg.Engine.MockInstruct, "VOXGATE_ENGINE_MOCK_INSTRUCT")
	overrideInt(&cfg.Synthesis.PromptSampleRate, "VOXGATE_SYNTHESIS_PROMPT_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.MaxActive, "VOXGATE_SYNTHESIS_MAX_ACTIVE")
	overrideInt(&cfg.Synthesis.MaxQueued, "VOXGATE_SYNTHESIS_MAX_QUEUED")
	overrideInt(&cfg.Synthesis.PromptCacheSize, "VOXGATE_SYNTHESIS_PROMPT_CACHE_SIZE")
	overrideInt(&cfg.Synthesis.GenerationTimeout, "VOXGATE_SYNTHESIS_GENERATION_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "VOXGATE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOXGATE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOXGATE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRequests, "VOXGATE_EVENT_STORE_MAX_REQUESTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOXGATE_EVENT_STORE_VACUUM_ON_START")
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

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
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
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.AnnounceInterval <= 0 {
		return errors.New("node.announce_interval_ms must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Synthesis.PromptSampleRate <= 0 {
		return errors.New("synthesis.prompt_sample_rate must be positive")
	}
	if cfg.Synthesis.MaxActive <= 0 {
		return errors.New("synthesis.max_active must be >= 1")
	}
	if cfg.Synthesis.MaxQueued < 0 {
		return errors.New("synthesis.max_queued must be >= 0")
	}
	if cfg.Synthesis.PromptCacheSize < 0 {
		return errors.New("synthesis.prompt_cache_size must be >= 0")
	}
	if cfg.Synthesis.GenerationTimeout <= 0 {
		return errors.New("synthesis.generation_timeout_ms must be positive")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}

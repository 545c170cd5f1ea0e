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

type BusConfig struct {
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

type DeviceConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type RecordStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"audit_retention_days"`
	MaxSessions   int    `yaml:"audit_max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type TemplatesConfig struct {
	Directory string `yaml:"directory"`
	UploadDir string `yaml:"upload_dir"`
}

type STTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, exec, whisper
	Command    string `yaml:"command"`
	Endpoint   string `yaml:"endpoint"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	WindowMS   int    `yaml:"window_ms"`
}

type DictationConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CorrectionsFile   string `yaml:"corrections_file"`
	BufferWhilePaused bool   `yaml:"buffer_while_paused"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Device      DeviceConfig      `yaml:"device"`
	RecordStore RecordStoreConfig `yaml:"record_store"`
	Templates   TemplatesConfig   `yaml:"templates"`
	STT         STTConfig         `yaml:"stt"`
	Dictation   DictationConfig   `yaml:"dictation"`
}

func Default() Config {
	return Config{
		RuntimeName: "fisiotech-runtime",
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
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Device: DeviceConfig{
			ID:                "fisiotech-node-1",
			Role:              "runtime",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		RecordStore: RecordStoreConfig{
			Path:          "./data/fisiotech.db",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Templates: TemplatesConfig{
			Directory: "./templates",
			UploadDir: "./data/uploads",
		},
		STT: STTConfig{
			Enabled:    true,
			Mode:       "mock",
			Language:   "pt",
			SampleRate: 16000,
			Channels:   1,
			WindowMS:   5000,
		},
		Dictation: DictationConfig{
			Enabled:           true,
			BufferWhilePaused: false,
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
	overrideString(&cfg.RuntimeName, "FISIOTECH_RUNTIME_NAME")
	overrideString(&cfg.Environment, "FISIOTECH_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "FISIOTECH_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "FISIOTECH_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "FISIOTECH_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "FISIOTECH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "FISIOTECH_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "FISIOTECH_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "FISIOTECH_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "FISIOTECH_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "FISIOTECH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "FISIOTECH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "FISIOTECH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "FISIOTECH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "FISIOTECH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "FISIOTECH_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Device.ID, "FISIOTECH_DEVICE_ID")
	overrideString(&cfg.Device.Role, "FISIOTECH_DEVICE_ROLE")
	overrideInt(&cfg.Device.HeartbeatInterval, "FISIOTECH_DEVICE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Device.HeartbeatTimeout, "FISIOTECH_DEVICE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.RecordStore.Path, "FISIOTECH_RECORD_STORE_PATH")
	overrideInt(&cfg.RecordStore.RetentionDays, "FISIOTECH_RECORD_STORE_RETENTION_DAYS")
	overrideInt(&cfg.RecordStore.MaxSessions, "FISIOTECH_RECORD_STORE_MAX_SESSIONS")
	overrideBool(&cfg.RecordStore.VacuumOnStart, "FISIOTECH_RECORD_STORE_VACUUM_ON_START")
	overrideString(&cfg.Templates.Directory, "FISIOTECH_TEMPLATES_DIRECTORY")
	overrideString(&cfg.Templates.UploadDir, "FISIOTECH_TEMPLATES_UPLOAD_DIR")
	overrideBool(&cfg.STT.Enabled, "FISIOTECH_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "FISIOTECH_STT_MODE")
	overrideString(&cfg.STT.Command, "FISIOTECH_STT_COMMAND")
	overrideString(&cfg.STT.Endpoint, "FISIOTECH_STT_ENDPOINT")
	overrideString(&cfg.STT.ModelPath, "FISIOTECH_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "FISIOTECH_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "FISIOTECH_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "FISIOTECH_STT_CHANNELS")
	overrideInt(&cfg.STT.WindowMS, "FISIOTECH_STT_WINDOW_MS")
	overrideBool(&cfg.Dictation.Enabled, "FISIOTECH_DICTATION_ENABLED")
	overrideString(&cfg.Dictation.CorrectionsFile, "FISIOTECH_DICTATION_CORRECTIONS_FILE")
	overrideBool(&cfg.Dictation.BufferWhilePaused, "FISIOTECH_DICTATION_BUFFER_WHILE_PAUSED")
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
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Device.ID == "" {
		return errors.New("device.id must not be empty")
	}
	if cfg.Device.HeartbeatInterval <= 0 {
		return errors.New("device.heartbeat_interval_ms must be positive")
	}
	if cfg.Device.HeartbeatTimeout <= cfg.Device.HeartbeatInterval {
		return errors.New("device.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.RecordStore.Path == "" {
		return errors.New("record_store.path must not be empty")
	}
	if cfg.RecordStore.RetentionDays < 0 {
		return errors.New("record_store.audit_retention_days must be >= 0")
	}
	if cfg.Templates.Directory == "" {
		return errors.New("templates.directory must not be empty")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec", "whisper":
		default:
			return errors.New("stt.mode must be one of mock|exec|whisper")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.Mode == "whisper" && cfg.STT.Endpoint == "" {
			return errors.New("stt.endpoint must be set when mode=whisper")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.WindowMS <= 0 {
			return errors.New("stt.window_ms must be positive")
		}
	}
	return nil
}

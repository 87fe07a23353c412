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

type CaptureConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	FrameDurationMS int     `yaml:"frame_duration_ms"`
	MixGain         float64 `yaml:"mix_gain"`
	Device          string  `yaml:"device"`
}

type STTConfig struct {
	TokenURL       string `yaml:"token_url"`
	SocketURL      string `yaml:"socket_url"`
	APIKey         string `yaml:"api_key"`
	ConnectTimeout int    `yaml:"connect_timeout_ms"`
}

type EvaluatorConfig struct {
	Mode           string  `yaml:"mode"` // mock, ollama, exec
	Endpoint       string  `yaml:"endpoint"`
	Command        string  `yaml:"command"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	RequestTimeout int     `yaml:"request_timeout_ms"`
	FinalMaxChars  int     `yaml:"final_max_chars"`
}

type SchedulerConfig struct {
	IntervalMS         int `yaml:"interval_ms"`
	MinTranscriptChars int `yaml:"min_transcript_chars"`
	MaxQuestions       int `yaml:"max_questions"`
}

type QuestionsConfig struct {
	ShortQuestionRunes  int      `yaml:"short_question_runes"`
	MinSignificantWords int      `yaml:"min_significant_words"`
	MinWordFraction     float64  `yaml:"min_word_fraction"`
	ExtraStopWords      []string `yaml:"extra_stop_words"`
}

type RecoveryConfig struct {
	Path           string `yaml:"path"`
	RetentionHours int    `yaml:"retention_hours"`
}

type RubricConfig struct {
	Path        string `yaml:"path"`
	DefaultRole string `yaml:"default_role"`
}

type ReportConfig struct {
	Mode      string `yaml:"mode"` // mock, http, exec
	Endpoint  string `yaml:"endpoint"`
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Capture     CaptureConfig   `yaml:"capture"`
	STT         STTConfig       `yaml:"stt"`
	Evaluator   EvaluatorConfig `yaml:"evaluator"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Questions   QuestionsConfig `yaml:"questions"`
	Recovery    RecoveryConfig  `yaml:"recovery"`
	Rubric      RubricConfig    `yaml:"rubric"`
	Report      ReportConfig    `yaml:"report"`
}

func Default() Config {
	return Config{
		RuntimeName: "vetta-runtime",
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
		Capture: CaptureConfig{
			SampleRate:      16000,
			FrameDurationMS: 100,
			MixGain:         0.5,
		},
		STT: STTConfig{
			TokenURL:       "",
			SocketURL:      "",
			ConnectTimeout: 5000,
		},
		Evaluator: EvaluatorConfig{
			Mode:           "mock",
			Endpoint:       "http://localhost:11434",
			Model:          "llama3.2:latest",
			MaxTokens:      1024,
			Temperature:    0.2,
			RequestTimeout: 60000,
			FinalMaxChars:  24000,
		},
		Scheduler: SchedulerConfig{
			IntervalMS:         25000,
			MinTranscriptChars: 60,
			MaxQuestions:       10,
		},
		Questions: QuestionsConfig{
			ShortQuestionRunes:  20,
			MinSignificantWords: 3,
			MinWordFraction:     0.35,
		},
		Recovery: RecoveryConfig{
			Path:           "./data/vetta-recovery.db",
			RetentionHours: 24,
		},
		Rubric: RubricConfig{
			Path:        "",
			DefaultRole: "general",
		},
		Report: ReportConfig{
			Mode:      "mock",
			TimeoutMS: 15000,
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
	overrideString(&cfg.RuntimeName, "VETTA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VETTA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VETTA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VETTA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VETTA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VETTA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VETTA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "VETTA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VETTA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VETTA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VETTA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VETTA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VETTA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VETTA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VETTA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VETTA_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Capture.SampleRate, "VETTA_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.FrameDurationMS, "VETTA_CAPTURE_FRAME_DURATION_MS")
	overrideFloat(&cfg.Capture.MixGain, "VETTA_CAPTURE_MIX_GAIN")
	overrideString(&cfg.Capture.Device, "VETTA_CAPTURE_DEVICE")
	overrideString(&cfg.STT.TokenURL, "VETTA_STT_TOKEN_URL")
	overrideString(&cfg.STT.SocketURL, "VETTA_STT_SOCKET_URL")
	overrideString(&cfg.STT.APIKey, "VETTA_STT_API_KEY")
	overrideInt(&cfg.STT.ConnectTimeout, "VETTA_STT_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Evaluator.Mode, "VETTA_EVALUATOR_MODE")
	overrideString(&cfg.Evaluator.Endpoint, "VETTA_EVALUATOR_ENDPOINT")
	overrideString(&cfg.Evaluator.Command, "VETTA_EVALUATOR_COMMAND")
	overrideString(&cfg.Evaluator.Model, "VETTA_EVALUATOR_MODEL")
	overrideInt(&cfg.Evaluator.MaxTokens, "VETTA_EVALUATOR_MAX_TOKENS")
	overrideFloat(&cfg.Evaluator.Temperature, "VETTA_EVALUATOR_TEMPERATURE")
	overrideInt(&cfg.Evaluator.RequestTimeout, "VETTA_EVALUATOR_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Evaluator.FinalMaxChars, "VETTA_EVALUATOR_FINAL_MAX_CHARS")
	overrideInt(&cfg.Scheduler.IntervalMS, "VETTA_SCHEDULER_INTERVAL_MS")
	overrideInt(&cfg.Scheduler.MinTranscriptChars, "VETTA_SCHEDULER_MIN_TRANSCRIPT_CHARS")
	overrideInt(&cfg.Scheduler.MaxQuestions, "VETTA_SCHEDULER_MAX_QUESTIONS")
	overrideInt(&cfg.Questions.ShortQuestionRunes, "VETTA_QUESTIONS_SHORT_QUESTION_RUNES")
	overrideInt(&cfg.Questions.MinSignificantWords, "VETTA_QUESTIONS_MIN_SIGNIFICANT_WORDS")
	overrideFloat(&cfg.Questions.MinWordFraction, "VETTA_QUESTIONS_MIN_WORD_FRACTION")
	overrideString(&cfg.Recovery.Path, "VETTA_RECOVERY_PATH")
	overrideInt(&cfg.Recovery.RetentionHours, "VETTA_RECOVERY_RETENTION_HOURS")
	overrideString(&cfg.Rubric.Path, "VETTA_RUBRIC_PATH")
	overrideString(&cfg.Rubric.DefaultRole, "VETTA_RUBRIC_DEFAULT_ROLE")
	overrideString(&cfg.Report.Mode, "VETTA_REPORT_MODE")
	overrideString(&cfg.Report.Endpoint, "VETTA_REPORT_ENDPOINT")
	overrideString(&cfg.Report.Command, "VETTA_REPORT_COMMAND")
	overrideInt(&cfg.Report.TimeoutMS, "VETTA_REPORT_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
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
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if cfg.Capture.MixGain <= 0 || cfg.Capture.MixGain > 1 {
		return errors.New("capture.mix_gain must be in (0, 1]")
	}
	switch cfg.Evaluator.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("evaluator.mode must be one of mock|ollama|exec")
	}
	if cfg.Evaluator.Mode == "ollama" && cfg.Evaluator.Endpoint == "" {
		return errors.New("evaluator.endpoint must be set when mode=ollama")
	}
	if cfg.Evaluator.Mode == "exec" && cfg.Evaluator.Command == "" {
		return errors.New("evaluator.command must be set when mode=exec")
	}
	if cfg.Evaluator.MaxTokens < 0 {
		return errors.New("evaluator.max_tokens must be >= 0")
	}
	if cfg.Evaluator.FinalMaxChars <= 0 {
		return errors.New("evaluator.final_max_chars must be positive")
	}
	if cfg.Scheduler.IntervalMS <= 0 {
		return errors.New("scheduler.interval_ms must be positive")
	}
	if cfg.Scheduler.MinTranscriptChars < 0 {
		return errors.New("scheduler.min_transcript_chars must be >= 0")
	}
	if cfg.Scheduler.MaxQuestions <= 0 {
		return errors.New("scheduler.max_questions must be >= 1")
	}
	if cfg.Questions.MinSignificantWords <= 0 {
		return errors.New("questions.min_significant_words must be >= 1")
	}
	if cfg.Questions.MinWordFraction <= 0 || cfg.Questions.MinWordFraction > 1 {
		return errors.New("questions.min_word_fraction must be in (0, 1]")
	}
	if cfg.Recovery.Path == "" {
		return errors.New("recovery.path must not be empty")
	}
	if cfg.Recovery.RetentionHours <= 0 {
		return errors.New("recovery.retention_hours must be positive")
	}
	if cfg.Rubric.DefaultRole == "" {
		return errors.New("rubric.default_role must not be empty")
	}
	switch cfg.Report.Mode {
	case "mock", "http", "exec":
	default:
		return errors.New("report.mode must be one of mock|http|exec")
	}
	if cfg.Report.Mode == "http" && cfg.Report.Endpoint == "" {
		return errors.New("report.endpoint must be set when mode=http")
	}
	if cfg.Report.Mode == "exec" && cfg.Report.Command == "" {
		return errors.New("report.command must be set when mode=exec")
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration derived from environment variables and
// an optional YAML config file. File values fill gaps; environment wins.
type Config struct {
	NoticesDir    string
	WorkDir       string
	DBPath        string
	HTTPPort      string
	EnableWatcher bool
	StrictConfig  bool
	WebhookURL    string
	Pipeline      PipelineConfig
	Prompts       PromptConfig
}

// PipelineConfig captures the extraction/validation provider settings and
// the daily schedule. Credentials are passed in here explicitly; nothing in
// the pipeline reads the environment at call time.
type PipelineConfig struct {
	ExtractModel      string
	ExtractBaseURL    string
	ExtractAPIKey     string
	ExtractMaxTokens  int
	ValidateModel     string
	ValidateBaseURL   string
	ValidateAPIKey    string
	ValidateMaxTokens int
	ScheduleHourUTC   int
	RequestTimeoutSec int
}

type fileConfig struct {
	NoticesDir string             `json:"notices_dir" yaml:"notices_dir"`
	WorkDir    string             `json:"work_dir" yaml:"work_dir"`
	DBPath     string             `json:"db_path" yaml:"db_path"`
	HTTPPort   string             `json:"http_port" yaml:"http_port"`
	WebhookURL string             `json:"webhook_url" yaml:"webhook_url"`
	Pipeline   pipelineFileConfig `json:"pipeline" yaml:"pipeline"`
	Prompts    promptFileConfig   `json:"prompts" yaml:"prompts"`
}

type pipelineFileConfig struct {
	ExtractModel      string `json:"extract_model" yaml:"extract_model"`
	ExtractBaseURL    string `json:"extract_base_url" yaml:"extract_base_url"`
	ExtractMaxTokens  *int   `json:"extract_max_tokens" yaml:"extract_max_tokens"`
	ValidateModel     string `json:"validate_model" yaml:"validate_model"`
	ValidateBaseURL   string `json:"validate_base_url" yaml:"validate_base_url"`
	ValidateMaxTokens *int   `json:"validate_max_tokens" yaml:"validate_max_tokens"`
	ScheduleHourUTC   *int   `json:"schedule_hour_utc" yaml:"schedule_hour_utc"`
	RequestTimeoutSec *int   `json:"request_timeout_sec" yaml:"request_timeout_sec"`
}

const (
	defaultPort        = ":8000"
	defaultNoticesDir  = "runtime/notices"
	defaultWorkDir     = "runtime/work"
	defaultDBFile      = "compliance.db"
	defaultHourUTC     = 0
	defaultTimeoutSec  = 30
	defaultExtractMax  = 150
	defaultValidateMax = 200
)

func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ExtractModel:      "gpt-4o-mini",
		ExtractBaseURL:    "https://api.openai.com",
		ExtractMaxTokens:  defaultExtractMax,
		ValidateModel:     "claude-3-5-sonnet-20241022",
		ValidateBaseURL:   "https://api.anthropic.com",
		ValidateMaxTokens: defaultValidateMax,
		ScheduleHourUTC:   defaultHourUTC,
		RequestTimeoutSec: defaultTimeoutSec,
	}
}

// Load reads configuration from environment variables, an optional .env
// file, and an optional config.yaml, applying sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		EnableWatcher: parseBoolEnvDefault("ENABLE_WATCHER", true),
		StrictConfig:  parseBoolEnv("STRICT_CONFIG"),
		WebhookURL:    strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil && !errors.Is(fileErr, os.ErrNotExist) {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.NoticesDir = firstNonEmpty(os.Getenv("NOTICES_DIR"), fileCfg.NoticesDir, defaultNoticesDir)
	cfg.WorkDir = firstNonEmpty(os.Getenv("WORK_DIR"), fileCfg.WorkDir, defaultWorkDir)
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	} else if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	} else {
		cfg.DBPath = filepath.Join(cfg.WorkDir, defaultDBFile)
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = strings.TrimSpace(fileCfg.WebhookURL)
	}

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	cfg.Pipeline = applyPipelineOverrides(defaultPipelineConfig(), fileCfg.Pipeline)
	cfg.Pipeline.ExtractAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.Pipeline.ValidateAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.Pipeline.ExtractBaseURL = firstNonEmpty(
		os.Getenv("EXTRACT_BASE_URL"),
		os.Getenv("OPENAI_BASE_URL"),
		cfg.Pipeline.ExtractBaseURL,
	)
	cfg.Pipeline.ValidateBaseURL = firstNonEmpty(
		os.Getenv("VALIDATE_BASE_URL"),
		os.Getenv("ANTHROPIC_BASE_URL"),
		cfg.Pipeline.ValidateBaseURL,
	)
	if v := strings.TrimSpace(os.Getenv("EXTRACT_MODEL")); v != "" {
		cfg.Pipeline.ExtractModel = v
	}
	if v := strings.TrimSpace(os.Getenv("VALIDATE_MODEL")); v != "" {
		cfg.Pipeline.ValidateModel = v
	}
	if v, ok, err := parseIntEnv("SCHEDULE_HOUR_UTC"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid SCHEDULE_HOUR_UTC: %w", err)
		}
		log.Printf("invalid SCHEDULE_HOUR_UTC: %v (using default)", err)
	} else if ok {
		cfg.Pipeline.ScheduleHourUTC = v
	}
	if v, ok, err := parseIntEnv("REQUEST_TIMEOUT_SEC"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT_SEC: %w", err)
		}
		log.Printf("invalid REQUEST_TIMEOUT_SEC: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Pipeline.RequestTimeoutSec = v
	}

	cfg.Prompts = applyPromptOverrides(DefaultPromptConfig(), fileCfg.Prompts)

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	// JSON is accepted too since it is a subset of YAML 1.2.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.NoticesDir) == "" {
		return errors.New("NOTICES_DIR is required")
	}
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	if cfg.Pipeline.ScheduleHourUTC < 0 || cfg.Pipeline.ScheduleHourUTC > 23 {
		return fmt.Errorf("schedule hour must be 0-23 (got %d)", cfg.Pipeline.ScheduleHourUTC)
	}
	if cfg.Pipeline.ExtractMaxTokens <= 0 || cfg.Pipeline.ValidateMaxTokens <= 0 {
		return errors.New("provider max tokens must be positive")
	}
	if cfg.Pipeline.RequestTimeoutSec <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}

func applyPipelineOverrides(base PipelineConfig, override pipelineFileConfig) PipelineConfig {
	if v := strings.TrimSpace(override.ExtractModel); v != "" {
		base.ExtractModel = v
	}
	if v := strings.TrimSpace(override.ExtractBaseURL); v != "" {
		base.ExtractBaseURL = v
	}
	if override.ExtractMaxTokens != nil && *override.ExtractMaxTokens > 0 {
		base.ExtractMaxTokens = *override.ExtractMaxTokens
	}
	if v := strings.TrimSpace(override.ValidateModel); v != "" {
		base.ValidateModel = v
	}
	if v := strings.TrimSpace(override.ValidateBaseURL); v != "" {
		base.ValidateBaseURL = v
	}
	if override.ValidateMaxTokens != nil && *override.ValidateMaxTokens > 0 {
		base.ValidateMaxTokens = *override.ValidateMaxTokens
	}
	if override.ScheduleHourUTC != nil && *override.ScheduleHourUTC >= 0 && *override.ScheduleHourUTC <= 23 {
		base.ScheduleHourUTC = *override.ScheduleHourUTC
	}
	if override.RequestTimeoutSec != nil && *override.RequestTimeoutSec > 0 {
		base.RequestTimeoutSec = *override.RequestTimeoutSec
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return parseBoolEnv(key)
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}

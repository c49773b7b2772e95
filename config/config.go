package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const dateLayout = "2006-01-02"

// Config represents the complete application configuration
type Config struct {
	Mixpanel      MixpanelConfig
	Export        ExportConfig
	Agent         AgentConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Environment   string
}

// MixpanelConfig holds the raw export API credentials and endpoint
type MixpanelConfig struct {
	APISecret string `validate:"required"`
	ProjectID string `validate:"required"`
	ExportURL string `validate:"required,url"`
	// Timeout of zero disables the client timeout; the export is a long stream.
	Timeout time.Duration `validate:"gte=0"`
}

// ExportConfig holds the exporter run parameters
type ExportConfig struct {
	FromDate     time.Time
	ToDate       time.Time
	OutputPath   string `validate:"required"`
	KeySeparator string `validate:"required"`
	S3           S3Config
}

// S3Config holds the optional upload target for the written CSV.
// Upload is disabled when Bucket is empty.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string // MinIO / LocalStack
	UsePathStyle bool
}

// Enabled reports whether an upload bucket is configured
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// AgentConfig holds the SQL agent driver configuration
type AgentConfig struct {
	Preset        string
	DatabaseURL   string  `validate:"required"`
	Question      string  `validate:"required"`
	Model         string  `validate:"required"`
	Temperature   float64 `validate:"gte=0,lte=2"`
	MaxIterations int     `validate:"gte=1"`
	TopK          int     `validate:"gte=1"`
	Verbose       bool
}

// Preset is one of the fixed agent configurations
type Preset struct {
	DatabaseURL string
	Question    string
}

// Presets maps preset names to their database and question
var Presets = map[string]Preset{
	"employee": {
		DatabaseURL: "sqlite:///employee.db",
		Question:    "회사에서 영업 부서에 속한 직원들은 몇명이야?",
	},
	"projects": {
		DatabaseURL: "sqlite:///korean_game_dev_project.db",
		Question:    "현재 진행 중인 프로젝트는 몇개이며, 각 프로젝트 이름을 함께 알려주세요",
	},
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey     string `validate:"required"`
	BaseURL    string `validate:"required,url"`
	Timeout    time.Duration
	MaxRetries int `validate:"gte=0"`
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

var validate = validator.New()

// New creates a new Config instance by loading environment variables.
// Validation is per program: see ValidateExporter and ValidateAgent.
func New() (*Config, error) {
	_ = godotenv.Load(".env")

	now := time.Now()
	lookback := getEnvAsInt("EXPORT_LOOKBACK_DAYS", 30)

	fromDate, err := getEnvAsDate("EXPORT_FROM_DATE", now.AddDate(0, 0, -lookback))
	if err != nil {
		return nil, err
	}
	toDate, err := getEnvAsDate("EXPORT_TO_DATE", now)
	if err != nil {
		return nil, err
	}

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Mixpanel: MixpanelConfig{
			APISecret: getEnv("MIXPANEL_API_SECRET", os.Getenv("API_SECRET")),
			ProjectID: getEnv("MIXPANEL_PROJECT_ID", os.Getenv("PROJECT_ID")),
			ExportURL: getEnv("MIXPANEL_EXPORT_URL", "https://data.mixpanel.com/api/2.0/export"),
			Timeout:   getEnvAsDuration("MIXPANEL_TIMEOUT", 0),
		},
		Export: ExportConfig{
			FromDate:     fromDate,
			ToDate:       toDate,
			OutputPath:   getEnv("EXPORT_OUTPUT_PATH", "mixpanel_events.csv"),
			KeySeparator: getEnv("EXPORT_KEY_SEPARATOR", "_"),
			S3: S3Config{
				Bucket:       getEnv("EXPORT_S3_BUCKET", ""),
				Prefix:       getEnv("EXPORT_S3_PREFIX", "exports"),
				Region:       getEnv("EXPORT_S3_REGION", "us-east-1"),
				Endpoint:     getEnv("EXPORT_S3_ENDPOINT", ""),
				UsePathStyle: getEnvAsBool("EXPORT_S3_PATH_STYLE", false),
			},
		},
		Agent: agent,
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:     getEnv("OPENAI_API_KEY", ""),
				BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:    getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries: getEnvAsInt("OPENAI_MAX_RETRIES", 3),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadAgentConfig() (AgentConfig, error) {
	name := getEnv("SQL_AGENT_PRESET", "employee")
	preset, ok := Presets[name]
	if !ok {
		return AgentConfig{}, fmt.Errorf("unknown SQL agent preset %q", name)
	}

	temperature := getEnvAsFloat("SQL_AGENT_TEMPERATURE", 0)

	return AgentConfig{
		Preset:        name,
		DatabaseURL:   getEnv("SQL_AGENT_DATABASE_URL", preset.DatabaseURL),
		Question:      getEnv("SQL_AGENT_QUESTION", preset.Question),
		Model:         getEnv("SQL_AGENT_MODEL", "gpt-3.5-turbo"),
		Temperature:   temperature,
		MaxIterations: getEnvAsInt("SQL_AGENT_MAX_ITERATIONS", 15),
		TopK:          getEnvAsInt("SQL_AGENT_TOP_K", 10),
		Verbose:       getEnvAsBool("SQL_AGENT_VERBOSE", true),
	}, nil
}

// Validate checks settings shared by both programs
func (c *Config) Validate() error {
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", c.Observability.LogFormat)
	}
	return nil
}

// ValidateExporter checks the settings the Mixpanel exporter needs
func (c *Config) ValidateExporter() error {
	if err := structErr(validate.Struct(c.Mixpanel)); err != nil {
		return fmt.Errorf("mixpanel: %w", err)
	}
	if err := structErr(validate.Struct(c.Export)); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if c.Export.FromDate.After(c.Export.ToDate) {
		return fmt.Errorf("export: from date %s is after to date %s",
			c.Export.FromDate.Format(dateLayout), c.Export.ToDate.Format(dateLayout))
	}
	return nil
}

// ValidateAgent checks the settings the SQL agent needs
func (c *Config) ValidateAgent() error {
	if err := structErr(validate.Struct(c.Agent)); err != nil {
		return fmt.Errorf("sql agent: %w", err)
	}
	if err := structErr(validate.Struct(c.Providers.OpenAI)); err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	return nil
}

// structErr turns validator output into a single readable error
func structErr(err error) error {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// LogString returns the agent database URL without credentials
func (c *AgentConfig) LogString() string {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.User == nil {
		return c.DatabaseURL
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDate parses a YYYY-MM-DD value. Unlike the other helpers a
// malformed value is an error rather than a fallback to the default.
func getEnvAsDate(key string, defaultValue time.Time) (time.Time, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseInLocation(dateLayout, valueStr, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", key, err)
	}
	return value, nil
}

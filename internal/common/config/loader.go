// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	bindEnv(v)

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // env overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func bindEnv(v *viper.Viper) {
	// HARNESS_BATCH_SIZE overrides harness.batch_size
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env names when the file left them blank.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Portal.Password == "" {
		if val := os.Getenv("PORTAL_PASSWORD"); val != "" {
			cfg.Portal.Password = val
		}
	}
	if cfg.Inbox.APIKey == "" {
		if val := os.Getenv("INBOX_API_KEY"); val != "" {
			cfg.Inbox.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "league-signup"
	}

	// Harness defaults
	if cfg.Harness.BatchSize == 0 {
		cfg.Harness.BatchSize = 10
	}
	if cfg.Harness.PerBatchTimeout == 0 {
		cfg.Harness.PerBatchTimeout = 30 * 60 * 1000
	}
	if cfg.Harness.InterWindowPause == 0 {
		cfg.Harness.InterWindowPause = 5000
	}
	if cfg.Harness.ResultPath == "" {
		cfg.Harness.ResultPath = "signup_results.csv"
	}
	if len(cfg.Harness.ResultBackends) == 0 {
		cfg.Harness.ResultBackends = []string{"csv"}
	}
	if cfg.Harness.WorkerLabelPrefix == "" {
		cfg.Harness.WorkerLabelPrefix = "signup"
	}

	// Browser defaults
	if cfg.Browser.Engine == "" {
		cfg.Browser.Engine = "chromedp"
	}
	if cfg.Browser.SessionTimeout == 0 {
		cfg.Browser.SessionTimeout = 10 * 60 * 1000
	}
	if cfg.Browser.StepTimeout == 0 {
		cfg.Browser.StepTimeout = 15000
	}

	// Portal defaults
	if cfg.Portal.SignupPath == "" {
		cfg.Portal.SignupPath = "/signup"
	}
	if cfg.Portal.Flow == "" {
		cfg.Portal.Flow = "parent"
	}

	// Inbox defaults
	if cfg.Inbox.Provider == "" {
		cfg.Inbox.Provider = "http"
	}
	if cfg.Inbox.PollInterval == 0 {
		cfg.Inbox.PollInterval = 3000
	}
	if cfg.Inbox.MaxWait == 0 {
		cfg.Inbox.MaxWait = 120000
	}
	if cfg.Inbox.OTPPattern == "" {
		cfg.Inbox.OTPPattern = `\b(\d{6})\b`
	}

	// Camunda defaults
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 1
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 2 * 60 * 60 * 1000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "signup-outcomes"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Harness.BatchSize < 1 {
		return fmt.Errorf("harness.batch_size must be at least 1")
	}
	if cfg.Harness.PerBatchTimeout < 0 || cfg.Harness.InterWindowPause < 0 {
		return fmt.Errorf("harness durations must not be negative")
	}

	for _, backend := range cfg.Harness.ResultBackends {
		switch backend {
		case "csv":
		case "postgres":
			if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Database == "" {
				return fmt.Errorf("database.postgres.host and database are required for the postgres result backend")
			}
		case "elasticsearch":
			if len(cfg.Database.Elasticsearch.Addresses) == 0 {
				return fmt.Errorf("database.elasticsearch.addresses is required for the elasticsearch result backend")
			}
		default:
			return fmt.Errorf("unknown result backend %q", backend)
		}
	}

	switch cfg.Browser.Engine {
	case "chromedp", "playwright":
	default:
		return fmt.Errorf("browser.engine must be chromedp or playwright, got %q", cfg.Browser.Engine)
	}

	switch cfg.Portal.Flow {
	case "parent", "adult":
	default:
		return fmt.Errorf("portal.flow must be parent or adult, got %q", cfg.Portal.Flow)
	}

	switch cfg.Inbox.Provider {
	case "http":
		if cfg.Inbox.BaseURL == "" {
			return fmt.Errorf("inbox.base_url is required for the http inbox")
		}
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis inbox")
		}
	default:
		return fmt.Errorf("inbox.provider must be http or redis, got %q", cfg.Inbox.Provider)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Harness       HarnessConfig      `mapstructure:"harness"`
	Browser       BrowserConfig      `mapstructure:"browser"`
	Portal        PortalConfig       `mapstructure:"portal"`
	Inbox         InboxConfig        `mapstructure:"inbox"`
	Camunda       CamundaConfig      `mapstructure:"camunda"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Integrations  IntegrationConfig  `mapstructure:"integrations"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HarnessConfig drives the batch orchestrator.
type HarnessConfig struct {
	BatchSize         int      `mapstructure:"batch_size"`
	PerBatchTimeout   int      `mapstructure:"per_batch_timeout"`  // milliseconds
	InterWindowPause  int      `mapstructure:"inter_window_pause"` // milliseconds
	InputPath         string   `mapstructure:"input_path"`
	ResultPath        string   `mapstructure:"result_path"`
	ResultBackends    []string `mapstructure:"result_backends"` // csv, postgres, elasticsearch
	WorkerLabelPrefix string   `mapstructure:"worker_label_prefix"`
}

// BrowserConfig selects and tunes the browser session driver.
type BrowserConfig struct {
	Engine         string `mapstructure:"engine"`     // chromedp or playwright
	RemoteURL      string `mapstructure:"remote_url"` // devtools websocket of an already running Chrome
	Headless       bool   `mapstructure:"headless"`
	ExecPath       string `mapstructure:"exec_path"`
	SessionTimeout int    `mapstructure:"session_timeout"` // milliseconds
	StepTimeout    int    `mapstructure:"step_timeout"`    // milliseconds
	SelectorsPath  string `mapstructure:"selectors_path"`
	ScreenshotDir  string `mapstructure:"screenshot_dir"`
}

// PortalConfig points at the league website under test.
type PortalConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	SignupPath string `mapstructure:"signup_path"`
	Flow       string `mapstructure:"flow"` // parent or adult
	Password   string `mapstructure:"password"`
}

// InboxConfig selects where verification codes are read from.
type InboxConfig struct {
	Provider     string `mapstructure:"provider"` // http or redis
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	PollInterval int    `mapstructure:"poll_interval"` // milliseconds
	MaxWait      int    `mapstructure:"max_wait"`      // milliseconds
	OTPPattern   string `mapstructure:"otp_pattern"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IntegrationConfig holds settings for AWS.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// NotificationConfig holds settings for the run-summary worker.
type NotificationConfig struct {
	Email struct {
		Enabled    bool     `mapstructure:"enabled"`
		Recipients []string `mapstructure:"recipients"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool   `mapstructure:"enabled"`
		Phone   string `mapstructure:"phone"`
	} `mapstructure:"sms"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// HasBackend reports whether name is one of the configured result backends.
func (h HarnessConfig) HasBackend(name string) bool {
	for _, b := range h.ResultBackends {
		if b == name {
			return true
		}
	}
	return false
}

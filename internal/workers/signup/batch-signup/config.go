package batchsignup

import (
	"fmt"
	"time"

	"league-signup/internal/common/config"
)

type Config struct {
	BatchSize         int
	PerBatchTimeout   time.Duration
	InterWindowPause  time.Duration
	WorkerLabelPrefix string
	// JobTimeout bounds one Zeebe job, i.e. one whole run.
	JobTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BatchSize:         10,
		PerBatchTimeout:   30 * time.Minute,
		InterWindowPause:  5 * time.Second,
		WorkerLabelPrefix: "signup",
		JobTimeout:        2 * time.Hour,
	}
}

// ConfigFromApp maps the harness and camunda sections.
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		BatchSize:         cfg.Harness.BatchSize,
		PerBatchTimeout:   config.GetDuration(cfg.Harness.PerBatchTimeout),
		InterWindowPause:  config.GetDuration(cfg.Harness.InterWindowPause),
		WorkerLabelPrefix: cfg.Harness.WorkerLabelPrefix,
		JobTimeout:        config.GetDuration(cfg.Camunda.Timeout),
	}
}

func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}
	if c.PerBatchTimeout < 0 {
		return fmt.Errorf("per_batch_timeout must not be negative")
	}
	if c.InterWindowPause < 0 {
		return fmt.Errorf("inter_window_pause must not be negative")
	}
	if c.WorkerLabelPrefix == "" {
		return fmt.Errorf("worker_label_prefix is required")
	}
	return nil
}

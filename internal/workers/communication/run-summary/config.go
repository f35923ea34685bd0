package runsummary

import (
	"fmt"
	"time"

	"league-signup/internal/common/config"
)

type Config struct {
	EmailEnabled bool
	From         string
	Recipients   []string
	SMSEnabled   bool
	Phone        string
	SenderID     string
	// Timeout bounds each send.
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{Timeout: 30 * time.Second}
}

// ConfigFromApp maps the notifications and integrations.aws sections.
func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.EmailEnabled = cfg.Notifications.Email.Enabled && cfg.Integrations.AWS.SES.Enabled
	c.From = cfg.Integrations.AWS.SES.FromEmail
	c.Recipients = cfg.Notifications.Email.Recipients
	c.SMSEnabled = cfg.Notifications.SMS.Enabled && cfg.Integrations.AWS.SNS.Enabled
	c.Phone = cfg.Notifications.SMS.Phone
	c.SenderID = cfg.Integrations.AWS.SNS.DefaultSMSSenderID
	return c
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.EmailEnabled {
		if c.From == "" {
			return fmt.Errorf("integrations.aws.ses.from_email is required for email summaries")
		}
		if len(c.Recipients) == 0 {
			return fmt.Errorf("notifications.email.recipients is required for email summaries")
		}
	}
	if c.SMSEnabled && c.Phone == "" {
		return fmt.Errorf("notifications.sms.phone is required for sms alerts")
	}
	return nil
}

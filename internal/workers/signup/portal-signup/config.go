package portalsignup

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"league-signup/internal/common/browser"
	"league-signup/internal/common/config"
)

const (
	FlowParent = "parent"
	FlowAdult  = "adult"
)

type Config struct {
	BaseURL    string
	SignupPath string
	Flow       string
	Password   string
	// SessionTimeout bounds one whole signup; zero leaves it to the window.
	SessionTimeout time.Duration
	ProbeTimeout   time.Duration
	ScreenshotDir  string
}

func DefaultConfig() *Config {
	return &Config{
		SignupPath:     "/signup",
		Flow:           FlowParent,
		SessionTimeout: 10 * time.Minute,
		ProbeTimeout:   browser.DefaultProbeTimeout,
	}
}

// ConfigFromApp maps the portal and browser sections.
func ConfigFromApp(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.BaseURL = cfg.Portal.BaseURL
	if cfg.Portal.SignupPath != "" {
		c.SignupPath = cfg.Portal.SignupPath
	}
	if cfg.Portal.Flow != "" {
		c.Flow = cfg.Portal.Flow
	}
	c.Password = cfg.Portal.Password
	if cfg.Browser.SessionTimeout > 0 {
		c.SessionTimeout = config.GetDuration(cfg.Browser.SessionTimeout)
	}
	c.ScreenshotDir = cfg.Browser.ScreenshotDir
	return c
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("portal.base_url: %w", err)
	}
	if c.Flow != FlowParent && c.Flow != FlowAdult {
		return fmt.Errorf("portal.flow must be parent or adult, got %q", c.Flow)
	}
	if c.Password == "" {
		return fmt.Errorf("portal.password is required")
	}
	return nil
}

// SignupURL joins the base URL and the signup path and tags it with the flow.
func (c *Config) SignupURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	path := "/" + strings.TrimLeft(c.SignupPath, "/")
	return fmt.Sprintf("%s%s?role=%s", base, path, c.Flow)
}

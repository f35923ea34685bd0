// Package browser drives isolated browser sessions for the signup flows.
package browser

import (
	"context"
	"fmt"
	"time"

	"league-signup/internal/common/config"
	"league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
)

// Session is one isolated browser, owned by a single unit of work. Selectors are
// CSS or XPath (XPath when they start with "/" or "(").
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	Upload(ctx context.Context, selector, path string) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser. It is safe to call more than once.
	Close() error
}

// Engine hands out sessions. The session is also closed when the ctx passed to
// NewSession is cancelled, so a timed-out window tears its browsers down.
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

type Options struct {
	Engine       string
	RemoteURL    string
	Headless     bool
	ExecPath     string
	StepTimeout  time.Duration
	ExtraHeaders map[string]string
}

// OptionsFromConfig maps the browser config section.
func OptionsFromConfig(cfg config.BrowserConfig) Options {
	return Options{
		Engine:      cfg.Engine,
		RemoteURL:   cfg.RemoteURL,
		Headless:    cfg.Headless,
		ExecPath:    cfg.ExecPath,
		StepTimeout: config.GetDuration(cfg.StepTimeout),
	}
}

func NewEngine(ctx context.Context, opts Options, log logger.Logger) (Engine, error) {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 15 * time.Second
	}
	switch opts.Engine {
	case "", "chromedp":
		return NewChromedpEngine(ctx, opts, log), nil
	case "playwright":
		return NewPlaywrightEngine(opts, log)
	default:
		return nil, fmt.Errorf("unknown browser engine %q", opts.Engine)
	}
}

// DefaultProbeTimeout bounds each selector of a fallback chain.
const DefaultProbeTimeout = 2 * time.Second

// Locate returns the first selector of chain that becomes visible within probe.
// It gives up early when ctx is done.
func Locate(ctx context.Context, sess Session, element string, chain []string, probe time.Duration) (string, error) {
	if probe <= 0 {
		probe = DefaultProbeTimeout
	}
	for _, sel := range chain {
		probeCtx, cancel := context.WithTimeout(ctx, probe)
		err := sess.WaitVisible(probeCtx, sel)
		cancel()
		if err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", errors.NewElementNotFoundError(element, chain)
}

// stepContext bounds one browser action by the step timeout.
func stepContext(ctx context.Context, step time.Duration) (context.Context, context.CancelFunc) {
	if step <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, step)
}

package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
)

// PlaywrightEngine shares one Chromium between sessions; every session gets its
// own BrowserContext, so cookies and storage never leak between signups.
type PlaywrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	log     logger.Logger
}

func NewPlaywrightEngine(opts Options, log logger.Logger) (*PlaywrightEngine, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.NewBrowserSessionError(fmt.Errorf("start playwright: %w", err))
	}

	var browser playwright.Browser
	if opts.RemoteURL != "" {
		browser, err = pw.Chromium.ConnectOverCDP(opts.RemoteURL)
	} else {
		launch := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
		}
		if opts.ExecPath != "" {
			launch.ExecutablePath = playwright.String(opts.ExecPath)
		}
		browser, err = pw.Chromium.Launch(launch)
	}
	if err != nil {
		_ = pw.Stop()
		return nil, errors.NewBrowserSessionError(fmt.Errorf("launch chromium: %w", err))
	}

	log.Info("playwright engine started", map[string]interface{}{
		"version": browser.Version(),
		"remote":  opts.RemoteURL != "",
	})
	return &PlaywrightEngine{pw: pw, browser: browser, opts: opts, log: log}, nil
}

func (e *PlaywrightEngine) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if len(e.opts.ExtraHeaders) > 0 {
		ctxOpts.ExtraHttpHeaders = e.opts.ExtraHeaders
	}
	bctx, err := e.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, errors.NewBrowserSessionError(err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errors.NewBrowserSessionError(err)
	}
	page.SetDefaultTimeout(float64(e.opts.StepTimeout.Milliseconds()))

	s := &playwrightSession{bctx: bctx, page: page, step: e.opts.StepTimeout}
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s, nil
}

func (e *PlaywrightEngine) Close() error {
	var errs []string
	if err := e.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close playwright: %s", strings.Join(errs, "; "))
	}
	return nil
}

type playwrightSession struct {
	bctx playwright.BrowserContext
	page playwright.Page
	step time.Duration
	stop func() bool
	once sync.Once
}

// timeoutMs turns the tighter of ctx's deadline and the step timeout into
// playwright's millisecond timeout. Playwright calls are not ctx-aware, so a
// cancelled ctx closes the whole BrowserContext instead.
func (s *playwrightSession) timeoutMs(ctx context.Context) *float64 {
	limit := s.step
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < limit || limit <= 0 {
			limit = left
		}
	}
	if limit < time.Millisecond {
		limit = time.Millisecond
	}
	return playwright.Float(float64(limit.Milliseconds()))
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{Timeout: s.timeoutMs(ctx)})
	return err
}

func (s *playwrightSession) WaitVisible(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: s.timeoutMs(ctx),
	})
}

func (s *playwrightSession) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: s.timeoutMs(ctx)})
}

func (s *playwrightSession) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: s.timeoutMs(ctx)})
}

func (s *playwrightSession) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Locator(selector).First().TextContent(playwright.LocatorTextContentOptions{Timeout: s.timeoutMs(ctx)})
}

func (s *playwrightSession) Upload(ctx context.Context, selector, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Locator(selector).First().SetInputFiles(path, playwright.LocatorSetInputFilesOptions{Timeout: s.timeoutMs(ctx)})
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
}

func (s *playwrightSession) Close() error {
	var err error
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		err = s.bctx.Close()
	})
	return err
}

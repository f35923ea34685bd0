package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
)

// runActions is swapped in tests, where no Chrome is available.
var runActions = chromedp.Run

// ChromedpEngine starts one Chrome per session, or attaches to a remote Chrome
// when RemoteURL is set.
type ChromedpEngine struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	opts     Options
	log      logger.Logger
}

func NewChromedpEngine(ctx context.Context, opts Options, log logger.Logger) *ChromedpEngine {
	var (
		allocCtx context.Context
		cancel   context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, cancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(1366, 900),
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		allocCtx, cancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	}
	return &ChromedpEngine{allocCtx: allocCtx, cancel: cancel, opts: opts, log: log}
}

// tabOptions gives remote sessions their own browser context so that
// concurrent tabs in one remote Chrome never share cookies or storage. Local
// sessions already get a Chrome process each.
func (e *ChromedpEngine) tabOptions() []chromedp.ContextOption {
	opts := []chromedp.ContextOption{chromedp.WithLogf(func(format string, args ...interface{}) {
		e.log.Debug(fmt.Sprintf(format, args...), nil)
	})}
	if e.opts.RemoteURL != "" {
		opts = append(opts, chromedp.WithNewBrowserContext())
	}
	return opts
}

func (e *ChromedpEngine) NewSession(ctx context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(e.allocCtx, e.tabOptions()...)

	s := &chromedpSession{tabCtx: tabCtx, cancel: cancel, step: e.opts.StepTimeout}
	// Bound to ctx from here on, setup included.
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })

	// The first Run allocates the browser with the ctx it is given, and that
	// ctx must live as long as the session. Only later actions get a step
	// timeout.
	setup := []chromedp.Action{network.Enable()}
	if len(e.opts.ExtraHeaders) > 0 {
		headers := network.Headers{}
		for k, v := range e.opts.ExtraHeaders {
			headers[k] = v
		}
		setup = append(setup, network.SetExtraHTTPHeaders(headers))
	}
	if err := runActions(tabCtx, setup...); err != nil {
		_ = s.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, errors.NewBrowserSessionError(err)
	}
	return s, nil
}

func (e *ChromedpEngine) Close() error {
	e.cancel()
	return nil
}

type chromedpSession struct {
	tabCtx context.Context
	cancel context.CancelFunc
	step   time.Duration
	stop   func() bool
	once   sync.Once
}

func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := stepContext(s.tabCtx, s.step)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	// cancelling runCtx aborts the actions without closing the tab
	unlink := context.AfterFunc(ctx, cancel)
	defer unlink()

	err := runActions(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromedpSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.BySearch))
}

func (s *chromedpSession) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, value, chromedp.BySearch),
	)
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible))
}

func (s *chromedpSession) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.run(ctx, chromedp.Text(selector, &text, chromedp.BySearch, chromedp.NodeVisible))
	return text, err
}

func (s *chromedpSession) Upload(ctx context.Context, selector, path string) error {
	return s.run(ctx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.BySearch))
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.FullScreenshot(&buf, 90))
	return buf, err
}

func (s *chromedpSession) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.cancel()
	})
	return nil
}

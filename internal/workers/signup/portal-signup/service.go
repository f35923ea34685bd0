package portalsignup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"league-signup/internal/common/browser"
	"league-signup/internal/common/errors"
	"league-signup/internal/common/inbox"
	"league-signup/internal/common/logger"
	"league-signup/internal/models"
	"league-signup/pkg/registry"
)

// Service signs up one record per Execute call through its own browser session.
// It is safe for concurrent use.
type Service struct {
	config   *Config
	logger   logger.Logger
	engine   browser.Engine
	inbox    inbox.Inbox
	elements map[string]element
	// formError is optional; the default registry has one.
	formError *element
}

func NewService(deps ServiceDependencies, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Engine == nil || deps.Inbox == nil {
		return nil, fmt.Errorf("portal signup needs a browser engine and an inbox")
	}
	selectors := deps.Selectors
	if selectors == nil {
		selectors = registry.Default()
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	s := &Service{
		config:   cfg,
		logger:   log.WithFields(map[string]interface{}{"flow": cfg.Flow}),
		engine:   deps.Engine,
		inbox:    deps.Inbox,
		elements: make(map[string]element, len(requiredFields)),
	}
	for _, field := range requiredFields {
		name, chain, err := selectors.ChainFor(cfg.Flow, field)
		if err != nil {
			return nil, fmt.Errorf("selector registry: %w", err)
		}
		s.elements[field] = element{name: name, chain: chain}
	}
	if name, chain, err := selectors.ChainFor(cfg.Flow, fieldFormError); err == nil {
		s.formError = &element{name: name, chain: chain}
	}
	return s, nil
}

// Execute runs the whole signup for rec. The session is closed on every return
// path, including a panic further up the stack.
func (s *Service) Execute(ctx context.Context, rec models.SignupRecord) error {
	if s.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SessionTimeout)
		defer cancel()
	}

	sess, err := s.engine.NewSession(ctx)
	if err != nil {
		return errors.NewBrowserSessionError(err)
	}
	defer sess.Close()

	log := s.logger.WithFields(map[string]interface{}{"email": rec.Email})
	if err := s.run(ctx, sess, rec, log); err != nil {
		s.captureFailure(ctx, sess, rec, log)
		return err
	}
	return nil
}

func (s *Service) run(ctx context.Context, sess browser.Session, rec models.SignupRecord, log logger.Logger) error {
	if err := sess.Navigate(ctx, s.config.SignupURL()); err != nil {
		return errors.NewBrowserSessionError(err)
	}

	if err := s.click(ctx, sess, fieldRole); err != nil {
		return err
	}
	form := []struct{ field, value string }{
		{fieldFirstName, rec.FirstName},
		{fieldLastName, rec.LastName},
		{fieldEmail, rec.Email},
		{fieldPhone, rec.Phone},
		{fieldDateOfBirth, rec.DateOfBirth},
	}
	for _, f := range form {
		if err := s.fill(ctx, sess, f.field, f.value); err != nil {
			return err
		}
	}
	if err := s.click(ctx, sess, fieldSubmit); err != nil {
		return err
	}
	log.Debug("signup form submitted", nil)

	// the code is only mailed once the form has been accepted
	if _, err := s.locate(ctx, sess, fieldOTP); err != nil {
		return s.explain(ctx, sess, err)
	}
	code, err := s.inbox.FetchOTP(ctx, rec.Email)
	if err != nil {
		return err
	}
	if err := s.fill(ctx, sess, fieldOTP, code); err != nil {
		return err
	}
	if err := s.click(ctx, sess, fieldOTPSubmit); err != nil {
		return err
	}
	log.Debug("verification code submitted", nil)

	if err := s.fill(ctx, sess, fieldPassword, s.config.Password); err != nil {
		return s.explain(ctx, sess, err)
	}
	if err := s.fill(ctx, sess, fieldPasswordConfirm, s.config.Password); err != nil {
		return err
	}
	if err := s.click(ctx, sess, fieldPasswordSubmit); err != nil {
		return err
	}

	if _, err := s.locate(ctx, sess, fieldLanding); err != nil {
		return s.explain(ctx, sess, err)
	}
	return nil
}

func (s *Service) locate(ctx context.Context, sess browser.Session, field string) (string, error) {
	el := s.elements[field]
	return browser.Locate(ctx, sess, el.name, el.chain, s.config.ProbeTimeout)
}

func (s *Service) fill(ctx context.Context, sess browser.Session, field, value string) error {
	sel, err := s.locate(ctx, sess, field)
	if err != nil {
		return err
	}
	if err := sess.Fill(ctx, sel, value); err != nil {
		return errors.NewBrowserSessionError(err)
	}
	return nil
}

func (s *Service) click(ctx context.Context, sess browser.Session, field string) error {
	sel, err := s.locate(ctx, sess, field)
	if err != nil {
		return err
	}
	if err := sess.Click(ctx, sel); err != nil {
		return errors.NewBrowserSessionError(err)
	}
	return nil
}

// explain replaces a missing element with the portal's own error banner when
// one is showing.
func (s *Service) explain(ctx context.Context, sess browser.Session, cause error) error {
	if s.formError == nil || ctx.Err() != nil {
		return cause
	}
	sel, err := browser.Locate(ctx, sess, s.formError.name, s.formError.chain, s.config.ProbeTimeout)
	if err != nil {
		return cause
	}
	text, err := sess.Text(ctx, sel)
	if err != nil || strings.TrimSpace(text) == "" {
		return cause
	}
	return errors.NewUnexpectedPageStateError(strings.TrimSpace(text))
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// captureFailure saves a screenshot of the page the flow stopped on.
func (s *Service) captureFailure(ctx context.Context, sess browser.Session, rec models.SignupRecord, log logger.Logger) {
	if s.config.ScreenshotDir == "" {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	png, err := sess.Screenshot(shotCtx)
	if err != nil {
		log.Warn("failure screenshot not taken", map[string]interface{}{"error": err})
		return
	}
	if err := os.MkdirAll(s.config.ScreenshotDir, 0o755); err != nil {
		log.Warn("failure screenshot not saved", map[string]interface{}{"error": err})
		return
	}
	name := fmt.Sprintf("%s-%d.png", unsafeFileChars.ReplaceAllString(rec.Email, "_"), time.Now().UnixNano())
	path := filepath.Join(s.config.ScreenshotDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Warn("failure screenshot not saved", map[string]interface{}{"error": err})
		return
	}
	log.Info("failure screenshot saved", map[string]interface{}{"path": path})
}

// Package inbox retrieves the one-time verification codes mailed during signup.
package inbox

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"league-signup/internal/common/config"
	"league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
)

// Inbox returns the verification code sent to email, waiting for it to arrive.
type Inbox interface {
	FetchOTP(ctx context.Context, email string) (string, error)
}

// Source returns the newest text addressed to email. found is false while nothing
// has arrived yet.
type Source interface {
	Latest(ctx context.Context, email string) (text string, found bool, err error)
}

// ConsumedSet remembers which code each address already used, so a stale mail
// is never submitted twice. Different addresses may receive the same code.
type ConsumedSet interface {
	// Claim reports true when code had not been claimed for email before.
	Claim(ctx context.Context, email, code string) (bool, error)
}

// Poller polls a Source until a fresh code appears or MaxWait elapses.
type Poller struct {
	source   Source
	consumed ConsumedSet
	pattern  *regexp.Regexp
	interval time.Duration
	maxWait  time.Duration
	log      logger.Logger
}

func NewPoller(source Source, consumed ConsumedSet, cfg config.InboxConfig, log logger.Logger) (*Poller, error) {
	pattern, err := regexp.Compile(cfg.OTPPattern)
	if err != nil {
		return nil, fmt.Errorf("inbox.otp_pattern: %w", err)
	}
	if pattern.NumSubexp() < 1 {
		return nil, fmt.Errorf("inbox.otp_pattern must have a capture group")
	}
	if consumed == nil {
		consumed = NewMemoryConsumedSet()
	}
	interval := config.GetDuration(cfg.PollInterval)
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		source:   source,
		consumed: consumed,
		pattern:  pattern,
		interval: interval,
		maxWait:  config.GetDuration(cfg.MaxWait),
		log:      log,
	}, nil
}

func (p *Poller) FetchOTP(ctx context.Context, email string) (string, error) {
	deadline := time.Now().Add(p.maxWait)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; ; attempt++ {
		code, err := p.try(ctx, email)
		if err == nil && code != "" {
			p.log.Debug("verification code received", map[string]interface{}{
				"email":   email,
				"attempt": attempt,
			})
			return code, nil
		}
		if err != nil {
			lastErr = err
			p.log.Warn("inbox lookup failed", map[string]interface{}{
				"email":   email,
				"attempt": attempt,
				"error":   err,
			})
		}

		if time.Now().After(deadline) {
			if lastErr != nil {
				return "", errors.NewOTPFetchFailedError(email, lastErr)
			}
			return "", errors.NewOTPNotFoundError(email, p.maxWait)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) try(ctx context.Context, email string) (string, error) {
	text, found, err := p.source.Latest(ctx, email)
	if err != nil || !found {
		return "", err
	}
	for _, m := range p.pattern.FindAllStringSubmatch(text, -1) {
		fresh, err := p.consumed.Claim(ctx, email, m[1])
		if err != nil {
			return "", err
		}
		if fresh {
			return m[1], nil
		}
	}
	return "", nil
}

// MemoryConsumedSet is a process-local ConsumedSet.
type MemoryConsumedSet struct {
	mu    sync.Mutex
	codes map[claim]struct{}
}

type claim struct{ email, code string }

func NewMemoryConsumedSet() *MemoryConsumedSet {
	return &MemoryConsumedSet{codes: map[claim]struct{}{}}
}

func (m *MemoryConsumedSet) Claim(_ context.Context, email, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := claim{email: email, code: code}
	if _, ok := m.codes[key]; ok {
		return false, nil
	}
	m.codes[key] = struct{}{}
	return true, nil
}

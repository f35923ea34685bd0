package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"league-signup/internal/common/config"
	stderrors "league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
)

// scriptedSource returns its responses in order and repeats the last one.
type scriptedSource struct {
	mu    sync.Mutex
	calls int
	steps []step
}

type step struct {
	text  string
	found bool
	err   error
}

func (s *scriptedSource) Latest(context.Context, string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].text, s.steps[i].found, s.steps[i].err
}

func inboxConfig(maxWait int) config.InboxConfig {
	return config.InboxConfig{PollInterval: 5, MaxWait: maxWait, OTPPattern: `\b(\d{6})\b`}
}

func TestPoller_FetchOTP(t *testing.T) {
	tests := []struct {
		name     string
		steps    []step
		maxWait  int
		want     string
		wantCode stderrors.ErrorCode
	}{
		{
			name:  "code on first poll",
			steps: []step{{text: "Your verification code is 482913", found: true}},
			want:  "482913",
		},
		{
			name: "code arrives after a few polls",
			steps: []step{
				{found: false},
				{found: false},
				{text: "Subject: Verify\nUse 104233 to finish signing up", found: true},
			},
			maxWait: 1000,
			want:    "104233",
		},
		{
			name:     "nothing arrives",
			steps:    []step{{found: false}},
			maxWait:  30,
			wantCode: stderrors.ErrCodeOTPNotFound,
		},
		{
			name:     "inbox keeps failing",
			steps:    []step{{err: errors.New("503 mailbox unavailable")}},
			maxWait:  30,
			wantCode: stderrors.ErrCodeOTPFetchFailed,
		},
		{
			name:     "message without a code",
			steps:    []step{{text: "Welcome to the league!", found: true}},
			maxWait:  30,
			wantCode: stderrors.ErrCodeOTPNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPoller(&scriptedSource{steps: tt.steps}, nil, inboxConfig(tt.maxWait), logger.NewTestLogger(t))
			require.NoError(t, err)

			code, err := p.FetchOTP(context.Background(), "kid@example.com")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, stderrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestPoller_SkipsConsumedCodes(t *testing.T) {
	consumed := NewMemoryConsumedSet()
	_, _ = consumed.Claim(context.Background(), "kid@example.com", "111111")

	src := &scriptedSource{steps: []step{{text: "old 111111, new 222222", found: true}}}
	p, err := NewPoller(src, consumed, inboxConfig(100), logger.NewNoOpLogger())
	require.NoError(t, err)

	code, err := p.FetchOTP(context.Background(), "kid@example.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", code)
}

func TestPoller_SameCodeForDifferentAddresses(t *testing.T) {
	src := &scriptedSource{steps: []step{{text: "Your code is 123456", found: true}}}
	p, err := NewPoller(src, nil, inboxConfig(100), logger.NewNoOpLogger())
	require.NoError(t, err)

	a, err := p.FetchOTP(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", a)

	b, err := p.FetchOTP(context.Background(), "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", b)

	_, err = p.FetchOTP(context.Background(), "a@example.com")
	assert.Equal(t, stderrors.ErrCodeOTPNotFound, stderrors.CodeOf(err), "a@ already used this code")
}

func TestPoller_HonoursCancellation(t *testing.T) {
	src := &scriptedSource{steps: []step{{found: false}}}
	p, err := NewPoller(src, nil, inboxConfig(60000), logger.NewNoOpLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.FetchOTP(ctx, "kid@example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewPoller_RejectsPatternWithoutGroup(t *testing.T) {
	cfg := inboxConfig(10)
	cfg.OTPPattern = `\d{6}`
	_, err := NewPoller(&scriptedSource{}, nil, cfg, logger.NewNoOpLogger())
	require.Error(t, err)
}

package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"league-signup/internal/common/config"
	"league-signup/internal/common/database"
	"league-signup/internal/common/logger"
	"league-signup/internal/common/resultlog"
)

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond, logger.NewTestLogger(t), "dial")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("connection refused")
	}, 3, time.Millisecond, logger.NewNoOpLogger(), "dial")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "dial failed after 3 attempts")
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, func() error { return errors.New("down") }, 10, time.Hour, logger.NewNoOpLogger(), "dial")
	assert.ErrorIs(t, err, context.Canceled)
}

func newConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.Harness.ResultPath = filepath.Join(t.TempDir(), "signup_results.csv")
	cfg.Harness.ResultBackends = []string{"csv"}
	cfg.Inbox.Provider = "http"
	cfg.Inbox.BaseURL = "http://localhost:8025"
	cfg.Inbox.OTPPattern = `\b(\d{6})\b`
	cfg.Inbox.PollInterval = 100
	cfg.Inbox.MaxWait = 1000
	return cfg
}

func TestSinkFor(t *testing.T) {
	c := &Components{Config: newConfig(t), Logger: logger.NewNoOpLogger()}
	require.NoError(t, c.connectStores(context.Background()))

	sink := c.SinkFor("run-1")
	assert.Equal(t, "csv", sink.Name())
	assert.Same(t, sink, c.SinkFor("run-2"), "csv sink must be shared across runs")
}

func TestBuildInbox_RedisProvider(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := newConfig(t)
	cfg.Inbox.Provider = "redis"
	cfg.Database.Redis.Address = mr.Addr()

	c := &Components{Config: cfg, Logger: logger.NewNoOpLogger()}
	require.NoError(t, c.connectStores(context.Background()))
	defer c.Close()

	in, err := c.buildInbox()
	require.NoError(t, err)

	require.NoError(t, mr.Set("otp:ava@example.com", "Your code is 482913"))
	code, err := in.FetchOTP(context.Background(), "ava@example.com")
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
	assert.NoError(t, c.Ready(context.Background()))
}

func TestBuildInbox_RedisWithoutClient(t *testing.T) {
	cfg := newConfig(t)
	cfg.Inbox.Provider = "redis"
	c := &Components{Config: cfg, Logger: logger.NewNoOpLogger()}

	_, err := c.buildInbox()
	assert.Error(t, err)
}

func TestBuildNotifier_DisabledIsNil(t *testing.T) {
	c := &Components{Config: newConfig(t), Logger: logger.NewNoOpLogger()}
	n, err := c.buildNotifier(context.Background())
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestSinkFor_FansOutToPostgres(t *testing.T) {
	c := &Components{Config: newConfig(t), Logger: logger.NewNoOpLogger()}
	c.csv = resultlog.NewCSVSink(c.Config.Harness.ResultPath)
	c.postgres = &database.PostgresClient{}

	assert.Equal(t, "multi(csv,postgres)", c.SinkFor("run-1").Name())
}

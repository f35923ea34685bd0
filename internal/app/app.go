// Package app assembles the harness components from configuration. Both the
// one-shot CLI and the Zeebe worker manager build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"league-signup/internal/common/aws"
	"league-signup/internal/common/browser"
	"league-signup/internal/common/config"
	"league-signup/internal/common/database"
	commonhttp "league-signup/internal/common/http"
	"league-signup/internal/common/inbox"
	"league-signup/internal/common/logger"
	"league-signup/internal/common/observability"
	"league-signup/internal/common/resultlog"
	runsummary "league-signup/internal/workers/communication/run-summary"
	batchsignup "league-signup/internal/workers/signup/batch-signup"
	portalsignup "league-signup/internal/workers/signup/portal-signup"
	"league-signup/pkg/registry"
)

type Components struct {
	Config        *config.Config
	Logger        logger.Logger
	Observability *observability.Observability
	Engine        browser.Engine
	Inbox         inbox.Inbox
	Unit          *portalsignup.Service
	// Notifier is nil when no notification channel is enabled.
	Notifier batchsignup.Notifier

	csv      *resultlog.CSVSink
	postgres *database.PostgresClient
	es       *database.ElasticsearchClient
	redis    *database.RedisClient
}

// Build connects every backend the configuration enables. On error, whatever
// was already opened is closed again.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, serviceName string) (c *Components, err error) {
	c = &Components{
		Config:        cfg,
		Logger:        log,
		Observability: observability.New(serviceName),
	}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if err = c.connectStores(ctx); err != nil {
		return c, err
	}
	if c.Inbox, err = c.buildInbox(); err != nil {
		return c, err
	}

	selectors, err := registry.LoadOrDefault(cfg.Browser.SelectorsPath)
	if err != nil {
		return c, fmt.Errorf("load selector registry: %w", err)
	}

	if c.Engine, err = browser.NewEngine(ctx, browser.OptionsFromConfig(cfg.Browser), log); err != nil {
		return c, fmt.Errorf("start browser engine: %w", err)
	}

	c.Unit, err = portalsignup.NewService(portalsignup.ServiceDependencies{
		Logger:    log,
		Engine:    c.Engine,
		Inbox:     c.Inbox,
		Selectors: selectors,
	}, portalsignup.ConfigFromApp(cfg))
	if err != nil {
		return c, fmt.Errorf("portal signup: %w", err)
	}

	if c.Notifier, err = c.buildNotifier(ctx); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Components) connectStores(ctx context.Context) error {
	cfg := c.Config
	if cfg.Harness.HasBackend("csv") {
		c.csv = resultlog.NewCSVSink(cfg.Harness.ResultPath)
	}

	if cfg.Harness.HasBackend("postgres") {
		err := RetryWithBackoff(ctx, func() error {
			var err error
			c.postgres, err = database.NewPostgres(ctx, cfg.Database.Postgres)
			return err
		}, 5, 2*time.Second, c.Logger, "PostgreSQL connection")
		if err != nil {
			return err
		}
		c.Logger.Info("PostgreSQL connected successfully", nil)
	}

	if cfg.Harness.HasBackend("elasticsearch") {
		err := RetryWithBackoff(ctx, func() error {
			var err error
			if c.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
				return err
			}
			return c.es.Ping(ctx)
		}, 5, 2*time.Second, c.Logger, "Elasticsearch connection")
		if err != nil {
			return err
		}
		c.Logger.Info("Elasticsearch connected successfully", nil)
	}

	if cfg.Database.Redis.Address != "" {
		var err error
		if c.redis, err = database.NewRedis(cfg.Database.Redis); err != nil {
			return err
		}
		err = RetryWithBackoff(ctx, func() error {
			return c.redis.Ping(ctx)
		}, 5, 2*time.Second, c.Logger, "Redis connection")
		if err != nil {
			return err
		}
		c.Logger.Info("Redis connected successfully", nil)
	}
	return nil
}

func (c *Components) buildInbox() (inbox.Inbox, error) {
	cfg := c.Config

	var consumed inbox.ConsumedSet
	if c.redis != nil {
		// claims outlive any single fetch by a wide margin
		consumed = inbox.NewRedisConsumedSet(c.redis.Client, 10*config.GetDuration(cfg.Inbox.MaxWait))
	}

	var source inbox.Source
	switch cfg.Inbox.Provider {
	case "redis":
		if c.redis == nil {
			return nil, fmt.Errorf("redis inbox needs database.redis.address")
		}
		source = inbox.NewRedisSource(c.redis.Client)
	default:
		client := commonhttp.NewClient(cfg.Inbox.BaseURL, cfg.Inbox.APIKey, 10*time.Second)
		source = inbox.NewMailpitSource(client)
	}

	poller, err := inbox.NewPoller(source, consumed, cfg.Inbox, c.Logger)
	if err != nil {
		return nil, err
	}
	return poller, nil
}

func (c *Components) buildNotifier(ctx context.Context) (batchsignup.Notifier, error) {
	cfg := c.Config
	summaryCfg := runsummary.ConfigFromApp(cfg)
	if !summaryCfg.EmailEnabled && !summaryCfg.SMSEnabled {
		return nil, nil
	}

	deps := runsummary.ServiceDependencies{Logger: c.Logger}
	switch {
	case c.postgres != nil:
		deps.Counter = c.postgres
	case c.es != nil:
		deps.Counter = c.es
	}
	if summaryCfg.EmailEnabled {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		deps.Email = ses
	}
	if summaryCfg.SMSEnabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		deps.SMS = sns
	}

	svc, err := runsummary.NewService(deps, summaryCfg)
	if err != nil {
		return nil, fmt.Errorf("run summary: %w", err)
	}
	return svc, nil
}

// SinkFor returns the configured result backends for one run. The CSV sink is
// shared across runs so that all appends to the file go through one mutex.
func (c *Components) SinkFor(runID string) resultlog.Sink {
	var sinks []resultlog.Sink
	if c.csv != nil {
		sinks = append(sinks, c.csv)
	}
	if c.postgres != nil {
		sinks = append(sinks, resultlog.NewPostgresSink(c.postgres.DB, runID))
	}
	if c.es != nil {
		sinks = append(sinks, resultlog.NewElasticsearchSink(c.es.Client, c.es.Index, runID))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return resultlog.NewMultiSink(sinks...)
}

// Ready pings every connected backend.
func (c *Components) Ready(ctx context.Context) error {
	if c.postgres != nil {
		if err := c.postgres.Ping(ctx); err != nil {
			return err
		}
	}
	if c.es != nil {
		if err := c.es.Ping(ctx); err != nil {
			return err
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c *Components) Close() {
	if c.Engine != nil {
		if err := c.Engine.Close(); err != nil {
			c.Logger.Warn("browser engine close failed", map[string]interface{}{"error": err})
		}
	}
	if c.csv != nil {
		_ = c.csv.Close()
	}
	if c.postgres != nil {
		_ = c.postgres.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.Observability != nil {
		c.Observability.Shutdown()
	}
}

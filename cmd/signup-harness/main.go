// cmd/signup-harness/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"league-signup/internal/app"
	"league-signup/internal/common/config"
	"league-signup/internal/common/logger"
	batchsignup "league-signup/internal/workers/signup/batch-signup"
)

const (
	exitOK         = 0
	exitError      = 1
	exitIncomplete = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config.yaml (default: configs/config.yaml lookup)")
	inputPath := flag.String("input", "", "Signup CSV, overrides harness.input_path")
	engine := flag.String("engine", "", "Browser engine (chromedp or playwright), overrides browser.engine")
	batchSize := flag.Int("batch-size", 0, "Records per window, overrides harness.batch_size")
	grace := flag.Duration("grace", 30*time.Second, "How long to wait for abandoned workers before exiting")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return exitError
	}
	if *inputPath != "" {
		cfg.Harness.InputPath = *inputPath
	}
	if *engine != "" {
		cfg.Browser.Engine = *engine
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := app.Build(ctx, cfg, log, "signup-harness")
	if err != nil {
		zapLog.Error("startup failed", zap.Error(err))
		return exitError
	}
	defer comps.Close()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address, zapLog)
	}

	handler, err := batchsignup.NewHandler(batchsignup.HandlerOptions{
		Config:        batchsignup.ConfigFromApp(cfg),
		Logger:        log,
		SinkFor:       comps.SinkFor,
		Unit:          comps.Unit,
		Observability: comps.Observability,
		Notifier:      comps.Notifier,
	})
	if err != nil {
		zapLog.Error("handler setup failed", zap.Error(err))
		return exitError
	}

	input := &batchsignup.Input{InputPath: cfg.Harness.InputPath}
	if *batchSize > 0 {
		input.BatchSize = batchSize
	}

	out, err := handler.Execute(ctx, input)

	// Workers abandoned by a timed-out window still hold browser sessions.
	graceCtx, cancel := context.WithTimeout(context.Background(), *grace)
	defer cancel()
	if !handler.AwaitStragglers(graceCtx) {
		zapLog.Warn("abandoned workers still running at exit", zap.Duration("grace", *grace))
	}

	if err != nil {
		if errors.Is(err, batchsignup.ErrEmptyInput) {
			zapLog.Error("no signup records to process", zap.String("input", cfg.Harness.InputPath))
		} else {
			zapLog.Error("run failed", zap.Error(err))
		}
		return exitError
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)

	if ctx.Err() != nil || out.Failed+out.TimedOut > 0 || out.SinkErrors > 0 {
		return exitIncomplete
	}
	return exitOK
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("Metrics server listening", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/albachteng/schedcore/internal/api"
	"github.com/albachteng/schedcore/internal/clock"
	"github.com/albachteng/schedcore/internal/config"
	"github.com/albachteng/schedcore/internal/jobs"
	"github.com/albachteng/schedcore/internal/logging"
	"github.com/albachteng/schedcore/internal/scheduler"
	"github.com/albachteng/schedcore/internal/shutdown"
	"github.com/albachteng/schedcore/internal/sink"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Text:       cfg.Logging.Text,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	coord := shutdown.NewCoordinator(cfg.Scheduler.DrainTimeoutDuration()+10*time.Second, logger)

	resultSink, history, err := buildSink(cfg.Sink, coord)
	if err != nil {
		logger.Error("failed to set up result sink", "error", err)
		os.Exit(1)
	}

	registry := jobs.NewRegistry()
	registerBuiltins(registry, logger)

	sched := scheduler.New(scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		QueueSize:      cfg.Scheduler.QueueSize,
		MisfireGrace:   cfg.Scheduler.MisfireGraceDuration(),
		OverlapBackoff: cfg.Scheduler.OverlapBackoffDuration(),
	}, clock.System(), resultSink, logger)

	sched.Start(context.Background())
	coord.Register("scheduler", func(ctx context.Context) error {
		return sched.Shutdown(cfg.Scheduler.DrainTimeoutDuration())
	})

	if err := registerConfiguredJobs(cfg.Jobs, registry, sched); err != nil {
		logger.Error("failed to register configured jobs", "error", err)
		coord.Shutdown()
		coord.Wait()
		os.Exit(1)
	}

	srv := api.NewServer(sched, registry, history, logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}
	coord.Register("http", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})

	go func() {
		logger.Info("server starting", "address", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			coord.Shutdown()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", "signal", sig.String())
		coord.Shutdown()
	}()

	coord.Wait()
	if errs := coord.Errs(); len(errs) > 0 {
		for _, err := range errs {
			logger.Error("shutdown error", "error", err)
		}
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func buildSink(cfg config.SinkConfig, coord *shutdown.Coordinator) (sink.Sink, sink.Reader, error) {
	switch cfg.Type {
	case "", "memory":
		mem := sink.NewMemorySink(cfg.Capacity)
		return mem, mem, nil
	case "sqlite":
		sq, err := sink.NewSQLiteSink(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		coord.Register("sink", func(ctx context.Context) error {
			return sq.Close()
		})
		return sq, sq, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// registerBuiltins installs the work functions jobs can be configured with.
func registerBuiltins(registry *jobs.Registry, logger *slog.Logger) {
	registry.MustRegister("heartbeat", func(ctx context.Context) error {
		logger.Info("heartbeat")
		return nil
	})
	registry.MustRegister("noop", func(ctx context.Context) error {
		return nil
	})
	registry.MustRegister("sleep_1s", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func registerConfiguredJobs(configured []config.JobConfig, registry *jobs.Registry, sched *scheduler.Scheduler) error {
	for _, jc := range configured {
		run, err := registry.Get(jc.Work)
		if err != nil {
			return fmt.Errorf("job %q: %w", jc.ID, err)
		}

		misfire, err := jobs.ParseMisfirePolicy(jc.MisfirePolicy)
		if err != nil {
			return fmt.Errorf("job %q: %w", jc.ID, err)
		}

		trig, err := jc.Trigger.Build(time.Now())
		if err != nil {
			return fmt.Errorf("job %q: %w", jc.ID, err)
		}

		job := jobs.Job{
			ID:           jobs.ID(jc.ID),
			Name:         jc.Name,
			Run:          run,
			Timeout:      jc.TimeoutDuration(),
			Misfire:      misfire,
			AllowOverlap: jc.AllowOverlap,
			MaxRetries:   jc.MaxRetries,
		}
		if _, err := sched.Register(job, trig); err != nil {
			return fmt.Errorf("job %q: %w", jc.ID, err)
		}
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/radar-composite/internal/api/http"
	"github.com/i474232898/radar-composite/internal/config"
	"github.com/i474232898/radar-composite/internal/geocode"
	"github.com/i474232898/radar-composite/internal/logging"
	"github.com/i474232898/radar-composite/internal/metrics"
	"github.com/i474232898/radar-composite/internal/scheduler"
)

const usage = `usage: radar-composite [flags] <command> [args]

commands:
  ingest            download the newest snapshot if not already present
  query LAT LON     print the value at a point for every retained snapshot
  sweep             evict snapshots older than the retention window
  serve             run the scheduler and the HTTP API

flags:
`

func main() {
	envFile := flag.String("env-file", "", "dotenv file to load before reading the environment")
	debug := flag.Bool("debug", false, "enable development logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	// Stop at the command so negative coordinates are not read as flags.
	flag.CommandLine.SetInterspersed(false)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log, args); err != nil {
		log.Errorw("command failed", "command", args[0], "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *zap.SugaredLogger, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "ingest":
		service, err := build(cfg, nil, log)
		if err != nil {
			return err
		}
		res, err := service.IngestLatest(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "query":
		if len(args) != 3 {
			return fmt.Errorf("query needs LAT and LON")
		}
		lat, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: %w", args[1], err)
		}
		lon, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: %w", args[2], err)
		}
		service, err := build(cfg, nil, log)
		if err != nil {
			return err
		}
		samples, err := service.SamplePoint(ctx, lat, lon)
		if err != nil {
			return err
		}
		return printJSON(samples)

	case "sweep":
		service, err := build(cfg, nil, log)
		if err != nil {
			return err
		}
		return printJSON(service.SweepExpired(ctx))

	case "serve":
		return serve(ctx, cfg, log)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context, cfg *config.AppConfig, log *zap.SugaredLogger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service, err := build(cfg, registry, log)
	if err != nil {
		return err
	}

	// Scheduler that periodically ingests and sweeps.
	sched := scheduler.New(service, cfg.IngestInterval, cfg.SweepInterval, cfg.HTTPTimeout*2, log.Named("scheduler"))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "radar-composite",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		names, err := service.Artifacts()
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "artifact store unavailable")
		}
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "radar-composite",
			"artifacts": len(names),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(registry)))

	var resolver geocode.Resolver
	if cfg.GeocoderAPIKey != "" {
		resolver = geocode.NewGoogle(cfg.GeocoderAPIKey)
	}
	httpapi.RegisterRoutes(app, service, resolver)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Warnw("fiber server stopped", "error", err)
		}
	}()
	log.Infow("serving", "port", cfg.Port, "gridDir", cfg.GridDir, "retention", cfg.Retention)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warnw("error during shutdown", "error", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tmaly1980/banked/internal/amqp"
	"github.com/tmaly1980/banked/internal/config"
	"github.com/tmaly1980/banked/internal/core"
	"github.com/tmaly1980/banked/internal/dates"
	"github.com/tmaly1980/banked/internal/engine"
	"github.com/tmaly1980/banked/internal/export/sheets"
	"github.com/tmaly1980/banked/internal/httpapi"
	applog "github.com/tmaly1980/banked/internal/log"
	"github.com/tmaly1980/banked/internal/storage"
)

func main() {
	// Load .env for local development; ignored in production.
	_ = godotenv.Load()
	applog.Setup()
	logger := applog.With("app")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to open repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without change notifications", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	codec := dates.NewCodec()
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Error("invalid timezone", "zone", cfg.Timezone, "error", err)
			os.Exit(1)
		}
		codec = dates.NewCodecIn(loc)
	}

	aggregators := make(map[core.EventKind]*engine.Aggregator, 2)
	for _, spec := range []engine.KindSpec{engine.PaycheckSpec, engine.DepositSpec} {
		agg, err := engine.New(engine.Config{
			Spec:   spec,
			Store:  repo,
			UserID: cfg.UserID,
			Codec:  codec,
			Policy: engine.MergePolicy(cfg.MergePolicy),
		})
		if err != nil {
			logger.Error("failed to build aggregator", "kind", spec.Kind, "error", err)
			os.Exit(1)
		}
		aggregators[spec.Kind] = agg
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initial load. A failure here is not fatal: the list stays empty
	// and the next refresh retries via the schedule or the API.
	for kind, agg := range aggregators {
		if err := agg.Refresh(ctx); err != nil {
			logger.Warn("initial refresh failed", "kind", kind, "error", err)
		} else {
			logger.Info("initial refresh complete", "kind", kind, "instances", len(agg.Instances()))
		}
	}

	var exporter *sheets.Exporter
	if cfg.SheetsSpreadsheetID != "" {
		exporter, err = sheets.NewFromEnv(ctx, cfg.SheetsSpreadsheetID, cfg.SheetsSheetName)
		if err != nil {
			logger.Warn("sheet export disabled", "error", err)
			exporter = nil
		}
	}

	// The rolling window moves with "now", so the merged list needs
	// periodic recomputation even when nothing was written.
	schedule := cron.New()
	_, err = schedule.AddFunc(cfg.RefreshSchedule, func() {
		for kind, agg := range aggregators {
			if err := agg.Refresh(ctx); err != nil {
				logger.Warn("scheduled refresh failed", "kind", kind, "error", err)
				continue
			}
			if exporter != nil {
				if err := exporter.Append(ctx, kind, agg.Instances()); err != nil {
					logger.Warn("sheet export failed", "kind", kind, "error", err)
				}
			}
		}
	})
	if err != nil {
		logger.Error("invalid refresh schedule", "schedule", cfg.RefreshSchedule, "error", err)
		os.Exit(1)
	}
	schedule.Start()
	defer schedule.Stop()

	srv := httpapi.NewServer(":"+cfg.Port, repo, aggregators, notifier(amqpClient), cfg.UserID, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting banked server", "port", cfg.Port, "user", cfg.UserID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.Consume(gctx, func(ctx context.Context, msg *amqp.RecordChangedMessage) error {
				agg, ok := aggregators[msg.Kind]
				if !ok {
					slog.WarnContext(ctx, "change notification for unknown kind", "kind", msg.Kind)
					return nil
				}
				return agg.Refresh(ctx)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

// notifier avoids handing a typed-nil *amqp.Client to the server.
func notifier(c *amqp.Client) httpapi.Notifier {
	if c == nil {
		return nil
	}
	return c
}

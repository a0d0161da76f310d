// CLAUDE:SUMMARY CLI entry point: log in, collect uncontacted connections, run the capped outreach loop, record every outcome.
// Command reachout sends a templated introduction to connections that have
// not been contacted before.
//
// Configuration comes from the YAML file named by REACHOUT_CONFIG (default
// reachout.yaml, optional) and the environment:
//
//	LINKEDIN_EMAIL, LINKEDIN_PASSWORD   account credentials
//	OPENAI_API                          completion API token
//	LOG_LEVEL                           debug | info | warn | error
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/reachout/browser"
	"github.com/hazyhaar/reachout/classifier"
	"github.com/hazyhaar/reachout/collector"
	"github.com/hazyhaar/reachout/config"
	"github.com/hazyhaar/reachout/dbopen"
	"github.com/hazyhaar/reachout/exclusion"
	"github.com/hazyhaar/reachout/journal"
	"github.com/hazyhaar/reachout/navigator"
	"github.com/hazyhaar/reachout/outreach"
	"github.com/hazyhaar/reachout/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("reachout: config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("reachout: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) (err error) {
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := exclusion.Open(cfg.Exclusion)
	if err != nil {
		return err
	}
	defer store.Close()

	snapshot, err := store.Load(ctx)
	if err != nil {
		return err
	}
	logger.Info("reachout: exclusion set loaded",
		"backend", cfg.Exclusion.Backend, "path", cfg.Exclusion.Path, "excluded", len(snapshot))

	reporters := outreach.MultiReporter{outreach.LogReporter{Logger: logger}}

	var (
		runID string
		sum   outreach.Summary
	)
	if cfg.Journal.Path != "" {
		db, oerr := dbopen.Open(cfg.Journal.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(journal.Schema))
		if oerr != nil {
			return fmt.Errorf("reachout: journal: %w", oerr)
		}
		defer db.Close()

		j := journal.New(db, journal.WithLogger(logger))
		id, berr := j.BeginRun(ctx)
		if berr != nil {
			return berr
		}
		runID = id
		reporters = append(reporters, j)
		defer func() {
			if err != nil && sum.Fatal == nil {
				sum.Fatal = err
			}
			if jerr := j.EndRun(context.WithoutCancel(ctx), sum); jerr != nil {
				logger.Warn("reachout: journal end run", "run_id", runID, "error", jerr)
			}
		}()
	}

	tracker := status.NewTracker(runID)
	reporters = append(reporters, tracker)
	if cfg.Status.Addr != "" {
		srv, err := status.Listen(cfg.Status.Addr, status.Handler(tracker), logger)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("reachout: status shutdown", "error", err)
			}
		}()
	}

	bcfg := cfg.Browser
	bcfg.Logger = logger
	mgr := browser.NewManager(bcfg)
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	page, err := mgr.NewPage()
	if err != nil {
		return err
	}
	sess := browser.NewSession(page, browser.SessionConfig{
		Selectors: cfg.Selectors,
		Timeouts:  cfg.Timeouts,
		Logger:    logger,
	})

	if err := sess.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return err
	}
	if err := sess.OpenConnections(ctx); err != nil {
		return err
	}

	col, err := collector.New(store, collector.Config{
		Selector:      cfg.Collector.Selector,
		Attr:          cfg.Collector.Attr,
		BaseURL:       cfg.Collector.BaseURL,
		MaxExpansions: cfg.Collector.MaxExpansions,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	candidates, err := col.Collect(ctx, sess)
	if err != nil {
		return err
	}

	nav := navigator.New(sess, navigator.Config{
		MaxAttempts: cfg.Navigator.MaxAttempts,
		BaseDelay:   cfg.Navigator.BaseDelay,
		Logger:      logger,
	})

	ccfg := cfg.Classifier
	ccfg.Logger = logger
	cls := classifier.New(classifier.NewOpenAIClient(ccfg), logger)

	orch := outreach.New(store, nav, sess, cls, outreach.Config{
		MaxPerRun: cfg.Outreach.MaxPerRun,
		Pause:     cfg.Outreach.Pause,
		Reporter:  reporters,
		Logger:    logger,
	})

	sum, err = orch.Run(ctx, candidates)
	if errors.Is(err, outreach.ErrSessionLost) {
		logger.Error("reachout: session lost, log in again before the next run")
	}
	return err
}

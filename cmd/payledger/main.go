package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PayLedger/internal/core"
	"PayLedger/internal/event"
	"PayLedger/internal/ingestion"
	"PayLedger/internal/ledger"
	"PayLedger/internal/observability"
	"PayLedger/internal/persistence"
	"PayLedger/internal/report"
)

// Config holds serve-mode configuration, loaded from environment
// variables.
type Config struct {
	PostgresDSN   string
	NATSURL       string
	MetricsAddr   string
	MigrationsDir string
	RawChanSize   int
	EventChanSize int
}

func DefaultConfig() Config {
	return Config{
		PostgresDSN:   os.Getenv("PAY_POSTGRES_DSN"), // empty = in-memory state
		NATSURL:       envOrDefault("PAY_NATS_URL", "nats://localhost:4222"),
		MetricsAddr:   envOrDefault("PAY_METRICS_ADDR", ":9091"),
		MigrationsDir: envOrDefault("PAY_MIGRATIONS_DIR", "migrations"),
		RawChanSize:   envIntOrDefault("PAY_RAW_CHAN_SIZE", 4096),
		EventChanSize: envIntOrDefault("PAY_EVENT_CHAN_SIZE", 4096),
	}
}

func main() {
	serve := flag.Bool("serve", false, "run as a service consuming events from NATS")
	debug := flag.Bool("debug", false, "report rejected events on stderr (one-shot mode)")
	flag.Parse()

	if *serve {
		if err := runServe(DefaultConfig()); err != nil {
			fmt.Fprintf(os.Stderr, "payledger: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: payledger [-debug] <events.csv>")
		fmt.Fprintln(os.Stderr, "       payledger -serve")
		os.Exit(2)
	}

	if err := runOneShot(flag.Arg(0), *debug, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "payledger: %v\n", err)
		os.Exit(1)
	}
}

// runOneShot reads one CSV document, drives the in-memory ledger, and
// writes the balance snapshot to stdout. With debug enabled, rejected
// events are drained to stderr on a separate goroutine.
func runOneShot(path string, debug bool, stdout, stderr io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := ingestion.NewCSVSource(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	log := observability.NewLoggerTo(stderr, "payledger")
	state := ledger.NewMemory()

	var sink *core.ErrorSink
	var drain sync.WaitGroup
	if debug {
		sink = core.NewErrorSink(16)
		drain.Add(1)
		go func() {
			defer drain.Done()
			for rejection := range sink.Reports() {
				fmt.Fprintln(stderr, rejection)
			}
		}()
	}

	ctx := context.Background()
	events := make(chan event.Event, 256)

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- src.Stream(ctx, events, log)
	}()

	driver := core.NewDriver(state, sink, nil)
	if err := driver.Run(ctx, events); err != nil {
		return err
	}
	if err := <-streamErr; err != nil {
		return err
	}
	drain.Wait()

	return report.WriteSnapshot(ctx, stdout, state)
}

// runServe consumes events from NATS JetStream into the same driver,
// backed by Postgres when PAY_POSTGRES_DSN is set.
func runServe(cfg Config) error {
	log := observability.NewLogger("payledger")
	log.Info().Msg("starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- State backing ---
	var state ledger.State
	var pg *persistence.Postgres
	if cfg.PostgresDSN != "" {
		var err error
		pg, err = persistence.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()

		if err := persistence.NewMigrator(pg.DB(), cfg.MigrationsDir).Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		state = pg
		log.Info().Msg("postgres state ready")
	} else {
		state = ledger.NewMemory()
		log.Info().Msg("in-memory state (no PAY_POSTGRES_DSN)")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := ingestion.EnsureStream(ctx, js); err != nil {
		return err
	}

	rawChan := make(chan ingestion.RawEvent, cfg.RawChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawChan, metrics)
	if err := subscriber.Subscribe(ctx); err != nil {
		return err
	}

	events := make(chan event.Event, cfg.EventChanSize)
	go ingestion.RunIngest(ctx, rawChan, events, metrics)

	// --- Driver ---
	driver := core.NewDriver(state, nil, metrics)
	if pg != nil {
		if err := pg.StartRun(ctx, driver.RunID()); err != nil {
			return err
		}
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- driver.Run(ctx, events)
	}()

	// --- Metrics + health server ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	health.SetReady(true)
	log.Info().Str("run_id", driver.RunID().String()).Msg("ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("driver failed, shutting down")
		}
	case err := <-serverErr:
		log.Error().Err(err).Msg("metrics server failed, shutting down")
	}

	cancel()
	subscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	if pg != nil {
		if err := pg.FinishRun(shutdownCtx, driver.RunID(), driver.Applied(), driver.Rejected()); err != nil {
			log.Error().Err(err).Msg("finish run record")
		}
	}

	var snapshot bytes.Buffer
	if err := report.WriteSnapshot(shutdownCtx, &snapshot, state); err != nil {
		log.Error().Err(err).Msg("final snapshot")
	} else {
		log.Info().
			Uint64("applied", driver.Applied()).
			Uint64("rejected", driver.Rejected()).
			Str("snapshot", snapshot.String()).
			Msg("shutdown complete")
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}

// Command tapd runs the TAP service: a chi-routed UWS dispatcher backed
// by a pgx-pooled SQL store, with a bun-backed backup snapshot and a
// standalone Prometheus /metrics listener.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/gotap/tapd/backup"
	"github.com/gotap/tapd/config"
	"github.com/gotap/tapd/connpool"
	"github.com/gotap/tapd/destruct"
	"github.com/gotap/tapd/dispatch"
	"github.com/gotap/tapd/metrics"
	"github.com/gotap/tapd/phase"
	"github.com/gotap/tapd/pipeline"
	"github.com/gotap/tapd/scheduler"
	sqlstore "github.com/gotap/tapd/store/sql"
	"github.com/gotap/tapd/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (the -listen/-dsn flags override its values)")
	listenAddr := flag.String("listen", "", "override listen_addr")
	dsn := flag.String("dsn", "", "override database_dsn")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var opts []config.Option
	if *listenAddr != "" {
		opts = append(opts, config.WithListenAddr(*listenAddr))
	}
	if *dsn != "" {
		opts = append(opts, config.WithDatabaseDSN(*dsn))
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath, opts...)
	} else {
		c := config.New(opts...)
		cfg = &c
	}
	if err != nil {
		log.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if cfg.DatabaseDSN == "" {
		log.Error("database_dsn is required (set via -config file or -dsn flag)")
		os.Exit(1)
	}

	if err := run(*cfg, log); err != nil {
		log.Error("tapd exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Two connections to the same database: a pgxpool.Pool for query
	// execution (connpool.ConnectionPool, the pool the scheduler gates
	// admission on) and a bun.DB over the pgx stdlib driver for the job
	// store and backup snapshot, which want bun's query builder rather
	// than raw pgx.
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if cfg.MaxPoolConns > 0 {
		poolCfg.MaxConns = cfg.MaxPoolConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	sqldb, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer sqldb.Close()
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := sqlstore.InitDB(ctx, db); err != nil {
		return err
	}
	if err := backup.InitDB(ctx, db); err != nil {
		return err
	}

	jobStore := sqlstore.New(db)
	bk := backup.NewGuard(backup.New(jobStore, db))

	restoreReport, err := bk.RestoreAll(ctx)
	if err != nil {
		log.Error("backup restore failed; continuing with an empty store", "err", err)
	} else {
		bk.CheckRestore(restoreReport)
		log.Info("restored jobs from backup",
			"jobs_restored", restoreReport.JobsRestored, "jobs", restoreReport.Jobs,
			"users_restored", restoreReport.UsersRestored, "users", restoreReport.Users)
		if restoreReport.Malformed() {
			log.Error("backup restore report malformed; backup disabled for this run")
		}
	}

	connPool := connpool.NewPgxPool(pool, "tapd")

	phases := phase.NewManager(jobStore)

	pipe := &pipeline.Pipeline{
		Parser:       pipeline.Recognizer{},
		Translator:   pipeline.SQLTranslator{},
		Metadata:     pipeline.NewStaticMetadata(nil),
		Pool:         connPool,
		ServerMaxRec: cfg.ServerMaxRec,
		Log:          log,
	}
	pipe.RegisterFormatter(pipeline.CSVFormatter{})
	pipe.RegisterFormatter(pipeline.VOTableFormatter{})

	resultsDir, err := os.MkdirTemp("", "tapd-results-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(resultsDir)
	sink, err := dispatch.NewFileResultSink(resultsDir)
	if err != nil {
		return err
	}

	jobThread := worker.NewJobThread(pipe, phases, jobStore, sink, log)

	sched := scheduler.NewManager(connPool, jobThread.Run, cfg.MaxConcurrentJobs, log)
	sched.Start(ctx)
	defer func() { <-sched.Stop() }()

	destructSched := destruct.New(jobStore, pipe.Metadata, jobThread, sink, log)
	if err := destructSched.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := destructSched.Stop(10 * time.Second); err != nil {
			log.Warn("destruction scheduler stop", "err", err)
		}
	}()

	rt := &dispatch.Router{
		Store:                      jobStore,
		Phases:                     phases,
		Scheduler:                  sched,
		Worker:                     jobThread,
		Destruct:                   destructSched,
		Pipeline:                   pipe,
		Metadata:                   pipe.Metadata,
		Results:                    sink,
		IDs:                        dispatch.NewIDGenerator(),
		Identify:                   dispatch.NewHeaderIdentifier(""),
		UploadsEnabled:             false,
		DefaultDestructionLifetime: cfg.DefaultDestruction,
		DefaultExecutionDuration:   cfg.DefaultExecutionDuration,
		MaxExecutionDuration:       cfg.MaxExecutionDuration,
		AllowedOrigins:             cfg.AllowedOrigins,
		Log:                        log,
	}
	mux := dispatch.NewRouter(rt)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr, log)
	metricsServer.StartAsync()

	backupDone := make(chan struct{})
	if cfg.BackupInterval > 0 {
		go runBackupTimer(ctx, bk, cfg.BackupInterval, log, backupDone)
	} else {
		close(backupDone)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("tapd listening", "addr", cfg.ListenAddr, "metrics_addr", cfg.MetricsAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "err", err)
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "err", err)
	}
	<-backupDone

	if err := bk.SaveAll(context.Background()); err != nil {
		log.Warn("final backup save failed", "err", err)
	}
	return nil
}

// runBackupTimer periodically snapshots the whole store, approximating
// spec.md §6's "saveOwner after any mutating action" with a bounded-
// staleness full sweep instead of threading a save call through every
// dispatch/worker mutation path.
func runBackupTimer(ctx context.Context, bk *backup.Guard, interval time.Duration, log *slog.Logger, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bk.SaveAll(context.Background()); err != nil {
				log.Warn("periodic backup save failed", "err", err)
			}
		}
	}
}

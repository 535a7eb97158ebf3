// Command entityflow-worker runs the fetch/stage loop, the cron-driven
// workflow schedule, and the housekeeping jobs, against one Postgres and
// one Redis connection.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/user/entityflow/internal/auth"
	"github.com/user/entityflow/internal/cache"
	"github.com/user/entityflow/internal/db"
	"github.com/user/entityflow/internal/entity"
	"github.com/user/entityflow/internal/persistence"
	"github.com/user/entityflow/internal/platform/config"
	"github.com/user/entityflow/internal/platform/logging"
	"github.com/user/entityflow/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("load config: " + err.Error())
	}

	logger := logging.New(logging.Options{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})

	conn, err := db.Open(cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()
	if cfg.Database.MaxOpenConns > 0 {
		conn.Conn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		conn.Conn.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	memCache, err := cache.New(cfg.Cache.MemoryCapacity, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build cache")
	}

	entityRepo := entity.NewRepository(conn)
	materializer := &entity.Materializer{DB: conn}
	entitySvc := &entity.Service{
		Repo:         entityRepo,
		Materializer: materializer,
		Cache:        memCache,
		CacheTTL:     cfg.Cache.EntityDefinitionTTL,
		Log:          logger,
	}

	rowRepo := persistence.NewRowRepository(conn)
	pipeline := &persistence.Pipeline{Defs: entitySvc, Rows: rowRepo, Log: logger}
	destination := workflow.NewHTTPDestination(cfg.Destinations, cfg.DestinationHeaders)
	sinkWriter := persistence.NewSinkWriterWithDestination(pipeline, destination)
	lookup := persistence.NewEntityLookup(rowRepo)

	workflowRepo := workflow.NewRepository(conn)
	refreshRepo := auth.NewRefreshTokenPostgresRepository(conn)

	queue, err := workflow.DialQueue(ctx, cfg.Redis.URL, cfg.Queue.FetchKey, cfg.Queue.ProcessKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial queue")
	}
	defer queue.Close()

	fetcher := workflow.NewHTTPFetcher(cfg.Sources, cfg.SourceHeaders)
	stager := &workflow.Stager{Repo: workflowRepo, Fetcher: fetcher, Log: logger}
	processor := &workflow.Processor{Repo: workflowRepo, Writer: sinkWriter, Lookup: lookup, Log: logger}

	versionPurger := &workflow.VersionPurger{Defs: entityRepo, Rows: rowRepo, Log: logger}
	runLogPurger := &workflow.RunLogPurger{Repo: workflowRepo, Log: logger}
	scheduler := workflow.NewScheduler(queue, workflowRepo, versionPurger, runLogPurger, refreshRepo, cfg.Maintenance, logger)

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	defer scheduler.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	logger.Info().Msg("entityflow-worker started")
	runFetchLoop(ctx, queue, stager, processor, logger)
	logger.Info().Msg("entityflow-worker stopped")
}

// runFetchLoop pops fetch jobs, stages their decoded records, and processes
// the resulting run immediately afterward — the process queue
// (ProcessRawItemJob / the process list) stays reserved and unconsumed, as
// no per-item driver is wired into this core. The queue's exponential
// backoff governs the sleep after a failing pop and is reset once a popped
// job has been handled, whether or not its fetch/stage step succeeded.
func runFetchLoop(ctx context.Context, q *workflow.Queue, stager *workflow.Stager, processor *workflow.Processor, logger zerolog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := q.PopFetch(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("pop fetch job failed")
			sleep(ctx, q.NextBackoff())
			continue
		}
		if job == nil {
			continue
		}

		run, err := stager.FetchAndStage(ctx, *job)
		if err != nil {
			logger.Error().Err(err).Str("workflow_uuid", job.WorkflowID).Msg("fetch/stage failed")
			q.Reset()
			continue
		}
		if err := processor.ProcessStagedItems(ctx, run.UUID); err != nil {
			logger.Error().Err(err).Str("run_uuid", run.UUID).Msg("process staged items failed")
		}
		q.Reset()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

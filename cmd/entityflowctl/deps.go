package main

import (
	"github.com/redis/go-redis/v9"

	"github.com/user/entityflow/internal/cache"
	"github.com/user/entityflow/internal/db"
	"github.com/user/entityflow/internal/platform/config"
	"github.com/user/entityflow/internal/platform/logging"
)

// deps bundles the connections every entityflowctl subcommand needs;
// built fresh per invocation, matching a one-shot CLI process's lifetime.
type deps struct {
	cfg   *config.Config
	db    *db.DB
	cache *cache.Cache
}

func openDeps() (*deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Options{Level: cfg.Logging.Level})

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		rdb = redis.NewClient(opts)
	}

	c, err := cache.New(cfg.Cache.MemoryCapacity, rdb, logger)
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, db: conn, cache: c}, nil
}

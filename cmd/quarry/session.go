package main

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/quarry"
	"github.com/poiesic/quarry/ai/cache"
	"github.com/poiesic/quarry/config"
	"github.com/poiesic/quarry/source"
	"github.com/poiesic/quarry/vectorstore/milvus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

// session bundles the opened database with the clients it borrows.
type session struct {
	cfg   *config.AppConfig
	db    *quarry.Database
	redis *goredis.Client
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		slog.Error("error closing database", "err", err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("error closing redis client", "err", err)
		}
	}
}

// loadConfig reads the env file and the config file named by the global
// flags. --db overrides store.path.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	if err := config.LoadEnv(c.String("env-file")); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if db := c.String("db"); db != "" {
		cfg.Store.Path = db
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clients are the connections databaseOptions opened for the database.
type clients struct {
	vectors *milvus.Store
	redis   *goredis.Client
}

// Close releases every opened client. It is only used when the database
// never took ownership of them.
func (cl *clients) Close() {
	if cl.vectors != nil {
		if err := cl.vectors.Close(); err != nil {
			slog.Error("error closing milvus client", "err", err)
		}
	}
	if cl.redis != nil {
		if err := cl.redis.Close(); err != nil {
			slog.Error("error closing redis client", "err", err)
		}
	}
}

// databaseOptions translates the config into facade options, opening the
// vector store, object store and cache clients it names. On error every
// client opened so far is closed.
func databaseOptions(cfg *config.AppConfig) ([]quarry.DatabaseOption, *clients, error) {
	opts := []quarry.DatabaseOption{
		quarry.WithAIConfig(cfg.AIConfig()),
		quarry.WithIndexName(cfg.VectorStore.Index),
		quarry.WithLogger(slog.Default()),
	}
	opened := &clients{}

	if cfg.VectorStore.Type == config.VectorStoreMilvus {
		store, err := milvus.New(cfg.MilvusConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to milvus: %w", err)
		}
		opened.vectors = store
		opts = append(opts, quarry.WithVectorStore(store))
	}

	switch cfg.ObjectStore.Type {
	case config.ObjectStoreDir:
		opts = append(opts, quarry.WithObjectStore(source.NewDirStore(cfg.ObjectStore.Root)))
	case config.ObjectStoreS3:
		store, err := source.NewMinioStore(cfg.S3Config())
		if err != nil {
			opened.Close()
			return nil, nil, fmt.Errorf("failed to create object store client: %w", err)
		}
		opts = append(opts, quarry.WithObjectStore(store))
	}

	if cfg.Cache.Addr != "" {
		opened.redis = goredis.NewClient(&goredis.Options{Addr: cfg.Cache.Addr})
		opts = append(opts, quarry.WithEmbeddingCache(opened.redis, &cache.Config{
			TTL:       cfg.CacheTTL(),
			KeyPrefix: cfg.Cache.KeyPrefix,
			Model:     cfg.AI.EmbeddingModel,
		}))
	}
	return opts, opened, nil
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts, opened, err := databaseOptions(cfg)
	if err != nil {
		return nil, err
	}
	db, err := quarry.NewDatabase(cfg.Store.Path, opts...)
	if err != nil {
		opened.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	slog.Debug("opened database", "path", cfg.Store.Path, "vectorStore", cfg.VectorStore.Type, "index", cfg.VectorStore.Index)
	return &session{cfg: cfg, db: db, redis: opened.redis}, nil
}

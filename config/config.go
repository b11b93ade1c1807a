// Package config loads the application configuration file.
//
// Secrets never live in the file: it names the environment variables that
// hold them, and a .env file next to the process is loaded first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/chunk"
	"github.com/poiesic/quarry/source"
	"github.com/poiesic/quarry/vectorstore"
	"github.com/poiesic/quarry/vectorstore/milvus"
	"gopkg.in/yaml.v3"
)

// Vector store and object store types.
const (
	VectorStoreBadger = "badger"
	VectorStoreMilvus = "milvus"

	ObjectStoreS3  = "s3"
	ObjectStoreDir = "dir"
)

// AIConfig configures the embedding, chat and contextualization models.
type AIConfig struct {
	EmbeddingHost      string  `yaml:"embedding_host"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	EmbeddingDimension int     `yaml:"embedding_dimension"`
	ChatHost           string  `yaml:"chat_host"`
	ChatModel          string  `yaml:"chat_model"`
	ChatTemperature    float64 `yaml:"chat_temperature"`
	ContextProvider    string  `yaml:"context_provider"`
	ContextModel       string  `yaml:"context_model"`
	ContextTemperature float64 `yaml:"context_temperature"`
	ContextMaxTokens   int     `yaml:"context_max_tokens"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	AnthropicAPIKeyEnv string  `yaml:"anthropic_api_key_env"`
}

// StoreConfig locates the badger database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MilvusConfig holds Milvus connection details.
type MilvusConfig struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects the vector index implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Index  string        `yaml:"index"`
	Milvus *MilvusConfig `yaml:"milvus,omitempty"`
}

// ObjectStoreConfig selects where remote resources live.
type ObjectStoreConfig struct {
	Type         string `yaml:"type"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Insecure     bool   `yaml:"insecure"`
	// Root is the directory standing in for buckets when Type is "dir".
	Root string `yaml:"root"`
}

// CacheConfig enables the redis embedding cache when Addr is set.
type CacheConfig struct {
	Addr      string `yaml:"addr"`
	TTLSecs   int    `yaml:"ttl_secs"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ChunkingConfig holds the splitter settings for one source kind.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	Workers           int            `yaml:"workers"`
	FetchTimeoutSecs  int            `yaml:"fetch_timeout_secs"`
	PerDocumentCommit bool           `yaml:"per_document_commit"`
	Remote            ChunkingConfig `yaml:"remote"`
	Local             ChunkingConfig `yaml:"local"`
}

// ContextualizeConfig tunes the contextualizer.
type ContextualizeConfig struct {
	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"`
	Burst       int     `yaml:"burst"`
}

// IndexingConfig tunes the vector indexer.
type IndexingConfig struct {
	BatchSize int    `yaml:"batch_size"`
	Exclude   string `yaml:"exclude"`
}

// RetrievalConfig tunes grounded answers.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Store         StoreConfig         `yaml:"store"`
	AI            AIConfig            `yaml:"ai"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store"`
	Cache         CacheConfig         `yaml:"cache"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Contextualize ContextualizeConfig `yaml:"contextualize"`
	Indexing      IndexingConfig      `yaml:"indexing"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
}

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored; set variables are not overridden.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads a config from path. A missing file yields the defaults.
// An empty path also yields the defaults.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and fills in defaults for missing fields.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	aiDefaults := ai.DefaultConfig()
	if cfg.Store.Path == "" {
		cfg.Store.Path = "quarry.db"
	}

	a := &cfg.AI
	if a.EmbeddingHost == "" {
		a.EmbeddingHost = aiDefaults.EmbeddingHost
	}
	if a.EmbeddingModel == "" {
		a.EmbeddingModel = aiDefaults.EmbeddingModel
		if a.EmbeddingDimension == 0 {
			a.EmbeddingDimension = aiDefaults.EmbeddingDimension
		}
	}
	if a.ChatHost == "" {
		a.ChatHost = aiDefaults.ChatHost
	}
	if a.ChatModel == "" {
		a.ChatModel = aiDefaults.ChatModel
	}
	if a.ChatTemperature == 0 {
		a.ChatTemperature = aiDefaults.ChatTemperature
	}
	if a.ContextProvider == "" {
		a.ContextProvider = aiDefaults.ContextProvider
	}
	if a.ContextModel == "" {
		a.ContextModel = aiDefaults.ContextModel
	}
	if a.ContextTemperature == 0 {
		a.ContextTemperature = aiDefaults.ContextTemperature
	}
	if a.ContextMaxTokens == 0 {
		a.ContextMaxTokens = aiDefaults.ContextMaxTokens
	}
	if a.APIKeyEnv == "" {
		a.APIKeyEnv = "OPENAI_API_KEY"
	}
	if a.AnthropicAPIKeyEnv == "" {
		a.AnthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = VectorStoreBadger
	}
	if cfg.VectorStore.Index == "" {
		cfg.VectorStore.Index = vectorstore.DefaultIndex
	}
	if m := cfg.VectorStore.Milvus; m != nil {
		if m.Address == "" {
			m.Address = "localhost:19530"
		}
		if m.PasswordEnv == "" {
			m.PasswordEnv = "MILVUS_PASSWORD"
		}
		if m.TimeoutSecs == 0 {
			m.TimeoutSecs = 30
		}
	}

	o := &cfg.ObjectStore
	if o.Type == "" {
		o.Type = ObjectStoreS3
	}
	if o.Region == "" {
		o.Region = source.DefaultRegion
	}
	if o.AccessKeyEnv == "" {
		o.AccessKeyEnv = "AWS_ACCESS_KEY_ID"
	}
	if o.SecretKeyEnv == "" {
		o.SecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
	}

	if cfg.Cache.TTLSecs == 0 {
		cfg.Cache.TTLSecs = int((24 * time.Hour).Seconds())
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "emb:"
	}

	in := &cfg.Ingestion
	if in.Workers == 0 {
		in.Workers = 4
	}
	if in.FetchTimeoutSecs == 0 {
		in.FetchTimeoutSecs = 60
	}
	remote, local := chunk.RemoteOptions(), chunk.DefaultOptions()
	if in.Remote.Size == 0 {
		in.Remote = ChunkingConfig{Size: remote.Size, Overlap: remote.Overlap}
	}
	if in.Local.Size == 0 {
		in.Local = ChunkingConfig{Size: local.Size, Overlap: local.Overlap}
	}

	if cfg.Contextualize.Concurrency == 0 {
		cfg.Contextualize.Concurrency = 1
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
}

// Validate checks the settings that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch c.VectorStore.Type {
	case VectorStoreBadger:
	case VectorStoreMilvus:
		if c.VectorStore.Milvus == nil {
			return errors.New("config: vector_store.milvus is required for the milvus store")
		}
	default:
		return fmt.Errorf("config: unknown vector store type %q", c.VectorStore.Type)
	}
	if err := vectorstore.ValidateIndexName(c.VectorStore.Index); err != nil {
		return fmt.Errorf("config: vector_store.index: %w", err)
	}

	switch c.ObjectStore.Type {
	case ObjectStoreS3:
	case ObjectStoreDir:
		if c.ObjectStore.Root == "" {
			return errors.New("config: object_store.root is required for the dir store")
		}
	default:
		return fmt.Errorf("config: unknown object store type %q", c.ObjectStore.Type)
	}

	if err := c.RemoteChunking().Validate(); err != nil {
		return fmt.Errorf("config: ingestion.remote: %w", err)
	}
	if err := c.LocalChunking().Validate(); err != nil {
		return fmt.Errorf("config: ingestion.local: %w", err)
	}
	if c.Retrieval.TopK < 0 || c.Indexing.BatchSize < 0 || c.Ingestion.Workers < 0 {
		return errors.New("config: counts must not be negative")
	}
	return c.AIConfig().Validate()
}

// AIConfig builds the provider configuration, reading API keys from the
// environment variables the file names.
func (c *AppConfig) AIConfig() *ai.Config {
	return &ai.Config{
		EmbeddingHost:      c.AI.EmbeddingHost,
		EmbeddingModel:     c.AI.EmbeddingModel,
		EmbeddingDimension: c.AI.EmbeddingDimension,
		ChatHost:           c.AI.ChatHost,
		ChatModel:          c.AI.ChatModel,
		ChatTemperature:    c.AI.ChatTemperature,
		ContextProvider:    c.AI.ContextProvider,
		ContextModel:       c.AI.ContextModel,
		ContextTemperature: c.AI.ContextTemperature,
		ContextMaxTokens:   c.AI.ContextMaxTokens,
		APIKey:             envOr(c.AI.APIKeyEnv, "none"),
		AnthropicAPIKey:    os.Getenv(c.AI.AnthropicAPIKeyEnv),
	}
}

// S3Config builds the object store client configuration.
func (c *AppConfig) S3Config() source.S3Config {
	return source.S3Config{
		Endpoint:  c.ObjectStore.Endpoint,
		Region:    c.ObjectStore.Region,
		AccessKey: os.Getenv(c.ObjectStore.AccessKeyEnv),
		SecretKey: os.Getenv(c.ObjectStore.SecretKeyEnv),
		Insecure:  c.ObjectStore.Insecure,
	}
}

// MilvusConfig builds the Milvus client configuration.
// Returns the zero value when Milvus is not configured.
func (c *AppConfig) MilvusConfig() milvus.Config {
	m := c.VectorStore.Milvus
	if m == nil {
		return milvus.Config{}
	}
	return milvus.Config{
		Address:  m.Address,
		Username: m.Username,
		Password: os.Getenv(m.PasswordEnv),
		Database: m.Database,
		Timeout:  time.Duration(m.TimeoutSecs) * time.Second,
	}
}

// RemoteChunking returns the splitter settings for object storage resources.
func (c *AppConfig) RemoteChunking() chunk.Options {
	return chunk.Options{Size: c.Ingestion.Remote.Size, Overlap: c.Ingestion.Remote.Overlap, Separator: chunk.DefaultSeparator}
}

// LocalChunking returns the splitter settings for local file resources.
func (c *AppConfig) LocalChunking() chunk.Options {
	return chunk.Options{Size: c.Ingestion.Local.Size, Overlap: c.Ingestion.Local.Overlap, Separator: chunk.DefaultSeparator}
}

// FetchTimeout returns the per-resource fetch bound.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Ingestion.FetchTimeoutSecs) * time.Second
}

// CacheTTL returns the embedding cache lifetime.
func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSecs) * time.Second
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

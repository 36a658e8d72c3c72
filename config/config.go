package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"notesim/internal/domain"
)

const (
	// EnvPrefix maps NOTESIM_STORE_ADDRESS to store.address.
	EnvPrefix = "NOTESIM_"

	DataDirName = ".notesim"
	FileName    = "notesim.yaml"
)

// Backend names accepted in store.backend.
const (
	BackendQdrant = "qdrant"
	BackendMilvus = "milvus"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Defaults substituted whenever a value is empty.
const (
	DefaultEmbeddingProvider = "ollama"
	DefaultEmbeddingModel    = "nomic-embed-text"
	DefaultEmbeddingAddress  = "http://localhost:11434"
	DefaultCollection        = "obsidian_notes"
	DefaultBackend           = BackendQdrant
	DefaultPreviewLength     = 500
	DefaultProgressEvery     = 10
	DefaultQueryLimit        = 5
)

var defaultStoreAddress = map[string]string{
	BackendQdrant: "localhost:6334",
	BackendMilvus: "http://localhost:19530",
	BackendBolt:   filepath.Join(DataDirName, "vectors.db"),
	BackendSQLite: filepath.Join(DataDirName, "vectors.sqlite"),
	BackendMemory: "memory",
}

// Config holds all configuration for notesim.
type Config struct {
	Vault     VaultConfig     `koanf:"vault" yaml:"vault"`
	Embedding EmbeddingConfig `koanf:"embedding" yaml:"embedding"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Sync      SyncConfig      `koanf:"sync" yaml:"sync"`
	Query     QueryConfig     `koanf:"query" yaml:"query"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

// VaultConfig selects which files of the vault are notes.
type VaultConfig struct {
	Includes []string `koanf:"includes" yaml:"includes"`
	Excludes []string `koanf:"excludes" yaml:"excludes"`
}

// EmbeddingConfig holds embedding service configuration.
type EmbeddingConfig struct {
	Provider  string `koanf:"provider" yaml:"provider"` // "ollama", "openai", "mock"
	Model     string `koanf:"model" yaml:"model"`
	Address   string `koanf:"address" yaml:"address"`
	APIKeyEnv string `koanf:"api_key_env" yaml:"api_key_env,omitempty"`
	// Dimension of 0 means the model's known output size (768 if unknown).
	Dimension int           `koanf:"dimension" yaml:"dimension"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout"`
}

// StoreConfig holds vector store connection settings.
type StoreConfig struct {
	Backend    string        `koanf:"backend" yaml:"backend"` // "qdrant", "milvus", "bolt", "sqlite", "memory"
	Address    string        `koanf:"address" yaml:"address"`
	Collection string        `koanf:"collection" yaml:"collection"`
	Token      string        `koanf:"token" yaml:"token,omitempty"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout"`
}

// SyncConfig tunes the refresh and recompute passes.
type SyncConfig struct {
	PreviewLength int `koanf:"preview_length" yaml:"preview_length"`
	ProgressEvery int `koanf:"progress_every" yaml:"progress_every"`
	Workers       int `koanf:"workers" yaml:"workers"`
	// InclusiveModTime re-embeds notes whose mtime equals the stored one.
	InclusiveModTime bool `koanf:"inclusive_mtime" yaml:"inclusive_mtime"`
}

// QueryConfig holds search defaults.
type QueryConfig struct {
	Limit     int           `koanf:"limit" yaml:"limit"`
	CacheSize int           `koanf:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl" yaml:"cache_ttl"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json, text
}

// TelemetryConfig selects the metrics exporter.
type TelemetryConfig struct {
	Metrics string `koanf:"metrics" yaml:"metrics"` // none, stdout
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Vault: VaultConfig{
			Includes: []string{"**/*.md"},
			Excludes: []string{".obsidian/**", ".trash/**", DataDirName + "/**", "**/node_modules/**"},
		},
		Embedding: EmbeddingConfig{
			Provider:  DefaultEmbeddingProvider,
			Model:     DefaultEmbeddingModel,
			Address:   DefaultEmbeddingAddress,
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   60 * time.Second,
		},
		Store: StoreConfig{
			Backend:    DefaultBackend,
			Collection: DefaultCollection,
			Timeout:    30 * time.Second,
		},
		Sync: SyncConfig{
			PreviewLength: DefaultPreviewLength,
			ProgressEvery: DefaultProgressEvery,
			Workers:       1,
		},
		Query: QueryConfig{
			Limit:     DefaultQueryLimit,
			CacheSize: 100,
			CacheTTL:  5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Metrics: "none",
		},
	}
	cfg.Normalize()
	return cfg
}

// Normalize substitutes the documented default for every empty value.
func (c *Config) Normalize() {
	d := EmbeddingConfig{
		Provider: DefaultEmbeddingProvider,
		Model:    DefaultEmbeddingModel,
		Address:  DefaultEmbeddingAddress,
	}
	c.Embedding.Provider = orDefault(strings.ToLower(strings.TrimSpace(c.Embedding.Provider)), d.Provider)
	c.Embedding.Model = orDefault(strings.TrimSpace(c.Embedding.Model), d.Model)
	c.Embedding.Address = orDefault(strings.TrimSpace(c.Embedding.Address), d.Address)
	if c.Embedding.Dimension < 0 {
		c.Embedding.Dimension = 0
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 60 * time.Second
	}

	c.Store.Backend = orDefault(strings.ToLower(strings.TrimSpace(c.Store.Backend)), DefaultBackend)
	c.Store.Address = orDefault(strings.TrimSpace(c.Store.Address), defaultStoreAddress[c.Store.Backend])
	c.Store.Collection = orDefault(strings.TrimSpace(c.Store.Collection), DefaultCollection)
	if c.Store.Timeout <= 0 {
		c.Store.Timeout = 30 * time.Second
	}

	if len(c.Vault.Includes) == 0 {
		c.Vault.Includes = []string{"**/*.md"}
	}
	if c.Sync.PreviewLength <= 0 {
		c.Sync.PreviewLength = DefaultPreviewLength
	}
	// Longer previews overflow the content_preview field of the schema.
	if c.Sync.PreviewLength > domain.MaxPreviewLen {
		c.Sync.PreviewLength = domain.MaxPreviewLen
	}
	if c.Sync.ProgressEvery <= 0 {
		c.Sync.ProgressEvery = DefaultProgressEvery
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 1
	}
	if c.Query.Limit <= 0 {
		c.Query.Limit = DefaultQueryLimit
	}
	c.Log.Level = orDefault(c.Log.Level, "info")
	c.Log.Format = orDefault(c.Log.Format, "text")
	c.Telemetry.Metrics = orDefault(c.Telemetry.Metrics, "none")
}

// Validate reports settings that can never work.
func (c *Config) Validate() error {
	if _, ok := defaultStoreAddress[c.Store.Backend]; !ok {
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch c.Embedding.Provider {
	case "ollama", "openai", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	return nil
}

// ConnectionKey identifies the store connection. A change in this key must
// invalidate collection readiness.
func (c *Config) ConnectionKey() string {
	return c.Store.Backend + "|" + c.Store.Address + "|" + c.Store.Collection
}

// Load loads configuration from a YAML file and NOTESIM_ environment variables.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k, DefaultConfig())

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf, d *Config) {
	k.Set("vault.includes", d.Vault.Includes)
	k.Set("vault.excludes", d.Vault.Excludes)
	k.Set("embedding.provider", d.Embedding.Provider)
	k.Set("embedding.model", d.Embedding.Model)
	k.Set("embedding.address", d.Embedding.Address)
	k.Set("embedding.api_key_env", d.Embedding.APIKeyEnv)
	k.Set("embedding.dimension", d.Embedding.Dimension)
	k.Set("embedding.timeout", d.Embedding.Timeout.String())
	k.Set("store.backend", d.Store.Backend)
	k.Set("store.collection", d.Store.Collection)
	k.Set("store.timeout", d.Store.Timeout.String())
	k.Set("sync.preview_length", d.Sync.PreviewLength)
	k.Set("sync.progress_every", d.Sync.ProgressEvery)
	k.Set("sync.workers", d.Sync.Workers)
	k.Set("sync.inclusive_mtime", d.Sync.InclusiveModTime)
	k.Set("query.limit", d.Query.Limit)
	k.Set("query.cache_size", d.Query.CacheSize)
	k.Set("query.cache_ttl", d.Query.CacheTTL.String())
	k.Set("log.level", d.Log.Level)
	k.Set("log.format", d.Log.Format)
	k.Set("telemetry.metrics", d.Telemetry.Metrics)
}

// FindConfig returns the config file used for dir: notesim.yaml, then
// .notesim/config.yaml. The second return is false if neither exists.
func FindConfig(dir string) (string, bool) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path, true
	}

	return filepath.Join(dir, FileName), false
}

// LoadFromDir loads configuration from a vault directory.
func LoadFromDir(dir string) (*Config, error) {
	path, ok := FindConfig(dir)
	if !ok {
		return Load("")
	}
	return Load(path)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolveStoreAddress makes local store paths absolute relative to the vault.
func (c *Config) ResolveStoreAddress(vaultDir string) string {
	switch c.Store.Backend {
	case BackendBolt, BackendSQLite:
		if !filepath.IsAbs(c.Store.Address) {
			return filepath.Join(vaultDir, c.Store.Address)
		}
	}
	return c.Store.Address
}

// DataDir returns the notesim state directory of a vault.
func DataDir(dir string) string {
	return filepath.Join(dir, DataDirName)
}

// EnsureDataDir ensures the .notesim directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(DataDir(dir), 0755)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

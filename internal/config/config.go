// Package config loads docindex configuration from defaults, YAML files and
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// Queue backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// ProjectFileName is the per-project configuration file. The ".yml"
// spelling is also accepted; ".yaml" wins when both exist.
const ProjectFileName = ".docindex.yaml"

// DataDirName is the per-project directory holding index, queue and records.
const DataDirName = ".docindex"

// Config is the complete docindex configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Queue   QueueConfig   `yaml:"queue" json:"queue"`
	Records RecordsConfig `yaml:"records" json:"records"`
	Worker  WorkerConfig  `yaml:"worker" json:"worker"`
	Server  ServerConfig  `yaml:"server" json:"server"`

	// ProjectDir is the directory Load resolved paths against.
	ProjectDir string `yaml:"-" json:"-"`
}

// IndexConfig configures the full-text index and the query engine.
type IndexConfig struct {
	// Path is the index directory. Relative paths resolve against the
	// project directory.
	Path string `yaml:"path" json:"path"`
	// ResultCap is the maximum number of records one search returns.
	ResultCap int `yaml:"result_cap" json:"result_cap"`
	// NameCacheSize is the number of parsed partial-name queries kept.
	NameCacheSize int `yaml:"name_cache_size" json:"name_cache_size"`
	// MaxHeightSpan is the widest height range one search may expand.
	MaxHeightSpan int `yaml:"max_height_span" json:"max_height_span"`
}

// QueueConfig configures the work queue between producers and the worker.
type QueueConfig struct {
	// Backend is "sqlite" (default) or "redis".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the SQLite queue database.
	Path string `yaml:"path" json:"path"`
	// VisibilityTimeout is how long a claimed SQLite message stays hidden
	// before it is delivered again (e.g. "5m").
	VisibilityTimeout string      `yaml:"visibility_timeout" json:"visibility_timeout"`
	Redis             RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the Redis queue backend.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs" json:"addrs"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"-"`
	DB       int      `yaml:"db" json:"db"`
	// Name prefixes the pending, processing and dead lists.
	Name string `yaml:"name" json:"name"`
}

// RecordsConfig configures the record store.
type RecordsConfig struct {
	Path string `yaml:"path" json:"path"`
	// ChunkSize bounds every batch write and delete.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
}

// WorkerConfig configures the indexing worker host.
type WorkerConfig struct {
	// PollInterval is the sleep after an idle drain cycle (e.g. "5s").
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	// WakeOnWrite cuts the sleep short when the SQLite queue is written.
	WakeOnWrite bool `yaml:"wake_on_write" json:"wake_on_write"`
}

// ServerConfig configures the HTTP server and logging.
type ServerConfig struct {
	Port            int    `yaml:"port" json:"port"`
	LogLevel        string `yaml:"log_level" json:"log_level"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Path:          filepath.Join(DataDirName, "index"),
			ResultCap:     100,
			NameCacheSize: 1024,
			MaxHeightSpan: 1000,
		},
		Queue: QueueConfig{
			Backend:           BackendSQLite,
			Path:              filepath.Join(DataDirName, "queue.db"),
			VisibilityTimeout: "5m",
			Redis: RedisConfig{
				Name: "docindex",
			},
		},
		Records: RecordsConfig{
			Path:      filepath.Join(DataDirName, "records.db"),
			ChunkSize: 100,
		},
		Worker: WorkerConfig{
			PollInterval: "5s",
			WakeOnWrite:  true,
		},
		Server: ServerConfig{
			Port:            8765,
			LogLevel:        "info",
			ShutdownTimeout: "10s",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/docindex/config.yaml if XDG_CONFIG_HOME is set
//   - ~/.config/docindex/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "docindex", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir. Later sources win:
//  1. Defaults
//  2. User config (~/.config/docindex/config.yaml)
//  3. Project config (.docindex.yaml in dir)
//  4. Environment variables (DOCINDEX_*)
//
// Relative paths are then resolved against dir and the result validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := projectConfigPath(dir); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	cfg.ProjectDir = dir
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges the non-zero values of a YAML file into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return docerrors.ConfigError("failed to read config file "+path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return docerrors.ConfigError("failed to parse config file "+path, err).
			WithSuggestion("Check the YAML syntax, or run 'docindex config init --force' to start over")
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Booleans cannot be
// told apart from "unset" and are only merged when true.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.ResultCap != 0 {
		c.Index.ResultCap = other.Index.ResultCap
	}
	if other.Index.NameCacheSize != 0 {
		c.Index.NameCacheSize = other.Index.NameCacheSize
	}
	if other.Index.MaxHeightSpan != 0 {
		c.Index.MaxHeightSpan = other.Index.MaxHeightSpan
	}

	if other.Queue.Backend != "" {
		c.Queue.Backend = other.Queue.Backend
	}
	if other.Queue.Path != "" {
		c.Queue.Path = other.Queue.Path
	}
	if other.Queue.VisibilityTimeout != "" {
		c.Queue.VisibilityTimeout = other.Queue.VisibilityTimeout
	}
	if len(other.Queue.Redis.Addrs) > 0 {
		c.Queue.Redis.Addrs = other.Queue.Redis.Addrs
	}
	if other.Queue.Redis.Username != "" {
		c.Queue.Redis.Username = other.Queue.Redis.Username
	}
	if other.Queue.Redis.Password != "" {
		c.Queue.Redis.Password = other.Queue.Redis.Password
	}
	if other.Queue.Redis.DB != 0 {
		c.Queue.Redis.DB = other.Queue.Redis.DB
	}
	if other.Queue.Redis.Name != "" {
		c.Queue.Redis.Name = other.Queue.Redis.Name
	}

	if other.Records.Path != "" {
		c.Records.Path = other.Records.Path
	}
	if other.Records.ChunkSize != 0 {
		c.Records.ChunkSize = other.Records.ChunkSize
	}

	if other.Worker.PollInterval != "" {
		c.Worker.PollInterval = other.Worker.PollInterval
	}
	if other.Worker.WakeOnWrite {
		c.Worker.WakeOnWrite = true
	}

	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.ShutdownTimeout != "" {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
}

// applyEnvOverrides applies DOCINDEX_* environment variable overrides.
// Unparseable numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCINDEX_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("DOCINDEX_RESULT_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.ResultCap = n
		}
	}

	if v := os.Getenv("DOCINDEX_QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DOCINDEX_QUEUE_PATH"); v != "" {
		c.Queue.Path = v
	}
	if v := os.Getenv("DOCINDEX_VISIBILITY_TIMEOUT"); v != "" {
		c.Queue.VisibilityTimeout = v
	}
	if v := os.Getenv("DOCINDEX_REDIS_ADDRS"); v != "" {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		c.Queue.Redis.Addrs = addrs
	}
	if v := os.Getenv("DOCINDEX_REDIS_PASSWORD"); v != "" {
		c.Queue.Redis.Password = v
	}

	if v := os.Getenv("DOCINDEX_RECORDS_PATH"); v != "" {
		c.Records.Path = v
	}
	if v := os.Getenv("DOCINDEX_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Records.ChunkSize = n
		}
	}

	if v := os.Getenv("DOCINDEX_POLL_INTERVAL"); v != "" {
		c.Worker.PollInterval = v
	}
	if v := os.Getenv("DOCINDEX_WAKE_ON_WRITE"); v != "" {
		c.Worker.WakeOnWrite = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("DOCINDEX_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("DOCINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// resolvePaths makes relative storage paths absolute under dir.
func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Index.Path = resolve(c.Index.Path)
	c.Queue.Path = resolve(c.Queue.Path)
	c.Records.Path = resolve(c.Records.Path)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return invalid("index.path must not be empty")
	}
	if c.Index.ResultCap <= 0 {
		return invalid(fmt.Sprintf("index.result_cap must be positive, got %d", c.Index.ResultCap))
	}
	if c.Index.NameCacheSize < 0 {
		return invalid(fmt.Sprintf("index.name_cache_size must be non-negative, got %d", c.Index.NameCacheSize))
	}
	if c.Index.MaxHeightSpan <= 0 {
		return invalid(fmt.Sprintf("index.max_height_span must be positive, got %d", c.Index.MaxHeightSpan))
	}

	switch strings.ToLower(c.Queue.Backend) {
	case BackendSQLite:
		if c.Queue.Path == "" {
			return invalid("queue.path must not be empty for the sqlite backend")
		}
	case BackendRedis:
		if len(c.Queue.Redis.Addrs) == 0 {
			return invalid("queue.redis.addrs must list at least one address for the redis backend")
		}
	default:
		return invalid(fmt.Sprintf("queue.backend must be 'sqlite' or 'redis', got %s", c.Queue.Backend))
	}
	if _, err := positiveDuration(c.Queue.VisibilityTimeout); err != nil {
		return invalid("queue.visibility_timeout " + err.Error())
	}

	if c.Records.Path == "" {
		return invalid("records.path must not be empty")
	}
	if c.Records.ChunkSize <= 0 {
		return invalid(fmt.Sprintf("records.chunk_size must be positive, got %d", c.Records.ChunkSize))
	}

	if _, err := positiveDuration(c.Worker.PollInterval); err != nil {
		return invalid("worker.poll_interval " + err.Error())
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid(fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if _, err := positiveDuration(c.Server.ShutdownTimeout); err != nil {
		return invalid("server.shutdown_timeout " + err.Error())
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid(fmt.Sprintf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel))
	}
	return nil
}

// DataDir returns the project's data directory, which holds the PID file
// and, by default, every store.
func (c *Config) DataDir() string {
	return filepath.Join(c.ProjectDir, DataDirName)
}

// PollInterval returns worker.poll_interval. Call after Validate.
func (c *Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Worker.PollInterval)
	return d
}

// VisibilityTimeout returns queue.visibility_timeout. Call after Validate.
func (c *Config) VisibilityTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Queue.VisibilityTimeout)
	return d
}

// ShutdownTimeout returns server.shutdown_timeout. Call after Validate.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func positiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("must be a duration like \"5s\", got %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func invalid(msg string) error {
	return docerrors.New(docerrors.ErrCodeConfigInvalid, msg, nil)
}

func projectConfigPath(dir string) string {
	for _, name := range []string{ProjectFileName, ".docindex.yml"} {
		if path := filepath.Join(dir, name); fileExists(path) {
			return path
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// LoadUserConfig returns the defaults merged with the user configuration
// file, or nil if that file does not exist.
func LoadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	return LoadFile(path)
}

// LoadFile returns the defaults merged with a single YAML file. No
// environment overrides, path resolution or validation are applied.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the project configuration file in dir, or ""
// if there is none.
func ProjectConfigPath(dir string) string {
	return projectConfigPath(dir)
}

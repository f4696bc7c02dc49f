package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service's single assembled configuration object, per
// spec.md §9's replacement for deep factory inheritance: every
// collaborator is constructed once, at startup, from this struct (plus
// any Options layered on top), with no further runtime dispatch through
// a construction hierarchy.
type Config struct {
	// ListenAddr is the TAP dispatcher's HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the standalone /metrics listen address.
	MetricsAddr string `yaml:"metrics_addr"`

	// DatabaseDSN is the libpq connection string for the job-data SQL
	// store and the bun-backed backup table.
	DatabaseDSN string `yaml:"database_dsn"`

	// MaxPoolConns bounds both the pgxpool.Pool size and, indirectly via
	// connpool.ConnectionPool.FreeCount, the scheduler's admission rate.
	MaxPoolConns int32 `yaml:"max_pool_conns"`

	// MaxConcurrentJobs is the scheduler's semaphore ceiling,
	// independent of MaxPoolConns (the lower of the two gates admission).
	MaxConcurrentJobs int64 `yaml:"max_concurrent_jobs"`

	// ServerMaxRec is the server-enforced row ceiling: it applies when a
	// client omits MAXREC or requests unlimited (-1), and a larger MAXREC
	// is lowered to it. A value <= 0 means no server cap.
	ServerMaxRec int64 `yaml:"server_max_rec"`

	// DefaultExecutionDuration is the watchdog timeout applied to a job
	// that does not set EXECUTIONDURATION. YAML values are nanoseconds
	// (yaml.v3 has no special-cased time.Duration string parsing); use
	// Options for anything more readable.
	DefaultExecutionDuration time.Duration `yaml:"default_execution_duration"`

	// MaxExecutionDuration caps a client-requested EXECUTIONDURATION.
	MaxExecutionDuration time.Duration `yaml:"max_execution_duration"`

	// DefaultDestruction is the retention window applied to a job that
	// does not set DESTRUCTION.
	DefaultDestruction time.Duration `yaml:"default_destruction"`

	// BackupInterval is how often backup.Backup.SaveAll runs on a
	// timer. This timer (plus one save at shutdown) is the only save
	// path; no save runs after individual mutations. Zero disables the
	// timer.
	BackupInterval time.Duration `yaml:"backup_interval"`

	// AllowedOrigins configures the dispatcher's CORS policy.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// defaults returns the operational defaults. Unlike param.NewSet's MAXREC
// default of -1 (unlimited), ServerMaxRec defaults to 10000, so a client
// asking for unlimited rows is capped there unless configured otherwise.
func defaults() Config {
	return Config{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		MaxPoolConns:             10,
		MaxConcurrentJobs:        8,
		ServerMaxRec:             10_000,
		DefaultExecutionDuration: 60 * time.Second,
		MaxExecutionDuration:     10 * time.Minute,
		DefaultDestruction:       24 * time.Hour,
		BackupInterval:           5 * time.Minute,
	}
}

// Option mutates a Config under construction. Programmatic callers (tests,
// embedders) compose Options instead of hand-editing every field.
type Option func(*Config)

// WithListenAddr overrides the dispatcher's listen address.
func WithListenAddr(addr string) Option {
	return func(c *Config) { c.ListenAddr = addr }
}

// WithDatabaseDSN overrides the SQL store/backup DSN.
func WithDatabaseDSN(dsn string) Option {
	return func(c *Config) { c.DatabaseDSN = dsn }
}

// WithMaxConcurrentJobs overrides the scheduler's semaphore ceiling.
func WithMaxConcurrentJobs(n int64) Option {
	return func(c *Config) { c.MaxConcurrentJobs = n }
}

// WithServerMaxRec overrides the server-enforced MAXREC ceiling.
func WithServerMaxRec(n int64) Option {
	return func(c *Config) { c.ServerMaxRec = n }
}

// WithAllowedOrigins overrides the CORS allow-list.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Config) { c.AllowedOrigins = origins }
}

// New returns the default Config with opts applied, for callers that
// build configuration programmatically rather than from a file (tests,
// embedders).
func New(opts ...Option) Config {
	c := defaults()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Load reads and parses a YAML configuration file at path, applying
// defaults() first so the file only needs to specify overrides, then
// layering opts on top (opts win, matching the usual "flags override
// file" operational convention).
func Load(path string, opts ...Option) (*Config, error) {
	c := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.DatabaseDSN == "" {
		return nil, fmt.Errorf("config: database_dsn is required")
	}
	return &c, nil
}

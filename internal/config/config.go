package config

import "time"

// Config is the full application configuration.
//
// Precedence: runtime overrides > WEBHAUL_* environment variables > config
// file > defaults.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Targets   TargetsConfig   `mapstructure:"targets"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Admission AdmissionConfig `mapstructure:"admission"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// QueueConfig configures the job scheduler.
type QueueConfig struct {
	// Concurrency is the in-flight job limit. 1 means strict
	// one-job-at-a-time execution.
	Concurrency int `mapstructure:"concurrency"`

	// PollInterval is the scheduling loop cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Retention is how long terminal job records stay queryable.
	Retention time.Duration `mapstructure:"retention"`

	// DataDir is where job records are persisted. Empty disables the
	// write-behind store.
	DataDir string `mapstructure:"data_dir"`
}

// TargetsConfig is the admission target policy.
type TargetsConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// ArchiveConfig configures the optional S3 result archive.
type ArchiveConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// AdmissionConfig bounds how fast one client may admit jobs.
type AdmissionConfig struct {
	// RatePerSecond is admissions per second per client. Zero disables
	// rate limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second"`

	// Burst is the per-client burst allowance.
	Burst int `mapstructure:"burst"`
}

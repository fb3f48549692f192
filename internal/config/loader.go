package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

const envPrefix = "WEBHAUL"

var (
	configMu  sync.Mutex
	appConfig *Config
)

// envSpec maps one environment variable to a config path.
type envSpec struct {
	Name string
	Path string
}

// getEnvSpecs lists the supported WEBHAUL_* environment variables.
func getEnvSpecs() []envSpec {
	return []envSpec{
		{Name: envPrefix + "_HOST", Path: "server.host"},
		{Name: envPrefix + "_PORT", Path: "server.port"},
		{Name: envPrefix + "_READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: envPrefix + "_WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: envPrefix + "_IDLE_TIMEOUT", Path: "server.idle_timeout"},
		{Name: envPrefix + "_SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: envPrefix + "_LOG_LEVEL", Path: "logging.level"},
		{Name: envPrefix + "_LOG_PROFILE", Path: "logging.profile"},
		{Name: envPrefix + "_QUEUE_CONCURRENCY", Path: "queue.concurrency"},
		{Name: envPrefix + "_QUEUE_POLL_INTERVAL", Path: "queue.poll_interval"},
		{Name: envPrefix + "_QUEUE_RETENTION", Path: "queue.retention"},
		{Name: envPrefix + "_DATA_DIR", Path: "queue.data_dir"},
		{Name: envPrefix + "_ARCHIVE_ENABLED", Path: "archive.enabled"},
		{Name: envPrefix + "_ARCHIVE_BUCKET", Path: "archive.bucket"},
		{Name: envPrefix + "_ARCHIVE_PREFIX", Path: "archive.prefix"},
		{Name: envPrefix + "_ARCHIVE_REGION", Path: "archive.region"},
		{Name: envPrefix + "_ARCHIVE_ENDPOINT", Path: "archive.endpoint"},
		{Name: envPrefix + "_ADMIT_RATE", Path: "admission.rate_per_second"},
		{Name: envPrefix + "_ADMIT_BURST", Path: "admission.burst"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.retention", "1h")
	v.SetDefault("queue.data_dir", "")

	v.SetDefault("targets.allow", []string{})
	v.SetDefault("targets.deny", []string{})

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "jobs")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.profile", "")
	v.SetDefault("archive.force_path_style", false)

	v.SetDefault("admission.rate_per_second", 0.0)
	v.SetDefault("admission.burst", 5)
}

// configFilePaths lists directories searched for webhaul.yaml, in order.
func configFilePaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "webhaul"))
	}
	paths = append(paths, "/etc/webhaul")
	return paths
}

// Load builds the configuration. Optional overrides (nested maps keyed like
// the config file) take precedence over environment variables and files.
// The loaded config is retained for GetConfig.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	configMu.Lock()
	defer configMu.Unlock()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("webhaul")
	v.SetConfigType("yaml")
	for _, p := range configFilePaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	// Overrides use Set, which outranks env bindings: runtime > env > file.
	for _, o := range overrides {
		applyOverrides(v, "", o)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	appConfig = cfg
	return cfg, nil
}

// GetConfig returns the most recently loaded config, or nil before Load.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return appConfig
}

func applyOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			applyOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}

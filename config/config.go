// Package config loads the manifest/profile surface spec.md treats as
// an external collaborator (spec §1): the per-app manifest and engine
// profile, bound from a YAML file, environment variables and
// command-line flags via the teacher's config stack (spf13/viper +
// spf13/pflag), with fsnotify-driven hot reload (watch.go).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/outpostrun/enginehost/internal/isolate"
)

// Config is the root configuration document: one manifest per hosted
// app plus shared defaults applied to every profile.
type Config struct {
	ListenDir       string              `mapstructure:"listen_dir"`
	ManifestDir     string              `mapstructure:"manifest_dir"`
	DefaultProfile  isolate.Profile     `mapstructure:"default_profile"`
	Apps            []isolate.Manifest  `mapstructure:"apps"`
	AMQPURL         string              `mapstructure:"amqp_url"`
	AdminListenAddr string              `mapstructure:"admin_listen_addr"`
}

// New binds flags, environment and an optional file into a *viper.Viper
// ready for Load, matching the teacher's `--config_file` + env-prefix
// idiom.
func New(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("enginehost")
	v.AutomaticEnv()

	v.SetDefault("listen_dir", "/var/run/enginehost")
	v.SetDefault("manifest_dir", "/etc/enginehost/apps.d")
	v.SetDefault("admin_listen_addr", ":8090")
	v.SetDefault("default_profile.pool_limit", 4)
	v.SetDefault("default_profile.concurrency", 1)
	v.SetDefault("default_profile.queue_limit", 1024)
	v.SetDefault("default_profile.idle_timeout", 30*time.Second)
	v.SetDefault("default_profile.heartbeat_timeout", 10*time.Second)
	v.SetDefault("default_profile.startup_timeout", 5*time.Second)
	v.SetDefault("default_profile.termination_timeout", 5*time.Second)
	v.SetDefault("default_profile.io_bulk_size", 64)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			panic(fmt.Sprintf("config: bind flags: %v", err))
		}
	}
	return v
}

// Load reads the bound file (if configured via --config_file) and
// unmarshals the result into a Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

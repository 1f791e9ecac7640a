package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchFunc is invoked on every successful reload with the freshly
// re-parsed Config.
type WatchFunc func(*Config)

// Watch hot-reloads the bound config file on change, using viper's
// built-in fsnotify integration (the teacher's live-reload idiom).
// Parse errors are logged and the previous Config keeps serving. A
// no-op if no config file is bound (v.ConfigFileUsed() == ""), since
// there is nothing on disk to watch.
func Watch(v *viper.Viper, log *slog.Logger, onChange WatchFunc) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v, v.ConfigFileUsed())
		if err != nil {
			log.Warn("config reload failed, keeping previous configuration", "error", err)
			return
		}
		log.Info("configuration reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
}

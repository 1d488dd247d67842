package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch loads configuration like Load and then calls onChange with every
// subsequent valid revision of the file. Invalid revisions are logged and
// skipped so the last good configuration stays in effect. Without a config
// file there is nothing to watch and onChange is never called.
func Watch(path string, logger zerolog.Logger, onChange func(*Config)) (*Config, error) {
	v := newViper(path)
	if err := readConfig(v); err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	file := v.ConfigFileUsed()
	if file == "" {
		return cfg, nil
	}

	log := logger.With().Str("component", "config_watch").Str("file", file).Logger()
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			log.Warn().Err(err).Str("op", e.Op.String()).Msg("ignoring invalid configuration change")
			return
		}
		log.Info().Str("op", e.Op.String()).Msg("configuration reloaded")
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}

package config

import (
	"github.com/caarlos0/env/v11"
)

// envOverrides are settings an operator can change per host without editing
// the config file.
type envOverrides struct {
	LogLevel    string `env:"LUMENWALL_LOG_LEVEL"`
	LogFormat   string `env:"LUMENWALL_LOG_FORMAT"`
	Listen      string `env:"LUMENWALL_MONITOR_LISTEN"`
	HistoryPath string `env:"LUMENWALL_HISTORY_PATH"`
	Shuffle     *bool  `env:"LUMENWALL_SHUFFLE"`
}

// applyEnvOverrides reads overrides from environ, or from the process
// environment when environ is nil.
func applyEnvOverrides(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return err
	}

	if o.LogLevel != "" {
		cfg.Logging.Level = LogLevel(o.LogLevel)
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = LogFormat(o.LogFormat)
	}
	if o.Listen != "" {
		cfg.Monitor.Listen = o.Listen
	}
	if o.HistoryPath != "" {
		cfg.Monitor.HistoryPath = o.HistoryPath
	}
	if o.Shuffle != nil {
		cfg.Player.Shuffle = *o.Shuffle
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"helmsman/internal/config"
)

// loadConfig reads the config file over the built-in defaults. A
// missing file is not an error; the defaults apply as-is.
func loadConfig() (config.Config, error) {
	cfg := config.Default()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return cfg, nil
		}
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := config.ValidateSettings(viper.AllSettings()); err != nil {
		return config.Config{}, err
	}

	if err := viper.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return config.Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Retention.KeepDays < 0 {
		return config.Config{}, fmt.Errorf("retention.keep_days must be >= 0")
	}
	return cfg, nil
}

// cmd/groundlink/config.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"strings"

	"github.com/openuas/groundlink/serial"

	"github.com/spf13/viper"
)

// Config is the full startup configuration, read from an optional YAML
// file with GROUNDLINK_* environment overrides.
type Config struct {
	Listen      string `mapstructure:"listen"`
	BusURL      string `mapstructure:"bus_url"`
	LogLevel    string `mapstructure:"log_level"`
	LogDir      string `mapstructure:"log_dir"`
	AllowInject bool   `mapstructure:"allow_inject"`
	QueueSize   int    `mapstructure:"queue_size"`

	Sim struct {
		TickHz float64 `mapstructure:"tick_hz"`
	} `mapstructure:"sim"`

	SerialLinks []serial.Config `mapstructure:"serial_links"`
}

func loadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen", ":8765")
	v.SetDefault("log_level", "info")
	v.SetDefault("queue_size", 1024)
	v.SetDefault("sim.tick_hz", 50.0)

	v.SetEnvPrefix("GROUNDLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lorakit/internal/config"
)

// applyLoggingConfig applies config file defaults to the logging flags when
// they were not set explicitly.
func applyLoggingConfig(c *cli.Command, cfg config.Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyLoadConfig applies config file defaults to the load pipeline flags.
func applyLoadConfig(c *cli.Command, cfg config.Config, alpha, strengthModel, strengthClip *float64, dtype *string) {
	if cfg.Alpha != nil && !c.IsSet("alpha") && alpha != nil {
		*alpha = *cfg.Alpha
	}
	if cfg.StrengthModel != nil && !c.IsSet("strength-model") && strengthModel != nil {
		*strengthModel = *cfg.StrengthModel
	}
	if cfg.StrengthClip != nil && !c.IsSet("strength-clip") && strengthClip != nil {
		*strengthClip = *cfg.StrengthClip
	}
	if cfg.DType != "" && !c.IsSet("dtype") && dtype != nil {
		*dtype = cfg.DType
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// lorasDir resolves the LoRA directory from --loras-path, the environment
// and the config file.
func lorasDir() string {
	return appConfig.ResolveLorasDir(lorasPath)
}

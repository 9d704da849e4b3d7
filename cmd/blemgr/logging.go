package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemgr/pkg/config"
)

// configureLogger builds the command logger. --log-level beats --verbose,
// and either beats the level from the config file.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logrus.DebugLevel.String()
	}
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		switch flagLevel {
		case "debug", "info", "warn", "error":
			level = flagLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", flagLevel)
		}
	}

	effective := *cfg
	effective.LogLevel = level
	logger := effective.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

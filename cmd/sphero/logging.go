package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wwj718/spherov2/pkg/config"
)

// loadConfig builds the effective configuration from the optional
// --config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// configureLogger creates a logger from the --log-level flag. Without the
// flag the CLI stays silent so command output isn't interleaved with log
// lines; the config file's log_level applies only once the flag opts in
// to logging at all.
func configureLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if levelStr, _ := cmd.Flags().GetString("log-level"); levelStr != "" {
		level, err := logrus.ParseLevel(levelStr)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", levelStr)
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

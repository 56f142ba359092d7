package cmd

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/sirupsen/logrus"
)

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return nil
}

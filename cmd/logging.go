package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-memberships/config"
)

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Log.Level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}

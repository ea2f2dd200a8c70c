package cmd

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-payments-nicky/config"
)

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Log.Level))
	if err != nil {
		return err
	}
	if cfg.App.Debug && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return nil
}

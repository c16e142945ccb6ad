package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/krabwidget/krab/internal/config"
)

// newLogger writes to the settings' log file so the terminal stays free for
// the chat. The returned function closes the file.
func newLogger(s config.Settings, jsonLogs bool) (*logrus.Logger, func() error, error) {
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", s.LogLevel, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.LogFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log := logrus.New()
	log.SetOutput(f)
	log.SetLevel(level)
	if jsonLogs {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return log, f.Close, nil
}

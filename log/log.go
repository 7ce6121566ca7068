// Package log builds loggers configured by environment.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment variables which configure loggers.
const (
	DebugEnv  = "FLOW_DEBUG"
	FormatEnv = "FLOW_LOG_FORMAT"
	FileEnv   = "FLOW_LOG_FILE"
)

// Config defines logger parameters.
type Config struct {
	Debug bool
	// Format is either "text" or "json".
	Format string
	// File enables output to rotated log file.
	File string
}

// FromEnv returns config defined by environment variables.
func FromEnv() Config {
	debug, err := strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
	return Config{
		Debug:  debug,
		Format: os.Getenv(FormatEnv),
		File:   os.Getenv(FileEnv),
	}
}

// GetLogger returns a new logger instance configured by environment.
func GetLogger() *logrus.Logger {
	return New(FromEnv())
}

// New returns a new logger instance.
func New(c Config) *logrus.Logger {
	l := logrus.New()
	if c.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if c.File != "" {
		l.SetOutput(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    10,
			MaxBackups: 3,
		})
	}
	return l
}

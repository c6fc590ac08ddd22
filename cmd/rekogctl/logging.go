package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("log_level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	logrus.SetLevel(lvl)
	logrus.SetFormatter(log.Formatter)
	return log
}

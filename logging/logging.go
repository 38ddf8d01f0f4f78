// Package logging supplies the structured logger every other package
// logs through, grounded on the teacher's common/logger.go: a
// logrus.Logger wrapped by a field-carrying ContextLogger, plus a
// Deduper implementing spec.md §7's "errors ... are logged with
// deduplication (e.g. error_once!)" requirement.
package logging

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config mirrors the teacher's LoggerConfig shape.
type Config struct {
	Level     string // "debug"|"info"|"warn"|"error"
	Format    string // "json"|"text"
	Component string
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Component: "rerun"}
}

// New builds a logrus.Logger per cfg.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// ContextLogger carries a base set of structured fields (store_id,
// entity_path, component, ...) through a chain of WithField calls,
// mirroring the teacher's common.ContextLogger.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

func NewContextLogger(logger *logrus.Logger, fields map[string]any) *ContextLogger {
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

func (cl *ContextLogger) WithField(key string, value any) *ContextLogger {
	next := make(logrus.Fields, len(cl.fields)+1)
	for k, v := range cl.fields {
		next[k] = v
	}
	next[key] = value
	return &ContextLogger{logger: cl.logger, fields: next}
}

func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

// Deduper rate-limits repeated identical log lines, the Go equivalent of
// the source's error_once! macro (spec.md §7): the first occurrence of
// a given key logs immediately; subsequent occurrences within window
// are suppressed.
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{window: window, last: make(map[string]time.Time)}
}

// ShouldLog reports whether the caller should emit a log line for key
// now, recording that it did if so.
func (d *Deduper) ShouldLog(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now
	return true
}

// Once logs msg via logger.Warn exactly once per key per window.
func (d *Deduper) Once(logger *ContextLogger, key, msg string) {
	if d.ShouldLog(key) {
		logger.Warn(msg)
	}
}

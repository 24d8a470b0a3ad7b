// Package doctorlog is the structured-logging interface shared by every
// package in this repository: a minimal Logger/ComponentAware contract
// with a logrus-backed production implementation and a no-op default.
package doctorlog

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal structured-logging contract used throughout the
// doctor packages. Fields are passed through verbatim to the underlying
// implementation.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAware lets a logger scope itself to a named subsystem, e.g.
// "doctor/breaker" or "doctor/metrics", so structured logs can be filtered
// by component without threading a name through every call site.
type ComponentAware interface {
	Logger
	WithComponent(component string) Logger
}

// NoOp discards everything. It is the zero-value default wherever a
// caller doesn't supply a logger.
type NoOp struct{}

func (NoOp) Info(string, map[string]interface{})  {}
func (NoOp) Warn(string, map[string]interface{})  {}
func (NoOp) Error(string, map[string]interface{}) {}
func (NoOp) Debug(string, map[string]interface{}) {}

// logrusLogger adapts a *logrus.Entry to the Logger/ComponentAware
// contract. Debug-level records are only emitted when the underlying
// logrus level is set to Debug or lower.
type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a production Logger. level is one of logrus's level names
// ("debug", "info", "warn", "error"); format selects "json" or "text".
// Kubernetes environments (detected via KUBERNETES_SERVICE_HOST) default
// to JSON regardless of format, matching the ambient convention that
// containerized deployments get aggregator-friendly structured logs.
func New(component, level, format string) Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}

	if format == "json" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &logrusLogger{entry: base.WithField("component", component)}
}

// WithComponent returns a logger scoped to a sub-component, inheriting the
// parent's level and formatter.
func (l *logrusLogger) WithComponent(component string) Logger {
	return &logrusLogger{entry: l.entry.WithField("component", strings.TrimSpace(component))}
}

func (l *logrusLogger) Info(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}

func (l *logrusLogger) Debug(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

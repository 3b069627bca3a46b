// Package logger is the structured JSON logger shared by every loanwatch
// component. Warn and Error lines are counted per component for the
// periodic runtime report.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type Fields map[string]interface{}

type Log struct {
	*logrus.Logger
}

type Entry struct {
	*logrus.Entry
}

// rotateSizeMB caps a rotated log file when an output path and max age are set.
const rotateSizeMB = 100

var globalLogger = Logger()

// Logger returns a JSON logger at the level named by LOG_LEVEL, info when
// unset or unknown.
func Logger() *Log {
	l := logrus.New()
	level, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetReportCaller(true)
	l.SetFormatter(jsonFormatter())
	l.AddHook(newCallSiteHook())
	return &Log{Logger: l}
}

func GetLogger() *Log {
	return globalLogger
}

// parseLevel accepts the logrus level names plus "report", which logs at
// info and turns on the runtime report.
func parseLevel(name string) (logrus.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "report":
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func shortCaller(f *runtime.Frame) (string, string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
		CallerPrettyfier: shortCaller,
	}
}

func newFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case "", "json":
		return jsonFormatter(), nil
	case "text":
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: shortCaller,
		}, nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

// openOutput resolves stdout, stderr or a file path. A positive maxAge
// (days) rotates the file through lumberjack.
func openOutput(output string, maxAge int) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if maxAge > 0 {
		return &lumberjack.Logger{
			Filename: output,
			MaxAge:   maxAge,
			MaxSize:  rotateSizeMB,
			Compress: true,
		}, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", output, err)
	}
	return f, nil
}

// Configure applies the logging section of the config. LOG_LEVEL, when set,
// wins over level. Nothing is changed if any setting is invalid.
func (l *Log) Configure(level, format, output string, maxAge int) error {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	formatter, err := newFormatter(format)
	if err != nil {
		return err
	}
	w, err := openOutput(output, maxAge)
	if err != nil {
		return err
	}

	l.SetLevel(lvl)
	l.SetFormatter(formatter)
	l.SetOutput(w)
	l.SetReportCaller(true)
	return nil
}

func (l *Log) WithComponent(component string) *Entry {
	return &Entry{Entry: l.Logger.WithField("component", component)}
}

func (l *Log) WithFields(fields Fields) *Entry {
	return &Entry{Entry: l.Logger.WithFields(logrus.Fields(fields))}
}

func (l *Log) WithError(err error) *Entry {
	return &Entry{Entry: l.Logger.WithError(err)}
}

// LogMetric writes one metric event as an info line tagged with component.
func (l *Log) LogMetric(component, metric string, value interface{}, metricType string, fields Fields) {
	l.WithComponent(component).LogMetric(component, metric, value, metricType, fields)
}

func (e *Entry) WithComponent(component string) *Entry {
	return &Entry{Entry: e.Entry.WithField("component", component)}
}

func (e *Entry) WithFields(fields Fields) *Entry {
	return &Entry{Entry: e.Entry.WithFields(logrus.Fields(fields))}
}

func (e *Entry) WithError(err error) *Entry {
	return &Entry{Entry: e.Entry.WithError(err)}
}

func (e *Entry) component() string {
	c, _ := e.Entry.Data["component"].(string)
	return c
}

func (e *Entry) Debug(args ...interface{}) { e.Entry.Debug(args...) }

func (e *Entry) Info(args ...interface{}) { e.Entry.Info(args...) }

func (e *Entry) Warn(args ...interface{}) {
	if c := e.component(); c != "" {
		recordWarn(c)
	}
	e.Entry.Warn(args...)
}

func (e *Entry) Error(args ...interface{}) {
	if c := e.component(); c != "" {
		recordError(c)
	}
	e.Entry.Error(args...)
}

// LogMetric adds metric, value and metric_type (counter when empty) to
// fields and writes them as one line.
func (e *Entry) LogMetric(component, metric string, value interface{}, metricType string, fields Fields) {
	if metricType == "" {
		metricType = "counter"
	}
	line := make(Fields, len(fields)+3)
	for k, v := range fields {
		line[k] = v
	}
	line["metric"] = metric
	line["value"] = value
	line["metric_type"] = metricType
	e.WithComponent(component).WithFields(line).Info("metric")
}

// LogPerformanceEntry records how long operation took in component.
func LogPerformanceEntry(entry *Entry, component, operation string, elapsed time.Duration, fields Fields) {
	line := Fields{
		"operation":   operation,
		"duration_ms": float64(elapsed.Nanoseconds()) / 1e6,
	}
	for k, v := range fields {
		line[k] = v
	}
	entry.WithComponent(component).WithFields(line).Info("performance metric")
}

package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"loanwatch/internal/metrics"
)

// ring is a bounded, concurrency-safe history that keeps the newest items.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 200
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// filter returns the retained items accepted by keep, oldest first. A nil
// keep returns everything.
func (r *ring[T]) filter(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, it := range r.items {
		if keep == nil || keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// metricStore keeps the most recent metric events for /api/metrics.
type metricStore struct {
	history *ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{history: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.history.push(metric)
}

func (s *metricStore) snapshot() []metrics.Metric {
	return s.history.filter(nil)
}

// byAddress returns the metrics whose fields carry the given wallet address.
func (s *metricStore) byAddress(address string) []metrics.Metric {
	return s.history.filter(func(m metrics.Metric) bool {
		a, _ := m.Fields["address"].(string)
		return a == address
	})
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook that retains recent entries for /api/logs.
type logStore struct {
	history *ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{history: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	for k, v := range entry.Data {
		if k == "component" {
			record.Component, _ = v.(string)
			continue
		}
		if record.Fields == nil {
			record.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			record.Fields[k] = val.Error()
		case fmt.Stringer:
			record.Fields[k] = val.String()
		default:
			record.Fields[k] = val
		}
	}

	s.history.push(record)
	return nil
}

func (s *logStore) snapshot() []logRecord {
	return s.history.filter(nil)
}

// atLeast returns entries at level or more severe.
func (s *logStore) atLeast(level logrus.Level) []logRecord {
	return s.history.filter(func(r logRecord) bool {
		l, err := logrus.ParseLevel(r.Level)
		return err == nil && l <= level
	})
}

func (s *logStore) close() {
	s.enabled.Store(false)
}

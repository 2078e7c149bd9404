package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ratewatch/internal/metrics"
	"ratewatch/logger"
)

// ring is a mutex-guarded bounded buffer that keeps the most recent items.
// All three dashboard stores (metrics, logs, resource samples) sit on it.
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

func (r *ring[T]) add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		// keep the most recent entries only
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

func (r *ring[T]) snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// metricRecord is the serialisable form of one metric event as rendered by
// the /api/metrics endpoint. The polling mode is lifted out of the free-form
// fields so the UI can filter feed_batch counters per mode.
type metricRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component,omitempty"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Type      string        `json:"type"`
	Mode      string        `json:"mode,omitempty"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

// metricStore retains a bounded collection of the most recent metric events
// emitted by the application. It is safe for concurrent use.
type metricStore struct {
	*ring[metricRecord]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{ring: newRing[metricRecord](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) {
	record := metricRecord{
		Timestamp: metric.Timestamp,
		Component: metric.Component,
		Name:      metric.Name,
		Value:     metric.Value,
		Type:      metric.Type,
	}

	if len(metric.Fields) > 0 {
		fields := make(logger.Fields, len(metric.Fields))
		for k, v := range metric.Fields {
			if k == "mode" {
				if mode, ok := v.(string); ok {
					record.Mode = mode
					continue
				}
			}
			fields[k] = v
		}
		if len(fields) > 0 {
			record.Fields = fields
		}
	}

	s.add(record)
}

// logRecord is the serialisable form of a captured log entry as rendered by
// the /api/logs endpoint.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore retains the most recent logs that flow through the global logger.
// It implements the logrus Hook interface so it can be attached directly to
// the application's logger; close detaches it logically since logrus has no
// hook removal.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	s := &logStore{ring: newRing[logRecord](limit)}
	s.enabled.Store(true)
	return s
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
		Fields:    flattenFields(entry.Data),
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	s.add(record)
	return nil
}

func (s *logStore) close() {
	s.enabled.Store(false)
}

// flattenFields copies logrus data into a JSON-friendly map: the component
// is lifted into its own column and error/Stringer values are stringified.
func flattenFields(data logrus.Fields) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(data))
	for k, v := range data {
		if k == "component" {
			continue
		}
		switch val := v.(type) {
		case error:
			fields[k] = val.Error()
		case fmt.Stringer:
			fields[k] = val.String()
		default:
			fields[k] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observe defines the logging, metrics and tracing ports used by the
// runtime, together with no-op defaults and adapters for zerolog, Prometheus
// and OpenTelemetry.
//
// The ports are deliberately small so that any backend can be plugged in:
//
//	logger := observe.NewConsoleLogger(os.Stderr, "asyncrt", zerolog.InfoLevel)
//	metrics := observe.NewPrometheusMetrics(prometheus.NewRegistry())
//	tracer := observe.NewOTelTracer(otel.Tracer("asyncrt"))
//
// Every component accepts nil for any port and falls back to the no-op
// implementation; see LoggerOrNoOp and friends.
package observe

// Tracer creates spans around units of work.
type Tracer interface {
	// StartSpan creates a new span with the given name.
	// The span must be ended by calling End when the work completes.
	//
	// Example:
	//   span := tracer.StartSpan("task.run")
	//   defer span.End()
	StartSpan(name string) Span
}

// Span is a single traced unit of work.
type Span interface {
	// End marks the span as complete, typically via defer.
	End()

	// SetAttribute adds a key-value attribute to the span.
	// Strings, integers, bools and floats map to native attribute types;
	// anything else is formatted with fmt.
	SetAttribute(key string, value interface{})

	// RecordError records err on the span. It may be called more than once.
	RecordError(err error)
}

// MetricsCollector records counters, gauges and histograms by name.
type MetricsCollector interface {
	// Inc increments a counter by 1.
	//
	// Example:
	//   metrics.Inc("asyncrt_tasks_spawned_total")
	Inc(name string)

	// Add adds value to a counter or gauge.
	// For counters the value must be positive; gauges accept negative values.
	Add(name string, value float64)

	// Observe records value in a histogram.
	//
	// Example:
	//   metrics.Observe("asyncrt_task_duration_seconds", 0.012)
	Observe(name string, value float64)

	// Set sets a gauge to value.
	Set(name string, value float64)
}

// Logger is a leveled, structured logger.
type Logger interface {
	// Debug logs detailed troubleshooting information.
	//
	// Example:
	//   logger.Debug("Task spawned", map[string]interface{}{
	//       "task_id": id.String(),
	//       "policy":  "multi_thread",
	//   })
	Debug(msg string, fields map[string]interface{})

	// Info logs general informational messages.
	Info(msg string, fields map[string]interface{})

	// Warn logs potentially problematic situations.
	Warn(msg string, fields map[string]interface{})

	// Error logs failure conditions that should be investigated.
	//
	// Example:
	//   logger.Error("Task panicked", map[string]interface{}{
	//       "task_id": id.String(),
	//       "panic":   r,
	//   })
	Error(msg string, fields map[string]interface{})
}

// LoggerOrNoOp returns l, or a NoOpLogger if l is nil.
func LoggerOrNoOp(l Logger) Logger {
	if l == nil {
		return &NoOpLogger{}
	}
	return l
}

// MetricsOrNoOp returns m, or a NoOpMetrics if m is nil.
func MetricsOrNoOp(m MetricsCollector) MetricsCollector {
	if m == nil {
		return &NoOpMetrics{}
	}
	return m
}

// TracerOrNoOp returns t, or a NoOpTracer if t is nil.
func TracerOrNoOp(t Tracer) Tracer {
	if t == nil {
		return &NoOpTracer{}
	}
	return t
}

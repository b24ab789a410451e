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

package observe

// NoOpTracer discards every span.
type NoOpTracer struct{}

// StartSpan returns a NoOpSpan.
func (n *NoOpTracer) StartSpan(name string) Span {
	return &NoOpSpan{}
}

// NoOpSpan ignores all calls.
type NoOpSpan struct{}

// End is a no-op.
func (n *NoOpSpan) End() {}

// SetAttribute is a no-op.
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}

// RecordError is a no-op.
func (n *NoOpSpan) RecordError(err error) {}

// NoOpMetrics discards every measurement.
type NoOpMetrics struct{}

// Inc is a no-op.
func (n *NoOpMetrics) Inc(name string) {}

// Add is a no-op.
func (n *NoOpMetrics) Add(name string, value float64) {}

// Observe is a no-op.
func (n *NoOpMetrics) Observe(name string, value float64) {}

// Set is a no-op.
func (n *NoOpMetrics) Set(name string, value float64) {}

// NoOpLogger discards every message.
type NoOpLogger struct{}

// Debug is a no-op.
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// Info is a no-op.
func (n *NoOpLogger) Info(msg string, fields map[string]interface{}) {}

// Warn is a no-op.
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{}) {}

// Error is a no-op.
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}

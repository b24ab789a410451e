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

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger port.
type ZerologLogger struct {
	l zerolog.Logger
}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

// NewConsoleLogger builds a human-readable logger writing to w. Every entry
// carries a timestamp and an app field.
func NewConsoleLogger(w io.Writer, app string, level zerolog.Level) *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
	return &ZerologLogger{l: logger}
}

// Zerolog returns the underlying logger.
func (z *ZerologLogger) Zerolog() zerolog.Logger {
	return z.l
}

// Debug logs msg at debug level with fields.
func (z *ZerologLogger) Debug(msg string, fields map[string]interface{}) {
	z.l.Debug().Fields(fields).Msg(msg)
}

// Info logs msg at info level with fields.
func (z *ZerologLogger) Info(msg string, fields map[string]interface{}) {
	z.l.Info().Fields(fields).Msg(msg)
}

// Warn logs msg at warn level with fields.
func (z *ZerologLogger) Warn(msg string, fields map[string]interface{}) {
	z.l.Warn().Fields(fields).Msg(msg)
}

// Error logs msg at error level with fields.
func (z *ZerologLogger) Error(msg string, fields map[string]interface{}) {
	z.l.Error().Fields(fields).Msg(msg)
}

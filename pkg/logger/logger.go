// Copyright 2025 The SOLLOL Authors
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

// Package logger provides structured JSON logging for SOLLOL components.
//
// Each log entry is a single-line JSON object written through the standard
// library's log package (stderr by default, after that package's date/time
// prefix) so it is easily consumed by a log aggregator:
//
//	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
//	 "component":"router","message":"routed request","fields":{"node":"10.0.0.1:11434"}}
//
// Logger values are safe for concurrent use.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	Debug Level = "DEBUG"
	Info  Level = "INFO"
	Warn  Level = "WARN"
	Error Level = "ERROR"
)

// Logger emits structured log entries for a single component.
type Logger struct {
	Component  string
	InstanceID string
}

// Entry is a single structured log record.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Instance  string                 `json:"instance_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the given component name.
func New(component string) *Logger {
	return &Logger{
		Component:  component,
		InstanceID: os.Getenv("INSTANCE_ID"),
	}
}

// Log writes a structured entry at the given level.
func (l *Logger) Log(level Level, requestID, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Component: l.Component,
		Instance:  l.InstanceID,
		RequestID: requestID,
		Message:   message,
		Fields:    fields,
	}

	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Println(string(b))
}

// Info logs an informational message.
func (l *Logger) Info(requestID, message string, fields map[string]interface{}) {
	l.Log(Info, requestID, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(requestID, message string, fields map[string]interface{}) {
	l.Log(Warn, requestID, message, fields)
}

// Error logs an error message, attaching err as a field when non-nil.
func (l *Logger) Error(requestID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Log(Error, requestID, message, fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(requestID, message string, fields map[string]interface{}) {
	l.Log(Debug, requestID, message, fields)
}

// InfoDuration logs an info message annotated with an elapsed duration.
func (l *Logger) InfoDuration(requestID, message string, elapsed time.Duration, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = float64(elapsed.Microseconds()) / 1000.0
	l.Info(requestID, message, fields)
}

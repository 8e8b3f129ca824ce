// Copyright 2026 The Chalkos Authors.
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

// Package log provides the kernel's leveled logging. Kernel packages call
// Debugf/Infof/Warningf; the backing emitter is a logrus logger configured
// once at boot.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

var logger = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	return l
}

// Level is a logging severity.
type Level uint32

// Levels, from least to most verbose.
const (
	Warning Level = iota
	Info
	Debug
)

// SetLevel sets the global logging level.
func SetLevel(level Level) {
	switch level {
	case Warning:
		logger.SetLevel(logrus.WarnLevel)
	case Info:
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.DebugLevel)
	}
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetJSON switches the emitter to one-line JSON records.
func SetJSON() {
	logger.SetFormatter(&logrus.JSONFormatter{})
}

// IsLogging returns whether the given level would be emitted.
func IsLogging(level Level) bool {
	switch level {
	case Warning:
		return logger.IsLevelEnabled(logrus.WarnLevel)
	case Info:
		return logger.IsLevelEnabled(logrus.InfoLevel)
	default:
		return logger.IsLevelEnabled(logrus.DebugLevel)
	}
}

// Debugf logs a debug-level message.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Infof logs an info-level message.
func Infof(format string, args ...any) {
	logger.Infof(format, args...)
}

// Warningf logs a warning-level message.
func Warningf(format string, args ...any) {
	logger.Warnf(format, args...)
}

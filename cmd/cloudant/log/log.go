// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.
// Package log writes the diagnostics of the cloudant command. Command output
// never goes through a Logger; it is written by the output package.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a diagnostic line.
type Level int

// Diagnostic levels, least severe first.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Logger is the diagnostics interface used by the commands.
type Logger interface {
	// SetOutput sets the destination of all diagnostics.
	SetOutput(io.Writer)
	// SetDebug enables or suppresses debug lines.
	SetDebug(bool)
	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	// Warn logs a recoverable problem, such as a transient failure that
	// will be retried.
	Warn(...any)
	Warnf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

type logger struct {
	mu  sync.Mutex
	w   io.Writer
	min Level
}

var _ Logger = &logger{}

// New returns a logger writing to stderr, with debug lines suppressed.
func New() Logger {
	return &logger{w: os.Stderr, min: LevelInfo}
}

func (l *logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.w = w
	l.mu.Unlock()
}

func (l *logger) SetDebug(debug bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if debug {
		l.min = LevelDebug
	} else {
		l.min = LevelInfo
	}
}

func (l *logger) write(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.min {
		return
	}
	msg = strings.TrimSpace(msg)
	if level == LevelWarn {
		msg = "Warning: " + msg
	}
	_, _ = fmt.Fprintln(l.w, msg)
}

func (l *logger) Debug(args ...any) { l.write(LevelDebug, fmt.Sprint(args...)) }
func (l *logger) Info(args ...any)  { l.write(LevelInfo, fmt.Sprint(args...)) }
func (l *logger) Warn(args ...any)  { l.write(LevelWarn, fmt.Sprint(args...)) }
func (l *logger) Error(args ...any) { l.write(LevelError, fmt.Sprint(args...)) }

func (l *logger) Debugf(format string, args ...any) {
	l.write(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *logger) Infof(format string, args ...any) {
	l.write(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *logger) Warnf(format string, args ...any) {
	l.write(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *logger) Errorf(format string, args ...any) {
	l.write(LevelError, fmt.Sprintf(format, args...))
}

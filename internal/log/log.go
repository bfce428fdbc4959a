// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the kernel-wide leveled logger. All packages log through it
// so the embedding application can silence or redirect kernel output with a
// single call.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	// SilentLevel disables all output.
	SilentLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "SILENT"
	}
}

var (
	mu    sync.Mutex
	level = InfoLevel
	out   io.Writer = os.Stderr
)

// SetLogLevel sets the minimum level that will be written.
func SetLogLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

// SetOutput redirects log output, e.g. to a file or io.Discard.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func logf(l Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	fmt.Fprintf(out, "%s [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), l, fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) { logf(DebugLevel, format, args...) }

func Info(format string, args ...interface{}) { logf(InfoLevel, format, args...) }

func Warn(format string, args ...interface{}) { logf(WarnLevel, format, args...) }

func Error(format string, args ...interface{}) { logf(ErrorLevel, format, args...) }

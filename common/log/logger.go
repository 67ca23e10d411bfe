// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package log

import (
	"github.com/gabrieltanase42/legion/common/log/tag"
)

type (
	// Logger is the logging interface used throughout the runtime.
	// Implementations must be safe for concurrent use.
	Logger interface {
		Debug(msg string, tags ...tag.Tag)
		Info(msg string, tags ...tag.Tag)
		Warn(msg string, tags ...tag.Tag)
		Error(msg string, tags ...tag.Tag)
		Fatal(msg string, tags ...tag.Tag)
	}

	// WithLogger is an optional interface for loggers that can attach
	// a fixed set of tags to every message.
	WithLogger interface {
		With(tags ...tag.Tag) Logger
	}
)

// With returns a logger that emits the given tags on every message.
func With(logger Logger, tags ...tag.Tag) Logger {
	if wl, ok := logger.(WithLogger); ok {
		return wl.With(tags...)
	}
	return newPrependLogger(logger, tags...)
}

type prependLogger struct {
	logger Logger
	tags   []tag.Tag
}

func newPrependLogger(logger Logger, tags ...tag.Tag) *prependLogger {
	return &prependLogger{
		logger: logger,
		tags:   tags,
	}
}

func (l *prependLogger) Debug(msg string, tags ...tag.Tag) {
	l.logger.Debug(msg, append(l.tags, tags...)...)
}

func (l *prependLogger) Info(msg string, tags ...tag.Tag) {
	l.logger.Info(msg, append(l.tags, tags...)...)
}

func (l *prependLogger) Warn(msg string, tags ...tag.Tag) {
	l.logger.Warn(msg, append(l.tags, tags...)...)
}

func (l *prependLogger) Error(msg string, tags ...tag.Tag) {
	l.logger.Error(msg, append(l.tags, tags...)...)
}

func (l *prependLogger) Fatal(msg string, tags ...tag.Tag) {
	l.logger.Fatal(msg, append(l.tags, tags...)...)
}

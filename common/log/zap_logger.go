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
	"testing"

	"github.com/gabrieltanase42/legion/common/log/tag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

type zapLogger struct {
	zl *zap.Logger
}

var _ Logger = (*zapLogger)(nil)
var _ WithLogger = (*zapLogger)(nil)

// NewZapLogger returns a Logger backed by the given zap logger.
func NewZapLogger(zl *zap.Logger) Logger {
	return &zapLogger{zl: zl.WithOptions(zap.AddCallerSkip(1))}
}

// NewDefaultLogger returns a production-configured Logger writing to stderr.
func NewDefaultLogger() Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	zl, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return NewZapLogger(zl)
}

// NewTestLogger returns a Logger suitable for unit tests.
func NewTestLogger(t *testing.T) Logger {
	return NewZapLogger(zaptest.NewLogger(t))
}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return &zapLogger{zl: zap.NewNop()}
}

func (l *zapLogger) Debug(msg string, tags ...tag.Tag) {
	l.zl.Debug(msg, fields(tags)...)
}

func (l *zapLogger) Info(msg string, tags ...tag.Tag) {
	l.zl.Info(msg, fields(tags)...)
}

func (l *zapLogger) Warn(msg string, tags ...tag.Tag) {
	l.zl.Warn(msg, fields(tags)...)
}

func (l *zapLogger) Error(msg string, tags ...tag.Tag) {
	l.zl.Error(msg, fields(tags)...)
}

func (l *zapLogger) Fatal(msg string, tags ...tag.Tag) {
	l.zl.Fatal(msg, fields(tags)...)
}

func (l *zapLogger) With(tags ...tag.Tag) Logger {
	return &zapLogger{zl: l.zl.With(fields(tags)...)}
}

func fields(tags []tag.Tag) []zapcore.Field {
	fs := make([]zapcore.Field, 0, len(tags))
	for _, t := range tags {
		fs = append(fs, zap.Any(t.Key(), t.Value()))
	}
	return fs
}

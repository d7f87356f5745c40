/*
 * MIT License
 *
 * Copyright (c) 2026 Amulya Labs
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package logger wraps logrus with the small surface the cache engine needs:
// leveled, structured logging with per-call fields, and nothing else. The
// engine never logs through the standard library's log package.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Fields carries structured key/value context attached to a log line.
type Fields map[string]any

// Logger is the interface the engine depends on. Any component that needs to
// log takes a Logger, not a concrete logrus type.
type Logger interface {
	WithField(key string, val any) Logger
	WithFields(f Fields) Logger
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type entry struct {
	e *logrus.Entry
}

// New builds a Logger at the given Level, writing to w (os.Stderr if nil).
func New(lvl Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl.logrusLevel())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &entry{e: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops everything, for tests and callers that
// do not want engine chatter.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &entry{e: logrus.NewEntry(l)}
}

func (g *entry) WithField(key string, val any) Logger {
	return &entry{e: g.e.WithField(key, val)}
}

func (g *entry) WithFields(f Fields) Logger {
	return &entry{e: g.e.WithFields(logrus.Fields(f))}
}

func (g *entry) Debugf(format string, args ...any) { g.e.Debugf(format, args...) }
func (g *entry) Infof(format string, args ...any)  { g.e.Infof(format, args...) }
func (g *entry) Warnf(format string, args ...any)  { g.e.Warnf(format, args...) }
func (g *entry) Errorf(format string, args ...any) { g.e.Errorf(format, args...) }

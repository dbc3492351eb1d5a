// Package rlog centralizes the log/v3 prefix convention used across this
// module: every component logs through a small Logger carrying a bracketed
// prefix, the same way turbo/snapshotsync logs as "[OtterSync] ...".
package rlog

import (
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"
)

// Logger wraps log/v3 with a fixed "[component]" prefix so call sites read
// log.Info("[indexer] building", "index", name) instead of repeating the
// prefix at every call site.
type Logger struct {
	prefix string
}

// New returns a Logger that prefixes every message with "[component]".
func New(component string) Logger {
	return Logger{prefix: fmt.Sprintf("[%s]", component)}
}

func (l Logger) msg(m string) string {
	return l.prefix + " " + m
}

func (l Logger) Debug(msg string, ctx ...interface{}) { log.Debug(l.msg(msg), ctx...) }
func (l Logger) Info(msg string, ctx ...interface{})  { log.Info(l.msg(msg), ctx...) }
func (l Logger) Warn(msg string, ctx ...interface{})  { log.Warn(l.msg(msg), ctx...) }
func (l Logger) Error(msg string, ctx ...interface{}) { log.Error(l.msg(msg), ctx...) }

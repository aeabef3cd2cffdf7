// Package nlog is Timpani's leveled logger, modeled on aistore's cmn/nlog:
// package-level Infoln/Infof/Warningln/Errorln functions backed by one
// process-wide logger, with a FastV verbosity gate so hot paths (the
// timer handler, the observer's per-event loop) can skip formatting
// entirely below a configured level.
package nlog

import (
	"log"
	"os"
	"sync/atomic"
)

// Level mirrors the node/orchestrator config's log_level values.
type Level int32

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelVerbose
)

func ParseLevel(s string) (Level, bool) {
	switch s {
	case "silent":
		return LevelSilent, true
	case "error":
		return LevelError, true
	case "warn":
		return LevelWarn, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	case "verbose":
		return LevelVerbose, true
	default:
		return LevelSilent, false
	}
}

var (
	level  atomic.Int32
	stdlog = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func init() { level.Store(int32(LevelInfo)) }

// SetLevel sets the process-wide minimum verbosity.
func SetLevel(l Level) { level.Store(int32(l)) }

// FastV reports whether the current level is at or above v, and an
// (unused here, kept for call-site parity with the teacher's
// cmn.Rom.FastV(level, module) shape) module tag. Call sites gate
// expensive formatting behind it: `if nlog.FastV(LevelDebug, smoduleObs) {...}`.
func FastV(v Level, _ string) bool {
	return Level(level.Load()) >= v
}

func Infoln(args ...any) {
	if FastV(LevelInfo, "") {
		stdlog.Println(append([]any{"I"}, args...)...)
	}
}

func Infof(format string, args ...any) {
	if FastV(LevelInfo, "") {
		stdlog.Printf("I "+format, args...)
	}
}

func Warningln(args ...any) {
	if FastV(LevelWarn, "") {
		stdlog.Println(append([]any{"W"}, args...)...)
	}
}

func Warningf(format string, args ...any) {
	if FastV(LevelWarn, "") {
		stdlog.Printf("W "+format, args...)
	}
}

func Errorln(args ...any) {
	if FastV(LevelError, "") {
		stdlog.Println(append([]any{"E"}, args...)...)
	}
}

func Errorf(format string, args ...any) {
	if FastV(LevelError, "") {
		stdlog.Printf("E "+format, args...)
	}
}

func Debugln(args ...any) {
	if FastV(LevelDebug, "") {
		stdlog.Println(append([]any{"D"}, args...)...)
	}
}

func Debugf(format string, args ...any) {
	if FastV(LevelDebug, "") {
		stdlog.Printf("D "+format, args...)
	}
}

package kfmt

import "io"

// Level is the severity attached to a log message.
type Level uint8

// The supported log levels.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

var (
	colorReset = []byte("\x1b[39m")

	levelColors = [...][]byte{
		LevelDebug:   []byte("\x1b[36m"),
		LevelInfo:    []byte("\x1b[32m"),
		LevelWarning: []byte("\x1b[33m"),
		LevelError:   []byte("\x1b[31m"),
	}

	levelNames = [...][]byte{
		LevelDebug:   []byte("[DEBUG]"),
		LevelInfo:    []byte("[INFO]"),
		LevelWarning: []byte("[WARNING]"),
		LevelError:   []byte("[ERROR]"),
	}

	newLine = []byte("\n")
	space   = []byte(" ")
)

// Logf writes a single colored, level-tagged line to the active sink. A
// trailing newline is appended to the formatted message.
func Logf(level Level, format string, args ...interface{}) {
	sinkLock.Acquire()
	Flogf(outputSink, level, format, args...)
	sinkLock.Release()
}

// EmergencyLogf behaves like Logf but never blocks on the sink lock. It is
// meant for fatal paths (traps, panics) that may run while the interrupted
// code still holds the lock; output may interleave in that case.
func EmergencyLogf(level Level, format string, args ...interface{}) {
	locked := sinkLock.TryToAcquire()
	Flogf(outputSink, level, format, args...)
	if locked {
		sinkLock.Release()
	}
}

// Flogf writes a log line to w without touching the sink lock.
func Flogf(w io.Writer, level Level, format string, args ...interface{}) {
	if int(level) >= len(levelNames) {
		level = LevelError
	}

	doWrite(w, levelColors[level])
	doWrite(w, levelNames[level])
	doWrite(w, colorReset)
	doWrite(w, space)
	Fprintf(w, format, args...)
	doWrite(w, newLine)
}

// Debugf logs a message at LevelDebug.
func Debugf(format string, args ...interface{}) { Logf(LevelDebug, format, args...) }

// Infof logs a message at LevelInfo.
func Infof(format string, args ...interface{}) { Logf(LevelInfo, format, args...) }

// Warningf logs a message at LevelWarning.
func Warningf(format string, args ...interface{}) { Logf(LevelWarning, format, args...) }

// Errorf logs a message at LevelError.
func Errorf(format string, args ...interface{}) { Logf(LevelError, format, args...) }

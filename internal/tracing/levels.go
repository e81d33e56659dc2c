package tracing

import (
	"go.uber.org/zap/zapcore"
)

// VerboseLevel is a custom level below Debug used for the agent's most
// chatty diagnostics (wire data, per-event bridge output). Value: -2
// (Debug is -1, Info is 0).
const VerboseLevel = zapcore.Level(-2)

// LevelFromString parses a string into a zapcore.Level, supporting
// "verbose".
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "verbose" {
		return VerboseLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel is below Debug. The engine logs every hook it fires at this
// level and the bindings log skipped or excluded units.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a --log-level value. It is case-insensitive,
// accepts "trace" and "warning", and returns InfoLevel with the error for
// anything else.
func LevelFromString(level string) (zapcore.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return zapcore.InfoLevel, err
		}
		return l, nil
	}
}

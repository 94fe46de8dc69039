package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// ScopeName is the instrumentation scope of log records bridged from zap.
const ScopeName = "github.com/fyrsmithlabs/jobtrace"

// newDualCore creates a core writing to the console and/or OTEL.
func newDualCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Console {
		w := cfg.Output.Writer
		if w == nil {
			w = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(w), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		var otelCore zapcore.Core = otelzap.NewCore(ScopeName,
			otelzap.WithLoggerProvider(otelProvider),
		)
		// The bridge enables every level the provider accepts; cap it at the
		// configured level like the console core.
		if leveled, err := zapcore.NewIncreaseLevelCore(otelCore, cfg.Level); err == nil {
			otelCore = leveled
		}
		cores = append(cores, otelCore)
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	return newSampledCore(core, cfg.Sampling), nil
}

package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore limits repeated entries below error level. A plan with many
// parallel steps logs "firing hook", "span started" and "span ended" once per
// unit; per tick the sampler keeps the first cfg.Initial entries of each
// message and every cfg.Thereafter-th after that. Errors bypass the sampler
// so a failing unit is always reported.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	sampled := zapcore.NewSamplerWithOptions(
		&splitCore{Core: core},
		cfg.Tick.Duration(),
		cfg.Initial,
		cfg.Thereafter,
	)
	return zapcore.NewTee(&splitCore{Core: core, errors: true}, sampled)
}

// splitCore passes either the entries at error level and above, or the
// ones below it.
type splitCore struct {
	zapcore.Core
	errors bool
}

func (c *splitCore) Enabled(lvl zapcore.Level) bool {
	return (lvl >= zapcore.ErrorLevel) == c.errors && c.Core.Enabled(lvl)
}

func (c *splitCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *splitCore) With(fields []zapcore.Field) zapcore.Core {
	return &splitCore{Core: c.Core.With(fields), errors: c.errors}
}

package tracing

import (
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/secrets"
)

// redactingCore rewrites entry messages and string fields through the
// shared redactor before delegating to the wrapped core. Redaction runs
// on the write path so rules registered after a channel was created still
// apply to that channel.
type redactingCore struct {
	zapcore.Core
	redactor *secrets.Redactor
}

func newRedactingCore(base zapcore.Core, redactor *secrets.Redactor) zapcore.Core {
	return &redactingCore{Core: base, redactor: redactor}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{
		Core:     c.Core.With(c.redactFields(fields)),
		redactor: c.redactor,
	}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.redactText(ent.Message)
	return c.Core.Write(ent, c.redactFields(fields))
}

func (c *redactingCore) redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	copy(out, fields)
	for i := range out {
		switch out[i].Type {
		case zapcore.StringType:
			out[i].String = c.redactText(out[i].String)
		case zapcore.ErrorType:
			if err, ok := out[i].Interface.(error); ok && err != nil {
				out[i] = zapcore.Field{
					Key:    out[i].Key,
					Type:   zapcore.StringType,
					String: c.redactText(err.Error()),
				}
			}
		}
	}
	return out
}

// redactText applies the redactor, recovering a panic from a faulty rule.
// On failure the raw text is emitted rather than losing the record.
func (c *redactingCore) redactText(text string) (out string) {
	defer func() {
		if recover() != nil {
			out = text
		}
	}()
	return c.redactor.Redact(text)
}

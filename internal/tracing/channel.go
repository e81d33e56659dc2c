package tracing

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Channel is a named trace channel bound to the hub's shared redacting
// core. Channels are cheap to hold and safe for concurrent use.
type Channel struct {
	name string
	zap  *zap.Logger
	hub  *Hub
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Verbose writes at the verbose level.
func (c *Channel) Verbose(msg string, fields ...zap.Field) {
	c.log(VerboseLevel, msg, fields)
}

// Info writes at the info level.
func (c *Channel) Info(msg string, fields ...zap.Field) {
	c.log(zapcore.InfoLevel, msg, fields)
}

// Warning writes at the warn level.
func (c *Channel) Warning(msg string, fields ...zap.Field) {
	c.log(zapcore.WarnLevel, msg, fields)
}

// Error writes at the error level.
func (c *Channel) Error(msg string, fields ...zap.Field) {
	c.log(zapcore.ErrorLevel, msg, fields)
}

// Log writes at an arbitrary level.
func (c *Channel) Log(level zapcore.Level, msg string, fields ...zap.Field) {
	c.log(level, msg, fields)
}

func (c *Channel) log(level zapcore.Level, msg string, fields []zap.Field) {
	// Writes racing Close are dropped rather than crashing.
	if c.hub.isClosed() {
		return
	}
	if ce := c.zap.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

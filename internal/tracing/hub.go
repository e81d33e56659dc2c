package tracing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/secrets"
)

// Hub owns the process's trace channels. Channel creation is idempotent
// per name: concurrent first-time requests observe a single winner.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	base     *zap.Logger
	redactor *secrets.Redactor
	config   *Config

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewHub creates a hub writing to sink through redactor. otelProvider can
// be nil; it is only consulted when cfg.OTEL is set, mirroring the dual
// core layout used across fyrsmithlabs services.
func NewHub(cfg *Config, redactor *secrets.Redactor, sink zapcore.WriteSyncer, otelProvider log.LoggerProvider) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if redactor == nil {
		return nil, fmt.Errorf("redactor is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	// Channels share the core across goroutines; serialize sink writes.
	sink = zapcore.Lock(sink)

	cores := make([]zapcore.Core, 0, 2)
	cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), sink, cfg.Level))

	if cfg.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(cfg.HostType,
			otelzap.WithLoggerProvider(otelProvider),
		))
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	// Redaction wraps the tee so every sink sees masked text.
	core = newRedactingCore(core, redactor)

	return &Hub{
		channels: make(map[string]*Channel),
		base:     zap.New(core),
		redactor: redactor,
		config:   cfg,
	}, nil
}

// newEncoder creates a JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// GetChannel returns the channel for name, creating it on first request.
func (h *Hub) GetChannel(name string) *Channel {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if ok {
		return ch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[name]; ok {
		return ch
	}
	ch = &Channel{
		name: name,
		zap:  h.base.Named(name),
		hub:  h,
	}
	h.channels[name] = ch
	return ch
}

// Redactor returns the shared redactor so late-registered rules apply to
// every existing channel.
func (h *Hub) Redactor() *secrets.Redactor { return h.redactor }

// Config returns the hub configuration, including the page size and
// retention handed to the physical log writer.
func (h *Hub) Config() *Config { return h.config }

// Close flushes the sink and marks the hub closed. Idempotent; writes
// racing Close are dropped.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		err = h.sync()
	})
	return err
}

func (h *Hub) isClosed() bool {
	return h.closed.Load()
}

// sync flushes buffered entries, ignoring the harmless EINVAL/ENOTTY
// returned when the sink is stdout or stderr.
func (h *Hub) sync() error {
	err := h.base.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}

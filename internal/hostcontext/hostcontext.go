package hostcontext

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/containers"
	"github.com/fyrsmithlabs/agentd/internal/diagnostics"
	"github.com/fyrsmithlabs/agentd/internal/paths"
	"github.com/fyrsmithlabs/agentd/internal/secrets"
	"github.com/fyrsmithlabs/agentd/internal/shutdown"
	"github.com/fyrsmithlabs/agentd/internal/tracing"
)

// Environment variables read at construction.
const (
	// EnvHTTPTrace enables the diagnostic bridge for HTTP instrumentation.
	EnvHTTPTrace = "VSTS_AGENT_HTTPTRACE"

	// EnvPerfLog names a directory for append-only perf counter logging.
	EnvPerfLog = "VSTS_AGENT_PERFLOG"
)

// defaultBridgeTargets are the instrumentation sources the bridge follows
// when HTTP tracing is enabled.
var defaultBridgeTargets = []string{"net-http", "auth"}

// Host is the runtime host context of the agent process. It is created
// once and shared by every subsystem; all methods are safe for concurrent
// use.
type Host struct {
	hostType string
	id       string
	goos     string

	redactor    *secrets.Redactor
	hub         *tracing.Hub
	trace       *tracing.Channel
	coordinator *shutdown.Coordinator
	resolver    *paths.Resolver
	settings    *config.Store
	bus         *diagnostics.Bus
	bridge      *diagnostics.Bridge
	perf        *perfRecorder

	svcMu       sync.Mutex
	descriptors map[string]Descriptor
	factories   map[string]Factory
	instances   sync.Map

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	binDir        string
	goos          string
	sink          zapcore.WriteSyncer
	otelProvider  otellog.LoggerProvider
	bridgeTargets []string
	httpTrace     *bool
	perfDir       *string
	prometheus    prometheus.Registerer
}

// Option customizes host construction.
type Option func(*options)

// WithBinDir overrides the agent binary directory used for path
// derivation. Tests use this to anchor resolution away from the test
// binary.
func WithBinDir(dir string) Option {
	return func(o *options) { o.binDir = dir }
}

// WithPlatform overrides the platform used for service resolution and
// container path mapping.
func WithPlatform(goos string) Option {
	return func(o *options) { o.goos = goos }
}

// WithTraceSink overrides the trace hub sink. Defaults to stdout; the
// rotating file writer is wired in by the process supervisor.
func WithTraceSink(sink zapcore.WriteSyncer) Option {
	return func(o *options) { o.sink = sink }
}

// WithOTELProvider supplies a logger provider for the optional trace tee.
func WithOTELProvider(p otellog.LoggerProvider) Option {
	return func(o *options) { o.otelProvider = p }
}

// WithBridgeTargets overrides the instrumentation sources the diagnostic
// bridge subscribes to.
func WithBridgeTargets(targets []string) Option {
	return func(o *options) { o.bridgeTargets = targets }
}

// WithHTTPTrace forces the diagnostic bridge on or off regardless of the
// environment.
func WithHTTPTrace(enabled bool) Option {
	return func(o *options) { o.httpTrace = &enabled }
}

// WithPerfDir forces the perf counter directory regardless of the
// environment. Empty disables perf logging.
func WithPerfDir(dir string) Option {
	return func(o *options) { o.perfDir = &dir }
}

// WithPrometheusRegisterer overrides the registry receiving the perf
// counter metric.
func WithPrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.prometheus = reg }
}

// New constructs the host for hostType (agent, worker). Construction
// order is redactor, trace hub, settings, paths, shutdown, diagnostics,
// perf; Close releases everything in reverse.
func New(hostType string, opts ...Option) (*Host, error) {
	if hostType == "" {
		return nil, fmt.Errorf("host type is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	redactor := secrets.NewRedactor()
	redactor.AddValueEncoder(secrets.URLEscape)
	redactor.AddValueEncoder(secrets.JSONEscape)
	if err := redactor.AddPattern(secrets.URLPasswordPattern); err != nil {
		return nil, fmt.Errorf("registering default redaction pattern: %w", err)
	}

	sink := o.sink
	if sink == nil {
		sink = zapcore.AddSync(os.Stdout)
	}
	hub, err := tracing.NewHub(tracing.NewConfig(hostType), redactor, sink, o.otelProvider)
	if err != nil {
		return nil, fmt.Errorf("creating trace hub: %w", err)
	}
	trace := hub.GetChannel(hostType)

	h := &Host{
		hostType:    hostType,
		id:          uuid.New().String(),
		goos:        o.goos,
		redactor:    redactor,
		hub:         hub,
		trace:       trace,
		coordinator: shutdown.NewCoordinator(),
		bus:         diagnostics.NewBus(),
		descriptors: make(map[string]Descriptor),
		factories:   make(map[string]Factory),
	}
	if h.goos == "" {
		h.goos = runtime.GOOS
	}

	// Bootstrap resolver locates the settings file; the final resolver is
	// bound to the settings store for work-folder derivation.
	bootstrap, err := paths.NewResolver(o.binDir, nil, nil)
	if err != nil {
		hub.Close()
		return nil, fmt.Errorf("creating path resolver: %w", err)
	}
	settingsPath, err := bootstrap.ResolveConfigFile(paths.Agent)
	if err != nil {
		hub.Close()
		return nil, fmt.Errorf("locating settings file: %w", err)
	}
	h.settings = config.NewStore(settingsPath, trace)
	if err := h.settings.Load(); err != nil {
		hub.Close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	h.resolver, err = paths.NewResolver(o.binDir, h.settings, trace)
	if err != nil {
		hub.Close()
		return nil, fmt.Errorf("creating path resolver: %w", err)
	}

	if bridgeEnabled(o.httpTrace) {
		targets := o.bridgeTargets
		if targets == nil {
			targets = defaultBridgeTargets
		}
		h.bridge = diagnostics.NewBridge(h.bus, hub.GetChannel("HttpTrace"), targets)
	}

	perfDir := os.Getenv(EnvPerfLog)
	if o.perfDir != nil {
		perfDir = *o.perfDir
	}
	if perfDir != "" {
		reg := o.prometheus
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		h.perf, err = newPerfRecorder(perfDir, hostType, trace, reg)
		if err != nil {
			hub.Close()
			return nil, fmt.Errorf("creating perf recorder: %w", err)
		}
	}

	trace.Info("host context created",
		zap.String("host_type", hostType),
		zap.String("host_id", h.id),
		zap.Int("log_page_mb", hub.Config().PageSizeMB),
		zap.Int("log_retention_days", hub.Config().RetentionDays))
	return h, nil
}

// bridgeEnabled applies the explicit override, falling back to the
// environment flag.
func bridgeEnabled(override *bool) bool {
	if override != nil {
		return *override
	}
	enabled, err := strconv.ParseBool(os.Getenv(EnvHTTPTrace))
	return err == nil && enabled
}

// HostType returns the hosting process kind.
func (h *Host) HostType() string { return h.hostType }

// ID returns the unique id of this host instance.
func (h *Host) ID() string { return h.id }

// Redactor returns the shared secret redactor. Rules added here apply to
// every trace channel from the moment of registration.
func (h *Host) Redactor() *secrets.Redactor { return h.redactor }

// TraceHub returns the trace hub.
func (h *Host) TraceHub() *tracing.Hub { return h.hub }

// GetChannel returns the named trace channel.
func (h *Host) GetChannel(name string) *tracing.Channel {
	return h.hub.GetChannel(name)
}

// Settings returns the agent settings store.
func (h *Host) Settings() *config.Store { return h.settings }

// Paths returns the well-known path resolver.
func (h *Host) Paths() *paths.Resolver { return h.resolver }

// Diagnostics returns the instrumentation bus subsystems emit to.
func (h *Host) Diagnostics() *diagnostics.Bus { return h.bus }

// ContainerMapper returns a path mapper for launching job containers.
func (h *Host) ContainerMapper() *containers.Mapper {
	return containers.NewMapper(h.resolver, h.goos)
}

// Shutdown requests cooperative shutdown. The first reason wins.
func (h *Host) Shutdown(reason shutdown.Reason) {
	h.trace.Info("shutdown requested", zap.Stringer("reason", reason))
	h.coordinator.Signal(reason)
}

// ShutdownToken returns the coordinator for cooperative polling.
func (h *Host) ShutdownToken() *shutdown.Coordinator { return h.coordinator }

// Delay blocks until d elapses or ctx or the shutdown signal fires.
func (h *Host) Delay(ctx context.Context, d time.Duration) error {
	return h.coordinator.Delay(ctx, d)
}

// WritePerfCounter records a performance counter. A no-op unless perf
// logging was enabled at construction.
func (h *Host) WritePerfCounter(name string) {
	if h.perf == nil {
		return
	}
	h.perf.write(name)
}

// Close tears the host down in reverse acquisition order: diagnostic
// subscriptions, settings watcher, shutdown signal, trace hub. Idempotent
// and safe to race with in-flight writes.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		if h.bridge != nil {
			h.bridge.Close()
		}
		if err := h.settings.Close(); err != nil {
			h.closeErr = err
		}
		h.coordinator.Close()
		h.trace.Info("host context closed")
		if err := h.hub.Close(); err != nil && h.closeErr == nil {
			h.closeErr = err
		}
	})
	return h.closeErr
}

package hostcontext

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/containers"
	"github.com/fyrsmithlabs/agentd/internal/diagnostics"
	"github.com/fyrsmithlabs/agentd/internal/paths"
	"github.com/fyrsmithlabs/agentd/internal/shutdown"
)

// newTestHost constructs a host rooted in a temp directory with an
// in-memory trace sink.
func newTestHost(t *testing.T, opts ...Option) (*Host, *bytes.Buffer) {
	t.Helper()

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, ".agent"), []byte("work_folder: _work\n"), 0o600))

	buf := &bytes.Buffer{}
	base := []Option{
		WithBinDir(bin),
		WithTraceSink(zapcore.AddSync(buf)),
		WithHTTPTrace(false),
		WithPerfDir(""),
		WithPrometheusRegisterer(prometheus.NewRegistry()),
	}
	h, err := New("agent", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, buf
}

func TestNew_RequiresHostType(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestHost_GetServiceSingleton(t *testing.T) {
	h, _ := newTestHost(t)

	type counter struct{ n int }
	created := 0
	require.NoError(t, h.RegisterService("counter", Descriptor{
		Default: func(*Host) (any, error) {
			created++
			return &counter{n: created}, nil
		},
	}))

	results := make([]any, 16)
	done := make(chan struct{})
	for i := range results {
		go func(i int) {
			v, err := h.GetService("counter")
			if err != nil {
				t.Error(err)
			}
			results[i] = v
			done <- struct{}{}
		}(i)
	}
	for range results {
		<-done
	}

	for _, v := range results[1:] {
		assert.Same(t, results[0], v)
	}
	assert.Equal(t, 1, created)
}

func TestHost_CreateServiceDistinct(t *testing.T) {
	h, _ := newTestHost(t)

	require.NoError(t, h.RegisterService("job", Descriptor{
		Default: func(*Host) (any, error) { return &struct{ x int }{}, nil },
	}))

	a, err := h.CreateService("job")
	require.NoError(t, err)
	b, err := h.CreateService("job")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestHost_PlatformResolution(t *testing.T) {
	h, _ := newTestHost(t, WithPlatform("windows"))

	require.NoError(t, h.RegisterService("credstore", Descriptor{
		Default: func(*Host) (any, error) { return "generic", nil },
		Platform: map[string]Factory{
			"windows": func(*Host) (any, error) { return "dpapi", nil },
		},
	}))

	v, err := h.GetService("credstore")
	require.NoError(t, err)
	assert.Equal(t, "dpapi", v)
}

func TestHost_PlatformFallsBackToDefault(t *testing.T) {
	h, _ := newTestHost(t, WithPlatform("linux"))

	require.NoError(t, h.RegisterService("credstore", Descriptor{
		Default: func(*Host) (any, error) { return "generic", nil },
		Platform: map[string]Factory{
			"windows": func(*Host) (any, error) { return "dpapi", nil },
		},
	}))

	v, err := h.GetService("credstore")
	require.NoError(t, err)
	assert.Equal(t, "generic", v)
}

func TestHost_ServiceNotFound(t *testing.T) {
	h, _ := newTestHost(t)

	_, err := h.GetService("nonexistent")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Contains(t, err.Error(), "nonexistent")

	// A descriptor with no usable constructor fails the same way.
	require.NoError(t, h.RegisterService("empty", Descriptor{}))
	_, err = h.GetService("empty")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestHost_DuplicateRegistration(t *testing.T) {
	h, _ := newTestHost(t)

	d := Descriptor{Default: func(*Host) (any, error) { return 1, nil }}
	require.NoError(t, h.RegisterService("dup", d))
	assert.Error(t, h.RegisterService("dup", d))
}

func TestHost_ServicesReceiveHost(t *testing.T) {
	h, _ := newTestHost(t)

	require.NoError(t, h.RegisterService("introspect", Descriptor{
		Default: func(host *Host) (any, error) { return host, nil },
	}))

	v, err := h.GetService("introspect")
	require.NoError(t, err)
	assert.Same(t, h, v)
}

func TestResolve_TypedHelper(t *testing.T) {
	h, _ := newTestHost(t)

	require.NoError(t, h.RegisterService("name", Descriptor{
		Default: func(*Host) (any, error) { return "value", nil },
	}))

	s, err := Resolve[string](h, "name")
	require.NoError(t, err)
	assert.Equal(t, "value", s)

	_, err = Resolve[int](h, "name")
	assert.Error(t, err)
}

func TestHost_PerfCounterEndToEnd(t *testing.T) {
	perfDir := t.TempDir()
	reg := prometheus.NewRegistry()
	h, _ := newTestHost(t, WithPerfDir(perfDir), WithPrometheusRegisterer(reg))

	h.WritePerfCounter("build:start")

	content, err := os.ReadFile(filepath.Join(perfDir, "agent.perf"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^build_start:\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z\n$`), string(content))

	counter := h.perf.counter.WithLabelValues("build:start")
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}

func TestHost_PerfCounterDisabledIsNoop(t *testing.T) {
	h, _ := newTestHost(t)
	assert.NotPanics(t, func() { h.WritePerfCounter("build:start") })
}

func TestHost_PerfEnvVariable(t *testing.T) {
	perfDir := t.TempDir()
	t.Setenv(EnvPerfLog, perfDir)

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))

	h, err := New("worker",
		WithBinDir(bin),
		WithTraceSink(zapcore.AddSync(&bytes.Buffer{})),
		WithHTTPTrace(false),
		WithPrometheusRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer h.Close()

	h.WritePerfCounter("job:finish")

	content, err := os.ReadFile(filepath.Join(perfDir, "worker.perf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "job_finish:"))
}

func TestHost_TraceRedaction(t *testing.T) {
	h, buf := newTestHost(t)

	h.Redactor().AddValue("s3cr3t")
	h.GetChannel("Worker").Info("using s3cr3t now")

	assert.NotContains(t, buf.String(), "s3cr3t")
}

func TestHost_BridgeGatedByOption(t *testing.T) {
	h, buf := newTestHost(t, WithHTTPTrace(true))

	h.Diagnostics().Source("net-http").Emit(diagnostics.Event{
		ID:      1,
		Level:   diagnostics.LevelInformational,
		Message: "request {0} {1}",
		Payload: []any{0, "https://host"},
	})
	assert.Contains(t, buf.String(), "request GET https://host")
}

func TestHost_BridgeDisabledByDefault(t *testing.T) {
	h, buf := newTestHost(t)

	h.Diagnostics().Source("net-http").Emit(diagnostics.Event{
		ID:      1,
		Level:   diagnostics.LevelError,
		Message: "should not surface",
	})
	assert.NotContains(t, buf.String(), "should not surface")
}

func TestHost_BridgeEnvFlag(t *testing.T) {
	t.Setenv(EnvHTTPTrace, "true")
	assert.True(t, bridgeEnabled(nil))

	t.Setenv(EnvHTTPTrace, "0")
	assert.False(t, bridgeEnabled(nil))

	t.Setenv(EnvHTTPTrace, "garbage")
	assert.False(t, bridgeEnabled(nil))
}

func TestHost_PathsAndContainers(t *testing.T) {
	h, _ := newTestHost(t)

	work, err := h.Paths().Resolve(paths.Work)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(work, "_work"))

	info, err := h.ContainerMapper().Build(containers.Resource{Image: "ubuntu"}, true)
	require.NoError(t, err)
	assert.Len(t, info.Mounts, 3)
	assert.Equal(t, work, info.Mounts[1].Source)
}

func TestHost_ShutdownAndDelay(t *testing.T) {
	h, _ := newTestHost(t)

	go func() {
		time.Sleep(5 * time.Millisecond)
		h.Shutdown(shutdown.ReasonUserCancelled)
	}()

	err := h.Delay(context.Background(), 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	h.Shutdown(shutdown.ReasonOperatorShutdown)
	assert.Equal(t, shutdown.ReasonUserCancelled, h.ShutdownToken().Reason())
}

func TestHost_CloseIdempotent(t *testing.T) {
	h, buf := newTestHost(t)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	buf.Reset()
	assert.NotPanics(t, func() {
		h.GetChannel("Worker").Error("write after close")
	})
	assert.Empty(t, buf.String())
}

package hostcontext

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/tracing"
)

// perfRecorder appends performance counters to <dir>/<hostType>.perf and
// mirrors them into a prometheus counter. The file lock is its own,
// independent of the trace hub's locking.
type perfRecorder struct {
	mu      sync.Mutex
	path    string
	trace   *tracing.Channel
	counter *prometheus.CounterVec
}

func newPerfRecorder(dir, hostType string, trace *tracing.Channel, reg prometheus.Registerer) (*perfRecorder, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agentd_perf_counter_total",
		Help: "Performance counter writes by counter name.",
	}, []string{"counter"})
	if err := reg.Register(counter); err != nil {
		return nil, err
	}
	return &perfRecorder{
		path:    filepath.Join(dir, hostType+".perf"),
		trace:   trace,
		counter: counter,
	}, nil
}

// write appends one counter line. A failed write is traced and swallowed;
// perf logging never fails the calling operation.
func (p *perfRecorder) write(name string) {
	p.counter.WithLabelValues(name).Inc()

	line := strings.ReplaceAll(name, ":", "_") + ":" +
		time.Now().UTC().Format(time.RFC3339) + "\n"

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		p.trace.Warning("perf counter write failed",
			zap.String("counter", name), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		p.trace.Warning("perf counter write failed",
			zap.String("counter", name), zap.Error(err))
	}
}

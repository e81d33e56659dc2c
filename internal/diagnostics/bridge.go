package diagnostics

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/agentd/internal/tracing"
)

// lineBreakToken is the source-specific line-break placeholder used in
// event message templates.
const lineBreakToken = `\n`

// httpMethodEvents lists the event IDs whose first payload element is an
// HTTP method ordinal.
var httpMethodEvents = map[int]bool{
	1: true, // request start
	2: true, // request stop
	3: true, // request retry
}

// httpMethodNames maps the ordinal to its wire name.
var httpMethodNames = []string{
	"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS",
}

// credentialTypeEvents lists the event IDs whose first payload element is
// a credential type ordinal.
var credentialTypeEvents = map[int]bool{
	10: true, // authentication selected
	11: true, // authentication refreshed
}

// credentialTypeNames maps the ordinal to the credential kind.
var credentialTypeNames = []string{
	"None", "Basic", "Bearer", "OAuth", "ServiceIdentity", "PersonalAccessToken",
}

// Bridge converts instrumentation events into redacted trace records.
type Bridge struct {
	trace   *tracing.Channel
	targets map[string]bool

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewBridge subscribes to every bus source whose name is in targets,
// including sources created later. Events flow to trace at a severity
// mapped from the event level.
func NewBridge(bus *Bus, trace *tracing.Channel, targets []string) *Bridge {
	b := &Bridge{
		trace:   trace,
		targets: make(map[string]bool, len(targets)),
	}
	for _, name := range targets {
		b.targets[name] = true
	}

	bus.Watch(func(src *Source) {
		if !b.targets[src.Name()] {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		b.unsubs = append(b.unsubs, src.Subscribe(HandlerFunc(b.handle)))
	})
	return b
}

// handle formats and routes one event. Runs on the emitting goroutine;
// the only blocking work is the bounded trace write.
func (b *Bridge) handle(e Event) {
	msg, err := formatEvent(e)
	if err != nil {
		// Never drop the event: report the failure, then emit the raw
		// template and payload for diagnosis.
		b.trace.Error("diagnostic event formatting failed",
			zap.String("source", e.Source),
			zap.Int("event_id", e.ID),
			zap.Error(err))
		b.trace.Log(traceLevel(e.Level), e.Message,
			zap.String("source", e.Source),
			zap.Int("event_id", e.ID),
			zap.String("payload", fmt.Sprint(e.Payload...)))
		return
	}
	b.trace.Log(traceLevel(e.Level), msg,
		zap.String("source", e.Source),
		zap.Int("event_id", e.ID))
}

// Close unsubscribes from every source. Idempotent.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

// traceLevel maps an event level onto the trace channel severity.
func traceLevel(l Level) zapcore.Level {
	switch l {
	case LevelCritical, LevelError:
		return zapcore.ErrorLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelInformational:
		return zapcore.InfoLevel
	default:
		return tracing.VerboseLevel
	}
}

// formatEvent renders the event template against its payload.
func formatEvent(e Event) (string, error) {
	payload := make([]any, len(e.Payload))
	copy(payload, e.Payload)

	if len(payload) > 0 {
		var names []string
		var kind string
		switch {
		case httpMethodEvents[e.ID]:
			names, kind = httpMethodNames, "http method"
		case credentialTypeEvents[e.ID]:
			names, kind = credentialTypeNames, "credential type"
		}
		if names != nil {
			name, err := ordinalName(payload[0], names, kind)
			if err != nil {
				return "", err
			}
			payload[0] = name
		}
	}

	msg := strings.ReplaceAll(e.Message, lineBreakToken, lineSeparator())
	return substitute(msg, payload)
}

// ordinalName resolves an ordinal payload value against a name table.
func ordinalName(v any, names []string, kind string) (string, error) {
	ord, ok := toInt(v)
	if !ok {
		return "", fmt.Errorf("%s ordinal is %T, not an integer", kind, v)
	}
	if ord < 0 || ord >= len(names) {
		return "", fmt.Errorf("%s ordinal %d out of range", kind, ord)
	}
	return names[ord], nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// substitute replaces {n} placeholders with the corresponding payload
// value. A placeholder without a payload value is a formatting error.
func substitute(template string, payload []any) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(template); {
		c := template[i]
		if c != '{' {
			sb.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			sb.WriteString(template[i:])
			break
		}
		idx, err := strconv.Atoi(template[i+1 : i+end])
		if err != nil {
			// Not a placeholder, keep the literal braces.
			sb.WriteString(template[i : i+end+1])
			i += end + 1
			continue
		}
		if idx < 0 || idx >= len(payload) {
			return "", fmt.Errorf("placeholder {%d} has no payload value", idx)
		}
		fmt.Fprint(&sb, payload[idx])
		i += end + 1
	}
	return sb.String(), nil
}

// lineSeparator returns the platform line separator.
func lineSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

package diagnostics

import (
	"sync"
)

// Level is the severity an instrumentation source assigned to an event.
type Level int

const (
	LevelCritical Level = iota
	LevelError
	LevelWarning
	LevelInformational
	LevelVerbose
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "Critical"
	case LevelError:
		return "Error"
	case LevelWarning:
		return "Warning"
	case LevelInformational:
		return "Informational"
	case LevelVerbose:
		return "Verbose"
	default:
		return "Unknown"
	}
}

// Event is one instrumentation record. Events are transient: consumed
// once by each subscriber and discarded.
type Event struct {
	// Source is the emitting source name.
	Source string

	// ID is the source-scoped numeric event identifier.
	ID int

	// Level is the event severity.
	Level Level

	// Message is a template with {0}-style payload placeholders. The
	// literal token `\n` is translated to the platform line separator
	// during formatting.
	Message string

	// Payload holds the positional values for the template.
	Payload []any
}

// Handler consumes events from one source.
type Handler interface {
	Handle(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) Handle(e Event) { f(e) }

// Source is a named instrumentation stream. Emit dispatches to current
// subscribers on the calling goroutine; handlers must be fast and must
// not block unboundedly.
type Source struct {
	name string

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// subscription keys a handler by an id so removal never compares Handler
// values, whose dynamic type may be an uncomparable func.
type subscription struct {
	id      uint64
	handler Handler
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Subscribe adds a handler and returns its removal function. Removal is
// idempotent.
func (s *Source) Subscribe(h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, handler: h})
	return func() { s.unsubscribe(id) }
}

func (s *Source) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Rebuild instead of shifting in place: Emit iterates the previous
	// slice outside the lock, so its backing array must stay untouched.
	subs := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.id != id {
			subs = append(subs, sub)
		}
	}
	s.subs = subs
}

// Emit delivers e to every subscriber. With no subscribers it only takes
// a read lock, keeping disabled instrumentation cheap.
func (s *Source) Emit(e Event) {
	e.Source = s.name

	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.handler.Handle(e)
	}
}

// Bus is the process-wide set of instrumentation sources.
type Bus struct {
	mu       sync.RWMutex
	sources  map[string]*Source
	watchers []func(*Source)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{sources: make(map[string]*Source)}
}

// Source returns the source for name, creating it on first use. Watchers
// are notified of newly created sources.
func (b *Bus) Source(name string) *Source {
	b.mu.RLock()
	src, ok := b.sources[name]
	b.mu.RUnlock()
	if ok {
		return src
	}

	b.mu.Lock()
	if src, ok = b.sources[name]; ok {
		b.mu.Unlock()
		return src
	}
	src = &Source{name: name}
	b.sources[name] = src
	watchers := make([]func(*Source), len(b.watchers))
	copy(watchers, b.watchers)
	b.mu.Unlock()

	for _, w := range watchers {
		w(src)
	}
	return src
}

// Watch registers fn for source creation. Existing sources are replayed
// immediately so late watchers miss nothing.
func (b *Bus) Watch(fn func(*Source)) {
	b.mu.Lock()
	b.watchers = append(b.watchers, fn)
	existing := make([]*Source, 0, len(b.sources))
	for _, src := range b.sources {
		existing = append(existing, src)
	}
	b.mu.Unlock()

	for _, src := range existing {
		fn(src)
	}
}

package hostcontext

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrServiceNotFound means no implementation is registered or resolvable
// for a requested capability.
var ErrServiceNotFound = errors.New("service mapping not found")

// Factory constructs one service instance bound to the host.
type Factory func(*Host) (any, error)

// Descriptor maps a capability to its implementation constructors. The
// platform entry for the running GOOS wins over Default. The table is
// explicit by design: the mapping is registered at startup and statically
// verifiable, never discovered by reflection.
type Descriptor struct {
	Default  Factory
	Platform map[string]Factory
}

// singleton holds the once-created instance for one capability.
type singleton struct {
	once     sync.Once
	instance any
	err      error
}

// RegisterService adds the descriptor for capability. Registration
// happens during startup wiring; a duplicate capability is an error.
func (h *Host) RegisterService(capability string, d Descriptor) error {
	if capability == "" {
		return fmt.Errorf("capability name is required")
	}
	h.svcMu.Lock()
	defer h.svcMu.Unlock()
	if _, ok := h.descriptors[capability]; ok {
		return fmt.Errorf("capability %q already registered", capability)
	}
	h.descriptors[capability] = d
	return nil
}

// CreateService constructs a new instance for capability. Every call
// returns a distinct instance.
func (h *Host) CreateService(capability string) (any, error) {
	factory, err := h.resolveFactory(capability)
	if err != nil {
		return nil, err
	}
	instance, err := factory(h)
	if err != nil {
		return nil, fmt.Errorf("creating service %q: %w", capability, err)
	}
	h.trace.Verbose("created service", zap.String("capability", capability))
	return instance, nil
}

// GetService returns the cached singleton for capability, creating it on
// first access. Concurrent first calls observe a single winner.
func (h *Host) GetService(capability string) (any, error) {
	actual, _ := h.instances.LoadOrStore(capability, &singleton{})
	s := actual.(*singleton)
	s.once.Do(func() {
		s.instance, s.err = h.CreateService(capability)
	})
	return s.instance, s.err
}

// resolveFactory picks the implementation for capability. The first
// successful resolution is memoized for the process lifetime so later
// lookups skip platform inspection.
func (h *Host) resolveFactory(capability string) (Factory, error) {
	h.svcMu.Lock()
	defer h.svcMu.Unlock()

	if factory, ok := h.factories[capability]; ok {
		return factory, nil
	}

	d, ok := h.descriptors[capability]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, capability)
	}

	factory := d.Platform[h.goos]
	if factory == nil {
		factory = d.Default
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %s has no implementation for %s", ErrServiceNotFound, capability, h.goos)
	}

	h.factories[capability] = factory
	return factory, nil
}

// Resolve fetches the singleton for capability as T.
func Resolve[T any](h *Host, capability string) (T, error) {
	var zero T
	v, err := h.GetService(capability)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("capability %q resolved to %T, not %T", capability, v, zero)
	}
	return typed, nil
}

package rhi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrBackendNotAvailable is returned when no registered backend matches.
var ErrBackendNotAvailable = errors.New("rhi: backend not available")

// Factory opens a backend. Backend packages register one from init.
type Factory func(ctx context.Context) (Backend, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for OpenDefault; unlisted backends follow by name.
	backendPriority = []string{"vulkan"}
)

// Register registers a backend factory under name, replacing any previous
// registration.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend. This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names in ascending order.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens the backend registered under name.
func Open(ctx context.Context, name string) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return factory(ctx)
}

// OpenDefault opens the first backend that succeeds, trying them in
// priority order. It returns the joined errors of all attempts on failure.
func OpenDefault(ctx context.Context) (Backend, error) {
	names := Available()
	slices.SortStableFunc(names, func(a, b string) int {
		return priorityOf(a) - priorityOf(b)
	})
	if len(names) == 0 {
		return nil, ErrBackendNotAvailable
	}

	var errs []error
	for _, name := range names {
		b, err := Open(ctx, name)
		if err == nil {
			Logger().Info("rhi: backend opened", "backend", name)
			return b, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}

func priorityOf(name string) int {
	if i := slices.Index(backendPriority, name); i >= 0 {
		return i
	}
	return len(backendPriority)
}

package grove

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// resolver is the built form of a binding. It belongs to the container whose
// Build indexed it, and that container owns every disposable instance it
// constructs.
//
// Single resolvers cache the first instance they store. Scope resolvers are
// shared within one call graph through the Call's entries. Dependency
// resolvers construct on every request.
type resolver struct {
	*binding
	owner *Container
	seq   uint64

	mu     sync.Mutex
	cached bool
	value  any
}

func (r *resolver) matches(tag reflect.Type) bool {
	for _, t := range r.tags {
		if t == tag {
			return true
		}
	}
	return r.open && implements(r.implType, tag)
}

// implements reports whether an AsInterfaces registration with implementation
// type impl can serve tag.
func implements(impl, tag reflect.Type) bool {
	return impl != nil &&
		tag.Kind() == reflect.Interface &&
		tag.NumMethod() > 0 &&
		impl.Implements(tag)
}

func (r *resolver) resolve(call *Call) (any, error) {
	if r.lifetime != Single {
		v, err := r.build(call)
		if err != nil {
			return nil, err
		}
		if err := r.track(v); err != nil {
			return nil, err
		}
		if r.lifetime == Scope {
			call.remember(v, r)
		}
		return v, nil
	}

	r.mu.Lock()
	if r.cached {
		v := r.value
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	// The lock is not held while building so a single can depend on other
	// singles resolved from other goroutines. Concurrent first requests may
	// build twice; the first stored instance wins and the other is released.
	v, err := r.build(call)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.cached {
		winner := r.value
		r.mu.Unlock()
		r.release(v)
		call.remember(winner, r)
		return winner, nil
	}
	if err := r.track(v); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.value, r.cached = v, true
	r.mu.Unlock()

	call.remember(v, r)
	return v, nil
}

// build constructs, injects and activates one instance.
func (r *resolver) build(call *Call) (any, error) {
	if err := call.enter(r.implType); err != nil {
		return nil, err
	}
	defer call.leave()

	v, err := r.factory(call)
	if err != nil {
		return nil, constructErr(r.implType, err)
	}
	r.owner.settings.metrics.constructed(r.lifetime)

	if v != nil {
		if err := r.owner.plans.inject(call, v); err != nil {
			return nil, err
		}
	}
	if r.activation != nil {
		if err := r.activation(v, call); err != nil {
			return nil, fmt.Errorf("activating %s: %w", r.implType, err)
		}
	}
	return v, nil
}

// track hands v to the owner's disposal aggregate. The owner itself is never
// tracked.
func (r *resolver) track(v any) error {
	if c, ok := v.(*Container); ok && c == r.owner {
		return nil
	}
	if _, err := r.owner.disposer.track(v); err != nil {
		return fmt.Errorf("container disposed while constructing %s: %w", r.implType, err)
	}
	return nil
}

// release disposes an instance that lost a concurrent first resolution.
func (r *resolver) release(v any) {
	if c, ok := v.(*Container); ok && c == r.owner {
		return
	}
	if err := disposeOne(v); err != nil {
		r.owner.log.Warn("Failed to release duplicate single",
			zap.String("type", fmt.Sprintf("%T", v)),
			zap.Error(err),
		)
	}
}

func constructErr(t reflect.Type, err error) error {
	if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInjection) ||
		errors.Is(err, ErrResolution) || errors.Is(err, ErrDisposed) {
		return err
	}
	return fmt.Errorf("constructing %s: %w", t, err)
}

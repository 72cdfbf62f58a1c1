package grove

import (
	"fmt"
	"reflect"
	"time"
)

// TypeOf returns the reflect.Type for T. It is the usual way to name
// interface types when registering:
//
//	c.RegisterConstructor(NewPostgres).As(grove.TypeOf[Store]())
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// ---------------------------------------------------------------------------
// Container methods
// ---------------------------------------------------------------------------

// Resolve returns an instance for t with the given binding name ("" for the
// unnamed binding). Bindings are searched in c and then in its ancestors,
// and the most recent registration wins. A missing binding yields a
// [ResolutionError].
//
// Args are available to every factory and injection site in the graph, ahead
// of any registration. Prefer the generic [Resolve] helper.
func (c *Container) Resolve(t reflect.Type, name string, args ...Arg) (any, error) {
	v, found, err := c.TryResolve(t, name, args...)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &ResolutionError{Type: t, Name: name}
	}
	return v, nil
}

// TryResolve is like [Container.Resolve] but reports a missing binding with
// found == false instead of an error. Failures while building a graph that
// does have a binding are still errors.
func (c *Container) TryResolve(t reflect.Type, name string, args ...Arg) (v any, found bool, err error) {
	if c.disposed.Load() {
		return nil, false, ErrDisposed
	}
	start := time.Now()
	defer func() { c.settings.metrics.observeResolve(start, found, err) }()
	defer recoverInto(t, &err)

	return c.newCall(args).Get(t, name)
}

// CanResolve reports whether t with the given name has a binding in c or one
// of its ancestors. It does not construct anything.
func (c *Container) CanResolve(t reflect.Type, name string) bool {
	if c.disposed.Load() {
		return false
	}
	for cur := c; cur != nil; cur = cur.parent {
		if cur.table.Load().find(t, name) != nil {
			return true
		}
	}
	return false
}

// ResolveAll returns one instance from every binding of t in c and its
// ancestors: c's bindings first in registration order, then its parent's,
// and so on. Each binding is resolved in its own call. The result is empty,
// not an error, when nothing is bound.
func (c *Container) ResolveAll(t reflect.Type) (items []any, err error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}
	start := time.Now()
	defer func() { c.settings.metrics.observeResolve(start, true, err) }()
	defer recoverInto(t, &err)

	return c.resolveAll(t, 0)
}

// Inject fills target, which must be a non-nil pointer, as if it had just
// been constructed: tagged fields, setter properties and Inject methods.
// target is not tracked for disposal.
func (c *Container) Inject(target any, args ...Arg) (err error) {
	if c.disposed.Load() {
		return ErrDisposed
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return configErr(reflect.TypeOf(target), "inject target must be a non-nil pointer")
	}
	start := time.Now()
	defer func() { c.settings.metrics.observeResolve(start, true, err) }()
	defer recoverInto(rv.Type(), &err)

	return c.plans.inject(c.newCall(args), target)
}

// ---------------------------------------------------------------------------
// Generic helpers
// ---------------------------------------------------------------------------

// Resolve is a generic helper that resolves T from the container. It is the
// recommended way to retrieve values:
//
//	db, err := grove.Resolve[*Database](c)
func Resolve[T any](c *Container, args ...Arg) (T, error) {
	return ResolveNamed[T](c, "", args...)
}

// ResolveNamed is a generic helper that resolves a named binding:
//
//	db, err := grove.ResolveNamed[*Database](c, "primary")
func ResolveNamed[T any](c *Container, name string, args ...Arg) (T, error) {
	var zero T
	v, err := c.Resolve(TypeOf[T](), name, args...)
	if err != nil {
		return zero, err
	}
	return cast[T](v)
}

// TryResolve is the generic form of [Container.TryResolve].
func TryResolve[T any](c *Container, args ...Arg) (T, bool, error) {
	return TryResolveNamed[T](c, "", args...)
}

// TryResolveNamed is [TryResolve] for a named binding.
func TryResolveNamed[T any](c *Container, name string, args ...Arg) (T, bool, error) {
	var zero T
	v, found, err := c.TryResolve(TypeOf[T](), name, args...)
	if err != nil || !found {
		return zero, found, err
	}
	out, err := cast[T](v)
	return out, err == nil, err
}

// MustResolve is like [Resolve] but panics on error. Use it in main and in
// tests where a missing binding is a programming error.
func MustResolve[T any](c *Container, args ...Arg) T {
	v, err := Resolve[T](c, args...)
	if err != nil {
		panic(err)
	}
	return v
}

// CanResolve reports whether T has an unnamed binding.
func CanResolve[T any](c *Container) bool {
	return c.CanResolve(TypeOf[T](), "")
}

// CanResolveNamed reports whether T has a binding with the given name.
func CanResolveNamed[T any](c *Container, name string) bool {
	return c.CanResolve(TypeOf[T](), name)
}

// ResolveAll is the generic form of [Container.ResolveAll].
func ResolveAll[T any](c *Container) ([]T, error) {
	items, err := c.ResolveAll(TypeOf[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := cast[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Internal
// ---------------------------------------------------------------------------

// tryResolve searches c and its ancestors for the latest binding of t and
// name and resolves it within call.
func (c *Container) tryResolve(call *Call, t reflect.Type, name string) (any, bool, error) {
	for cur := c; cur != nil; cur = cur.parent {
		if r := cur.table.Load().find(t, name); r != nil {
			v, err := r.resolve(call)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		}
	}
	return nil, false, nil
}

// resolveAll resolves every binding of t, each in a fresh call that starts
// at depth so recursion through collections stays bounded.
func (c *Container) resolveAll(t reflect.Type, depth int) ([]any, error) {
	var out []any
	for cur := c; cur != nil; cur = cur.parent {
		for _, r := range cur.table.Load().candidates(t) {
			call := c.newCall(nil)
			call.depth = depth
			v, err := r.resolve(call)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// recoverInto converts a panic raised by user code during resolution into an
// error stored in *err.
func recoverInto(t reflect.Type, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("grove: panic while resolving %s: %v", t, r)
	}
}

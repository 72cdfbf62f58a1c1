package grove

import (
	"fmt"
	"reflect"
	"slices"
)

// Call is the state of one top-level resolve: the container it started on,
// the caller-supplied arguments, and every Single or Scope instance produced
// so far. Instances in a Call are reused for the rest of the graph, which is
// what makes [Scope] registrations shared within one resolve.
//
// A Call is handed to factories, activation hooks and injection. It is not
// safe for concurrent use and must not be retained after the factory
// returns.
type Call struct {
	container *Container
	entries   []entry
	args      []any
	depth     int
}

// entry is one instance available to a Call.
type entry struct {
	value    any
	resolver *resolver // nil for the container itself and caller arguments
	tags     []reflect.Type
	name     string
}

func (e *entry) matches(tag reflect.Type, name string) bool {
	if e.name != name {
		return false
	}
	if slices.Contains(e.tags, tag) {
		return true
	}
	return e.resolver != nil && e.resolver.open && implements(e.resolver.implType, tag)
}

func (c *Container) newCall(args []Arg) *Call {
	call := &Call{
		container: c,
		entries:   make([]entry, 0, len(args)+4),
	}
	call.entries = append(call.entries, entry{value: c, tags: []reflect.Type{containerType}})
	for _, a := range args {
		call.entries = append(call.entries, entry{value: a.value, tags: a.tags(), name: a.name})
		call.args = append(call.args, a.value)
	}
	return call
}

// Container returns the container the resolve started on.
func (call *Call) Container() *Container { return call.container }

// Args returns the caller-supplied argument values in order.
func (call *Call) Args() []any { return call.args }

// Get looks up t with the given binding name. Instances already produced in
// this call are reused first; otherwise the call's container and its
// ancestors are searched. A request for a slice type with no binding of its
// own collects every binding of the element type. found is false when
// nothing matched.
func (call *Call) Get(t reflect.Type, name string) (v any, found bool, err error) {
	for i := range call.entries {
		if call.entries[i].matches(t, name) {
			return call.entries[i].value, true, nil
		}
	}

	v, found, err = call.container.tryResolve(call, t, name)
	if err != nil || found {
		return v, found, err
	}

	if t.Kind() == reflect.Slice && name == "" {
		items, err := call.container.resolveAll(t.Elem(), call.depth)
		if err != nil {
			return nil, false, err
		}
		return sliceOf(t, items).Interface(), true, nil
	}
	return nil, false, nil
}

// Get resolves T from within a factory or activation hook, reusing instances
// already produced by the call.
func Get[T any](call *Call) (T, error) {
	return GetNamed[T](call, "")
}

// GetNamed is [Get] for a named binding.
func GetNamed[T any](call *Call, name string) (T, error) {
	var zero T
	t := TypeOf[T]()
	v, found, err := call.Get(t, name)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, &ResolutionError{Type: t, Name: name}
	}
	return cast[T](v)
}

func (call *Call) remember(v any, r *resolver) {
	call.entries = append(call.entries, entry{value: v, resolver: r, tags: r.tags, name: r.name})
}

func (call *Call) enter(t reflect.Type) error {
	call.depth++
	if call.depth > call.container.settings.maxDepth {
		call.depth--
		return &ResolutionError{Type: t, Err: ErrDepthExceeded}
	}
	return nil
}

func (call *Call) leave() { call.depth-- }

// ---------------------------------------------------------------------------
// Arguments
// ---------------------------------------------------------------------------

// Arg is a caller-supplied value made available to a single resolve call. It
// takes part in the graph like an instance already produced by the call.
type Arg struct {
	value any
	name  string
	types []reflect.Type
}

// Value wraps v as an argument matched by its dynamic type.
func Value(v any) Arg {
	return Arg{value: v}
}

// Named sets the binding name the argument answers to.
func (a Arg) Named(name string) Arg {
	a.name = name
	return a
}

// As replaces the argument's dynamic type with the given types.
func (a Arg) As(types ...reflect.Type) Arg {
	a.types = append(slices.Clone(a.types), types...)
	return a
}

func (a Arg) tags() []reflect.Type {
	if len(a.types) > 0 {
		return a.types
	}
	if a.value == nil {
		return nil
	}
	return []reflect.Type{reflect.TypeOf(a.value)}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func cast[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("grove: cannot use %T as %s", v, TypeOf[T]())
	}
	return out, nil
}

// sliceOf builds a value of slice type t from items, which must be
// assignable to its element type.
func sliceOf(t reflect.Type, items []any) reflect.Value {
	out := reflect.MakeSlice(t, 0, len(items))
	elem := t.Elem()
	for _, item := range items {
		if item == nil {
			out = reflect.Append(out, reflect.Zero(elem))
			continue
		}
		out = reflect.Append(out, reflect.ValueOf(item))
	}
	return out
}

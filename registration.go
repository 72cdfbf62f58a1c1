package grove

import (
	"errors"
	"reflect"
	"slices"
	"sync"
)

// binding is a registration record. It is created by a Register call,
// completed through its [Registration] handle, and consumed by Build.
type binding struct {
	name       string
	lifetime   Lifetime
	implType   reflect.Type
	tags       []reflect.Type
	open       bool // AsInterfaces
	factory    func(*Call) (any, error)
	activation func(any, *Call) error
	eager      bool
	instance   bool
	errs       []error
}

func (b *binding) validate() error {
	errs := slices.Clone(b.errs)
	if b.lifetime == Undefined {
		errs = append(errs, configErr(b.implType,
			"lifetime is undefined; call SingleInstance, InstancePerScope or InstancePerDependency"))
	}
	if len(b.tags) == 0 && !b.open {
		errs = append(errs, configErr(b.implType,
			"no resolved types; call As, AsSelf, AsInterfaces or AsInterfacesAndSelf"))
	}
	return errors.Join(errs...)
}

func (b *binding) fail(err error) {
	b.errs = append(b.errs, err)
}

// Registration is the fluent handle returned by the Register functions. Its
// methods return the same handle so calls can be chained:
//
//	c.RegisterConstructor(NewUserService).
//		As(grove.TypeOf[UserService]()).
//		InstancePerDependency()
//
// Changes made after the container's next Build has consumed the
// registration have no effect.
type Registration struct {
	b *binding
}

// Named sets the binding name. Resolution only matches a named registration
// when the same name is requested.
func (r *Registration) Named(name string) *Registration {
	r.b.name = name
	return r
}

// As adds resolved types the registration can be requested as. Every type
// must be assignable from the implementation type; an incompatible type is
// reported by Build as a [ConfigurationError].
func (r *Registration) As(types ...reflect.Type) *Registration {
	for _, t := range types {
		if t == nil {
			r.b.fail(configErr(r.b.implType, "As called with a nil type"))
			continue
		}
		if r.b.implType != nil && !r.b.implType.AssignableTo(t) {
			r.b.fail(configErr(r.b.implType, "cannot be used as %s", t))
			continue
		}
		r.addTag(t)
	}
	return r
}

// AsSelf adds the implementation type itself as a resolved type.
func (r *Registration) AsSelf() *Registration {
	if r.b.implType != nil {
		r.addTag(r.b.implType)
	}
	return r
}

// AsInterfaces makes the registration resolvable as every non-empty interface
// its implementation type satisfies. Interfaces are matched when they are
// first requested, since Go types do not list the interfaces they implement.
func (r *Registration) AsInterfaces() *Registration {
	r.b.open = true
	return r
}

// AsInterfacesAndSelf combines [Registration.AsInterfaces] and
// [Registration.AsSelf].
func (r *Registration) AsInterfacesAndSelf() *Registration {
	return r.AsInterfaces().AsSelf()
}

// SingleInstance selects the [Single] lifetime.
func (r *Registration) SingleInstance() *Registration {
	return r.lifetime(Single)
}

// InstancePerScope selects the [Scope] lifetime.
func (r *Registration) InstancePerScope() *Registration {
	return r.lifetime(Scope)
}

// InstancePerDependency selects the [Dependency] lifetime.
func (r *Registration) InstancePerDependency() *Registration {
	return r.lifetime(Dependency)
}

// NonLazy makes Build resolve the registration immediately instead of on
// first request. Instance registrations cannot be eager.
func (r *Registration) NonLazy() *Registration {
	if r.b.instance {
		r.b.fail(configErr(r.b.implType, "instance registrations cannot be NonLazy"))
		return r
	}
	r.b.eager = true
	return r
}

// OnActivation sets a callback run after each newly constructed instance has
// been injected. An error from fn aborts the enclosing resolve call.
func (r *Registration) OnActivation(fn func(instance any, call *Call) error) *Registration {
	r.b.activation = fn
	return r
}

func (r *Registration) lifetime(l Lifetime) *Registration {
	if r.b.instance && l != Single {
		r.b.fail(configErr(r.b.implType, "instance registrations are always single, not %s", l))
		return r
	}
	r.b.lifetime = l
	return r
}

func (r *Registration) addTag(t reflect.Type) {
	if !slices.Contains(r.b.tags, t) {
		r.b.tags = append(r.b.tags, t)
	}
}

// ---------------------------------------------------------------------------
// Register functions
// ---------------------------------------------------------------------------

// RegisterInstance registers an already-built value. Its lifetime is fixed to
// [Single] and every resolution returns v itself.
func (c *Container) RegisterInstance(v any) *Registration {
	b := &binding{
		lifetime: Single,
		implType: reflect.TypeOf(v),
		instance: true,
		factory:  func(*Call) (any, error) { return v, nil },
	}
	if v == nil {
		b.fail(configErr(nil, "instance is nil"))
	}
	return c.add(b)
}

// RegisterFactory registers fn as the factory for T. The factory receives the
// [Call] of the resolve in progress; it may ignore it, use
// [Call.Container], read [Call.Args], or pull dependencies with [Get].
func RegisterFactory[T any](c *Container, fn func(call *Call) (T, error)) *Registration {
	t := TypeOf[T]()
	b := &binding{implType: t}
	if fn == nil {
		b.fail(configErr(t, "factory is nil"))
	}
	b.factory = func(call *Call) (any, error) {
		v, err := fn(call)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return c.add(b)
}

// RegisterType registers T for reflected construction: a zero value is
// allocated and then filled by T's injection plan. T must be a pointer to a
// struct; any other type fails on first resolution.
func RegisterType[T any](c *Container) *Registration {
	return c.RegisterType(TypeOf[T]())
}

// RegisterType is the reflect.Type form of the generic [RegisterType].
func (c *Container) RegisterType(t reflect.Type) *Registration {
	b := &binding{implType: t}
	if t == nil {
		b.fail(configErr(nil, "RegisterType called with a nil type"))
	}
	b.factory = func(*Call) (any, error) {
		if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			return nil, configErr(t, "reflected registration needs a pointer to a struct; register a constructor instead")
		}
		return reflect.New(t.Elem()).Interface(), nil
	}
	return c.add(b)
}

// RegisterConstructor registers a constructor function with the signature
// func(deps...) T or func(deps...) (T, error). Each parameter is resolved by
// type when the constructor runs; a parameter whose struct type embeds [In]
// is filled field by field. The implementation type is T.
func (c *Container) RegisterConstructor(fn any) *Registration {
	b := &binding{}
	val := reflect.ValueOf(fn)

	if !val.IsValid() || val.Kind() != reflect.Func {
		b.fail(configErr(reflect.TypeOf(fn), "constructor must be a function"))
		return c.add(b)
	}

	typ := val.Type()
	if typ.NumOut() == 0 || typ.NumOut() > 2 {
		b.fail(configErr(typ, "constructor must return (T) or (T, error)"))
		return c.add(b)
	}
	if typ.NumOut() == 2 && !typ.Out(1).Implements(errorType) {
		b.fail(configErr(typ, "second return value must implement error"))
		return c.add(b)
	}
	b.implType = typ.Out(0)

	var (
		once sync.Once
		inv  *invoker
		err  error
	)
	plans := c.plans
	b.factory = func(call *Call) (any, error) {
		once.Do(func() { inv, err = plans.constructor(val) })
		if err != nil {
			return nil, err
		}
		return inv.construct(call)
	}
	return c.add(b)
}

func (c *Container) add(b *binding) *Registration {
	c.mu.Lock()
	c.pending = append(c.pending, b)
	c.mu.Unlock()
	return &Registration{b: b}
}

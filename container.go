package grove

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Container holds registrations and resolves object graphs from them. Create
// a root container with [New] and nested ones with [Container.CreateChild].
//
// Registration and Build may be called from any goroutine; resolution is safe
// for concurrent use and does not block on Build.
type Container struct {
	id       string
	parent   *Container
	settings *settings
	log      *zap.Logger
	plans    *planCache

	mu      sync.Mutex // guards pending
	pending []*binding

	buildMu sync.Mutex // serializes Build
	built   bool
	seq     uint64
	table   atomic.Pointer[table]

	disposer *disposer
	disposed atomic.Bool
}

// New creates an empty root container.
func New(opts ...Option) *Container {
	return newContainer(nil, newSettings(opts), newPlanCache())
}

func newContainer(parent *Container, s *settings, plans *planCache) *Container {
	c := &Container{
		id:       uuid.NewString(),
		parent:   parent,
		settings: s,
		plans:    plans,
		disposer: newDisposer(),
	}
	c.log = s.logger.With(zap.String("container", c.id))
	c.table.Store(&table{byTag: map[reflect.Type][]*resolver{}})
	return c
}

// ID returns the container's unique identifier, as used in its log fields.
func (c *Container) ID() string { return c.id }

// Parent returns the container this one was created from, or nil for a root.
func (c *Container) Parent() *Container { return c.parent }

// CreateChild returns a new empty container whose lookups fall back to c. The
// child shares c's logger, metrics, depth limit and compiled plans, and is
// disposed together with c. A child of a disposed container is born disposed.
func (c *Container) CreateChild() *Container {
	child := newContainer(c, c.settings, c.plans)
	// Tracking after c is disposed disposes the child immediately.
	_, _ = c.disposer.track(child)
	c.log.Debug("Child container created", zap.String("child", child.id))
	return child
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// Build indexes every registration made since the previous Build and then
// resolves the ones marked NonLazy.
//
// The batch is all or nothing: if any registration is incomplete or invalid,
// Build returns the joined [ConfigurationError]s and indexes none of them.
// Bindings added by a later Build take precedence over earlier ones for the
// same type and name. The first Build also registers the container itself
// as *Container.
func (c *Container) Build() error {
	if c.disposed.Load() {
		return ErrDisposed
	}

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	var errs []error
	for _, b := range batch {
		if err := b.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if !c.built {
		c.built = true
		batch = append([]*binding{{
			lifetime: Single,
			implType: containerType,
			tags:     []reflect.Type{containerType},
			instance: true,
			factory:  func(*Call) (any, error) { return c, nil },
		}}, batch...)
	}

	resolvers := make([]*resolver, 0, len(batch))
	var eager []*resolver
	for _, b := range batch {
		c.seq++
		r := &resolver{binding: b, owner: c, seq: c.seq}
		resolvers = append(resolvers, r)
		if b.eager {
			eager = append(eager, r)
		}
		c.log.Debug("Registration indexed",
			zap.Stringer("type", b.implType),
			zap.String("name", b.name),
			zap.Stringer("lifetime", b.lifetime),
			zap.Strings("as", typeNames(b.tags)),
			zap.Bool("as_interfaces", b.open),
			zap.Bool("eager", b.eager),
		)
	}
	c.table.Store(c.table.Load().with(resolvers))

	if err := c.resolveEager(eager); err != nil {
		return err
	}

	c.log.Debug("Container built",
		zap.Int("registrations", len(resolvers)),
		zap.Int("eager", len(eager)),
	)
	return nil
}

// resolveEager resolves NonLazy registrations in registration order, sharing
// one call between them.
func (c *Container) resolveEager(eager []*resolver) error {
	call := c.newCall(nil)
	for _, r := range eager {
		err := func() (err error) {
			defer recoverInto(r.implType, &err)
			_, err = r.resolve(call)
			return err
		}()
		if err != nil {
			return fmt.Errorf("resolving eager %s: %w", r.implType, err)
		}
	}
	return nil
}

func typeNames(types []reflect.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

// Source contributes registrations to a container. Libraries expose their
// services as a Source so applications can install them in one call.
type Source interface {
	Register(c *Container) error
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(c *Container) error

// Register calls f(c).
func (f SourceFunc) Register(c *Container) error { return f(c) }

// Install registers every source in order. It stops at the first error. The
// registrations still need a Build.
func (c *Container) Install(sources ...Source) error {
	for _, s := range sources {
		if err := s.Register(c); err != nil {
			return fmt.Errorf("installing %T: %w", s, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dispose
// ---------------------------------------------------------------------------

// Dispose disposes every child container and every [Disposable] or
// [io.Closer] instance this container constructed, in the order they were
// created, and joins their errors. After Dispose, Build and the resolve entry
// points return [ErrDisposed]. Later calls return nil.
func (c *Container) Dispose() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}

	tracked := c.disposer.len()
	err := c.disposer.dispose(c.log, c.settings.metrics)
	if c.parent != nil {
		c.parent.disposer.untrack(c)
	}
	c.log.Debug("Container disposed", zap.Int("tracked", tracked), zap.Bool("failed", err != nil))
	return err
}

// Disposed reports whether Dispose has been called.
func (c *Container) Disposed() bool { return c.disposed.Load() }

// ---------------------------------------------------------------------------
// Lookup table
// ---------------------------------------------------------------------------

// table is an immutable snapshot of a container's resolvers. Build replaces
// it wholesale, so lookups never take a lock.
type table struct {
	byTag map[reflect.Type][]*resolver
	open  []*resolver // AsInterfaces registrations

	// implicit memoizes, per interface, which open resolvers implement it.
	implicit sync.Map
}

func (t *table) with(rs []*resolver) *table {
	next := &table{
		byTag: make(map[reflect.Type][]*resolver, len(t.byTag)+len(rs)),
		open:  t.open[:len(t.open):len(t.open)],
	}
	for tag, list := range t.byTag {
		next.byTag[tag] = list
	}
	for _, r := range rs {
		for _, tag := range r.tags {
			list := next.byTag[tag]
			next.byTag[tag] = append(list[:len(list):len(list)], r)
		}
		if r.open {
			next.open = append(next.open, r)
		}
	}
	return next
}

// candidates returns every resolver serving tag, in registration order.
func (t *table) candidates(tag reflect.Type) []*resolver {
	explicit := t.byTag[tag]
	if len(t.open) == 0 || tag.Kind() != reflect.Interface || tag.NumMethod() == 0 {
		return explicit
	}

	implicit := t.implementing(tag)
	if len(implicit) == 0 {
		return explicit
	}
	if len(explicit) == 0 {
		return implicit
	}

	merged := make([]*resolver, 0, len(explicit)+len(implicit))
	i, j := 0, 0
	for i < len(explicit) || j < len(implicit) {
		switch {
		case j == len(implicit) || i < len(explicit) && explicit[i].seq < implicit[j].seq:
			merged = append(merged, explicit[i])
			i++
		case i == len(explicit) || implicit[j].seq < explicit[i].seq:
			merged = append(merged, implicit[j])
			j++
		default: // same resolver listed both ways
			merged = append(merged, explicit[i])
			i++
			j++
		}
	}
	return merged
}

func (t *table) implementing(tag reflect.Type) []*resolver {
	if v, ok := t.implicit.Load(tag); ok {
		return v.([]*resolver)
	}
	var out []*resolver
	for _, r := range t.open {
		if implements(r.implType, tag) {
			out = append(out, r)
		}
	}
	v, _ := t.implicit.LoadOrStore(tag, out)
	return v.([]*resolver)
}

// find returns the most recently registered resolver for tag and name.
func (t *table) find(tag reflect.Type, name string) *resolver {
	cands := t.candidates(tag)
	for i := len(cands) - 1; i >= 0; i-- {
		if cands[i].name == name {
			return cands[i]
		}
	}
	return nil
}

// Package grove provides a hierarchical, reflection-based dependency
// injection container for Go.
//
// Services are registered with a constructor, a factory, a reflected type or
// a ready-made instance, given one or more types to be resolved as and a
// lifetime, and then indexed by [Container.Build]. Resolution builds whole
// object graphs: constructor parameters, tagged struct fields, setter
// properties and Inject methods are all satisfied from the container.
//
// # Quick Start
//
//	c := grove.New()
//	c.RegisterConstructor(NewLogger).AsSelf().SingleInstance()
//	c.RegisterConstructor(NewDatabase).As(grove.TypeOf[Store]()).SingleInstance()
//	if err := c.Build(); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Dispose()
//
//	store, err := grove.Resolve[Store](c)
//
// # Lifetimes
//
// [Single]: one instance per registration, created on first use (or during
// Build with NonLazy) and cached for the container's life.
//
// [Scope]: one instance per top-level resolve. Every consumer in the same
// object graph shares it; the next Resolve call gets a new one.
//
// [Dependency]: a new instance for every consumer.
//
// # Injection
//
// After construction the container applies the type's injection plan:
//
//	type Handler struct {
//		Log   *zap.Logger `inject:""`
//		Cache Cache       `inject:"redis,optional"`
//		clock Clock       `inject:",setter"` // calls SetClock
//	}
//
//	func (h *Handler) InjectMetrics(m *Metrics) { ... }
//
// Fields come first, then setter properties, then methods whose name starts
// with Inject, in name order. A required dependency that cannot be found
// fails with an [InjectionError]; optional ones are left untouched.
//
// # Child Containers
//
// [Container.CreateChild] returns a container that falls back to its parent
// for anything it does not bind itself. Children are the unit of release: a
// per-request child owns the instances built from its own bindings and frees
// them on Dispose. Instances built from parent bindings stay with the parent.
//
//	req := root.CreateChild()
//	defer req.Dispose()
//	req.RegisterInstance(user).AsSelf()
//	req.Build()
//
// # Named Bindings
//
// When several implementations serve the same type, name them:
//
//	c.RegisterConstructor(NewMySQL).As(grove.TypeOf[DB]()).Named("mysql").SingleInstance()
//	c.RegisterConstructor(NewPostgres).As(grove.TypeOf[DB]()).Named("postgres").SingleInstance()
//
//	db, _ := grove.ResolveNamed[DB](c, "postgres")
//	all, _ := grove.ResolveAll[DB](c) // both
package grove

package grove

// Lifetime controls how many instances of a registration the container
// creates and how long they are shared.
type Lifetime int

const (
	// Undefined is the zero value. A registration must choose a lifetime
	// before [Container.Build] accepts it.
	Undefined Lifetime = iota

	// Single means one instance for the lifetime of the registering
	// container. The first resolution constructs it; every later resolution,
	// through any of its tags, returns the cached instance.
	Single

	// Scope means one instance per top-level resolve call. Every site in the
	// object graph of that call that asks for the service receives the same
	// instance; separate calls receive separate instances.
	Scope

	// Dependency means a new instance every time the service is requested,
	// even twice within the same object graph.
	Dependency
)

// String returns the human-readable name of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case Undefined:
		return "undefined"
	case Single:
		return "single"
	case Scope:
		return "scope"
	case Dependency:
		return "dependency"
	default:
		return "unknown"
	}
}

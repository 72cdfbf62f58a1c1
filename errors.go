package grove

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrConfiguration is matched by every [ConfigurationError]: a
	// registration without a lifetime or resolved types, an invalid As cast,
	// an unusable constructor, or a type whose injection plan cannot be
	// compiled.
	ErrConfiguration = errors.New("configuration error")

	// ErrResolution is matched by every [ResolutionError]: the requested type
	// and name have no binding in the container or any of its ancestors.
	ErrResolution = errors.New("resolution failed")

	// ErrInjection is matched by every [InjectionError]: a required field,
	// property, method parameter or constructor parameter could not be
	// satisfied.
	ErrInjection = errors.New("injection failed")

	// ErrDisposed is returned by Build and every resolve entry point once the
	// container has been disposed.
	ErrDisposed = errors.New("container disposed")

	// ErrDepthExceeded is wrapped by the [ResolutionError] returned when a
	// graph nests deeper than the configured maximum, which in practice means
	// a circular constructor dependency.
	ErrDepthExceeded = errors.New("maximum resolution depth exceeded")
)

// ConfigurationError reports a registration or type that the container cannot
// use.
type ConfigurationError struct {
	// Type is the implementation or registered type at fault. It may be nil
	// when the registration never got as far as having a type.
	Type   reflect.Type
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Type == nil {
		return "grove: configuration error: " + e.Reason
	}
	return fmt.Sprintf("grove: configuration error for %s: %s", e.Type, e.Reason)
}

// Is reports whether target is [ErrConfiguration].
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ResolutionError reports that a resolve entry point found no binding for the
// requested type and name.
type ResolutionError struct {
	Type reflect.Type
	Name string
	// Err is the underlying cause, if any (for example [ErrDepthExceeded]).
	Err error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("grove: no binding for %s", e.Type)
	if e.Name != "" {
		msg = fmt.Sprintf("grove: no binding for %s named %q", e.Type, e.Name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is [ErrResolution].
func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func (e *ResolutionError) Unwrap() error { return e.Err }

// InjectionError reports a required member that could not be satisfied while
// an object graph was being built.
type InjectionError struct {
	// Type is the type declaring the member.
	Type reflect.Type
	// Member is the field, property, method or constructor being injected,
	// e.g. "Logger", "SetCache", "InjectDeps#0" or "pkg.NewService#1".
	Member string
	// Dependency is the type that could not be resolved.
	Dependency reflect.Type
	// Name is the binding name requested for the dependency, if any.
	Name string
	Err  error
}

func (e *InjectionError) Error() string {
	dep := e.Dependency.String()
	if e.Name != "" {
		dep = fmt.Sprintf("%s named %q", dep, e.Name)
	}
	msg := fmt.Sprintf("grove: cannot inject %s.%s: no binding for %s", e.Type, e.Member, dep)
	if e.Err != nil {
		msg = fmt.Sprintf("grove: cannot inject %s.%s (%s): %v", e.Type, e.Member, dep, e.Err)
	}
	return msg
}

// Is reports whether target is [ErrInjection].
func (e *InjectionError) Is(target error) bool { return target == ErrInjection }

func (e *InjectionError) Unwrap() error { return e.Err }

func configErr(t reflect.Type, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Type: t, Reason: fmt.Sprintf(format, args...)}
}

package grove

import (
	"errors"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"configuration",
			configErr(TypeOf[*testLogger](), "lifetime is undefined"),
			"grove: configuration error for *grove.testLogger: lifetime is undefined",
		},
		{
			"configuration without type",
			configErr(nil, "instance is nil"),
			"grove: configuration error: instance is nil",
		},
		{
			"resolution",
			&ResolutionError{Type: TypeOf[*testLogger]()},
			"grove: no binding for *grove.testLogger",
		},
		{
			"named resolution",
			&ResolutionError{Type: TypeOf[*testLogger](), Name: "audit"},
			`grove: no binding for *grove.testLogger named "audit"`,
		},
		{
			"depth",
			&ResolutionError{Type: TypeOf[*testCircA](), Err: ErrDepthExceeded},
			"grove: no binding for *grove.testCircA: maximum resolution depth exceeded",
		},
		{
			"injection",
			&InjectionError{Type: TypeOf[testConsumer](), Member: "Dep", Dependency: TypeOf[testUnregistered]()},
			"grove: cannot inject grove.testConsumer.Dep: no binding for grove.testUnregistered",
		},
		{
			"injection with cause",
			&InjectionError{
				Type:       TypeOf[testConsumer](),
				Member:     "Dep",
				Dependency: TypeOf[testUnregistered](),
				Err:        errors.New("*grove.testLogger is not assignable"),
			},
			"grove: cannot inject grove.testConsumer.Dep (grove.testUnregistered): *grove.testLogger is not assignable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestErrorSentinels(t *testing.T) {
	cause := errors.New("cause")

	if !errors.Is(configErr(nil, "x"), ErrConfiguration) {
		t.Error("ConfigurationError should match ErrConfiguration")
	}
	if !errors.Is(&ResolutionError{Err: cause}, ErrResolution) {
		t.Error("ResolutionError should match ErrResolution")
	}
	if !errors.Is(&ResolutionError{Err: cause}, cause) {
		t.Error("ResolutionError should unwrap its cause")
	}
	if !errors.Is(&InjectionError{Dependency: TypeOf[int](), Err: cause}, ErrInjection) {
		t.Error("InjectionError should match ErrInjection")
	}
	if errors.Is(&InjectionError{Dependency: TypeOf[int]()}, ErrResolution) {
		t.Error("InjectionError should not match ErrResolution")
	}
}

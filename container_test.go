package grove

import (
	"errors"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func TestBuild(t *testing.T) {
	t.Run("empty container", func(t *testing.T) {
		c := New()
		mustBuild(t, c)
		if !CanResolve[*Container](c) {
			t.Fatal("expected the container to register itself")
		}
	})

	t.Run("second build without registrations is a no-op", func(t *testing.T) {
		c := newBuilt(t)
		before := len(c.table.Load().byTag[TypeOf[*testLogger]()])
		mustBuild(t, c)
		after := len(c.table.Load().byTag[TypeOf[*testLogger]()])
		if before != 1 || after != 1 {
			t.Fatalf("expected one resolver before and after, got %d and %d", before, after)
		}
		if n := len(c.table.Load().byTag[containerType]); n != 1 {
			t.Fatalf("container registered %d times", n)
		}
	})

	t.Run("incremental builds add bindings", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestLogger).AsSelf().SingleInstance()
		mustBuild(t, c)
		c.RegisterConstructor(newTestOrderService).AsSelf().InstancePerDependency()
		mustBuild(t, c)

		if !CanResolve[*testLogger](c) || !CanResolve[*testOrderService](c) {
			t.Fatal("expected bindings from both builds")
		}
	})

	t.Run("non-lazy registrations resolve during build", func(t *testing.T) {
		c := New()
		var built int
		c.RegisterConstructor(func() *testLogger {
			built++
			return &testLogger{}
		}).AsSelf().SingleInstance().NonLazy()
		mustBuild(t, c)

		if built != 1 {
			t.Fatalf("expected eager construction, got %d", built)
		}
		mustResolve[*testLogger](t, c)
		if built != 1 {
			t.Fatal("eager single must be cached")
		}
	})

	t.Run("non-lazy failure is reported", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestConsumer).AsSelf().SingleInstance().NonLazy()
		if err := c.Build(); !errors.Is(err, ErrInjection) {
			t.Fatalf("expected ErrInjection, got: %v", err)
		}
	})

	t.Run("lazy registrations are not constructed", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestConsumer).AsSelf().SingleInstance()
		mustBuild(t, c)
	})

	t.Run("concurrent registration", func(t *testing.T) {
		c := New()
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.RegisterInstance(&testLogger{Prefix: string(rune('a' + i%26))}).AsSelf()
			}()
		}
		wg.Wait()
		mustBuild(t, c)

		all, err := ResolveAll[*testLogger](c)
		if err != nil {
			t.Fatalf("ResolveAll: %v", err)
		}
		if len(all) != 50 {
			t.Fatalf("expected 50 bindings, got %d", len(all))
		}
	})
}

func TestBuildValidation(t *testing.T) {
	t.Run("missing lifetime", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestLogger).AsSelf()
		if err := c.Build(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got: %v", err)
		}
	})

	t.Run("missing resolved types", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestLogger).SingleInstance()
		if err := c.Build(); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got: %v", err)
		}
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestConfig).AsSelf().SingleInstance()
		c.RegisterConstructor(newTestLogger).AsSelf()
		if err := c.Build(); err == nil {
			t.Fatal("expected error")
		}
		if CanResolve[*testConfig](c) {
			t.Fatal("valid registrations of a failed batch must not be indexed")
		}
	})

	t.Run("all failures are reported", func(t *testing.T) {
		c := New()
		c.RegisterConstructor(newTestConfig).AsSelf()
		c.RegisterConstructor(newTestLogger).SingleInstance()
		err := c.Build()

		var joined interface{ Unwrap() []error }
		if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
			t.Fatalf("expected two joined errors, got: %v", err)
		}
	})
}

package grove

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Disposable is implemented by services that hold resources. The container
// that constructed such a service calls Dispose when it is itself disposed.
// Services implementing [io.Closer] are treated the same way.
type Disposable interface {
	Dispose() error
}

// disposer is a container's disposal aggregate: every disposable instance the
// container produced and every child container it created, in tracking order.
type disposer struct {
	mu    sync.Mutex
	items []any
	seen  map[uintptr]struct{}
	done  bool
}

func newDisposer() *disposer {
	return &disposer{seen: make(map[uintptr]struct{})}
}

func isDisposable(v any) bool {
	switch v.(type) {
	case Disposable, io.Closer:
		return true
	}
	return false
}

func disposeOne(v any) error {
	switch d := v.(type) {
	case Disposable:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	}
	return nil
}

// identity returns a key for reference-like values. Other values have no
// identity and are never deduplicated.
func identity(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return rv.Pointer(), true
	}
	return 0, false
}

// track adds v if it is disposable and not already tracked. If the aggregate
// has already been disposed, v is disposed immediately instead.
func (d *disposer) track(v any) (bool, error) {
	if v == nil || !isDisposable(v) {
		return false, nil
	}

	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return true, disposeOne(v)
	}
	defer d.mu.Unlock()

	if key, ok := identity(v); ok {
		if _, dup := d.seen[key]; dup {
			return false, nil
		}
		d.seen[key] = struct{}{}
	}
	d.items = append(d.items, v)
	return true, nil
}

// untrack removes v without disposing it.
func (d *disposer) untrack(v any) {
	key, ok := identity(v)
	if v == nil || !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; !ok {
		return
	}
	delete(d.seen, key)
	for i, item := range d.items {
		if k, ok := identity(item); ok && k == key {
			d.items = append(d.items[:i], d.items[i+1:]...)
			break
		}
	}
}

func (d *disposer) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// dispose disposes every tracked item once, in tracking order, and joins the
// failures. Later calls are no-ops.
func (d *disposer) dispose(log *zap.Logger, m *Metrics) error {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return nil
	}
	d.done = true
	items := d.items
	d.items = nil
	d.seen = nil
	d.mu.Unlock()

	var errs []error
	for _, item := range items {
		err := disposeOne(item)
		m.disposed(err)
		if err != nil {
			log.Error("Failed to dispose instance",
				zap.String("type", fmt.Sprintf("%T", item)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("disposing %T: %w", item, err))
		}
	}
	return errors.Join(errs...)
}

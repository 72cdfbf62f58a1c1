package grove

import (
	"errors"
	"sync"
	"testing"
)

// Shared test types and constructors used across test files.

// mustBuild calls t.Fatal if build fails.
func mustBuild(t testing.TB, c *Container) {
	t.Helper()
	if err := c.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

// mustResolve calls t.Fatal if T cannot be resolved.
func mustResolve[T any](t testing.TB, c *Container, args ...Arg) T {
	t.Helper()
	v, err := Resolve[T](c, args...)
	if err != nil {
		t.Fatalf("Resolve[%s]: %v", TypeOf[T](), err)
	}
	return v
}

// newBuilt returns a container with the standard test graph registered and
// built: logger and config as singles, database and repo per scope, and the
// user service per dependency.
func newBuilt(t testing.TB, opts ...Option) *Container {
	t.Helper()
	c := New(opts...)
	c.RegisterConstructor(newTestLogger).AsSelf().SingleInstance()
	c.RegisterConstructor(newTestConfig).AsSelf().SingleInstance()
	c.RegisterConstructor(newTestDatabase).AsSelf().InstancePerScope()
	c.RegisterConstructor(newTestUserRepo).AsSelf().InstancePerScope()
	c.RegisterConstructor(newTestUserService).AsInterfacesAndSelf().InstancePerDependency()
	mustBuild(t, c)
	return c
}

type testLogger struct{ Prefix string }
type testConfig struct{ DSN string }

type testDatabase struct {
	Config *testConfig
	Logger *testLogger
}

type testUserRepo struct {
	DB     *testDatabase
	Logger *testLogger
}

type testService interface {
	Name() string
}

type testUserService struct {
	Repo   *testUserRepo
	Logger *testLogger
}

func (s *testUserService) Name() string { return "user" }

type testOrderService struct{ Logger *testLogger }

func (s *testOrderService) Name() string { return "order" }

type testCircA struct{ B *testCircB }
type testCircB struct{ C *testCircC }
type testCircC struct{ A *testCircA }

func newTestLogger() *testLogger           { return &testLogger{Prefix: "app"} }
func newTestConfig() *testConfig           { return &testConfig{DSN: "postgres://localhost"} }
func newTestCircA(b *testCircB) *testCircA { return &testCircA{B: b} }
func newTestCircB(c *testCircC) *testCircB { return &testCircB{C: c} }
func newTestCircC(a *testCircA) *testCircC { return &testCircC{A: a} }

func newTestDatabase(cfg *testConfig, log *testLogger) *testDatabase {
	return &testDatabase{Config: cfg, Logger: log}
}

func newTestUserRepo(db *testDatabase, log *testLogger) *testUserRepo {
	return &testUserRepo{DB: db, Logger: log}
}

func newTestUserService(repo *testUserRepo, log *testLogger) *testUserService {
	return &testUserService{Repo: repo, Logger: log}
}

func newTestOrderService(log *testLogger) *testOrderService {
	return &testOrderService{Logger: log}
}

// testUnregistered is never bound in any test container.
type testUnregistered interface {
	Missing()
}

type testConsumer struct{ Dep testUnregistered }

func newTestConsumer(dep testUnregistered) *testConsumer { return &testConsumer{Dep: dep} }

// closeLog records the order in which test resources are released.
type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	l.order = append(l.order, name)
	l.mu.Unlock()
}

func (l *closeLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

// testClosable implements io.Closer.
type testClosable struct {
	Name   string
	Closed bool
	Log    *closeLog
}

func (c *testClosable) Close() error {
	c.Closed = true
	if c.Log != nil {
		c.Log.add(c.Name)
	}
	return nil
}

// testDisposable implements Disposable.
type testDisposable struct {
	Name     string
	Disposed int
	Log      *closeLog
}

func (d *testDisposable) Dispose() error {
	d.Disposed++
	if d.Log != nil {
		d.Log.add(d.Name)
	}
	return nil
}

// testFailCloser implements io.Closer but returns an error.
type testFailCloser struct{}

func (f *testFailCloser) Close() error {
	return errors.New("close failed")
}

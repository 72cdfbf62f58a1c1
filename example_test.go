package grove_test

import (
	"fmt"

	"github.com/ARTM2000/grove"
)

// Types used in examples only.
type Logger struct{ Prefix string }
type Config struct{ DSN string }
type Database struct {
	Config *Config
	Logger *Logger
}

type Greeter interface {
	Greet() string
}
type englishGreeter struct{}

func (g *englishGreeter) Greet() string { return "hello" }

type spanishGreeter struct{}

func (g *spanishGreeter) Greet() string { return "hola" }

type Handler struct {
	Log     *Logger `inject:""`
	Greeter Greeter `inject:"es,optional"`
}

func ExampleNew() {
	c := grove.New()
	defer c.Dispose()

	c.RegisterConstructor(func() *Logger { return &Logger{Prefix: "app"} }).
		AsSelf().
		SingleInstance()
	if err := c.Build(); err != nil {
		panic(err)
	}

	logger, _ := grove.Resolve[*Logger](c)
	fmt.Println(logger.Prefix)
	// Output: app
}

func ExampleRegistration_InstancePerDependency() {
	c := grove.New()
	c.RegisterConstructor(func() *Logger { return &Logger{Prefix: "app"} }).
		AsSelf().
		InstancePerDependency()
	_ = c.Build()

	l1, _ := grove.Resolve[*Logger](c)
	l2, _ := grove.Resolve[*Logger](c)
	fmt.Println(l1 == l2)
	// Output: false
}

func ExampleResolve() {
	c := grove.New()
	c.RegisterInstance(&Config{DSN: "postgres://localhost"}).AsSelf()
	c.RegisterConstructor(func() *Logger { return &Logger{Prefix: "app"} }).AsSelf().SingleInstance()
	c.RegisterConstructor(func(cfg *Config, log *Logger) *Database {
		return &Database{Config: cfg, Logger: log}
	}).AsSelf().InstancePerScope()
	_ = c.Build()

	db, err := grove.Resolve[*Database](c)
	if err != nil {
		panic(err)
	}
	fmt.Println(db.Config.DSN)
	fmt.Println(db.Logger.Prefix)
	// Output:
	// postgres://localhost
	// app
}

func ExampleResolveNamed() {
	c := grove.New()
	c.RegisterInstance(&englishGreeter{}).As(grove.TypeOf[Greeter]()).Named("en")
	c.RegisterInstance(&spanishGreeter{}).As(grove.TypeOf[Greeter]()).Named("es")
	_ = c.Build()

	en, _ := grove.ResolveNamed[Greeter](c, "en")
	es, _ := grove.ResolveNamed[Greeter](c, "es")
	fmt.Println(en.Greet())
	fmt.Println(es.Greet())
	// Output:
	// hello
	// hola
}

func ExampleResolveAll() {
	c := grove.New()
	c.RegisterConstructor(func() *englishGreeter { return &englishGreeter{} }).AsInterfaces().SingleInstance()
	c.RegisterConstructor(func() *spanishGreeter { return &spanishGreeter{} }).AsInterfaces().SingleInstance()
	_ = c.Build()

	all, _ := grove.ResolveAll[Greeter](c)
	for _, g := range all {
		fmt.Println(g.Greet())
	}
	// Output:
	// hello
	// hola
}

func ExampleContainer_Inject() {
	c := grove.New()
	c.RegisterInstance(&Logger{Prefix: "app"}).AsSelf()
	_ = c.Build()

	var h Handler
	if err := c.Inject(&h); err != nil {
		panic(err)
	}
	fmt.Println(h.Log.Prefix)
	fmt.Println(h.Greeter == nil)
	// Output:
	// app
	// true
}

func ExampleContainer_CreateChild() {
	root := grove.New()
	root.RegisterInstance(&Config{DSN: "postgres://localhost"}).AsSelf()
	_ = root.Build()

	child := root.CreateChild()
	child.RegisterInstance(&Config{DSN: "sqlite://request"}).AsSelf()
	_ = child.Build()

	fromRoot, _ := grove.Resolve[*Config](root)
	fromChild, _ := grove.Resolve[*Config](child)
	fmt.Println(fromRoot.DSN)
	fmt.Println(fromChild.DSN)

	_ = root.Dispose()
	fmt.Println(child.Disposed())
	// Output:
	// postgres://localhost
	// sqlite://request
	// true
}

func ExampleRegisterFactory() {
	c := grove.New()
	grove.RegisterFactory(c, func(call *grove.Call) (*Logger, error) {
		prefix, err := grove.GetNamed[string](call, "prefix")
		if err != nil {
			return nil, err
		}
		return &Logger{Prefix: prefix}, nil
	}).AsSelf().InstancePerDependency()
	_ = c.Build()

	l, _ := grove.Resolve[*Logger](c, grove.Value("worker").Named("prefix"))
	fmt.Println(l.Prefix)
	// Output: worker
}

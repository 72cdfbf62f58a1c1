// Command userapp demonstrates how to wire a small layered HTTP application
// with grove. Every request gets a child container holding its request
// information and a session that is released when the request ends. Run it
// with:
//
//	go run ./cmd/userapp
//	curl localhost:8080/users/42
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ARTM2000/grove"
	"github.com/ARTM2000/grove/config"
	"github.com/ARTM2000/grove/host"
)

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

type Settings struct {
	DatabaseURL string
	Addr        string
}

type Database struct {
	URL string
	Log *zap.Logger
}

func (db *Database) Query(q string) string {
	db.Log.Debug("query", zap.String("sql", q))
	return "row-result"
}

func (db *Database) Close() error {
	db.Log.Info("Database closed", zap.String("url", db.URL))
	return nil
}

type UserRepository interface {
	FindByID(id int) string
}

type sqlUserRepository struct {
	DB *Database `inject:""`
}

func (r *sqlUserRepository) FindByID(id int) string {
	return r.DB.Query(fmt.Sprintf("SELECT * FROM users WHERE id = %d", id))
}

// RequestInfo is registered into each request's child container.
type RequestInfo struct {
	ID     string
	Method string
	Path   string
}

// Session lives for one request and is disposed with its container.
type Session struct {
	Request *RequestInfo
	Log     *zap.Logger
	started time.Time
}

func (s *Session) Dispose() error {
	s.Log.Debug("Session closed",
		zap.String("request_id", s.Request.ID),
		zap.Duration("elapsed", time.Since(s.started)),
	)
	return nil
}

type UserServiceParams struct {
	grove.In

	Repo    UserRepository
	Log     *zap.Logger
	Session *Session `inject:",optional"`
}

type UserService struct {
	p UserServiceParams
}

func (s *UserService) GetUser(id int) string {
	fields := []zap.Field{zap.Int("user_id", id)}
	if s.p.Session != nil {
		fields = append(fields, zap.String("request_id", s.p.Session.Request.ID))
	}
	s.p.Log.Info("Looking up user", fields...)
	return s.p.Repo.FindByID(id)
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func NewSettings() *Settings {
	return &Settings{
		DatabaseURL: env("DATABASE_URL", "postgres://localhost:5432/app"),
		Addr:        env("ADDR", ":8080"),
	}
}

func NewDatabase(s *Settings, l *zap.Logger) *Database {
	return &Database{URL: s.DatabaseURL, Log: l}
}

func NewSession(req *RequestInfo, l *zap.Logger) *Session {
	return &Session{Request: req, Log: l, started: time.Now()}
}

func NewUserService(p UserServiceParams) *UserService {
	return &UserService{p: p}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Registration sources
// ---------------------------------------------------------------------------

// appSource registers the application-wide services.
var appSource = grove.SourceFunc(func(c *grove.Container) error {
	c.RegisterConstructor(NewSettings).AsSelf().SingleInstance()
	c.RegisterConstructor(NewDatabase).AsSelf().SingleInstance().NonLazy()
	grove.RegisterType[*sqlUserRepository](c).AsInterfaces().SingleInstance()
	c.RegisterConstructor(NewUserService).AsSelf().InstancePerDependency()
	return nil
})

// requestSource registers the services that live for one request.
func requestSource(r *http.Request) grove.Source {
	return grove.SourceFunc(func(c *grove.Container) error {
		c.RegisterInstance(&RequestInfo{
			ID:     uuid.NewString(),
			Method: r.Method,
			Path:   r.URL.Path,
		}).AsSelf()
		c.RegisterConstructor(NewSession).AsSelf().InstancePerScope()
		return nil
	})
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

type containerKey struct{}

// requestScope gives every request its own child container.
func requestScope(root *grove.Container, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			child := root.CreateChild()
			defer func() {
				if err := child.Dispose(); err != nil {
					log.Error("Failed to dispose request container",
						zap.String("container", child.ID()),
						zap.Error(err),
					)
				}
			}()

			if err := child.Install(requestSource(r)); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err := child.Build(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), containerKey{}, child)))
		})
	}
}

func requestContainer(r *http.Request) *grove.Container {
	return r.Context().Value(containerKey{}).(*grove.Container)
}

func getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	svc, err := grove.Resolve[*UserService](requestContainer(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintln(w, svc.GetUser(id))
}

func newRouter(h *host.Host) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if reg := h.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(requestScope(h.Container(), h.Logger()))
		r.Get("/users/{id}", getUser)
	})
	return r
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	h, err := host.New(cfg, []grove.Source{appSource})
	if err != nil {
		log.Fatal(err)
	}

	settings := grove.MustResolve[*Settings](h.Container())
	srv := &http.Server{
		Addr:              settings.Addr,
		Handler:           newRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		h.Logger().Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.Logger().Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		h.Logger().Error("Server shutdown failed", zap.Error(err))
	}
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err)
	}
}

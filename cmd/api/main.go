package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Lelo88/shopping-list-golang/internal/config"
	"github.com/Lelo88/shopping-list-golang/internal/db"
	"github.com/Lelo88/shopping-list-golang/internal/docs"
	"github.com/Lelo88/shopping-list-golang/internal/editing"
	"github.com/Lelo88/shopping-list-golang/internal/health"
	"github.com/Lelo88/shopping-list-golang/internal/httpx"
	"github.com/Lelo88/shopping-list-golang/internal/items"
	"github.com/Lelo88/shopping-list-golang/internal/listing"
	"github.com/Lelo88/shopping-list-golang/internal/logger"
	"github.com/Lelo88/shopping-list-golang/internal/money"
	"github.com/Lelo88/shopping-list-golang/internal/notify"
	"github.com/Lelo88/shopping-list-golang/internal/store"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// appStore es lo que main necesita del store elegido por configuración.
type appStore interface {
	items.RecordStore
	Ping(ctx context.Context) error
}

// backend agrupa el store y su ciclo de vida. listen es nil cuando no hay
// cambios externos que escuchar (store en memoria).
type backend struct {
	store  appStore
	listen func(ctx context.Context) error
	close  func()
}

type appDeps struct {
	loadConfig  func() (config.Config, error)
	newLogger   func(level string) (*zap.Logger, error)
	openBackend func(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error)
	serve       func(ctx context.Context, server *http.Server) error
}

var (
	loadConfigFn  = config.Load
	newLoggerFn   = logger.New
	openBackendFn = openBackend
	serveFn       = serve
	fatalf        = log.Fatal
)

func main() {
	// Contexto raíz del proceso: se cancela con SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := appDeps{
		loadConfig:  loadConfigFn,
		newLogger:   newLoggerFn,
		openBackend: openBackendFn,
		serve:       serveFn,
	}
	if err := run(ctx, deps); err != nil {
		fatalf(err)
	}
}

func run(ctx context.Context, deps appDeps) error {
	cfg, err := deps.loadConfig()
	if err != nil {
		return err
	}

	baseLogger, err := deps.newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()

	formatter, err := money.NewFormatter(cfg.CurrencyLocale, cfg.CurrencyCode)
	if err != nil {
		return err
	}

	storeBackend, err := deps.openBackend(ctx, cfg, baseLogger)
	if err != nil {
		return err
	}
	defer storeBackend.close()

	repository := items.NewRepository(storeBackend.store, logger.Named(baseLogger, "items.repository"))

	listController := listing.NewController(repository, listing.Options{
		IdleTimeout:  cfg.StateIdleTimeout,
		Formatter:    formatter,
		EventsPolicy: eventsPolicy(cfg.EventsPolicy),
		Logger:       logger.Named(baseLogger, "listing"),
	})

	editFactory := editing.NewFactory(repository, editing.Options{
		EventsPolicy: eventsPolicy(cfg.EventsPolicy),
		Logger:       logger.Named(baseLogger, "editing"),
	})

	router := buildRouter(routerDeps{
		logger:  logger.Named(baseLogger, "http"),
		store:   storeBackend.store,
		listing: listing.NewHandler(listController, logger.Named(baseLogger, "listing.http")),
		editing: editing.NewHandler(editFactory, logger.Named(baseLogger, "editing.http")),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Shutdown espera a los handlers activos: cerrar el controller corta los streams SSE.
	server.RegisterOnShutdown(listController.Close)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		baseLogger.Info("listening", zap.String("addr", server.Addr), zap.String("store_driver", cfg.StoreDriver))
		return deps.serve(groupCtx, server)
	})
	if storeBackend.listen != nil {
		group.Go(func() error {
			return storeBackend.listen(groupCtx)
		})
	}

	err = group.Wait()
	// Los comandos en curso terminan antes de cerrar el store.
	listController.Close()
	listController.Wait()
	return err
}

// openBackend construye el store según STORE_DRIVER.
func openBackend(ctx context.Context, cfg config.Config, baseLogger *zap.Logger) (backend, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return backend{store: store.NewMemory(), close: func() {}}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return backend{}, fmt.Errorf("migrate: %w", err)
	}

	postgres := store.NewPostgres(pool, logger.Named(baseLogger, "store.postgres"))
	return backend{
		store: postgres,
		listen: func(ctx context.Context) error {
			return postgres.Listen(ctx, pool)
		},
		close: pool.Close,
	}, nil
}

// serve atiende hasta que ctx termina y después hace un shutdown ordenado.
func serve(ctx context.Context, server *http.Server) error {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	return serveListener(ctx, server, listener)
}

func serveListener(ctx context.Context, server *http.Server, listener net.Listener) error {
	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(listener)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func eventsPolicy(value string) notify.Policy {
	if value == config.EventsPolicyQueue {
		return notify.QueueUntilAttached
	}
	return notify.DropWhenDetached
}

type routerDeps struct {
	logger  *zap.Logger
	store   health.Pinger
	listing *listing.Handler
	editing *editing.Handler
}

func buildRouter(deps routerDeps) chi.Router {
	r := chi.NewRouter()

	// Middlewares base para trazabilidad y estabilidad.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(deps.logger))
	r.Use(middleware.Recoverer)

	// Errores de routing se manejan a nivel router.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// El stream SSE queda fuera del timeout: dura lo que dure la conexión.
	listing.RegisterEventRoutes(r, deps.listing)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		healthHandler := health.New(deps.store)
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)

		docs.RegisterRoutes(r)

		r.Route("/items", func(r chi.Router) {
			listing.RegisterRoutes(r, deps.listing)
			editing.RegisterRoutes(r, deps.editing)
		})
	})

	return r
}

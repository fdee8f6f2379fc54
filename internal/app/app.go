package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/auth"
	"github.com/xenking/platter/internal/domain/cart"
	"github.com/xenking/platter/internal/domain/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/ledger"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/domain/txn"
	"github.com/xenking/platter/internal/fixture"
	"github.com/xenking/platter/internal/handler"
	"github.com/xenking/platter/internal/storage/memory"
	"github.com/xenking/platter/internal/storage/postgres"
	"github.com/xenking/platter/internal/telemetry"
	"github.com/xenking/platter/pkg/health"
	"github.com/xenking/platter/pkg/httpmiddleware"
)

// Backend is the storage the engines run on.
type Backend interface {
	txn.Transactor
	health.Pinger
	Catalog() catalog.Reader
	Carts() cart.Repository
	Orders() order.Repository
	Coupons() coupon.Repository
	Ledgers() ledger.Repository
	APIKeys() auth.Repository
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	backend, closeBackend, err := OpenBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, health.PingCheck(backend))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h, err := NewHandler(ctx, cfg, backend, healthSvc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// OpenBackend connects the configured storage. In memory mode the seed file,
// if any, is applied before the store is returned.
func OpenBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (Backend, func(), error) {
	switch cfg.Storage {
	case StorageMemory:
		s := memory.New()
		if cfg.SeedFile != "" {
			f, err := fixture.Load(cfg.SeedFile)
			if err != nil {
				return nil, nil, errors.Wrap(err, "load seed file")
			}
			loyalty, err := cfg.loyaltyConfig()
			if err != nil {
				return nil, nil, err
			}
			st, err := f.Apply(ctx, s, coupon.NewEngine(s.Coupons(), loyalty), []byte(cfg.APIKeyPepper))
			if err != nil {
				return nil, nil, errors.Wrap(err, "apply seed file")
			}
			lg.Info("Seeded memory store",
				zap.String("file", cfg.SeedFile),
				zap.Int("stores", st.Stores),
				zap.Int("products", st.Products),
				zap.Int("coupons", st.Coupons),
				zap.Int("api_keys", st.APIKeys),
			)
		}
		return s, func() {}, nil
	case StoragePostgres:
		// PostgreSQL pool + migrations.
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return postgres.New(pool), pool.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}

// NewHandler builds the engines over backend and returns the complete HTTP
// handler: health endpoints, the API and the middleware chain. The rate
// limiter's cleanup stops with ctx.
func NewHandler(
	ctx context.Context,
	cfg *Config,
	backend Backend,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	orderCfg, err := cfg.orderConfig()
	if err != nil {
		return nil, err
	}
	loyalty, err := cfg.loyaltyConfig()
	if err != nil {
		return nil, err
	}
	opts := []telemetry.Option{
		telemetry.WithTracerProvider(tp),
		telemetry.WithMeterProvider(mp),
	}

	// Domain services.
	resolver := catalog.NewResolver(backend.Catalog())
	coupons := coupon.NewEngine(backend.Coupons(), loyalty, opts...)
	carts := cart.NewService(backend, backend.Carts(), resolver, opts...)
	orders := order.NewService(backend, backend.Carts(), backend.Orders(), resolver, coupons, orderCfg, opts...)
	status := order.NewStatusMachine(backend, backend.Orders(), backend.Ledgers(), coupons, orderCfg, opts...)

	h := handler.New(carts, orders, status, coupons,
		handler.NewAuthenticator(backend.APIKeys(), []byte(cfg.APIKeyPepper)),
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Recovery(),
		httpmiddleware.Instrument("platter-api", tp, mp),
		httpmiddleware.LogRequests(),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		}),
	), nil
}

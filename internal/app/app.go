// Package app wires the commerce core together and runs the ops server.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/soukmarket/commerce-core/internal/domain/cart"
	"github.com/soukmarket/commerce-core/internal/domain/notification"
	"github.com/soukmarket/commerce-core/internal/domain/order"
	"github.com/soukmarket/commerce-core/internal/domain/pricing"
	"github.com/soukmarket/commerce-core/internal/domain/promotion"
	"github.com/soukmarket/commerce-core/internal/storage/postgres"
	"github.com/soukmarket/commerce-core/pkg/health"
	"github.com/soukmarket/commerce-core/pkg/httpmiddleware"
)

// Core bundles the wired commerce services. Embedding transports (HTTP API,
// gRPC, message consumers) build on these; this package only hosts the ops
// endpoints itself.
type Core struct {
	Products      *postgres.ProductRepository
	Promotions    *promotion.Catalog
	Pricing       *pricing.Resolver
	Orders        *order.Service
	Notifications *notification.Dispatcher

	pool *pgxpool.Pool
}

// NewCore wires all repositories and services on top of the given pool.
func NewCore(pool *pgxpool.Pool) *Core {
	products := postgres.NewProductRepository(pool)
	coupons := postgres.NewCouponRepository(pool)
	sales := postgres.NewSaleRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	notifications := postgres.NewNotificationRepository(pool)
	prefs := postgres.NewPreferenceRepository(pool)

	catalog := promotion.NewCatalog(coupons, sales)
	resolver := pricing.NewResolver(coupons, catalog)
	dispatcher := notification.NewDispatcher(notifications, prefs)
	orderSvc := order.NewService(products, resolver, orders, dispatcher)

	return &Core{
		Products:      products,
		Promotions:    catalog,
		Pricing:       resolver,
		Orders:        orderSvc,
		Notifications: dispatcher,
		pool:          pool,
	}
}

// CartFor returns a cart reconciler bound to the given identity (user id or
// anonymous session id), backed by the shared cart store.
func (c *Core) CartFor(identity string) *cart.Reconciler {
	return cart.NewReconciler(postgres.NewCartStore(c.pool, identity), c.Products, c.Pricing)
}

// Run creates all dependencies, starts the ops HTTP server, and handles
// graceful shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	core := NewCore(pool)
	if coupons, err := core.Promotions.ActiveCoupons(ctx); err == nil {
		lg.Info("Promotion catalog loaded", zap.Int("active_coupons", len(coupons)))
	}

	meter := m.MeterProvider().Meter("commerce-core")
	if _, err := meter.Int64ObservableGauge("commerce.coupons.active",
		metric.WithDescription("Coupons currently within their activation window"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			coupons, err := core.Promotions.ActiveCoupons(ctx)
			if err != nil {
				return err
			}
			o.Observe(int64(len(coupons)))
			return nil
		}),
	); err != nil {
		return errors.Wrap(err, "register coupons gauge")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)

	handler := httpmiddleware.Chain(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(handler, "ops",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
		// Request contexts inherit the run context so handlers and middleware
		// see the zctx logger.
		BaseContext: func(net.Listener) context.Context { return ctx },
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

// Package app wires the shopflow services: storage, collaborators, domain
// services and the HTTP server with its middleware stack.
package app

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopflow/shopflow/internal/storage/postgres"
	"github.com/shopflow/shopflow/pkg/health"
	"github.com/shopflow/shopflow/pkg/httpmiddleware"
)

const healthInterval = 10 * time.Second

// server is the part of every service that is identical: the HTTP server,
// its middleware stack, health endpoints and graceful shutdown.
type server struct {
	name      string
	addr      string
	rateLimit RateLimitConfig
	cors      CORSConfig
	graceful  GracefulConfig
	health    *health.Health
	routes    func(chi.Router)
	// internal matches routes that only sibling services call. They bypass
	// the rate limiter.
	internal func(*http.Request) bool
}

// openStore connects to PostgreSQL, applies schema and registers the pool
// as a readiness check.
func openStore(ctx context.Context, databaseURL, schema string, hs *health.Health) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return pool, nil
}

func newHealth(lg *zap.Logger) *health.Health {
	hs := health.New(lg.Named("health"))
	hs.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	return hs
}

// rateLimitSkip builds the predicate of requests the rate limiter ignores:
// health endpoints, internal routes and clients on trusted networks.
func (s *server) rateLimitSkip() (func(*http.Request) bool, error) {
	trusted := make([]netip.Prefix, 0, len(s.rateLimit.Trusted))
	for _, cidr := range s.rateLimit.Trusted {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse trusted network %q", cidr)
		}
		trusted = append(trusted, p.Masked())
	}
	return func(r *http.Request) bool {
		if r.URL.Path == "/livez" || r.URL.Path == "/readyz" {
			return true
		}
		if s.internal != nil && s.internal(r) {
			return true
		}
		if len(trusted) == 0 {
			return false
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}, nil
}

func (s *server) handler(ctx context.Context, m *app.Telemetry, skip func(*http.Request) bool) http.Handler {
	r := chi.NewRouter()
	r.Get("/livez", s.health.LiveEndpoint)
	r.Get("/readyz", s.health.ReadyEndpoint)
	s.routes(r)

	routeFinder := httpmiddleware.MakeRouteFinder(r)
	return httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     s.cors.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: s.cors.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    s.rateLimit.Max,
			Window: s.rateLimit.Window,
			Skip:   skip,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument(s.name, routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
}

// run serves until ctx is canceled, then flips readiness, waits the
// readiness delay so load balancers stop routing, and drains the server.
func (s *server) run(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
	skip, err := s.rateLimitSkip()
	if err != nil {
		return err
	}
	srv := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              s.addr,
		Handler:           s.handler(ctx, m, skip),
	}

	s.health.Start(ctx, healthInterval)
	s.health.SetReady(true)
	defer s.health.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.health.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", s.graceful.ReadinessDelay))
			time.Sleep(s.graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", s.graceful.ShutdownTimeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

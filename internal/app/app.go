package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"reportdb/internal/retention"
	"reportdb/pkg/api"
	"reportdb/pkg/config"
	"reportdb/pkg/ingest"
	"reportdb/pkg/logger"
	"reportdb/pkg/reportcache"
	"reportdb/pkg/security"
	"reportdb/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff   config.EffectiveConfigResult
	cache *reportcache.Cache
	queue *ingest.Queue
	srv   *http.Server
}

// New opens the store and wires the cache, the merge queue and the HTTP
// handler. It does not start workers or the listener; call Run for that.
func New(eff config.EffectiveConfigResult) (*App, error) {
	logger.InitWithLevel(eff.Config.Logging.Level)

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	qcfg := eff.Config.Ingest.Queue
	if n := qcfg.MaxPooledBufferBytes.Int64(); n > 0 {
		ingest.SetMaxPooledBuffer(int(n))
	}
	queue := ingest.NewQueue(qcfg.Capacity)
	cache := reportcache.New(ingest.NewAsyncMerger(queue))
	cache.Attach()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/", api.Handler(cache))

	sec := security.SecConfig{
		AllowedOrigins: eff.Config.Security.CORS.AllowedOrigins,
		RPS:            eff.Config.Security.RateLimit.RPS,
		Burst:          eff.Config.Security.RateLimit.Burst,
	}
	wrapped := security.RequestGuardMiddleware(sec)(mux)

	srv := &http.Server{Addr: eff.Addr, Handler: wrapped}
	return &App{eff: eff, cache: cache, queue: queue, srv: srv}, nil
}

// Cache exposes the cache service for callers embedding the app.
func (a *App) Cache() *reportcache.Cache { return a.cache }

// Run starts the queue workers, the retention scheduler and the HTTP
// listener, and blocks until ctx is canceled or a fatal server error
// occurs.
func (a *App) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	workers := a.eff.Config.Ingest.Queue.Workers
	ingest.StartWorkers(a.queue, workers, stop)

	cancelRetention, err := retention.Start(ctx, a.eff.Config.Retention)
	if err != nil {
		return err
	}
	defer cancelRetention()

	errCh := make(chan error, 1)
	go func() {
		tls := a.eff.Config.Server.TLS
		if tls.CertFile != "" && tls.KeyFile != "" {
			errCh <- a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.srv.ListenAndServe()
	}()
	logger.Info("server_started", "addr", a.eff.Addr, "db", a.eff.DBPath)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		a.queue.CloseAndDrain()
		return store.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

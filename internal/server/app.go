// Package server wires the auth server together: storage, rate limiting,
// services, the HTTP and gRPC endpoints and the maintenance scheduler.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uhoapp/authkit/internal/logging"
	"github.com/uhoapp/authkit/internal/server/config"
	gs "github.com/uhoapp/authkit/internal/server/grpc"
	"github.com/uhoapp/authkit/internal/server/httpapi"
	"github.com/uhoapp/authkit/internal/server/maintenance"
	"github.com/uhoapp/authkit/internal/server/ratelimit"
	"github.com/uhoapp/authkit/internal/server/repositories/repomanager"
	"github.com/uhoapp/authkit/internal/server/services"
)

const redisKeyPrefix = "rl:"

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	rm      repomanager.RepositoryManager
	redis   *redis.Client
	limiter *ratelimit.Limiter
	store   ratelimit.Store

	registry    *prometheus.Registry
	userService *services.UserService
	keyService  *services.APIKeyService
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, os.Stdout)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	policies, err := loadPolicies(c.RateLimitPolicyFile)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		config:   c,
		logger:   logger,
		db:       db,
		rm:       repomanager.NewPostgresRepositoryManager(),
		registry: prometheus.NewRegistry(),
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, client, err := newRateLimitStore(context.Background(), c.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app.store, app.redis = store, client

	app.limiter = ratelimit.NewLimiter(store, policies, logger,
		ratelimit.WithMetrics(ratelimit.NewMetrics(app.registry)))

	if ms, ok := store.(*ratelimit.MemoryStore); ok {
		app.registry.MustRegister(memoryWindowsGauge(ms))
	}

	app.userService = services.NewUserService(db, app.rm, c, logger)
	app.keyService = services.NewAPIKeyService(db, app.rm, logger)

	return app, nil
}

// loadPolicies returns the default table, or the file's overlay when a path
// is configured.
func loadPolicies(path string) (ratelimit.Policies, error) {
	if path == "" {
		return ratelimit.DefaultPolicies(), nil
	}
	p, err := ratelimit.LoadPolicies(path)
	if err != nil {
		return ratelimit.Policies{}, fmt.Errorf("rate limit policies: %w", err)
	}
	return p, nil
}

// newRateLimitStore selects Redis when a URL is configured, else the
// in-process store. The returned client is nil for the in-process store.
func newRateLimitStore(ctx context.Context, redisURL string) (ratelimit.Store, *redis.Client, error) {
	if redisURL == "" {
		return ratelimit.NewMemoryStore(), nil, nil
	}
	client, err := ratelimit.NewRedisClient(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisStore(client, redisKeyPrefix), client, nil
}

func memoryWindowsGauge(ms *ratelimit.MemoryStore) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "uho_ratelimit_memory_windows",
		Help: "Number of rate limit windows held by the in-process store",
	}, func() float64 { return float64(ms.Len()) })
}

// logPolicies writes the enforced policy table, global first, then routes by
// name.
func (app *App) logPolicies(ctx context.Context) {
	p := app.limiter.Policies()
	for _, rp := range append([]ratelimit.Policy{p.Global}, p.SortedRoutes()...) {
		app.logger.Info(ctx, "rate limit policy",
			"scope", rp.Name, "max", rp.Max, "window", rp.Window.String(), "key", rp.Key)
	}
}

func (app *App) maintenanceJobs() []maintenance.Job {
	jobs := []maintenance.Job{maintenance.PurgeRefreshTokens(app.db, app.rm, time.Now)}
	if sw, ok := app.store.(ratelimit.Sweeper); ok {
		jobs = append(jobs, maintenance.SweepWindows(sw, time.Now))
	}
	return jobs
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) httpDeps() httpapi.Deps {
	return httpapi.Deps{
		Users:    app.userService,
		APIKeys:  app.keyService,
		Limiter:  app.limiter,
		Logger:   app.logger,
		Pinger:   app.db,
		Gatherer: app.registry,
		Metrics:  httpapi.NewMetrics(app.registry),

		AllowedOrigins: app.config.CORSOrigins,
		TrustedProxies: app.config.TrustedProxies,
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router, err := httpapi.NewRouter(app.httpDeps())
	if err != nil {
		app.logger.Error(ctx, "http router init error", "error", err)
		cancelFunc()
		return
	}

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "http server error", "error", err)
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, gs.Deps{
		Users:   app.userService,
		APIKeys: app.keyService,
		Limiter: app.limiter,
		Logger:  app.logger,
		Sender:  httpapi.LogSender{Logger: app.logger},
		Pinger:  app.db,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server error", "error", err)
		cancelFunc()
	}
}

// Run migrates the database, serves both endpoints and runs the scheduler
// until a signal arrives or an endpoint fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	defer app.close()

	app.logger.Info(ctx, "Starting app...")
	app.logPolicies(ctx)

	if err := app.rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	scheduler := maintenance.NewScheduler(app.config.CleanupSchedule, app.logger, app.maintenanceJobs()...)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()
	scheduler.Stop()

	app.logger.Info(context.Background(), "App stopped")
	return nil
}

func (app *App) close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	_ = app.db.Close()
}

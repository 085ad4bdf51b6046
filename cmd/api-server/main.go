package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/wellness-scheduling/internal/access"
	"github.com/hackgods/wellness-scheduling/internal/api"
	"github.com/hackgods/wellness-scheduling/internal/appointment"
	"github.com/hackgods/wellness-scheduling/internal/config"
	"github.com/hackgods/wellness-scheduling/internal/db"
	"github.com/hackgods/wellness-scheduling/internal/directory"
	"github.com/hackgods/wellness-scheduling/internal/logging"
	"github.com/hackgods/wellness-scheduling/internal/metrics"
	"github.com/hackgods/wellness-scheduling/internal/notify"
	redisclient "github.com/hackgods/wellness-scheduling/internal/redis"
	"github.com/hackgods/wellness-scheduling/internal/seed"
	"github.com/hackgods/wellness-scheduling/internal/slots"
	"github.com/hackgods/wellness-scheduling/internal/viewcache"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "store", cfg.StoreDriver)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		dirRepo  directory.Repository
		apptRepo appointment.Repository
		checks   []api.Check
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Error("postgres connection error", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		dirRepo = directory.NewPgRepository(pgPool)
		apptRepo = appointment.NewPgRepository(pgPool)
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Ping: pgPool.Ping})
	default:
		mem := directory.NewMemoryRepository()
		ds := seed.Generate(cfg.MemorySeed, seed.DefaultCounts())
		ds.LoadMemory(mem)
		dirRepo = mem
		apptRepo = appointment.NewMemoryRepository()
		logger.Info("using in-memory store", "seed", cfg.MemorySeed,
			"centres", len(ds.Centres), "staff", len(ds.Staff), "clients", len(ds.Clients))
		logSampleTokens(logger, cfg.JWTSecret, ds)
	}

	var locker redisclient.ClaimLocker = redisclient.NoopClaimLocker{}
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			// the store's conditional write still guarantees one booking per slot
			logger.Warn("redis unavailable, booking without slot claims", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Warn("error closing redis", "error", err)
				}
			}()
			logger.Info("connected to Redis")
			locker = redisclient.NewRedisClaimLocker(rdb, cfg.LockTTL, redisclient.WithLockLogger(logger))
			checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		}
	}

	var sink notify.Sink = notify.LogSink{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Warn("error closing kafka writer", "error", err)
			}
		}()
		sink = kafkaSink
		logger.Info("publishing appointment events to kafka", "topic", cfg.KafkaTopic)
	}
	dispatcher := notify.NewDispatcher(sink, logger, 10*time.Second)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulingMetrics := metrics.NewSchedulingMetrics(registry)

	accessResolver, err := access.NewResolver(access.WithStaffCentreWideRead(cfg.StaffCentreWideRead))
	if err != nil {
		logger.Error("access policy error", "error", err)
		os.Exit(1)
	}

	resolver := directory.NewResolver(dirRepo, directory.WithLogger(logger))
	generator := slots.NewGenerator(resolver, apptRepo, slots.Config{
		Step:       cfg.SlotStep,
		Day:        slots.Window{Start: cfg.WorkdayStart, End: cfg.WorkdayEnd},
		Exclusions: []slots.Window{{Start: cfg.BreakStart, End: cfg.BreakEnd}},
	})
	svc := appointment.NewService(apptRepo, resolver, generator, accessResolver, locker,
		appointment.Options{BookingTimeout: cfg.BookingTimeout, CancellationNotice: cfg.CancellationNotice},
		appointment.WithView(viewcache.New(cfg.ViewCacheTTL)),
		appointment.WithPublisher(dispatcher),
		appointment.WithMetrics(schedulingMetrics),
		appointment.WithLogger(logger),
	)

	server := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:   svc,
			JWTSecret: cfg.JWTSecret,
			Checks:    checks,
			Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
			Logger:    logger,
			Env:       cfg.Env,
			Version:   version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	logger.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("pending notifications dropped", "error", err)
	}
}

// logSampleTokens prints a client and a centre admin token so a local
// in-memory run can be driven by hand.
func logSampleTokens(logger *slog.Logger, secret string, ds seed.Dataset) {
	if secret == "" || len(ds.Clients) == 0 || len(ds.Centres) == 0 {
		return
	}
	actors := map[string]access.Actor{
		"client":       {ID: ds.Clients[0].ID, Role: access.RoleClient},
		"centre_admin": seed.AdminFor(ds.Centres[0]),
	}
	for label, actor := range actors {
		token, err := api.IssueToken(secret, actor, 24*time.Hour)
		if err != nil {
			logger.Warn("issue sample token", "role", label, "error", err)
			continue
		}
		logger.Info("sample token", "role", label, "actor_id", actor.ID, "token", token)
	}
}

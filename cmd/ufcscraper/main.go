package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/balaustrada/ufcscraper/config"
	"github.com/balaustrada/ufcscraper/internal/repositories/cursor"
	"github.com/balaustrada/ufcscraper/internal/repositories/event"
	"github.com/balaustrada/ufcscraper/internal/repositories/fight"
	"github.com/balaustrada/ufcscraper/internal/repositories/fighter"
	"github.com/balaustrada/ufcscraper/internal/repositories/linkedodds"
	"github.com/balaustrada/ufcscraper/internal/repositories/rawunit"
	"github.com/balaustrada/ufcscraper/internal/repositories/run"
	"github.com/balaustrada/ufcscraper/internal/repositories/unresolved"
	"github.com/balaustrada/ufcscraper/pkg/database"
	"github.com/balaustrada/ufcscraper/pkg/events"
	"github.com/balaustrada/ufcscraper/pkg/graph"
	"github.com/balaustrada/ufcscraper/pkg/kafka"
	"github.com/balaustrada/ufcscraper/pkg/linking"
	"github.com/balaustrada/ufcscraper/pkg/matching"
	"github.com/balaustrada/ufcscraper/pkg/middleware"
	"github.com/balaustrada/ufcscraper/pkg/models"
	"github.com/balaustrada/ufcscraper/pkg/processor"
	"github.com/balaustrada/ufcscraper/pkg/redis"
	fightersroute "github.com/balaustrada/ufcscraper/pkg/routes/fighters"
	"github.com/balaustrada/ufcscraper/pkg/routes/health"
	reconcileroute "github.com/balaustrada/ufcscraper/pkg/routes/reconcile"
	runsroute "github.com/balaustrada/ufcscraper/pkg/routes/runs"
	unresolvedroute "github.com/balaustrada/ufcscraper/pkg/routes/unresolved"
	"github.com/balaustrada/ufcscraper/pkg/schema"
	"github.com/balaustrada/ufcscraper/pkg/similarity"
	"github.com/balaustrada/ufcscraper/pkg/sources"
	"github.com/balaustrada/ufcscraper/pkg/startup"
	"github.com/balaustrada/ufcscraper/pkg/tracing"
	"github.com/balaustrada/ufcscraper/pkg/tracker"
)

// app holds the components that startup dependencies build and the server
// wires together. Fields are populated in dependency order.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	sources map[string]models.SourceDefinition

	db         database.DB
	redis      *redis.Client
	locker     *redis.Locker
	graph      *graph.Client
	projection *graph.ProjectionService
	producer   *kafka.Producer
	consumer   *kafka.Consumer
	echo       *echo.Echo
	health     *health.Checker
}

// dependency adapts closures to the startup lifecycle.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.WithFields(map[string]any{
		"app":         cfg.AppName,
		"environment": cfg.Environment,
	}).Info("Starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.AppName,
		Environment:  cfg.Environment,
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.TraceEndpoint,
		OTLPProtocol: cfg.TraceProtocol,
		OTLPInsecure: cfg.TraceInsecure,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	loaded, err := sources.Load(cfg.SourcesFilePath)
	if err != nil {
		logger.WithError(err).Error("Failed to load source definitions")
		os.Exit(1)
	}

	a := &app{cfg: cfg, logger: logger, sources: loaded}

	boot := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	boot.AddDependency(a.postgresDependency())
	boot.AddDependency(a.redisDependency())
	boot.AddDependency(a.producerDependency())
	if cfg.GraphEnabled {
		boot.AddDependency(a.graphDependency())
	}
	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(a.consumerDependency())
	}
	boot.AddDependency(a.serverDependency())

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	a.health.SetReady(true)
	logger.WithField("port", cfg.Port).Info("Service started")

	<-ctx.Done()
	logger.Info("Shutting down")
	a.health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to flush traces")
	}
	logger.Info("Shutdown complete")
}

func newLogger(cfg *config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		zapLogger = zap.NewNop()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// postgresDependency connects the pool and applies pending migrations
// before anything reads from it.
func (a *app) postgresDependency() startup.StartupDependency {
	return &dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			dbCfg := database.Config{
				Host:            a.cfg.DatabaseHost,
				Port:            a.cfg.DatabasePort,
				User:            a.cfg.DatabaseUserName,
				Password:        a.cfg.DatabasePassword,
				Name:            a.cfg.DatabaseName,
				SSLMode:         a.cfg.DatabaseSSLMode,
				MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
			}

			sqlxDB, err := sqlx.ConnectContext(ctx, "postgres", dbCfg.DSN())
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlxDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
			sqlxDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
			sqlxDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}

			migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
				MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
				Version:             uint(a.cfg.DatabaseMigrationVersion),
				Force:               a.cfg.DatabaseMigrationForce,
				AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
			})
			if err := migrations.Migrate(a.cfg.DatabaseName, driver); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			a.db = database.NewDatabaseInstance(sqlxDB, a.logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	}
}

func (a *app) redisDependency() startup.StartupDependency {
	return &dependency{
		name: "redis",
		start: func(ctx context.Context) error {
			host, portStr, err := net.SplitHostPort(a.cfg.RedisAddress)
			if err != nil {
				return fmt.Errorf("invalid redis address %q: %w", a.cfg.RedisAddress, err)
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("invalid redis port %q: %w", portStr, err)
			}

			client, err := redis.NewClient(redis.Config{
				Host:     host,
				Port:     port,
				Password: a.cfg.RedisPassword,
				DB:       a.cfg.RedisDB,
			}, a.logger)
			if err != nil {
				return err
			}
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}

			a.redis = client
			a.locker = redis.NewLocker(client, "runlock:")
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.redis == nil {
				return nil
			}
			return a.redis.Close()
		},
	}
}

func (a *app) producerDependency() startup.StartupDependency {
	return &dependency{
		name: "kafka-producer",
		start: func(ctx context.Context) error {
			a.producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      a.cfg.KafkaBrokers,
				Topic:        a.cfg.KafkaOutputTopic,
				BatchSize:    a.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.cfg.KafkaRequiredAcks,
				Compression:  a.cfg.KafkaCompression,
			}, a.logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	}
}

func (a *app) graphDependency() startup.StartupDependency {
	return &dependency{
		name: "graph",
		start: func(ctx context.Context) error {
			client, err := graph.NewClient(graph.Config{
				Host:     a.cfg.GraphDBHost,
				Port:     a.cfg.GraphDBPort,
				Username: a.cfg.GraphDBUser,
				Password: a.cfg.GraphDBPassword,
			}, a.logger)
			if err != nil {
				return err
			}
			if err := client.VerifyConnectivity(ctx); err != nil {
				return fmt.Errorf("failed to reach graph database: %w", err)
			}

			a.graph = client
			a.projection = graph.NewProjectionService(client, a.logger)
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.graph == nil {
				return nil
			}
			return a.graph.Close(ctx)
		},
	}
}

func (a *app) consumerDependency() startup.StartupDependency {
	return &dependency{
		name:      "kafka-consumer",
		dependsOn: []string{"postgres"},
		start: func(ctx context.Context) error {
			units := rawunit.NewRepository(a.db, a.logger)
			intake := processor.NewIntake(a.logger, a.sources, units)
			a.consumer = kafka.NewConsumer(*a.cfg, a.logger, intake.HandleMessage)
			return a.consumer.Start(ctx)
		},
		stop: func(ctx context.Context) error {
			if a.consumer == nil {
				return nil
			}
			return a.consumer.Stop()
		},
	}
}

func (a *app) serverDependency() startup.StartupDependency {
	dependsOn := []string{"postgres", "redis", "kafka-producer"}
	if a.cfg.GraphEnabled {
		dependsOn = append(dependsOn, "graph")
	}

	return &dependency{
		name:      "http-server",
		dependsOn: dependsOn,
		start: func(ctx context.Context) error {
			reconciler := a.buildReconciler()

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.HTTPErrorHandler = middleware.Error(a.logger)
			e.Use(otelecho.Middleware(a.cfg.AppName))
			e.Use(middleware.Context())
			e.Use(middleware.Logger(a.logger))
			e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
				AllowOrigins: a.cfg.AllowOrigins,
				AllowMethods: a.cfg.AllowMethods,
			}))

			e.Server.ReadTimeout = time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second
			e.Server.WriteTimeout = time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second
			e.Server.IdleTimeout = time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second
			e.Server.ReadHeaderTimeout = time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second
			e.Server.MaxHeaderBytes = a.cfg.MaxHeaderBytes

			fighterRepo := fighter.NewRepository(a.db, a.logger)
			unresolvedRepo := unresolved.NewRepository(a.db, a.logger)
			runRepo := run.NewRepository(a.db, a.logger)

			api := e.Group("/api/v1")
			fightersroute.NewHandler(fighterRepo, a.logger).RegisterRoutes(api.Group("/fighters"))
			unresolvedroute.NewHandler(unresolvedRepo, fighterRepo, a.sources, a.logger).RegisterRoutes(api.Group("/unresolved"))
			runsroute.NewHandler(runRepo, a.logger).RegisterRoutes(api.Group("/runs"))
			reconcileroute.NewHandler(reconciler, a.sources, a.logger).RegisterRoutes(api.Group("/reconcile"))

			a.health = health.NewChecker(a.db, a.redis, version())
			a.health.RegisterRoutes(e)
			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			a.echo = e
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", a.cfg.Port)); err != nil && err != http.ErrServerClosed {
					a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error {
			if a.echo == nil {
				return nil
			}
			return a.echo.Shutdown(ctx)
		},
	}
}

func (a *app) buildReconciler() *processor.Reconciler {
	scorer := similarity.NewScorer()
	matcher := matching.NewEngine(a.logger, scorer, matching.EngineConfig{
		AcceptThreshold: a.cfg.MatchAcceptThreshold,
		MarginThreshold: a.cfg.MatchMarginThreshold,
	})

	cursorRepo := cursor.NewRepository(a.db, a.logger)
	trk := tracker.NewTracker(a.logger, cursorRepo)

	stores := processor.Stores{
		Fighters:   fighter.NewRepository(a.db, a.logger),
		Events:     event.NewRepository(a.db, a.logger),
		Fights:     fight.NewRepository(a.db, a.logger),
		Units:      rawunit.NewRepository(a.db, a.logger),
		Odds:       linkedodds.NewRepository(a.db, a.logger),
		Unresolved: unresolved.NewRepository(a.db, a.logger),
		Runs:       run.NewRepository(a.db, a.logger),
	}

	// Typed nils must not reach the interface fields.
	var projector processor.Projector
	if a.projection != nil {
		projector = a.projection
	}
	var locker processor.Locker
	if a.locker != nil {
		locker = a.locker
	}

	return processor.NewReconciler(
		a.logger,
		a.db,
		a.sources,
		schema.NewService(a.sources, a.logger),
		matcher,
		trk,
		stores,
		processor.Config{
			BatchSize:    a.cfg.ReconcileBatchSize,
			LockTTL:      a.cfg.RunLockTTL,
			MinEventDate: a.cfg.MinEventTime(),
			Link: linking.Config{
				AcceptThreshold: a.cfg.LinkAcceptThreshold,
				MarginThreshold: a.cfg.LinkMarginThreshold,
				DateWindow:      a.cfg.LinkDateWindow(),
			},
		},
		locker,
		events.NewEmitter(a.producer, a.logger),
		projector,
	)
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "dev"
}

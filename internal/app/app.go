package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/lessonforge/internal/data/db"
	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/generation"
	"github.com/yungbote/lessonforge/internal/generation/collab"
	"github.com/yungbote/lessonforge/internal/generation/enrich"
	"github.com/yungbote/lessonforge/internal/generation/producers"
	apihttp "github.com/yungbote/lessonforge/internal/http"
	httpH "github.com/yungbote/lessonforge/internal/http/handlers"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
	"github.com/yungbote/lessonforge/internal/services"
	"github.com/yungbote/lessonforge/internal/temporalx/temporalworker"
)

type App struct {
	Log        *logger.Logger
	DB         *gorm.DB
	Cfg        Config
	Repos      repos.Set
	Clients    Clients
	Metrics    *observability.Metrics
	Engine     *generation.Engine
	Generation services.GenerationService

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDB connects to Postgres and migrates when RUN_MIGRATIONS is on.
func OpenDB(log *logger.Logger, cfg Config) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(log, db.PostgresDSN(log))
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.RunMigrations {
		log.Info("Auto migrating postgres tables...")
		if err := db.AutoMigrateAll(pg.DB()); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}
	return pg, nil
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(log, serviceName))
	metrics := observability.InitMetrics(log)

	pg, err := OpenDB(log, cfg)
	if err != nil {
		return nil, err
	}
	theDB := pg.DB()
	reposet := repos.NewSet(theDB, log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	engine, err := wireEngine(log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		return nil, err
	}

	gen := services.NewGenerationService(
		log,
		reposet,
		engine,
		clients.Temporal,
		clients.TemporalConfig.TaskQueue,
		clients.TemporalConfig.LessonTimeout,
	)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Metrics:      metrics,
		Engine:       engine,
		Generation:   gen,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

func wireEngine(log *logger.Logger, cfg Config, rs repos.Set, c Clients, metrics *observability.Metrics) (*generation.Engine, error) {
	plan, err := generation.LoadPlan(log, cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("load wave plan: %w", err)
	}

	sink := observability.Multi{
		observability.NewDBSink(log, rs.Events),
		observability.NewOtelSink(),
		observability.NewLogSink(log),
	}
	if metrics != nil {
		sink = append(sink, observability.NewMetricsSink(metrics))
	}

	stage := enrich.NewStage(enrich.Deps{
		Log:         log,
		Repos:       rs,
		Store:       c.Assets,
		Visuals:     collab.NewVisuals(c.OpenAI),
		Images:      collab.NewImages(c.OpenAI),
		Pronouncer:  collab.NewPronouncer(c.OpenAI),
		Speaker:     collab.NewSpeaker(c.OpenAI),
		Concurrency: cfg.RenderConcurrency,
	})

	engine, err := generation.NewEngine(generation.Deps{
		Log:               log,
		Repos:             rs,
		Hub:               c.Hub,
		Producers:         producers.NewRegistry(c.OpenAI),
		Enricher:          stage,
		Sink:              sink,
		Metrics:           metrics,
		Plan:              plan,
		DependencyTimeout: cfg.DependencyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init generation engine: %w", err)
	}
	return engine, nil
}

// Server builds the operator HTTP surface.
func (a *App) Server() *apihttp.Server {
	return apihttp.NewServer(apihttp.RouterConfig{
		Log:             a.Log,
		ServiceName:     serviceName,
		CORSOrigins:     a.Cfg.CORSOrigins,
		Metrics:         a.Metrics,
		HealthHandler:   httpH.NewHealthHandler(),
		LessonHandler:   httpH.NewLessonHandler(a.Generation),
		ActivityHandler: httpH.NewActivityHandler(a.Generation),
		RunHandler:      httpH.NewRunHandler(a.Generation),
	})
}

// Serve runs the HTTP server until ctx ends. When Temporal is configured the
// worker is started in the same process unless disabled.
func (a *App) Serve(ctx context.Context, withWorker bool) error {
	if withWorker && a.Clients.Temporal != nil {
		if err := a.StartWorker(ctx); err != nil {
			return err
		}
	}
	a.Log.Info("HTTP server listening", "address", a.Cfg.HTTPAddr)
	err := a.Server().Run(ctx, a.Cfg.HTTPAddr)
	a.Generation.Wait()
	return err
}

// StartWorker polls the lesson task queue until ctx ends.
func (a *App) StartWorker(ctx context.Context) error {
	runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Clients.TemporalConfig, a.Engine)
	if err != nil {
		return fmt.Errorf("init temporal worker: %w", err)
	}
	return runner.Start(ctx)
}

// GenerateLesson runs one lesson in the foreground.
func (a *App) GenerateLesson(ctx context.Context, lessonID uuid.UUID) (*generation.RunSummary, error) {
	return a.Engine.GenerateLesson(ctx, lessonID, generation.RunOptions{})
}

// RetryActivity regenerates one activity in the foreground.
func (a *App) RetryActivity(ctx context.Context, activityID uuid.UUID) (*generation.RunSummary, error) {
	return a.Engine.RetryActivity(ctx, activityID, generation.RunOptions{})
}

// DumpMetrics writes the process metrics in the Prometheus text format.
// Foreground runs have no scrape endpoint, so the CLI prints them on exit.
func (a *App) DumpMetrics(w io.Writer) error {
	if a.Metrics == nil {
		return fmt.Errorf("metrics disabled; set METRICS_ENABLED=true")
	}
	return a.Metrics.WritePrometheus(w)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

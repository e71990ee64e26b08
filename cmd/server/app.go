package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/asset"
	"github.com/ping15/ShortPlayGenerator/internal/command"
	"github.com/ping15/ShortPlayGenerator/internal/config"
	"github.com/ping15/ShortPlayGenerator/internal/delivery"
	"github.com/ping15/ShortPlayGenerator/internal/events"
	"github.com/ping15/ShortPlayGenerator/internal/execution"
	"github.com/ping15/ShortPlayGenerator/internal/generation"
	"github.com/ping15/ShortPlayGenerator/internal/media"
	"github.com/ping15/ShortPlayGenerator/internal/merge"
	"github.com/ping15/ShortPlayGenerator/internal/platform/filestore"
	"github.com/ping15/ShortPlayGenerator/internal/platform/postgres"
	"github.com/ping15/ShortPlayGenerator/internal/platform/redisstore"
	"github.com/ping15/ShortPlayGenerator/internal/platform/tracing"
	"github.com/ping15/ShortPlayGenerator/internal/result"
	"github.com/ping15/ShortPlayGenerator/internal/task"
	"github.com/redis/go-redis/v9"
)

// downloadTimeout bounds a single clip download for the merge pipeline.
const downloadTimeout = 10 * time.Minute

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Queue storage; at most one of db and redis is set
	db      *sql.DB
	redis   *redis.Client
	taskLog task.TaskLog

	backend execution.Backend
	remote  *execution.Remote

	emitter  *events.InMemoryEventEmitter
	resolver *asset.Resolver
	runner   *task.Runner
	merges   *merge.Service
}

// newApplication creates a new application instance with all dependencies
// initialized. Nothing runs until Run is called.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	for _, dir := range []string{cfg.Generation.OutputDir, cfg.Generation.FailureDir, cfg.Merge.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tracer, err := tracing.New(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		DaemonAddr:  cfg.Tracing.DaemonAddr,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return nil, err
	}

	if err := app.openTaskLog(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	locator, err := app.setupBackend(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	uploader, err := app.setupUploader(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	app.setupEvents()
	urls := delivery.NewURLLog(cfg.Storage.URLLog)
	failures := delivery.NewFailureRecorder(cfg.Generation.FailureDir)

	generated := delivery.NewDeliverer(events.PipelineGenerate, cfg.Generation.ObjectPrefix, uploader, urls, app.emitter, logger)
	merged := delivery.NewDeliverer(events.PipelineMerge, cfg.Merge.ObjectPrefix, uploader, urls, app.emitter, logger)

	builder := command.NewBuilder(command.Config{
		WorkDir:         cfg.Execution.WorkDir,
		EnvFile:         cfg.Execution.EnvFile,
		Python:          cfg.Execution.Python,
		Script:          cfg.Execution.Script,
		DefaultModelID:  cfg.Execution.ModelID,
		HFHome:          cfg.Execution.HFHome,
		ModelScopeCache: cfg.Execution.ModelScopeCache,
		CUDAArchList:    cfg.Execution.CUDAArchList,
		NotifyLog:       cfg.Notify.LogPath,
	})

	processor := generation.NewProcessor(
		builder,
		app.backend,
		locator,
		generated,
		failures,
		tracer,
		generation.Config{
			LogDir:    cfg.Execution.LogDir,
			Timeout:   cfg.Execution.CommandTimeout,
			NotifyLog: cfg.Notify.LogPath,
		},
		logger,
	)
	app.runner = task.NewRunner(app.taskLog, processor, failures, logger)

	ffmpeg := media.NewFFmpeg(cfg.Merge.FFmpegPath, cfg.Merge.RepairTimeout, cfg.Merge.ConcatTimeout, logger)
	downloader := merge.NewDownloader(tracing.HTTPClient(cfg.Tracing.Enabled, &http.Client{Timeout: downloadTimeout}), logger)
	pipeline := merge.NewPipeline(downloader, ffmpeg, cfg.Merge.TempDir, logger)
	app.merges = merge.NewService(pipeline, merged, cfg.Merge.OutputDir, merge.PoolConfig{
		Workers:   cfg.Merge.Workers,
		QueueSize: cfg.Merge.QueueSize,
	}, tracer, logger)

	app.resolver = asset.NewResolver(cfg.Generation.AssetBaseDir, cfg.Merge.AssetBaseDir)

	logger.Info("Application initialized successfully",
		"execution_mode", app.backend.Mode(),
		"queue_backend", cfg.Queue.Backend,
		"uploads_enabled", uploader != nil)
	return app, nil
}

// openTaskLog connects the durable log selected by queue.backend.
func (app *application) openTaskLog(ctx context.Context) error {
	cfg := app.config
	switch cfg.Queue.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.URL, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			return err
		}
		app.taskLog = postgres.NewTaskLog(db, app.logger)

	case "redis":
		client, err := redisstore.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		app.redis = client
		app.taskLog = redisstore.NewTaskLog(client, cfg.Redis.Key, app.logger)

	default:
		log, err := filestore.NewTaskLog(cfg.Queue.Path, app.logger)
		if err != nil {
			return err
		}
		app.taskLog = log
	}

	app.logger.Info("task log ready", "backend", cfg.Queue.Backend)
	return nil
}

// setupBackend builds the execution backend and its matching result locator.
// In remote mode the host is pinged once unless ssh.skip_init_on_startup is
// set; a failed ping is logged and the connection is retried per task.
func (app *application) setupBackend(ctx context.Context) (result.Locator, error) {
	cfg := app.config

	if cfg.Execution.Mode == "local" {
		app.backend = execution.NewLocal(cfg.Execution.WorkDir, app.logger)
		return result.NewLocalLocator(cfg.Execution.WorkDir, cfg.Generation.OutputDir, app.logger), nil
	}

	remote, err := execution.NewRemote(execution.RemoteConfig{
		Host:           cfg.SSH.Host,
		Port:           cfg.SSH.Port,
		User:           cfg.SSH.User,
		Password:       cfg.SSH.Password,
		KeyFile:        cfg.SSH.KeyFile,
		KnownHostsFile: cfg.SSH.KnownHostsFile,
		ConnectTimeout: cfg.SSH.ConnectTimeout,
	}, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure remote backend: %w", err)
	}
	app.remote = remote
	app.backend = remote

	if cfg.SSH.SkipInitOnStartup {
		app.logger.Info("skipping ssh ping on startup", "addr", remote.Addr())
	} else if err := remote.Ping(ctx); err != nil {
		app.logger.Error("ssh ping failed, tasks will retry the connection",
			"addr", remote.Addr(),
			"error", err)
	} else {
		app.logger.Info("ssh ping succeeded", "addr", remote.Addr())
	}

	return result.NewRemoteLocator(remote, cfg.Execution.WorkDir, cfg.Generation.OutputDir, app.logger), nil
}

// setupUploader returns nil when storage is not configured, in which case
// artifacts stay local and outcomes carry no URL.
func (app *application) setupUploader(ctx context.Context) (delivery.Uploader, error) {
	cfg := app.config
	storage := delivery.StorageConfig{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UsePathStyle:    cfg.Storage.UsePathStyle,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
	}
	if !storage.Configured() {
		app.logger.Warn("object storage not configured, uploads disabled")
		return nil, nil
	}

	awsCfg, err := delivery.LoadAWSConfig(ctx, storage)
	if err != nil {
		return nil, err
	}
	tracing.InstrumentAWS(cfg.Tracing.Enabled, &awsCfg)

	s3Uploader := delivery.NewS3Uploader(delivery.NewS3Client(awsCfg, storage), storage, app.logger)
	return delivery.NewRetryingUploader(s3Uploader, app.logger), nil
}

// setupEvents wires outcome handlers: the HTTP callback and the merge notify line.
func (app *application) setupEvents() {
	cfg := app.config
	app.emitter = events.NewInMemoryEventEmitter(app.logger)

	client := tracing.HTTPClient(cfg.Tracing.Enabled, &http.Client{Timeout: cfg.Notify.Timeout})
	notifier := delivery.NewNotifier(cfg.Notify.URL, client, app.logger)
	if notifier.Enabled() {
		app.emitter.RegisterHandler(notifier)
	} else {
		app.logger.Info("notify url not configured, callbacks disabled")
	}

	if cfg.Notify.LogPath != "" {
		app.emitter.RegisterHandler(delivery.NewNotifyLog(cfg.Notify.LogPath))
	}
}

// start recovers the durable queue and starts the generation worker and the
// merge pool.
func (app *application) start(ctx context.Context) error {
	if err := app.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.merges.Start()
	return nil
}

// Run starts the workers and serves HTTP until a shutdown signal arrives.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(ctx); err != nil {
		app.cleanup()
		return err
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. The generation
// worker finishes its current task; queued tasks stay in the durable log.
func (app *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if app.runner != nil {
		if err := app.runner.Stop(ctx); err != nil {
			app.logger.Error("Error stopping task runner", "error", err)
		}
	}
	if app.merges != nil {
		if err := app.merges.Stop(ctx); err != nil {
			app.logger.Error("Error stopping merge pool", "error", err)
		}
	}
	if app.remote != nil {
		if err := app.remote.Close(); err != nil {
			app.logger.Error("Error closing ssh client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis client", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/backup"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/directory"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/store"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/textfile"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	restoreBackup := flag.Bool("restore-backup", false, "load the newest object-storage backup before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting term index service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	checker := health.NewChecker()
	opts := []service.Option{service.WithMetrics(m)}

	var publisher *events.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.TermEvents)
		defer producer.Close()
		publisher = events.NewPublisher(producer)
		opts = append(opts, service.WithNotifier(publisher))
		checker.RegisterOptional("kafka", publisher.Check)
		slog.Info("term events publisher enabled", "topic", cfg.Kafka.Topics.TermEvents)
	}

	svc := service.New(directory.New(), opts...)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d terms", svc.Len())}
	})

	var prefixCache handler.PrefixCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, prefix caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			pc := cache.New(redisClient, cfg.Redis.CacheTTL, m)
			svc.SetInvalidator(pc)
			prefixCache = pc
			checker.RegisterOptional("redis", health.PingCheck(redisClient.Ping))
			slog.Info("prefix cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var snapshots *store.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			defer db.Close()
			checker.RegisterOptional("postgres", health.PingCheck(db.Ping))
			snapshots = store.New(db)
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Error("failed to prepare snapshot table", "error", err)
				os.Exit(1)
			}
			snapshots.OnSave(func(err error) { svc.RecordSnapshot("postgres", err) })
			err := svc.Import(ctx, "postgres", func(sink textfile.Sink) error {
				_, err := snapshots.Load(ctx, sink)
				return err
			})
			if err != nil {
				slog.Error("failed to restore snapshot", "error", err)
				os.Exit(1)
			}
		}
	}

	var backups *backup.Backup
	if cfg.Backup.Enabled {
		objects, err := backup.NewMinioStore(ctx, cfg.Backup)
		if err != nil {
			slog.Warn("object storage unavailable, backups disabled", "error", err)
		} else {
			backups, err = backup.New(objects, cfg.Backup.Prefix)
			if err != nil {
				slog.Error("failed to create backup writer", "error", err)
				os.Exit(1)
			}
			defer backups.Close()
			checker.RegisterOptional("object_storage", health.PingCheck(objects.Ping))
		}
	}
	if *restoreBackup {
		if err := restoreLatest(ctx, svc, backups); err != nil {
			slog.Error("failed to restore backup", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Index.LoadFile != "" {
		path := filepath.Join(cfg.Index.DataDir, cfg.Index.LoadFile)
		stats, err := svc.LoadFile(ctx, path)
		if err != nil {
			slog.Error("failed to load term file", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("term file loaded",
			"path", path,
			"terms", stats.Terms,
			"dropped", stats.Dropped,
			"skipped", stats.Skipped,
		)
	}

	var snapshotDone <-chan struct{}
	if snapshots != nil && cfg.Index.SnapshotInterval > 0 {
		snapshotDone = snapshots.StartPeriodicSave(ctx, svc, cfg.Index.SnapshotInterval)
	}

	if cfg.Kafka.Enabled {
		ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.TermIngest, events.HandleMessage(svc, m))
		defer ingest.Close()
		go func() {
			if err := ingest.Start(ctx); err != nil {
				slog.Error("term ingest consumer error", "error", err)
			}
		}()
		slog.Info("consuming term ingest events",
			"topic", cfg.Kafka.Topics.TermIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	limiter := middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 10*time.Minute)
	limiter.StartSweeper(time.Minute, ctx.Done())

	h := handler.New(svc, prefixCache)
	router := handler.NewRouter(h, handler.RouterConfig{
		Health:  checker,
		Metrics: m,
		Limiter: limiter,
		Timeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("term index service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	stop()

	if snapshotDone != nil {
		<-snapshotDone
	}

	if cfg.Index.SnapshotFile != "" {
		path := filepath.Join(cfg.Index.SaveDir, cfg.Index.SnapshotFile)
		if err := svc.SaveFile(path); err != nil {
			slog.Error("failed to save index file", "path", path, "error", err)
		}
	}

	if backups != nil {
		err := resilience.WithTimeout(context.Background(), 30*time.Second, "backup-upload", func(ctx context.Context) error {
			_, err := backups.Upload(ctx, backup.Name(time.Now()), svc.All())
			return err
		})
		svc.RecordSnapshot("backup", err)
		if err != nil {
			slog.Error("backup upload failed", "error", err)
		}
	}

	slog.Info("term index service stopped")
}

func restoreLatest(ctx context.Context, svc *service.Service, backups *backup.Backup) error {
	if backups == nil {
		return errors.New("restore requested but object storage is not available")
	}
	name, err := backups.Latest(ctx)
	if errors.Is(err, backup.ErrNotFound) {
		slog.Info("no backup to restore")
		return nil
	}
	if err != nil {
		return err
	}
	return svc.Import(ctx, "backup "+name, func(sink textfile.Sink) error {
		_, err := backups.Download(ctx, name, sink)
		return err
	})
}

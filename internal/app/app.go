package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"connection/internal/connection/consumer"
	"connection/internal/connection/export"
	"connection/internal/connection/handler"
	"connection/internal/connection/master"
	masterstore "connection/internal/connection/master/store"
	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/query"
	"connection/internal/connection/reconciler"
	"connection/internal/connection/resync"
	"connection/internal/connection/view"
	viewstore "connection/internal/connection/view/store"
	"connection/internal/platform/config"
	"connection/internal/platform/httpserver"
	"connection/internal/platform/kafka"
	kafkaconsumer "connection/internal/platform/kafka/consumer"
	"connection/internal/platform/postgres"
	"connection/internal/platform/redis"
	"connection/pkg/platform/httputil"
)

// App holds the wired services for one process.
type App struct {
	Mode     string
	Master   *master.Service
	Query    *query.Service
	Resync   *resync.Orchestrator
	Exporter handler.Exporter
	// Consumers holds the update consumer and the resync trigger consumer.
	// A resync runs on its own group so ingestion continues during a rebuild.
	Consumers []*kafkaconsumer.Consumer
	log       *slog.Logger
	health    []func(context.Context) error
	closers   []func()
}

// Routes returns the HTTP surface: health, metrics and the connection API.
func (a *App) Routes(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpserver.RequestLogger(a.log))
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		for _, check := range a.health {
			if err := check(req.Context()); err != nil {
				a.log.WarnContext(req.Context(), "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "mode": a.Mode})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": a.Mode})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	handler.New(a.Query, a.Resync, a.Exporter, a.log).Register(r)
	return r
}

// Close releases pools and clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Option configures Build.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the service metrics on reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}

// consumerConfigs splits ingestion into the update consumer and the resync
// trigger consumer.
func consumerConfigs(k config.KafkaConfig) (updates, resync kafkaconsumer.Config) {
	updates = kafkaconsumer.Config{
		Brokers: k.Brokers,
		Group:   k.Group,
		Topics:  k.UpdateTopics(),
	}
	resync = kafkaconsumer.Config{
		Brokers: k.Brokers,
		Group:   k.ResyncGroup(),
		Topics:  []string{k.ResyncTopic},
		// one attempt: a failed trigger is logged, never replayed
		MaxAttempts: 1,
	}
	return updates, resync
}

// Build selects memory or Postgres stores from DATABASE_URL and wires the
// reconciliation pipeline on top of them. Kafka and the export are wired
// only when configured.
func Build(ctx context.Context, cfg config.Server, log *slog.Logger, opts ...Option) (*App, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	a := &App{Mode: "memory", log: log}
	m := metrics.NewWith(o.registerer)

	var (
		masterStore master.Store
		viewStores  []view.Store
	)
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		masterStore = masterstore.NewMemory()
		for _, v := range models.AllViews {
			viewStores = append(viewStores, viewstore.NewMemory(v))
		}
	} else {
		a.Mode = "postgres"
		pool, err := postgres.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.health = append(a.health, pool.Ping)
		pg := masterstore.NewPostgres(pool, masterstore.WithCursorKeepAlive(cfg.Resync.CursorKeepAlive))
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		masterStore = pg

		db, err := postgres.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		for _, v := range models.AllViews {
			st := viewstore.NewPostgres(db, v, viewstore.TableName(v))
			if err := st.EnsureSchema(ctx); err != nil {
				a.Close()
				return nil, err
			}
			viewStores = append(viewStores, st)
		}
	}

	set, err := view.NewSet(viewStores...)
	if err != nil {
		a.Close()
		return nil, err
	}
	rec, err := reconciler.New(set, reconciler.WithLogger(log), reconciler.WithMetrics(m))
	if err != nil {
		a.Close()
		return nil, err
	}
	discrepancyStore, _ := set.Get(models.ViewDiscrepancy)
	projector, err := reconciler.NewDiscrepancyProjector(discrepancyStore, log, m)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Master, err = master.NewService(masterStore, rec,
		master.WithLogger(log),
		master.WithMetrics(m),
		master.WithDiscrepancyProjector(projector),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	resyncOpts := []resync.Option{
		resync.WithLogger(log),
		resync.WithMetrics(m),
		resync.WithDiscrepancyProjector(projector),
	}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.health = append(a.health, rc.Health)
		guard, err := resync.NewRedisGuard(rc.Client, "", cfg.Resync.GuardTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		resyncOpts = append(resyncOpts, resync.WithGuard(guard))
	}
	resyncCfg := resync.DefaultConfig()
	resyncCfg.BatchSize = cfg.Resync.BatchSize
	resyncCfg.TriggerValue = cfg.Resync.Trigger
	a.Resync, err = resync.New(resyncCfg, masterStore, viewStores, rec, resyncOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Query, err = query.New(viewStores, query.WithLogger(log), query.WithMetrics(m))
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Export.Bucket != "" {
		client, err := export.NewS3Client(ctx, export.S3Config{
			Region:    cfg.Export.Region,
			Endpoint:  cfg.Export.Endpoint,
			PathStyle: cfg.Export.PathStyle,

			AccessKeyID:     cfg.Export.AccessKeyID,
			SecretAccessKey: cfg.Export.SecretAccessKey,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		exp, err := export.New(discrepancyStore, client, cfg.Export.Bucket, export.WithLogger(log))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Exporter = exp
	}

	if cfg.Kafka.Enabled() {
		if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor, cfg.Kafka.Topics()...); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure kafka topics: %w", err)
		}
		updatesCfg, resyncCfg := consumerConfigs(cfg.Kafka)

		updates := consumer.NewRouter(log)
		updates.Register(cfg.Kafka.InternalTopic, consumer.NewInternalUpdateHandler(a.Master, log))
		updates.Register(cfg.Kafka.RegistryTopic, consumer.NewRegistryUpdateHandler(a.Master, log))
		updates.Register(cfg.Kafka.CorrectionTopic, consumer.NewCorrectionHandler(a.Master, log))

		triggers := consumer.NewRouter(log)
		triggers.Register(cfg.Kafka.ResyncTopic, consumer.NewResyncTriggerHandler(a.Resync, log))

		for _, c := range []struct {
			cfg    kafkaconsumer.Config
			router *consumer.Router
		}{{updatesCfg, updates}, {resyncCfg, triggers}} {
			kc, err := kafkaconsumer.New(c.cfg, c.router, log)
			if err != nil {
				a.Close()
				return nil, err
			}
			a.Consumers = append(a.Consumers, kc)
		}
	}
	return a, nil
}

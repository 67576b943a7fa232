// Package app wires the allocation and pricing engines to their stores,
// transports and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/fieldalloc/api"
	"github.com/kilianp07/fieldalloc/auth"
	"github.com/kilianp07/fieldalloc/config"
	"github.com/kilianp07/fieldalloc/core/allocation"
	"github.com/kilianp07/fieldalloc/core/audit"
	coremetrics "github.com/kilianp07/fieldalloc/core/metrics"
	coremon "github.com/kilianp07/fieldalloc/core/monitoring"
	"github.com/kilianp07/fieldalloc/core/pricing"
	"github.com/kilianp07/fieldalloc/core/scoring"
	"github.com/kilianp07/fieldalloc/core/store"
	"github.com/kilianp07/fieldalloc/infra/geocode"
	"github.com/kilianp07/fieldalloc/infra/legacy"
	"github.com/kilianp07/fieldalloc/infra/logger"
	"github.com/kilianp07/fieldalloc/infra/metrics"
	"github.com/kilianp07/fieldalloc/infra/monitoring"
	"github.com/kilianp07/fieldalloc/infra/mqtt"
	"github.com/kilianp07/fieldalloc/internal/eventbus"
	"github.com/kilianp07/fieldalloc/jobs/recalc"
)

var registerGeocodeMetrics sync.Once

// Service holds the wired engines and the resources they own.
type Service struct {
	Repo      store.Repository
	Scorer    *scoring.Scorer
	Allocator *allocation.Allocator
	Pricing   *pricing.Engine
	Recalc    *recalc.Runner
	Audit     audit.Store

	cfg     *config.Config
	bus     *eventbus.Bus
	sink    coremetrics.MetricsSink
	mqtt    *mqtt.PahoClient
	db      *sqlx.DB
	redis   *redis.Client
	log     logger.Logger
	monitor coremon.Monitor
}

// New builds a Service from cfg. Optional integrations (Redis, MQTT,
// Sentry, the legacy allocator) are skipped when not configured.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger.Configure(cfg.Logging.Config)
	log := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		log.Warnf("sentry: %v", err)
		mon = coremon.NopMonitor{}
	}
	coremon.Init(mon)

	s := &Service{cfg: cfg, bus: eventbus.New(), log: log, monitor: mon}
	if err := s.build(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg
	repo, db, err := openRepository(ctx, cfg.Database, logger.New("store"))
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	s.Repo, s.db = repo, db
	if err := seedRules(ctx, repo, cfg.Pricing); err != nil {
		return fmt.Errorf("pricing rules: %w", err)
	}

	registerGeocodeMetrics.Do(func() { geocode.MustRegisterMetrics(nil) })
	g, rdb := newGeocoder(ctx, cfg, logger.New("geocode"))
	s.redis = rdb

	s.Scorer = scoring.New(repo, g, nil, logger.New("scoring"), cfg.Scoring)
	s.Pricing = pricing.NewEngine(repo, g, logger.New("pricing"))
	s.Pricing.SetEventBus(s.bus)

	var old allocation.LegacyAllocator
	if cfg.Legacy.URL != "" {
		lc := legacy.NewClient(cfg.Legacy.URL, cfg.Legacy.Timeout, logger.New("legacy"))
		if cfg.Legacy.Auth.Enabled() {
			lc.SetAuthorizer(auth.NewClientCred(cfg.Legacy.Auth))
		}
		old = lc
	}
	s.Allocator = allocation.NewAllocator(repo, s.Scorer, old, s.bus, logger.New("allocation"), cfg.Allocation)
	s.Allocator.SetQuoter(s.Pricing)

	s.Audit, err = audit.NewStore(cfg.Audit)
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	s.Allocator.SetAuditStore(s.Audit)

	s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}

	if cfg.MQTT.Enabled() {
		s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
	}

	s.Recalc = recalc.NewRunner(repo, s.Scorer.Network(), s.Scorer.LTV(), s.bus, logger.New("recalc"), cfg.Recalc)
	return nil
}

// Start launches the background consumers of the event bus and the recalc
// schedules. The returned function stops them and waits for them to drain.
func (s *Service) Start(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	collected := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))

	if s.mqtt != nil {
		pub := mqtt.NewDecisionPublisher(s.mqtt, logger.New("mqtt"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(ctx, s.bus)
		}()
	}
	if s.cfg.Recalc.OnOutcome {
		w := recalc.NewOutcomeWatcher(s.Scorer.Network(), s.Scorer.LTV(), logger.New("recalc"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, s.bus)
		}()
	}

	sched, err := recalc.NewScheduler(s.Recalc, s.cfg.Recalc, logger.New("recalc"))
	if err != nil {
		cancel()
		<-collected
		return nil, err
	}
	sched.Start()

	return func() {
		stopCtx, stop := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
		defer stop()
		sched.Stop(stopCtx)
		cancel()
		wg.Wait()
		<-collected
	}, nil
}

// Router returns the HTTP handler serving the engines.
func (s *Service) Router() http.Handler {
	return api.NewRouter(api.Deps{
		Allocator: s.Allocator,
		Pricing:   s.Pricing,
		Rules:     s.Repo,
		Audit:     s.Audit,
		Network:   s.Scorer.Network(),
		Gatherer:  prometheus.DefaultGatherer,
		Token:     s.cfg.HTTP.Token,
		Log:       logger.New("http"),
	})
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	stop, err := s.Start(ctx)
	if err != nil {
		return err
	}
	defer stop()

	srv := &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	s.log.Infof("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.Audit != nil {
		errs = append(errs, s.Audit.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}

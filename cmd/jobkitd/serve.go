package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobkit/pkg/httpserver"
	"github.com/dmitrymomot/jobkit/pkg/logger"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queues of a topology and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *rootFlags) error {
	s, err := loadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if flags.topology != "" {
		s.app.Topology = flags.topology
	}

	log := logger.New(logger.FromConfig(s.log)...)
	logger.SetAsDefault(log)

	topo, err := loadTopology(s.app.Topology)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, s.app.Storage, log)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", s.app.Storage, err)
	}
	defer func() {
		if err := be.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("failed to close storage", logger.Error(err))
		}
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := queue.NewMetrics(promReg)

	registry, err := buildRegistry(topo, be, s.queues, metrics, log)
	if err != nil {
		return err
	}
	queue.SetDefault(registry)
	defer queue.ResetDefault()

	scheduler, err := buildScheduler(topo, registry, log)
	if err != nil {
		return err
	}

	if err := registry.StartAll(ctx); err != nil {
		return err
	}
	log.InfoContext(ctx, "queues started",
		slog.String("storage", s.app.Storage),
		slog.Any("queues", registry.Names()))

	srv := httpserver.NewFromConfig(s.http, httpserver.WithLogger(log))
	api := newAPI(apiOptions{
		registry: registry,
		gatherer: promReg,
		probes:   be.probes,
		logger:   log,
	})

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Run(egCtx, api) })
	eg.Go(func() error { return scheduler.Run(egCtx) })
	eg.Go(func() error {
		<-egCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queues.ShutdownTimeout)
		defer cancel()
		return registry.StopAll(stopCtx, queue.StopDrain)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("jobkitd stopped")
	return nil
}

// buildRegistry creates one queue per topology entry on the shared backend.
func buildRegistry(topo *topology, be *backend, cfg queue.Config, metrics *queue.Metrics, log *slog.Logger) (*queue.Registry, error) {
	registry := queue.NewRegistry(queue.WithRegistryLogger(log))
	for _, def := range topo.Queues {
		handler, err := lookupHandler(def.Handler)
		if err != nil {
			return nil, err
		}
		limiters, err := def.limiters(be.rates)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", def.Name, err)
		}

		serverOpts := append(cfg.ServerOptions(),
			queue.WithLimiters(limiters...),
			queue.WithServerLogger(log),
			queue.WithServerMetrics(metrics),
		)
		if def.PollInterval > 0 {
			serverOpts = append(serverOpts, queue.WithPollInterval(def.PollInterval))
		}
		clientOpts := append(cfg.ClientOptions(),
			queue.WithClientLogger(log),
			queue.WithClientMetrics(metrics),
		)
		if def.MaxAttempts > 0 {
			clientOpts = append(clientOpts, queue.WithDefaultMaxAttempts(def.MaxAttempts))
		}

		q, err := queue.NewQueue(def.Name, be.jobs, handler, serverOpts, clientOpts...)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(q); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildScheduler(topo *topology, registry *queue.Registry, log *slog.Logger) (*queue.Scheduler, error) {
	scheduler := queue.NewScheduler(queue.WithSchedulerLogger(log))
	for _, def := range topo.Schedules {
		q, err := registry.Get(def.Queue)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", def.Name, err)
		}
		sched, err := queue.ParseSchedule(def.At)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", def.Name, err)
		}
		if err := scheduler.Add(def.Name, q.Client, sched, def.Input); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}

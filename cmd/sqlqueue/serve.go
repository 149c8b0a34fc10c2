package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dogmatiq/sqlqueue"
	"github.com/dogmatiq/sqlqueue/internal/x/loggingx"
	"github.com/dogmatiq/sqlqueue/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout is the maximum duration to wait for in-flight metrics
// requests when the server stops.
const shutdownTimeout = 5 * time.Second

func newServeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [<queue>...]",
		Short: "Run the background sweeps of one or more queues and expose their metrics",
		Long: "Run the lease sweeper, lock recovery and cleanup loops of each queue until " +
			"interrupted. If no queues are named, the queue given by --queue is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				n, err := e.queueName()
				if err != nil {
					return err
				}
				names = []string{n}
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewDBStatsCollector(e.db, "sqlqueue"),
			)

			observer := metrics.NewObserver(reg)
			collector := &metrics.StateCollector{
				Logger: loggingx.Zap(e.logger),
			}

			var queues []*sqlqueue.Queue
			for _, n := range names {
				q, err := e.queue(cmd.Context(), n, sqlqueue.WithObserver(observer))
				if err != nil {
					return err
				}

				queues = append(queues, q)
				collector.Queues = append(collector.Queues, q)
			}

			reg.MustRegister(collector)

			return serve(cmd.Context(), e.logger, e.cfg.MetricsAddr, reg, queues)
		},
	}
}

// serve runs each of the queues and the metrics server until ctx is
// canceled or one of them fails.
func serve(
	ctx context.Context,
	logger *zap.Logger,
	addr string,
	g prometheus.Gatherer,
	queues []*sqlqueue.Queue,
) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	for _, q := range queues {
		eg.Go(func() error {
			return q.Run(ctx)
		})
	}

	eg.Go(func() error {
		logger.Info("serving metrics", zap.String("addr", addr))

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(sctx)
	})

	return eg.Wait()
}

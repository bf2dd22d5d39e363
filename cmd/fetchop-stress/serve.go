/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/srediag/fetchop/internal/health"
	"github.com/srediag/fetchop/internal/logging"
	"github.com/srediag/fetchop/pkg/stress"
)

const (
	listenRetries   = 5
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(config func(*cobra.Command) (*stress.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Loop the scenarios and expose /metrics, /live and /ready",
		Long: `serve repeats the configured scenarios until interrupted. After the
first mismatch it stops contending but keeps serving, with /live failing,
so the failure stays observable. It then exits non-zero on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
}

// listen binds addr, retrying while the address is still held by a previous
// instance.
func listen(ctx context.Context, addr string) (net.Listener, error) {
	var ln net.Listener
	op := func() error {
		var err error
		ln, err = net.Listen("tcp", addr)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), listenRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func serve(ctx context.Context, c *stress.Config) error {
	ln, err := listen(ctx, c.ListenAddr)
	if err != nil {
		return err
	}
	return serveOn(ctx, c, ln, func(ctx context.Context, r *stress.Runner) error {
		return r.Execute(ctx)
	})
}

// serveOn serves on ln and runs execute in a loop until ctx is done or a
// pass fails. It returns the first failure, if any.
func serveOn(ctx context.Context, c *stress.Config, ln net.Listener, execute func(context.Context, *stress.Runner) error) error {
	log := logging.Default.Named("serve")
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := stress.NewMetrics(reg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	checker := health.New(reg, "fetchop")

	r, err := stress.NewRunner(ctx, c, append(runnerOptions(), stress.WithMetrics(metrics))...)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := r.Close(context.Background()); err != nil {
			log.Warnf("close runner: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/live", checker.Handler())
	mux.Handle("/ready", checker.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("serving on %s", ln.Addr())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		for gctx.Err() == nil {
			err := execute(gctx, r)
			if c.ReportPath != "" {
				if werr := stress.WriteReport(c.ReportPath, r.Report()); werr != nil {
					log.Warnf("%v", werr)
				}
			}
			switch {
			case err == nil:
				checker.MarkPass()
				log.Debugf("pass %d complete", checker.Passes())
			case gctx.Err() != nil:
				return nil
			default:
				checker.MarkFailure(err)
				log.Errorf("stopped contending: %v", err)
				return nil
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return checker.Failure()
}

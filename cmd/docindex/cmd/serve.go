package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/api"
	"github.com/Aman-CERP/docindex/internal/app"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/preflight"
)

func newServeCmd(g *globals) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the indexing worker and the HTTP query API",
		Long: `Run the indexing worker and the HTTP query API in one process.

The worker drains the queue into the index; the API answers searches from
the same index. Only one process may hold the index open, so run either
'serve' or 'worker' for a project, not both.

Endpoints:
  GET  /api/search/fields   exact match on any combination of fields
  GET  /api/search/name     partial name, optional gender
  GET  /api/search/height   inclusive height range
  POST /api/purge           delete every record and queue an index purge
  GET  /healthz             index document count
  GET  /metrics             Prometheus metrics`,
		Example: `  # Serve the project in the current directory
  docindex serve

  # Serve on another port with debug logging
  docindex serve --port 9000 --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer func() { _ = g.shutdown() }()
			a, err := g.open(cmd, logService)
			if err != nil {
				return err
			}
			if port != 0 {
				a.Config.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			release, err := startService(ctx, cmd, a)
			if err != nil {
				return err
			}
			defer release()
			return runServe(ctx, a)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port)")

	return cmd
}

// runServe blocks until ctx is done or the listener fails, then stops the
// worker after its current cycle and drains open HTTP requests.
func runServe(ctx context.Context, a *app.App) error {
	host, closeHost, err := newWorkerHost(ctx, a)
	if err != nil {
		return err
	}
	defer closeHost()

	engine, err := a.Engine()
	if err != nil {
		return err
	}
	catalog, err := a.Catalog()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           api.NewServer(engine, catalog).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return host.Start(egCtx)
	})
	eg.Go(func() error {
		slog.Info("http_listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("shutting_down")
		host.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// startService runs the startup checks and claims the project's PID file.
// The returned func releases it.
func startService(ctx context.Context, cmd *cobra.Command, a *app.App) (func(), error) {
	checker := preflight.New(preflight.WithOutput(cmd.ErrOrStderr()), preflight.WithVerbose(true))
	results := checker.RunAll(ctx, a.Config.DataDir())
	if checker.HasCriticalFailures(results) {
		checker.PrintResults(results)
		return nil, errors.New("startup checks failed; run 'docindex doctor' for details")
	}

	pf := a.PIDFile()
	if err := pf.Acquire(); err != nil {
		return nil, err
	}
	return func() { _ = pf.Release() }, nil
}

// newWorkerHost recovers abandoned messages and builds the host that drives
// the worker. The returned func releases the file watcher, if any.
func newWorkerHost(ctx context.Context, a *app.App) (*index.Host, func(), error) {
	if _, err := a.Recover(ctx); err != nil {
		return nil, nil, err
	}
	worker, err := a.Worker()
	if err != nil {
		return nil, nil, err
	}
	q, err := a.Queue()
	if err != nil {
		return nil, nil, err
	}

	opts := []index.HostOption{
		index.WithPollInterval(a.Config.PollInterval()),
		index.WithDepthReporter(q),
	}
	closeFn := func() {}
	if a.Config.Worker.WakeOnWrite && a.Config.Queue.Backend == config.BackendSQLite {
		waker, err := index.NewWaker(a.Config.Queue.Path)
		if err != nil {
			slog.Warn("wake_on_write_unavailable", slog.String("error", err.Error()))
		} else {
			opts = append(opts, index.WithWake(waker.C()))
			closeFn = func() { _ = waker.Close() }
		}
	}
	return index.NewHost(worker, opts...), closeFn, nil
}

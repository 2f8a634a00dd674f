package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// server is the part of *http.Server driven by serve.
type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// worker is a background loop that stops when its context is cancelled.
type worker func(ctx context.Context) error

// serve runs srv until ctx is cancelled, then shuts it down within timeout.
// Workers get a context that is cancelled only once Shutdown has returned, so
// they still see everything produced by requests that were draining.
func serve(ctx context.Context, log *slog.Logger, srv server, timeout time.Duration, workers ...worker) error {
	workCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorkers()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error { return w(workCtx) })
	}
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer stopWorkers()
		log.Info("shutting down", "timeout", timeout)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ServeCmd watches a job's workspace for the agent-authored todos.yaml
// staging file and exposes the engine's Prometheus metrics over HTTP. It
// does not itself drive the execution graph; it's a companion process for
// operating a job that's being run separately (or resumed repeatedly) by
// `run`/`resume`.
type ServeCmd struct {
	JobID string `name:"job-id" required:"" help:"Job identifier whose workspace to watch."`
	Port  int    `default:"8080" help:"Port to expose /metrics on."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	r, err := buildRig(cli, c.JobID)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := installSignalHandler()
	defer cancel()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create workspace watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.Workspace.Root()); err != nil {
		return fmt.Errorf("watch workspace %s: %w", r.Workspace.Root(), err)
	}
	go watchTodosStaging(ctx, watcher, c.JobID)

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Metrics.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", c.Port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", srv.Addr, "job_id", c.JobID, "watching", r.Workspace.Root())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// watchTodosStaging logs whenever todos.yaml lands on disk, the convenience
// signal the serve subcommand offers over the engine's own synchronous poll
// at the handle_transition node.
func watchTodosStaging(ctx context.Context, watcher *fsnotify.Watcher, jobID string) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "todos.yaml" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				slog.Info("todos.yaml staged", "job_id", jobID, "op", event.Op.String())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("workspace watch error", "job_id", jobID, "error", err)
		case <-ctx.Done():
			return
		}
	}
}

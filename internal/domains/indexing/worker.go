package indexing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gomantics/repochat/config"
	"github.com/gomantics/repochat/internal/domains/repos"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Worker resumes interrupted syncs at startup and picks up pending
// repositories in the background
type Worker struct {
	l            *zap.Logger
	orchestrator *Orchestrator
	reg          *repos.Registry
	interval     time.Duration
	autoSync     bool
	wg           sync.WaitGroup
	cancel       context.CancelFunc
}

// StartWorker hooks the worker and the orchestrator into the fx lifecycle
func StartWorker(lc fx.Lifecycle, l *zap.Logger, orchestrator *Orchestrator, reg *repos.Registry) {
	worker := &Worker{
		l:            l.Named("worker"),
		orchestrator: orchestrator,
		reg:          reg,
		interval:     config.Indexing.PollInterval(),
		autoSync:     config.Indexing.AutoSync(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := orchestrator.Recover(ctx); err != nil {
				return err
			}
			workerCtx, cancel := context.WithCancel(context.Background())
			worker.cancel = cancel
			worker.start(workerCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			worker.stop()
			return orchestrator.Stop(ctx)
		},
	})
}

func (w *Worker) start(ctx context.Context) {
	if !w.autoSync {
		w.l.Info("auto sync disabled")
		return
	}

	w.l.Info("starting sync worker", zap.Duration("interval", w.interval))
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.l.Info("sync worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	interval := w.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncPending(ctx)
		}
	}
}

// syncPending starts a sync for every repository still in StatePending
func (w *Worker) syncPending(ctx context.Context) {
	pending, err := w.reg.ListByState(ctx, repos.StatePending)
	if err != nil {
		w.l.Error("failed to list pending repositories", zap.Error(err))
		return
	}

	for _, repo := range pending {
		_, err := w.orchestrator.Sync(ctx, repo.ID)
		switch {
		case err == nil:
			w.l.Info("picked up pending repository", zap.String("repo_id", repo.ID))
		case errors.Is(err, repos.ErrSyncInProgress), errors.Is(err, repos.ErrRemoving), errors.Is(err, repos.ErrNotFound):
		default:
			w.l.Error("failed to start sync", zap.String("repo_id", repo.ID), zap.Error(err))
		}
	}
}

package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// maintenanceTicker is the seam that lets tests drive sweeps by hand.
type maintenanceTicker interface {
	C() <-chan time.Time
	Stop()
}

type wallClockTicker struct {
	ticker *time.Ticker
}

func (t wallClockTicker) C() <-chan time.Time { return t.ticker.C }

func (t wallClockTicker) Stop() { t.ticker.Stop() }

type tickerFactory func(time.Duration) maintenanceTicker

// startMaintenanceWorker runs job every interval until the context is
// cancelled. Session expiry sweeps run through this; the JSON store needs no
// background maintenance of its own. The returned function stops the worker
// and waits for it to exit; calling it more than once is safe.
func startMaintenanceWorker(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, job func() error) func() {
	return startMaintenanceWorkerWithTicker(ctx, logger, name, interval, job, func(d time.Duration) maintenanceTicker {
		return wallClockTicker{ticker: time.NewTicker(d)}
	})
}

func startMaintenanceWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	name string,
	interval time.Duration,
	job func() error,
	newTicker tickerFactory,
) func() {
	if job == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if err := job(); err != nil && logger != nil {
					logger.Error("maintenance job failed", "job", name, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

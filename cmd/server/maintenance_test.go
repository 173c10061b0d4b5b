package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		c:       make(chan time.Time, 1),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }

func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
	default:
		close(m.stopped)
	}
}

func (m *manualTicker) Tick() {
	select {
	case m.c <- time.Now():
	default:
	}
}

func TestMaintenanceWorkerRunsJobOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := newManualTicker()
	ran := make(chan struct{}, 1)
	job := func() error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stop := startMaintenanceWorkerWithTicker(ctx, logger, "session-purge", time.Minute, job, func(time.Duration) maintenanceTicker {
		return ticker
	})

	ticker.Tick()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}

	cancel()
	stop()

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker still running after stop")
	}
}

func TestMaintenanceWorkerLogsJobFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := newManualTicker()
	ran := make(chan struct{}, 1)
	job := func() error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return errors.New("sweep failed")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stop := startMaintenanceWorkerWithTicker(ctx, logger, "session-purge", time.Minute, job, func(time.Duration) maintenanceTicker {
		return ticker
	})
	defer stop()

	// A failing job must not kill the worker.
	ticker.Tick()
	<-ran
	ticker.Tick()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker stopped after job failure")
	}
}

func TestMaintenanceWorkerDisabled(t *testing.T) {
	stop := startMaintenanceWorker(context.Background(), nil, "noop", 0, nil)
	stop()
	stop()
}

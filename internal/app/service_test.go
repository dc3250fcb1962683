package app

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couponhub/internal/config"
)

type fakeService struct {
	name     string
	startErr error
	stopErr  error
	block    bool
	stopped  int32
	order    *[]string
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return nil
	}
	return s.startErr
}

func (s *fakeService) Stop(context.Context) error {
	atomic.StoreInt32(&s.stopped, 1)
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	return s.stopErr
}

func TestRunnerStopsAllServicesOnFailure(t *testing.T) {
	bindErr := errors.New("bind failed")
	failing := &fakeService{name: "api", startErr: bindErr}
	waiting := &fakeService{name: "worker", block: true}
	cleaned := false
	runner := NewRunner(failing, waiting)
	runner.OnShutdown(func() { cleaned = true })

	err := runner.Run(context.Background(), time.Second, nil)
	if !errors.Is(err, bindErr) || !strings.HasPrefix(err.Error(), "api: ") {
		t.Fatalf("expected start error tagged with service name, got %v", err)
	}
	if atomic.LoadInt32(&failing.stopped) != 1 || atomic.LoadInt32(&waiting.stopped) != 1 {
		t.Fatalf("all services should be stopped")
	}
	if !cleaned {
		t.Fatalf("shutdown hooks should run")
	}
}

func TestRunnerCancelledContextIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &fakeService{name: "worker", block: true}
	runner := NewRunner(svc)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, time.Second, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancel should stop cleanly, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

func TestNormalizeOptions(t *testing.T) {
	opts := normalizeOptions(Options{})
	if opts.Mode != ModeAll || opts.ShutdownTimeout != 10*time.Second || opts.Logger == nil {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestRunnerStopsInReverseOrderAndJoinsStopErrors(t *testing.T) {
	var order []string
	stopErr := errors.New("drain timeout")
	api := &fakeService{name: "api", block: true, order: &order}
	worker := &fakeService{name: "worker", block: true, stopErr: stopErr, order: &order}
	runner := NewRunner(api, worker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runner.Run(ctx, time.Second, nil)
	if !errors.Is(err, stopErr) {
		t.Fatalf("expected stop error to be reported, got %v", err)
	}
	if len(order) != 2 || order[0] != "worker" || order[1] != "api" {
		t.Fatalf("expected reverse stop order, got %v", order)
	}
}

func TestValidateMode(t *testing.T) {
	for _, mode := range []string{ModeAll, ModeAPI, ModeWorker} {
		if err := validateMode(mode); err != nil {
			t.Fatalf("mode %s should be valid: %v", mode, err)
		}
	}
	if err := validateMode("cron"); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
	if _, err := BuildRunner(&config.Config{}, "cron"); err == nil {
		t.Fatalf("BuildRunner should reject unknown mode before wiring")
	}
}

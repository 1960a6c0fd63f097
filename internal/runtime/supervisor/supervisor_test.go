package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("worker", func(ctx context.Context) error { return boom })
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := s.Wait(waitCtx(t))
	if !errors.Is(err, boom) {
		t.Fatalf("Wait err = %v, want boom", err)
	}
	if s.Context().Err() == nil {
		t.Fatal("context should be canceled")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go("bad", func(ctx context.Context) error { panic("kaboom") })

	err := s.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Wait err = %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Goroutines) != 1 || snap.Goroutines[0].Panics != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartBacksOffUntilCleanExit(t *testing.T) {
	clk := clockwork.NewFakeClock()
	s := New(context.Background(), WithClock(clk))

	var calls atomic.Int32
	s.GoRestart("loop", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, RestartPolicy{MinBackoff: time.Second, MaxBackoff: 4 * time.Second})

	ctx := waitCtx(t)
	for i := 0; i < 2; i++ {
		if err := clk.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("waiting for backoff timer: %v", err)
		}
		clk.Advance(4 * time.Second)
	}

	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait err = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	st := s.Snapshot().Goroutines[0]
	if st.Restarts != 2 || st.Active != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	clk := clockwork.NewFakeClock()
	s := New(context.Background(), WithClock(clk))

	s.GoRestart("flaky", func(ctx context.Context) error {
		return errors.New("down")
	}, RestartPolicy{MinBackoff: time.Second, MaxRestarts: 1, FatalOnGiveUp: true})

	ctx := waitCtx(t)
	if err := clk.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)

	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "flaky: down") {
		t.Fatalf("Wait err = %v", err)
	}
}

func TestStopCancelsRestartLoop(t *testing.T) {
	s := New(context.Background())
	s.GoRestart("idle", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, RestartPolicy{})

	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop err = %v", err)
	}
	if got := s.Snapshot().Active; got != 0 {
		t.Fatalf("active = %d", got)
	}
}

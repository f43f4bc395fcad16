package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesAllJobs(t *testing.T) {
	p := New(3)
	var count int64
	jobs := make([]func(ctx context.Context) error, 20)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	}
	if err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 20 {
		t.Fatalf("expected all 20 jobs to run, got %d", count)
	}
}

func TestRunReturnsFirstError(t *testing.T) {
	p := New(2)
	boom := errors.New("boom")
	jobs := []func(ctx context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	}
	if err := p.Run(context.Background(), jobs); !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	p := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	if err := p.Run(ctx, jobs); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestRunEmptyJobsIsNoop(t *testing.T) {
	p := New(4)
	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty job list, got %v", err)
	}
}

func TestNewClampsToAtLeastOne(t *testing.T) {
	p := New(0)
	if p.size != 1 {
		t.Fatalf("expected size clamped to 1, got %d", p.size)
	}
	p = New(-5)
	if p.size != 1 {
		t.Fatalf("expected size clamped to 1, got %d", p.size)
	}
}

func TestSubmitRunsSingleJob(t *testing.T) {
	p := New(2)
	var ran bool
	err := p.Submit(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !ran {
		t.Fatalf("expected job to run")
	}
}

func TestRunUsesBoundedConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxInFlight int64
	jobs := make([]func(ctx context.Context) error, 10)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				max := atomic.LoadInt64(&maxInFlight)
				if n <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return nil
		}
	}
	if err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxInFlight > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, observed %d", maxInFlight)
	}
}

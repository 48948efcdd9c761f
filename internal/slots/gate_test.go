package slots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestGate_AcquireRelease(t *testing.T) {
	g := New(2)

	r1, err := g.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	r2, err := g.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if g.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", g.InUse())
	}

	r1()
	r2()
	if g.InUse() != 0 {
		t.Errorf("InUse() after release = %d, want 0", g.InUse())
	}
	if g.Peak() != 2 {
		t.Errorf("Peak() = %d, want 2", g.Peak())
	}
}

func TestGate_BusyAfterWait(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	start := time.Now()
	_, err = g.Acquire(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire() error = %v, want ErrBusy", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Acquire returned after %v, expected to wait", elapsed)
	}
	if g.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", g.InUse())
	}
}

func TestGate_CancelledContext(t *testing.T) {
	g := New(1)
	release, _ := g.Acquire(context.Background(), time.Second)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Acquire(ctx, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestGate_ReleaseIsIdempotent(t *testing.T) {
	g := New(1)

	release, err := g.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()
	release()

	if g.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", g.InUse())
	}

	// A double release must not have freed a phantom slot
	r1, err := g.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer r1()
	if _, err := g.Acquire(context.Background(), 20*time.Millisecond); !errors.Is(err, ErrBusy) {
		t.Errorf("Acquire() on full gate error = %v, want ErrBusy", err)
	}
}

func TestGate_WaiterGetsFreedSlot(t *testing.T) {
	g := New(1)
	release, _ := g.Acquire(context.Background(), time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	r, err := g.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	r()
}

func TestGate_ConcurrentNeverExceedsSize(t *testing.T) {
	const size = 3
	g := New(size)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(context.Background(), 5*time.Second)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer release()
			if n := g.InUse(); n > size {
				t.Errorf("InUse() = %d, exceeds size %d", n, size)
			}
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if g.Peak() > size {
		t.Errorf("Peak() = %d, exceeds size %d", g.Peak(), size)
	}
	if g.InUse() != 0 {
		t.Errorf("InUse() = %d after all released, want 0", g.InUse())
	}
}

func TestNew_MinimumSize(t *testing.T) {
	if got := New(0).Size(); got != 1 {
		t.Errorf("New(0).Size() = %d, want 1", got)
	}
}

package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteBoundsConcurrency(t *testing.T) {
	l := NewConcurrencyLimiter("test", 2)

	var running, peak, total int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Execute(context.Background(), func() error {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				atomic.AddInt32(&total, 1)
				return nil
			})
			if err != nil {
				t.Errorf("Execute failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency %d, want <= 2", peak)
	}
	if total != 20 {
		t.Errorf("%d tasks ran, want 20", total)
	}
}

func TestExecuteServesWaitersInOrder(t *testing.T) {
	l := NewConcurrencyLimiter("test", 1)

	block := make(chan struct{})
	holderIn := make(chan struct{})
	go l.Execute(context.Background(), func() error {
		close(holderIn)
		<-block
		return nil
	})
	<-holderIn

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Execute(context.Background(), func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Wait until this waiter is queued so queue order matches i.
		waitForQueued(t, l, i+1)
	}

	close(block)
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("waiters ran out of order: %v", order)
		}
	}
}

func TestExecuteCancelWhileQueued(t *testing.T) {
	l := NewConcurrencyLimiter("test", 1)

	block := make(chan struct{})
	holderIn := make(chan struct{})
	go l.Execute(context.Background(), func() error {
		close(holderIn)
		<-block
		return nil
	})
	<-holderIn

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.Execute(ctx, func() error { return nil })
	}()
	waitForQueued(t, l, 1)

	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("queued Execute = %v, want context.Canceled", err)
	}

	// The abandoned slot must still be usable.
	close(block)
	done := make(chan struct{})
	go func() {
		l.Execute(context.Background(), func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("limiter deadlocked after queued cancellation")
	}
}

func TestGetStatus(t *testing.T) {
	l := NewConcurrencyLimiter("probe", 3)

	block := make(chan struct{})
	holderIn := make(chan struct{})
	go l.Execute(context.Background(), func() error {
		close(holderIn)
		<-block
		return nil
	})
	<-holderIn

	st := l.GetStatus()
	if st.Name != "probe" || st.Running != 1 || st.Queued != 0 || st.MaxConcurrent != 3 {
		t.Errorf("status = %+v", st)
	}
	close(block)
}

func waitForQueued(t *testing.T, l *ConcurrencyLimiter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if l.GetStatus().Queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never reached %d queued waiters", n)
}

package camera

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCommandThread_RunsInOrder(t *testing.T) {
	thread := NewCommandThread("test", nil, nil)
	defer thread.Stop()

	var (
		mu    sync.Mutex
		order []int
	)
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		i := i
		if err := thread.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		}); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Tasks did not finish in time")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("Expected task %d at position %d, got %d", i, i, v)
		}
	}
}

func TestCommandThread_StopDrainsQueue(t *testing.T) {
	thread := NewCommandThread("test", nil, nil)

	block := make(chan struct{})
	ran := make(chan int, 3)

	_ = thread.Post(func() { <-block })
	for i := 0; i < 3; i++ {
		i := i
		_ = thread.Post(func() { ran <- i })
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	thread.Stop()

	if len(ran) != 3 {
		t.Errorf("Expected queued tasks to run before stop, ran %d", len(ran))
	}
}

func TestCommandThread_PostAfterStop(t *testing.T) {
	thread := NewCommandThread("test", nil, nil)
	thread.Stop()

	if !thread.Stopped() {
		t.Error("Expected thread to report stopped")
	}

	err := thread.Post(func() {})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	// 二回目の停止は何もしない
	thread.Stop()
}

func TestCommandThread_RecoversPanic(t *testing.T) {
	panics := make(chan error, 1)
	thread := NewCommandThread("test", nil, func(err error) { panics <- err })
	defer thread.Stop()

	_ = thread.Post(func() { panic("boom") })

	done := make(chan struct{})
	_ = thread.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Thread stopped processing after panic")
	}

	select {
	case err := <-panics:
		if err == nil {
			t.Error("Expected panic to be reported as error")
		}
	default:
		t.Error("Expected panic callback to be called")
	}
}

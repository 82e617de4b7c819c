package loop

import (
	"context"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Call(func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order: %v", i, got)
		}
	}
	if len(got) != 10 {
		t.Errorf("expected 10 tasks, got %d", len(got))
	}
}

func TestLoop_CallFromManyGoroutines(t *testing.T) {
	l := startLoop(t)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Call(func() { counter++ }); err != nil {
				t.Errorf("Call failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("expected counter 50, got %d", counter)
	}
}

func TestLoop_AfterRunsOnLoop(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{})
	l.After(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never ran")
	}
}

func TestLoop_TimerStop(t *testing.T) {
	l := startLoop(t)

	ran := false
	timer := l.After(50*time.Millisecond, func() { ran = true })
	if !timer.Stop() {
		t.Fatal("expected Stop to cancel a pending timer")
	}

	time.Sleep(80 * time.Millisecond)
	if err := l.Call(func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if ran {
		t.Error("cancelled task should not run")
	}
}

func TestLoop_CallAfterStop(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	<-l.Done()

	if err := l.Call(func() {}); err != ErrStopped {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if l.Post(func() {}) {
		t.Error("Post should fail on a stopped loop")
	}
}

package main

import (
	"context"
	"testing"
	"time"
)

func TestWatchSignalQuietOnNormalExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	defer cancel()

	logged := watchSignal(ctx, done)
	close(done)

	select {
	case got := <-logged:
		if got {
			t.Fatalf("normal exit must not be logged as a shutdown signal")
		}
	case <-time.After(time.Second):
		t.Fatalf("watcher did not return")
	}
}

func TestWatchSignalQuietWhenStopFollowsExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// both channels ready, the way execute unwinds: done first, then stop
	close(done)
	cancel()
	if got := <-watchSignal(ctx, done); got {
		t.Fatalf("stop after exit must not be logged as a shutdown signal")
	}
}

func TestWatchSignalLogsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer close(done)

	logged := watchSignal(ctx, done)
	cancel()

	select {
	case got := <-logged:
		if !got {
			t.Fatalf("cancellation before exit should be logged")
		}
	case <-time.After(time.Second):
		t.Fatalf("watcher did not return")
	}
}

package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		rps       float64
		burst     int
		wantNil   bool
		wantBurst int
	}{
		{name: "standard rate", rps: 100, burst: 200, wantBurst: 200},
		{name: "default burst", rps: 50, burst: 0, wantBurst: 50},
		{name: "fractional rate", rps: 0.5, burst: 0, wantBurst: 1},
		{name: "unlimited", rps: 0, burst: 10, wantNil: true},
		{name: "negative", rps: -1, burst: 10, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.rps, tt.burst)
			if tt.wantNil {
				if l != nil {
					t.Fatal("expected nil limiter")
				}
				return
			}
			if l == nil {
				t.Fatal("New() returned nil")
			}
			if l.Burst() != tt.wantBurst {
				t.Errorf("Burst() = %d, want %d", l.Burst(), tt.wantBurst)
			}
		})
	}
}

func TestBurst(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := l.Wait(ctx)
		cancel()
		if err != nil {
			t.Fatalf("request %d should pass within burst: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("request beyond burst should wait for the next token")
	}
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter

	for i := 0; i < 1000; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() on nil limiter: %v", err)
		}
	}
	if l.Limit() != 0 || l.Burst() != 0 {
		t.Error("nil limiter must report zero limits")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() with cancelled context = %v, want context.Canceled", err)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(1, 1)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("second Wait() should fail before the next token")
	}
}

func TestLimit(t *testing.T) {
	l := New(10, 5)

	if l.Limit() != 10 {
		t.Errorf("Limit() = %v, want 10", l.Limit())
	}
	if l.Burst() != 5 {
		t.Errorf("Burst() = %d, want 5", l.Burst())
	}
}

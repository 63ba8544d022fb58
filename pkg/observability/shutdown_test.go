package observability

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 0)
	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", sm.shutdownTimeout)
	}
}

func TestShutdownManager_RegisterShutdownFunc(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, time.Second)

	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	sm.mu.Lock()
	count := len(sm.shutdownFuncs)
	sm.mu.Unlock()

	if count != 2 {
		t.Errorf("Expected 2 registered shutdown funcs, got %d", count)
	}
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	tests := []struct {
		name    string
		funcs   []ShutdownFunc
		wantErr bool
	}{
		{
			name: "all funcs succeed",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return nil },
				func(ctx context.Context) error { return nil },
			},
			wantErr: false,
		},
		{
			name: "one func fails",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return nil },
				func(ctx context.Context) error { return errors.New("close failed") },
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(ErrorLevel, &bytes.Buffer{})
			sm := NewShutdownManager(logger, nil, 2*time.Second)

			var ran int64
			for _, fn := range tt.funcs {
				inner := fn
				sm.RegisterShutdownFunc(func(ctx context.Context) error {
					atomic.AddInt64(&ran, 1)
					return inner(ctx)
				})
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- sm.WaitForShutdown()
			}()

			// Give WaitForShutdown a moment to install its signal handler.
			time.Sleep(50 * time.Millisecond)
			if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
				t.Fatalf("Failed to signal self: %v", err)
			}

			select {
			case err := <-errCh:
				if tt.wantErr && err == nil {
					t.Error("Expected shutdown error, got nil")
				}
				if !tt.wantErr && err != nil {
					t.Errorf("Expected clean shutdown, got %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("WaitForShutdown did not return")
			}

			if got := atomic.LoadInt64(&ran); got != int64(len(tt.funcs)) {
				t.Errorf("Expected %d shutdown funcs to run, got %d", len(tt.funcs), got)
			}
		})
	}
}

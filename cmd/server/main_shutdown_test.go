package main

import (
	"errors"
	"net"
	"net/http"
	"os"
	osSignal "os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/codepush-server/internal/application"
	"github.com/eugenenazirov/codepush-server/internal/config"
)

func TestShutdownSignals(t *testing.T) {
	t.Cleanup(func() {
		signalNotify = osSignal.Notify
	})

	release := make(chan struct{})
	signalNotify = func(ch chan<- os.Signal, sig ...os.Signal) {
		go func() {
			<-release
			ch <- syscall.SIGTERM
		}()
	}

	cfg := config.Default()
	cfg.Local.StorageDir = t.TempDir()
	logger := zaptest.NewLogger(t)

	app, err := application.New(cfg, logger)
	if err != nil {
		t.Fatalf("application.New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() {
		served <- app.Server().Serve(ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health probe: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health probe to return 200, got %d", resp.StatusCode)
	}

	close(release)
	shutdown(app.Server(), time.Second, logger)

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("expected ErrServerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop after the shutdown signal")
	}
}

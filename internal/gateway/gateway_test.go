// ABOUTME: Lifecycle tests for the gateway: serve, cancel, graceful shutdown.
// ABOUTME: Also covers driver selection from config.

package gateway

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepy/keepy-gateway/internal/config"
)

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.APISecret = "x"
	cfg.WhatsApp.Driver = "carrier-pigeon"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestNewWithSimDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.APISecret = "x"
	cfg.WhatsApp.Driver = "sim"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g, err := New(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, g.Handler())

	require.NoError(t, g.Shutdown(context.Background()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- g.Run(ctx)
	}()

	// Give the listener a moment to come up before canceling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func TestGenerateServerID(t *testing.T) {
	id := generateServerID()
	assert.True(t, strings.HasPrefix(id, ServiceName+"-"))
	assert.NotEqual(t, id, generateServerID())
}

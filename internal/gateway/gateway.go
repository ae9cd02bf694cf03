// ABOUTME: Gateway orchestrator wiring config, registry, dispatcher, and HTTP server.
// ABOUTME: Manages listeners (TCP or Tailscale) and graceful shutdown lifecycle.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/keepy/keepy-gateway/internal/auth"
	"github.com/keepy/keepy-gateway/internal/config"
	"github.com/keepy/keepy-gateway/internal/session"
	"github.com/keepy/keepy-gateway/internal/wa"
	"github.com/keepy/keepy-gateway/internal/wa/meow"
	"github.com/keepy/keepy-gateway/internal/webhook"
)

// ServiceName identifies this gateway in status responses.
const ServiceName = "keepy-gateway"

// Gateway owns the server components: the session registry, the webhook
// dispatcher, and the HTTP server that fronts both.
type Gateway struct {
	config     *config.Config
	registry   *session.Registry
	dispatcher *webhook.Dispatcher
	httpServer *http.Server
	// tsnetServer is non-nil only when tailscale serving is enabled.
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// serverID identifies this gateway instance in logs.
	serverID  string
	startTime time.Time
}

// newClientFactory selects the protocol driver from config.
func newClientFactory(cfg *config.Config, logger *slog.Logger) (wa.Factory, error) {
	switch cfg.WhatsApp.Driver {
	case "whatsmeow":
		return meow.Factory(cfg.WhatsApp.StoreDir, logger), nil
	case "sim":
		return wa.SimFactory(wa.SimOptions{}, logger), nil
	default:
		return nil, fmt.Errorf("unknown whatsapp driver %q", cfg.WhatsApp.Driver)
	}
}

// New creates a Gateway from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	factory, err := newClientFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newWithFactory(cfg, factory, logger), nil
}

// newWithFactory wires the gateway around an explicit client factory. Tests
// inject stub factories here.
func newWithFactory(cfg *config.Config, factory wa.Factory, logger *slog.Logger) *Gateway {
	dispatcher := webhook.New(webhook.Options{
		DefaultURL:  cfg.Webhook.URL,
		Timeout:     cfg.Webhook.Timeout,
		MaxInFlight: cfg.Webhook.MaxInFlight,
	}, logger)

	g := &Gateway{
		config:     cfg,
		registry:   session.NewRegistry(factory, dispatcher, logger),
		dispatcher: dispatcher,
		logger:     logger.With("component", "gateway"),
		serverID:   generateServerID(),
		startTime:  time.Now(),
	}

	verifier := auth.NewVerifier(cfg.Auth.APISecret)
	protected := auth.Middleware(verifier)

	mux := http.NewServeMux()

	// Status endpoints, no auth required.
	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc("/health", g.handleHealth)

	// Everything else requires the bearer secret.
	mux.Handle("/session/start", protected(http.HandlerFunc(g.handleStartSession)))
	mux.Handle("/session/", protected(http.HandlerFunc(g.handleSessionRoutes)))
	mux.Handle("/message/send", protected(http.HandlerFunc(g.handleSendMessage)))
	mux.Handle("/message/send-file", protected(http.HandlerFunc(g.handleSendFile)))
	mux.Handle("/sessions", protected(http.HandlerFunc(g.handleListSessions)))

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Registry exposes the session registry, mainly for tests and the CLI.
func (g *Gateway) Registry() *session.Registry {
	return g.registry
}

// Handler exposes the HTTP handler tree, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves HTTP until the context is canceled, then shuts down gracefully.
// Returns nil on graceful shutdown, or the first server error.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context and timeout. Uses
// context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, drops all sessions, and flushes in-flight
// webhook deliveries.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	if g.tsnetServer != nil {
		if err := g.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}

	g.registry.Close()
	g.dispatcher.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// setupListener creates the HTTP listener, on the tailnet when enabled.
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return net.Listen("tcp", g.config.Server.HTTPAddr)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "keepy-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener brings up a tsnet node and listens on it. With
// funnel enabled the listener is public HTTPS on :443, otherwise plain :80
// inside the tailnet.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	}

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return ServiceName + "-" + uuid.NewString()[:8]
}

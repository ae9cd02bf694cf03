// ABOUTME: Simulated WhatsApp client for development and end-to-end testing.
// ABOUTME: Emits a fake QR then CONNECTED; sends return generated ids.

package wa

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimOptions tunes the simulated driver.
type SimOptions struct {
	// QRInterval is the delay between QR refreshes. Zero means 2s.
	QRInterval time.Duration
	// ConnectAfter is how long the client stays in the scanning phase before
	// reporting CONNECTED. Zero means 5s.
	ConnectAfter time.Duration
}

// SimFactory returns a Factory producing simulated clients. The simulated
// client walks the real pairing sequence (QR codes, then CONNECTED) on a
// timer so the gateway, webhook receiver, and API can be exercised without a
// phone.
func SimFactory(opts SimOptions, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.QRInterval == 0 {
		opts.QRInterval = 2 * time.Second
	}
	if opts.ConnectAfter == 0 {
		opts.ConnectAfter = 5 * time.Second
	}
	logger = logger.With("component", "sim-driver")

	return func(ctx context.Context, sessionID string, ev Events) (Client, error) {
		c := &simClient{
			sessionID: sessionID,
			ev:        ev,
			logger:    logger.With("session_id", sessionID),
			done:      make(chan struct{}),
		}
		go c.pair(opts)
		return c, nil
	}
}

// simClient is an in-process stand-in for a protocol client.
type simClient struct {
	sessionID string
	ev        Events
	logger    *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool
	done      chan struct{}
}

// pair emits QR codes until the configured connect delay elapses, then
// reports CONNECTED.
func (c *simClient) pair(opts SimOptions) {
	qrTicker := time.NewTicker(opts.QRInterval)
	defer qrTicker.Stop()
	connectTimer := time.NewTimer(opts.ConnectAfter)
	defer connectTimer.Stop()

	c.emitQR()
	for {
		select {
		case <-c.done:
			return
		case <-qrTicker.C:
			c.emitQR()
		case <-connectTimer.C:
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			if c.ev.State != nil {
				c.ev.State(StateConnected)
			}
			return
		}
	}
}

func (c *simClient) emitQR() {
	if c.ev.QR == nil {
		return
	}
	code := base64.StdEncoding.EncodeToString([]byte("sim-qr:" + c.sessionID + ":" + uuid.New().String()))
	c.ev.QR(code)
}

// InjectMessage delivers a fabricated inbound message through the message
// callback, as if the remote side had sent it. Test hook.
func (c *simClient) InjectMessage(msg *Message) {
	if c.ev.Message != nil {
		c.ev.Message(msg)
	}
}

func (c *simClient) SendText(ctx context.Context, chatID, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.closed {
		return "", ErrNotConnected
	}
	id := uuid.New().String()
	c.logger.Info("sim send text", "to", chatID, "message_id", id)
	return id, nil
}

func (c *simClient) SendFile(ctx context.Context, chatID string, data []byte, mimetype, filename, caption string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.closed {
		return "", ErrNotConnected
	}
	id := uuid.New().String()
	c.logger.Info("sim send file",
		"to", chatID,
		"filename", filename,
		"mimetype", mimetype,
		"size", len(data),
		"message_id", id,
	)
	return id, nil
}

func (c *simClient) DecryptFile(ctx context.Context, msg *Message) ([]byte, error) {
	payload, ok := msg.Raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("no media attached to message %s", msg.ID)
	}
	return payload, nil
}

func (c *simClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	return nil
}

func (c *simClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	close(c.done)
	return nil
}

// ABOUTME: Boundary to the underlying WhatsApp Web protocol client.
// ABOUTME: Narrow Client interface, callback set, and inbound message model.

package wa

import (
	"context"
	"errors"
)

// State strings reported by drivers through Events.State. Drivers normalize
// their own vocabulary to these; anything else is logged and ignored upstream.
const (
	StateConnected    = "CONNECTED"
	StateDisconnected = "DISCONNECTED"
	StateConflict     = "CONFLICT"
)

// ErrNotConnected indicates a send was attempted before the session finished
// pairing or after the underlying connection dropped.
var ErrNotConnected = errors.New("client not connected")

// Message is an inbound message as surfaced by a driver.
type Message struct {
	ID         string
	From       string
	To         string
	Body       string
	Type       string
	IsGroup    bool
	SenderName string
	Timestamp  int64

	// HasMedia marks the message as carrying an attachment obtainable via
	// Client.DecryptFile. Mimetype and Filename describe it when known.
	HasMedia bool
	Mimetype string
	Filename string

	// Raw is the driver's own handle for this message. DecryptFile needs it;
	// everything above the driver treats it as opaque.
	Raw any
}

// Events is the callback set a driver invokes as the connection progresses.
// Callbacks fire in the order the underlying protocol delivers them and may
// fire before the Factory call returns.
type Events struct {
	// QR fires zero or more times before the connection is established, each
	// time with a freshly rendered pairing code. Only the most recent one is
	// scannable.
	QR func(code string)
	// State fires on every underlying connection state change.
	State func(state string)
	// Message fires once per inbound message.
	Message func(msg *Message)
}

// Client is the narrow view of the underlying protocol client. The real
// client exposes far more capability; everything not listed here is
// deliberately unused and unexposed.
type Client interface {
	// SendText delivers a text message and returns the protocol message id.
	SendText(ctx context.Context, chatID, body string) (string, error)
	// SendFile delivers a document with an optional caption and returns the
	// protocol message id.
	SendFile(ctx context.Context, chatID string, data []byte, mimetype, filename, caption string) (string, error)
	// DecryptFile downloads and decrypts the attachment carried by msg.
	DecryptFile(ctx context.Context, msg *Message) ([]byte, error)
	// Logout unpairs the device. Safe to call on an already-dropped connection.
	Logout(ctx context.Context) error
	// Close releases the client's resources without unpairing.
	Close() error
}

// Factory constructs a connected (or connecting) Client for one session.
// Construction may take a while: it includes the protocol handshake and, for
// browser-backed drivers, profile setup. Callbacks in ev may start firing
// before Factory returns.
type Factory func(ctx context.Context, sessionID string, ev Events) (Client, error)

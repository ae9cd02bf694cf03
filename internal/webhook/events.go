// ABOUTME: Event vocabulary for outbound webhook notifications.
// ABOUTME: Defines the four event kinds and their kind-specific payloads.

package webhook

import "time"

// Kind identifies the type of an outbound event.
type Kind string

const (
	KindQR           Kind = "qr"
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindMessage      Kind = "message"
)

// Event is an immutable, transient notification of a lifecycle or message
// occurrence. Events are not stored; delivery is best-effort.
type Event struct {
	Kind      Kind
	SessionID string
	Phone     string
	// TargetURL overrides the dispatcher's default receiver when non-empty.
	TargetURL string
	Data      any
	Timestamp time.Time
}

// QRPayload carries the rendered QR code for a qr event.
type QRPayload struct {
	QRCode string `json:"qrCode"`
}

// DisconnectPayload carries the raw reason string for a disconnected event.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// MessagePayload carries an inbound message for a message event.
// The media fields are present only when the message carried an attachment
// that was successfully decrypted; their absence signals a text-only message.
type MessagePayload struct {
	MessageID  string `json:"message_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	Type       string `json:"type"`
	IsGroup    bool   `json:"is_group"`
	SenderName string `json:"sender_name"`
	Timestamp  int64  `json:"timestamp"`

	MediaBase64   string `json:"media_base64,omitempty"`
	MediaMimetype string `json:"media_mimetype,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
}

// envelope is the JSON document POSTed to the receiver.
type envelope struct {
	Event     Kind      `json:"event"`
	SessionID string    `json:"sessionId"`
	Phone     string    `json:"phone,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

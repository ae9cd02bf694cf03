// ABOUTME: Connection adapter translating underlying client callbacks to webhook events.
// ABOUTME: Also exposes the outbound send operations with chat-id normalization.

package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/keepy/keepy-gateway/internal/wa"
	"github.com/keepy/keepy-gateway/internal/webhook"
)

// chatSuffix is appended to destinations that carry no server part.
const chatSuffix = "@c.us"

// ChatID normalizes a destination: a bare phone number gets the default chat
// suffix; anything already containing "@" passes through unchanged.
func ChatID(to string) string {
	if strings.Contains(to, "@") {
		return to
	}
	return to + chatSuffix
}

// Adapter owns one underlying client on behalf of its session and translates
// the client's three callback channels into dispatcher events. Callbacks run
// on the driver's goroutines and may interleave with HTTP requests for the
// same session.
type Adapter struct {
	session  *Session
	registry *Registry
	logger   *slog.Logger
}

func newAdapter(s *Session, r *Registry) *Adapter {
	return &Adapter{
		session:  s,
		registry: r,
		logger:   r.logger.With("component", "adapter", "session_id", s.ID),
	}
}

// emit forwards an event with the session's correlation fields filled in.
func (a *Adapter) emit(kind webhook.Kind, data any) {
	a.registry.dispatcher.Emit(webhook.Event{
		Kind:      kind,
		SessionID: a.session.ID,
		Phone:     a.session.Phone,
		TargetURL: a.session.WebhookURL,
		Data:      data,
	})
}

// onQR handles a freshly rendered pairing code. It can fire any number of
// times before the connection is established; the receiver is expected to
// act on the most recent code.
func (a *Adapter) onQR(code string) {
	a.session.markScanning()
	a.logger.Info("new QR code")
	a.emit(webhook.KindQR, webhook.QRPayload{QRCode: code})
}

// onState handles an underlying connection state change. CONNECTED advances
// the session; DISCONNECTED and CONFLICT remove it from the registry. There
// is no reconnecting state, a new session must be created instead.
func (a *Adapter) onState(state string) {
	a.logger.Info("state change", "state", state)

	switch state {
	case wa.StateConnected:
		a.session.setState(StateConnected)
		a.emit(webhook.KindConnected, struct{}{})
	case wa.StateDisconnected, wa.StateConflict:
		a.emit(webhook.KindDisconnected, webhook.DisconnectPayload{Reason: state})
		a.registry.remove(a.session.ID)
		// The registry no longer reaches this session, so release the
		// client here or its driver state (device store included) leaks.
		if client := a.session.Client(); client != nil {
			if err := client.Close(); err != nil {
				a.logger.Error("closing client after disconnect", "error", err)
			}
		}
	default:
		a.logger.Warn("unrecognized connection state", "state", state)
	}
}

// onMessage handles one inbound message. Attachments are decrypted before
// the event is emitted; a decrypt failure drops only the attachment fields,
// never the message event itself.
func (a *Adapter) onMessage(msg *wa.Message) {
	if a.registry.dedupe.CheckAndMark(msg.ID) {
		a.logger.Debug("duplicate message dropped", "message_id", msg.ID)
		return
	}

	a.logger.Info("message received",
		"message_id", msg.ID,
		"from", msg.From,
		"has_media", msg.HasMedia,
	)

	payload := webhook.MessagePayload{
		MessageID:  msg.ID,
		From:       msg.From,
		To:         msg.To,
		Body:       msg.Body,
		Type:       msg.Type,
		IsGroup:    msg.IsGroup,
		SenderName: msg.SenderName,
		Timestamp:  msg.Timestamp,
	}

	if msg.HasMedia {
		if data, err := a.decryptMedia(msg); err != nil {
			a.logger.Error("failed to download media",
				"message_id", msg.ID,
				"error", err,
			)
		} else {
			payload.MediaBase64 = base64.StdEncoding.EncodeToString(data)
			payload.MediaMimetype = msg.Mimetype
			payload.MediaFilename = msg.Filename
		}
	}

	a.emit(webhook.KindMessage, payload)
}

func (a *Adapter) decryptMedia(msg *wa.Message) ([]byte, error) {
	client := a.session.Client()
	if client == nil {
		return nil, wa.ErrNotConnected
	}
	return client.DecryptFile(context.Background(), msg)
}

// SendText delivers a text message to the normalized destination and returns
// the protocol message id alongside the chat id actually used.
func (a *Adapter) SendText(ctx context.Context, to, body string) (msgID, chatID string, err error) {
	client := a.session.Client()
	if client == nil {
		return "", "", wa.ErrNotConnected
	}

	chatID = ChatID(to)
	msgID, err = client.SendText(ctx, chatID, body)
	if err != nil {
		return "", "", fmt.Errorf("sending text to %s: %w", chatID, err)
	}
	return msgID, chatID, nil
}

// SendFile decodes the base64 content and delivers it as a document. The
// mimetype is sniffed from the decoded bytes.
func (a *Adapter) SendFile(ctx context.Context, to, contentBase64, filename, caption string) (string, error) {
	client := a.session.Client()
	if client == nil {
		return "", wa.ErrNotConnected
	}

	data, err := base64.StdEncoding.DecodeString(contentBase64)
	if err != nil {
		return "", fmt.Errorf("decoding file content: %w", err)
	}

	chatID := ChatID(to)
	msgID, err := client.SendFile(ctx, chatID, data, sniffMimetype(data, filename), filename, caption)
	if err != nil {
		return "", fmt.Errorf("sending file to %s: %w", chatID, err)
	}
	return msgID, nil
}

// sniffMimetype resolves a mimetype from the filename extension, falling
// back to content sniffing.
func sniffMimetype(data []byte, filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	return http.DetectContentType(data)
}

// logout releases the underlying client. Safe when the connection already
// dropped or construction never finished.
func (a *Adapter) logout(ctx context.Context) error {
	client := a.session.Client()
	if client == nil {
		return nil
	}
	if err := client.Logout(ctx); err != nil {
		return err
	}
	return client.Close()
}

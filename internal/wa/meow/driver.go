// ABOUTME: whatsmeow-backed implementation of the wa.Client boundary.
// ABOUTME: One device store per session; normalizes protocol events to wa.Events.

package meow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/keepy/keepy-gateway/internal/wa"
)

// Factory returns a wa.Factory backed by whatsmeow. Each session gets its own
// sqlite device store under storeDir so pairings survive independently.
func Factory(storeDir string, logger *slog.Logger) wa.Factory {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "whatsmeow-driver")

	return func(ctx context.Context, sessionID string, ev wa.Events) (wa.Client, error) {
		if err := os.MkdirAll(storeDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}

		dbPath := filepath.Join(storeDir, sessionID+".db")
		container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), waLog.Noop)
		if err != nil {
			return nil, fmt.Errorf("opening device store: %w", err)
		}

		device, err := container.GetFirstDevice(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading device: %w", err)
		}

		c := &client{
			cli:    whatsmeow.NewClient(device, waLog.Noop),
			ev:     ev,
			logger: logger.With("session_id", sessionID),
		}
		// A dropped connection removes the session; reconnecting means
		// creating a new session. Let the registry own that lifecycle.
		c.cli.EnableAutoReconnect = false
		c.cli.AddEventHandler(c.handleEvent)

		if c.cli.Store.ID == nil {
			// Fresh device: pairing required. The QR channel must be grabbed
			// before Connect.
			qrChan, err := c.cli.GetQRChannel(ctx)
			if err != nil {
				return nil, fmt.Errorf("opening QR channel: %w", err)
			}
			if err := c.cli.Connect(); err != nil {
				return nil, fmt.Errorf("connecting: %w", err)
			}
			go c.relayQR(qrChan)
		} else {
			if err := c.cli.Connect(); err != nil {
				return nil, fmt.Errorf("connecting: %w", err)
			}
		}

		return c, nil
	}
}

// client adapts one *whatsmeow.Client to the wa.Client interface.
type client struct {
	cli    *whatsmeow.Client
	ev     wa.Events
	logger *slog.Logger
}

// relayQR forwards pairing codes from the QR channel until pairing concludes.
func (c *client) relayQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			if c.ev.QR != nil {
				c.ev.QR(item.Code)
			}
		case "timeout":
			c.logger.Warn("QR pairing timed out")
			if c.ev.State != nil {
				c.ev.State(wa.StateDisconnected)
			}
		case "success":
			// Connected event follows through the event handler.
		default:
			if item.Error != nil {
				c.logger.Error("QR pairing failed", "error", item.Error)
			}
		}
	}
}

// handleEvent normalizes whatsmeow events to the driver-neutral vocabulary.
func (c *client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		if c.ev.State != nil {
			c.ev.State(wa.StateConnected)
		}
	case *events.StreamReplaced:
		// Another client took over this session.
		if c.ev.State != nil {
			c.ev.State(wa.StateConflict)
		}
	case *events.LoggedOut:
		if c.ev.State != nil {
			c.ev.State(wa.StateDisconnected)
		}
	case *events.Disconnected:
		if c.ev.State != nil {
			c.ev.State(wa.StateDisconnected)
		}
	case *events.Message:
		c.handleMessage(v)
	}
}

// handleMessage converts an inbound protocol message to the wa.Message model.
// Messages sent from this device are ignored.
func (c *client) handleMessage(evt *events.Message) {
	if c.ev.Message == nil || evt.Info.IsFromMe {
		return
	}

	msg := &wa.Message{
		ID:         evt.Info.ID,
		From:       evt.Info.Sender.String(),
		To:         evt.Info.Chat.String(),
		Body:       extractText(evt.Message),
		Type:       evt.Info.Type,
		IsGroup:    evt.Info.IsGroup,
		SenderName: evt.Info.PushName,
		Timestamp:  evt.Info.Timestamp.Unix(),
		Raw:        evt,
	}

	if mimetype, filename, ok := mediaInfo(evt.Message); ok {
		msg.HasMedia = true
		msg.Mimetype = mimetype
		msg.Filename = filename
	}

	c.ev.Message(msg)
}

// extractText pulls the display text out of the message variants we relay.
func extractText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := m.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := m.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := m.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

// mediaInfo reports the attachment's mimetype and filename when the message
// carries downloadable media.
func mediaInfo(m *waE2E.Message) (mimetype, filename string, ok bool) {
	if m == nil {
		return "", "", false
	}
	switch {
	case m.GetImageMessage() != nil:
		return m.GetImageMessage().GetMimetype(), "", true
	case m.GetVideoMessage() != nil:
		return m.GetVideoMessage().GetMimetype(), "", true
	case m.GetAudioMessage() != nil:
		return m.GetAudioMessage().GetMimetype(), "", true
	case m.GetStickerMessage() != nil:
		return m.GetStickerMessage().GetMimetype(), "", true
	case m.GetDocumentMessage() != nil:
		return m.GetDocumentMessage().GetMimetype(), m.GetDocumentMessage().GetFileName(), true
	}
	return "", "", false
}

// parseJID resolves a chat id, mapping the legacy "@c.us" suffix to the
// server name the protocol expects.
func parseJID(chatID string) (types.JID, error) {
	if suffix := "@c.us"; strings.HasSuffix(chatID, suffix) {
		chatID = strings.TrimSuffix(chatID, suffix) + "@" + types.DefaultUserServer
	}
	return types.ParseJID(chatID)
}

func (c *client) SendText(ctx context.Context, chatID, body string) (string, error) {
	if !c.cli.IsConnected() {
		return "", wa.ErrNotConnected
	}
	jid, err := parseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("sending text: %w", err)
	}
	return resp.ID, nil
}

func (c *client) SendFile(ctx context.Context, chatID string, data []byte, mimetype, filename, caption string) (string, error) {
	if !c.cli.IsConnected() {
		return "", wa.ErrNotConnected
	}
	jid, err := parseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	up, err := c.cli.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return "", fmt.Errorf("uploading file: %w", err)
	}

	doc := &waE2E.DocumentMessage{
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		Mimetype:      proto.String(mimetype),
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		FileName:      proto.String(filename),
	}
	if caption != "" {
		doc.Caption = proto.String(caption)
	}

	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{DocumentMessage: doc})
	if err != nil {
		return "", fmt.Errorf("sending file: %w", err)
	}
	return resp.ID, nil
}

func (c *client) DecryptFile(ctx context.Context, msg *wa.Message) ([]byte, error) {
	evt, ok := msg.Raw.(*events.Message)
	if !ok {
		return nil, fmt.Errorf("message %s has no downloadable media", msg.ID)
	}
	data, err := c.cli.DownloadAny(ctx, evt.Message)
	if err != nil {
		return nil, fmt.Errorf("downloading media: %w", err)
	}
	return data, nil
}

func (c *client) Logout(ctx context.Context) error {
	if !c.cli.IsConnected() {
		// Already dropped; unpairing needs a live connection, and the device
		// store is removed with the session either way.
		return nil
	}
	if err := c.cli.Logout(ctx); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

func (c *client) Close() error {
	c.cli.Disconnect()
	return nil
}

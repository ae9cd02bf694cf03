// ABOUTME: Tests for the whatsmeow driver's pure helpers.
// ABOUTME: Covers chat-id resolution, text extraction, and media detection.

package meow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func TestParseJIDMapsLegacySuffix(t *testing.T) {
	jid, err := parseJID("5511999999999@c.us")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, types.DefaultUserServer, jid.Server)
}

func TestParseJIDPassesThroughNativeIDs(t *testing.T) {
	jid, err := parseJID("5511999999999@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUserServer, jid.Server)

	group, err := parseJID("123456789-987654@g.us")
	require.NoError(t, err)
	assert.Equal(t, types.GroupServer, group.Server)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("oi")}, "oi"},
		{"extended text", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked")},
		}, "linked"},
		{"image caption", &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("foto")},
		}, "foto"},
		{"document caption", &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{Caption: proto.String("nota")},
		}, "nota"},
		{"empty", &waE2E.Message{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(tt.msg))
		})
	}
}

func TestMediaInfo(t *testing.T) {
	_, _, ok := mediaInfo(&waE2E.Message{Conversation: proto.String("texto")})
	assert.False(t, ok)

	mimetype, filename, ok := mediaInfo(&waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			Mimetype: proto.String("application/pdf"),
			FileName: proto.String("contrato.pdf"),
		},
	})
	require.True(t, ok)
	assert.Equal(t, "application/pdf", mimetype)
	assert.Equal(t, "contrato.pdf", filename)

	mimetype, filename, ok = mediaInfo(&waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/jpeg")},
	})
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mimetype)
	assert.Empty(t, filename)
}

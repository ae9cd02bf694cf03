// ABOUTME: HTTP handler tests exercising the API surface through the mux.
// ABOUTME: Uses a stub client factory; no real protocol connection is made.

package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepy/keepy-gateway/internal/config"
	"github.com/keepy/keepy-gateway/internal/session"
	"github.com/keepy/keepy-gateway/internal/wa"
)

const testSecret = "test-secret"

// fakeClient is a canned wa.Client for handler tests.
type fakeClient struct {
	sendErr   error
	logoutErr error
}

func (c *fakeClient) SendText(ctx context.Context, chatID, body string) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	return "msg-123", nil
}

func (c *fakeClient) SendFile(ctx context.Context, chatID string, data []byte, mimetype, filename, caption string) (string, error) {
	if c.sendErr != nil {
		return "", c.sendErr
	}
	return "msg-456", nil
}

func (c *fakeClient) DecryptFile(ctx context.Context, msg *wa.Message) ([]byte, error) {
	return nil, errors.New("no media in tests")
}

func (c *fakeClient) Logout(ctx context.Context) error { return c.logoutErr }
func (c *fakeClient) Close() error                     { return nil }

func newTestGateway(t *testing.T, client *fakeClient) *Gateway {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Auth.APISecret = testSecret

	factory := func(ctx context.Context, sessionID string, ev wa.Events) (wa.Client, error) {
		return client, nil
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := newWithFactory(cfg, factory, logger)
	t.Cleanup(func() {
		g.registry.Close()
		g.dispatcher.Close()
	})
	return g
}

// doRequest performs an authenticated request against the gateway mux.
func doRequest(t *testing.T, g *Gateway, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// startTestSession registers a session and waits for the stub client attach.
func startTestSession(t *testing.T, g *Gateway, sessionID, phone string) {
	t.Helper()
	rec := doRequest(t, g, http.MethodPost, "/session/start", testSecret,
		StartSessionRequest{SessionID: sessionID, Phone: phone})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		s, ok := g.registry.Get(sessionID)
		return ok && s.Client() != nil
	}, 3*time.Second, 5*time.Millisecond)
}

func TestRootEndpoint(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestRootUnknownPath(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Rota não encontrada", decodeBody(t, rec)["error"])
}

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.NotZero(t, body.Memory.AllocBytes)
	assert.NotZero(t, body.Memory.Goroutines)
}

func TestAuthRequired(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodGet, "/sessions", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Não autorizado", decodeBody(t, rec)["error"])

	rec = doRequest(t, g, http.MethodGet, "/sessions", "wrong-secret", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, g, http.MethodGet, "/sessions", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartSession(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/session/start", testSecret,
		StartSessionRequest{SessionID: "s1"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "s1", body["sessionId"])
	assert.Equal(t, "Sessão iniciando, aguarde o QR code", body["message"])

	// The session is registered synchronously, before pairing finishes.
	s, ok := g.registry.Get("s1")
	require.True(t, ok)
	assert.Equal(t, session.StateInitializing, s.State())
}

func TestStartSessionIdentifierFallback(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/session/start", testSecret,
		StartSessionRequest{UserID: "user-7"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", decodeBody(t, rec)["sessionId"])

	rec = doRequest(t, g, http.MethodPost, "/session/start", testSecret,
		StartSessionRequest{Phone: "5511999999999"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5511999999999", decodeBody(t, rec)["sessionId"])
}

func TestStartSessionMissingIdentifier(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/session/start", testSecret,
		StartSessionRequest{WebhookURL: "http://example.test/hook"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sessionId é obrigatório", decodeBody(t, rec)["error"])
}

func TestSessionStatus(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})
	startTestSession(t, g, "s1", "5511999999999")

	rec := doRequest(t, g, http.MethodGet, "/session/s1/status", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Exists)
	assert.Equal(t, "initializing", body.Status)
	assert.Equal(t, "5511999999999", body.Phone)
}

func TestSessionStatusNotFound(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodGet, "/session/ghost/status", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Exists)
	assert.Equal(t, "not_found", body.Status)
}

func TestSessionLogout(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})
	startTestSession(t, g, "s1", "")

	rec := doRequest(t, g, http.MethodPost, "/session/s1/logout", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Sessão encerrada", body["message"])

	rec = doRequest(t, g, http.MethodGet, "/session/s1/status", testSecret, nil)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Exists)
}

func TestSessionLogoutNotFound(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/session/ghost/logout", testSecret, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Sessão não encontrada", decodeBody(t, rec)["error"])
}

func TestSessionLogoutFailure(t *testing.T) {
	g := newTestGateway(t, &fakeClient{logoutErr: errors.New("connection lost")})
	startTestSession(t, g, "s1", "")

	rec := doRequest(t, g, http.MethodPost, "/session/s1/logout", testSecret, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// Logout failure keeps the session so the caller can retry.
	_, ok := g.registry.Get("s1")
	assert.True(t, ok)
}

func TestSessionRoutesUnknownAction(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodGet, "/session/s1/banana", testSecret, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessage(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})
	startTestSession(t, g, "s1", "")

	rec := doRequest(t, g, http.MethodPost, "/message/send", testSecret,
		SendMessageRequest{SessionID: "s1", To: "5511888888888", Message: "oi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "msg-123", body.MessageID)
	assert.Equal(t, "5511888888888@c.us", body.To)
}

func TestSendMessageByPhone(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})
	startTestSession(t, g, "s1", "5511999999999")

	rec := doRequest(t, g, http.MethodPost, "/message/send", testSecret,
		SendMessageRequest{Phone: "5511999999999", To: "5511888888888", Message: "oi"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessageSessionNotFound(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/message/send", testSecret,
		SendMessageRequest{SessionID: "ghost", To: "5511888888888", Message: "oi"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Sessão não encontrada", decodeBody(t, rec)["error"])
}

func TestSendMessageMissingFields(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/message/send", testSecret,
		SendMessageRequest{SessionID: "s1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageDeliveryFailure(t *testing.T) {
	g := newTestGateway(t, &fakeClient{sendErr: errors.New("socket closed")})
	startTestSession(t, g, "s1", "")

	rec := doRequest(t, g, http.MethodPost, "/message/send", testSecret,
		SendMessageRequest{SessionID: "s1", To: "5511888888888", Message: "oi"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSendFile(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})
	startTestSession(t, g, "s1", "")

	rec := doRequest(t, g, http.MethodPost, "/message/send-file", testSecret,
		SendFileRequest{
			SessionID:  "s1",
			To:         "5511888888888",
			FileBase64: base64.StdEncoding.EncodeToString([]byte("conteudo")),
			Filename:   "nota.txt",
			Caption:    "segue",
		})
	require.Equal(t, http.StatusOK, rec.Code)

	var body SendFileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "msg-456", body.MessageID)
}

func TestSendFileMissingSessionID(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})

	rec := doRequest(t, g, http.MethodPost, "/message/send-file", testSecret,
		SendFileRequest{To: "5511888888888", FileBase64: "QQ==", Filename: "a.txt"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sessionId é obrigatório", decodeBody(t, rec)["error"])
}

func TestListSessions(t *testing.T) {
	g := newTestGateway(t, &fakeClient{})
	startTestSession(t, g, "s1", "5511999999999")

	rec := doRequest(t, g, http.MethodGet, "/sessions", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["sessions"], 1)
	assert.Equal(t, "s1", body["sessions"][0].SessionID)
	assert.Equal(t, "5511999999999", body["sessions"][0].Phone)
}

// ABOUTME: HTTP API handlers for session lifecycle and outbound messaging.
// ABOUTME: Maps registry sentinels to statuses; user-facing errors in Portuguese.

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/keepy/keepy-gateway/internal/session"
)

// StartSessionRequest is the JSON request body for POST /session/start.
// SessionID wins over UserID wins over Phone as the session identifier.
type StartSessionRequest struct {
	SessionID  string `json:"sessionId,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// StartSessionResponse is the JSON response for POST /session/start.
type StartSessionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// StatusResponse is the JSON response for GET /session/{id}/status.
// Always 200; absence is reported through Exists and Status "not_found".
type StatusResponse struct {
	Exists bool   `json:"exists"`
	Status string `json:"status"`
	Phone  string `json:"phone,omitempty"`
}

// LogoutResponse is the JSON response for POST /session/{id}/logout.
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SendMessageRequest is the JSON request body for POST /message/send.
// The session is addressed by sessionId or, failing that, by phone.
type SendMessageRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Phone     string `json:"phone,omitempty"`
	To        string `json:"to"`
	Message   string `json:"message"`
}

// SendMessageResponse is the JSON response for POST /message/send. To echoes
// the normalized chat id the message was actually addressed to.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

// SendFileRequest is the JSON request body for POST /message/send-file.
type SendFileRequest struct {
	SessionID  string `json:"sessionId"`
	To         string `json:"to"`
	FileBase64 string `json:"file_base64"`
	Filename   string `json:"filename"`
	Caption    string `json:"caption,omitempty"`
}

// SendFileResponse is the JSON response for POST /message/send-file.
type SendFileResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// SessionSummary is one entry in session listings.
type SessionSummary struct {
	SessionID string `json:"sessionId"`
	Phone     string `json:"phone,omitempty"`
	Status    string `json:"status"`
}

// RootResponse is the JSON response for GET /.
type RootResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
	Uptime   int64  `json:"uptime"`
}

// MemoryStats is the runtime memory subset reported by GET /health.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	Goroutines      int    `json:"goroutines"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string           `json:"status"`
	Uptime   int64            `json:"uptime"`
	Sessions []SessionSummary `json:"sessions"`
	Memory   MemoryStats      `json:"memory"`
}

// handleRoot handles GET /. The root mux pattern catches every path without
// a dedicated handler, so anything but "/" itself is a JSON 404 here.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		g.sendJSONError(w, http.StatusNotFound, "Rota não encontrada")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	g.writeJSON(w, http.StatusOK, RootResponse{
		Status:   "ok",
		Service:  ServiceName,
		Sessions: g.registry.Len(),
		Uptime:   g.uptimeSeconds(),
	})
}

// handleHealth handles GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	g.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Uptime:   g.uptimeSeconds(),
		Sessions: g.listSummaries(),
		Memory: MemoryStats{
			AllocBytes:      ms.Alloc,
			TotalAllocBytes: ms.TotalAlloc,
			SysBytes:        ms.Sys,
			NumGC:           ms.NumGC,
			Goroutines:      runtime.NumGoroutine(),
		},
	})
}

// handleStartSession handles POST /session/start. Creation proceeds in the
// background; the response only confirms registration.
func (g *Gateway) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "JSON inválido")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.UserID
	}
	if sessionID == "" {
		sessionID = req.Phone
	}
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId é obrigatório")
		return
	}

	g.registry.Create(sessionID, session.Hints{
		Phone:      req.Phone,
		WebhookURL: req.WebhookURL,
	})

	g.writeJSON(w, http.StatusOK, StartSessionResponse{
		Success:   true,
		Message:   "Sessão iniciando, aguarde o QR code",
		SessionID: sessionID,
	})
}

// handleSessionRoutes dispatches /session/{id}/status and /session/{id}/logout.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/session/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		g.sendJSONError(w, http.StatusNotFound, "Rota não encontrada")
		return
	}

	sessionID, action := parts[0], parts[1]
	switch action {
	case "status":
		g.handleSessionStatus(w, r, sessionID)
	case "logout":
		g.handleSessionLogout(w, r, sessionID)
	default:
		g.sendJSONError(w, http.StatusNotFound, "Rota não encontrada")
	}
}

// handleSessionStatus handles GET /session/{id}/status. An absent session is
// a 200 with exists:false; polling this is how callers learn a background
// creation failed.
func (g *Gateway) handleSessionStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s, ok := g.registry.Get(sessionID)
	if !ok {
		g.writeJSON(w, http.StatusOK, StatusResponse{Exists: false, Status: "not_found"})
		return
	}

	g.writeJSON(w, http.StatusOK, StatusResponse{
		Exists: true,
		Status: string(s.State()),
		Phone:  s.Phone,
	})
}

// handleSessionLogout handles POST /session/{id}/logout.
func (g *Gateway) handleSessionLogout(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	err := g.registry.Terminate(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "Sessão não encontrada")
		return
	}
	if err != nil {
		g.logger.Error("logout failed", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, LogoutResponse{Success: true, Message: "Sessão encerrada"})
}

// handleSendMessage handles POST /message/send.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if req.To == "" || req.Message == "" {
		g.sendJSONError(w, http.StatusBadRequest, "to e message são obrigatórios")
		return
	}

	s, ok := g.resolveSession(req.SessionID, req.Phone)
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "Sessão não encontrada")
		return
	}

	msgID, chatID, err := s.Adapter().SendText(r.Context(), req.To, req.Message)
	if err != nil {
		g.logger.Error("send failed", "session_id", s.ID, "to", req.To, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, SendMessageResponse{
		Success:   true,
		MessageID: msgID,
		To:        chatID,
	})
}

// handleSendFile handles POST /message/send-file.
func (g *Gateway) handleSendFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "JSON inválido")
		return
	}
	if req.SessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId é obrigatório")
		return
	}
	if req.To == "" || req.FileBase64 == "" || req.Filename == "" {
		g.sendJSONError(w, http.StatusBadRequest, "to, file_base64 e filename são obrigatórios")
		return
	}

	s, ok := g.registry.Get(req.SessionID)
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "Sessão não encontrada")
		return
	}

	msgID, err := s.Adapter().SendFile(r.Context(), req.To, req.FileBase64, req.Filename, req.Caption)
	if err != nil {
		g.logger.Error("send file failed", "session_id", s.ID, "to", req.To, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	g.writeJSON(w, http.StatusOK, SendFileResponse{Success: true, MessageID: msgID})
}

// handleListSessions handles GET /sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string][]SessionSummary{
		"sessions": g.listSummaries(),
	})
}

// resolveSession finds a session by id first, then by phone.
func (g *Gateway) resolveSession(sessionID, phone string) (*session.Session, bool) {
	if sessionID != "" {
		return g.registry.Get(sessionID)
	}
	if phone != "" {
		return g.registry.GetByPhone(phone)
	}
	return nil, false
}

func (g *Gateway) listSummaries() []SessionSummary {
	list := g.registry.List()
	summaries := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		summaries = append(summaries, SessionSummary{
			SessionID: s.ID,
			Phone:     s.Phone,
			Status:    string(s.State),
		})
	}
	return summaries
}

func (g *Gateway) uptimeSeconds() int64 {
	return int64(time.Since(g.startTime).Seconds())
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

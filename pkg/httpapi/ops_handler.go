package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"nzbengine/pkg/logger"
	"nzbengine/pkg/nntp"
)

// SessionInfo is one active stream's diagnostics snapshot, mirroring the
// session dashboard shape.
type SessionInfo struct {
	MountID      string    `json:"mountId"`
	FileIndex    int       `json:"fileIndex"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// SessionSource reports currently active streaming sessions for the ops
// dashboard.
type SessionSource interface {
	ActiveSessions() []SessionInfo
}

// OpsHandler exposes process liveness, pool occupancy, and a live log tail.
type OpsHandler struct {
	manager  *nntp.Manager
	sessions SessionSource
	upgrader websocket.Upgrader
}

// NewOpsHandler builds an ops handler over manager (for pool stats) and an
// optional session source (nil is tolerated — /ops/sessions returns empty).
func NewOpsHandler(manager *nntp.Manager, sessions SessionSource) *OpsHandler {
	return &OpsHandler{
		manager:  manager,
		sessions: sessions,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Register wires /ops/* routes onto mux.
func (h *OpsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ops/health", h.handleHealth)
	mux.HandleFunc("GET /ops/sessions", h.handleSessions)
	mux.HandleFunc("GET /ops/log", h.handleLog)
}

func (h *OpsHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	activeMounts := 0
	if h.sessions != nil {
		activeMounts = len(h.sessions.ActiveSessions())
	}
	resp := struct {
		Status       string       `json:"status"`
		Pools        []nntp.Stats `json:"pools"`
		ActiveMounts int          `json:"activeMounts"`
	}{
		Status:       "ok",
		Pools:        h.manager.Stats(),
		ActiveMounts: activeMounts,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *OpsHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []SessionInfo{}
	if h.sessions != nil {
		sessions = h.sessions.ActiveSessions()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// handleLog upgrades to a websocket and streams the logger's broadcast
// channel plus its ring-buffer history on connect.
func (h *OpsHandler) handleLog(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ops log websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for _, line := range logger.History() {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	ch := make(chan string, 256)
	logger.SetBroadcast(ch)
	defer logger.SetBroadcast(nil)

	for line := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

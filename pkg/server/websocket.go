package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket authenticates the request, upgrades it to a WebSocket and
// hands the connection to a session. The token is validated before the
// upgrade so that unauthenticated clients are rejected with a plain 401
// instead of a dropped socket.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	userID, err := s.tokens.Validate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sess := s.factory.CreateSession(token, userID, ws)
	debugLog.Printf("WebSocket connection from %s (session %s, user %d)", ws.RemoteAddr(), sess.ID(), userID)

	go sess.Run()
}

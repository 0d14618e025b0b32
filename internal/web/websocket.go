package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// the cors middleware does not cover upgrades, so origins are checked here
		CheckOrigin: func(r *http.Request) bool { return originAllowed(origins, r.Header.Get("Origin")) },
	}
}

// originAllowed matches origin against the configured list the way the cors
// layer does: an empty list or "*" allows any, requests without Origin are not from browsers.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// handlePortfolioWebSocket pushes the portfolio view of userId as JSON text frames.
// Client frames are read only to track liveness.
func (s *Server) handlePortfolioWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		unavailable(w, "portfolio sessions")
		return
	}
	if !s.upgrader.CheckOrigin(r) {
		respondError(w, http.StatusForbidden, "ForbiddenOrigin", "origin "+r.Header.Get("Origin")+" is not allowed")
		return
	}
	userID := mux.Vars(r)["userId"]
	session, err := s.deps.Sessions(userID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidUserID", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.String("user", userID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	views := newViewMailbox()
	cancelObserve := session.Observe(views.put)
	defer cancelObserve()
	session.Start(ctx)
	defer session.Stop()

	go readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case view := <-views.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(view); err != nil {
				s.logger.Debug("websocket write", zap.String("user", userID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames until the connection fails, then cancels.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/events"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsPingInterval = 30 * time.Second
)

// sameOriginOr accepts requests without an Origin, from the serving host, or
// from one of the allowed origins.
func sameOriginOr(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	}
}

func (s *Server) handleEvents(allowed []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: sameOriginOr(allowed)}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.serveEvents(conn)
	}
}

func (s *Server) serveEvents(conn *websocket.Conn) {
	defer conn.Close()

	sub, cancel := s.Monitor.Subscribe()
	defer cancel()
	s.Logger.Debug("events_client_connected", zap.String("remote", conn.RemoteAddr().String()))

	// Clients never send anything meaningful; reading detects close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		select {
		case evt := <-sub:
			if err := writeEvent(conn, evt); err != nil {
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(eventsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, evt events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
	return conn.WriteJSON(evt)
}

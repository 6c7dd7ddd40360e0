package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mediaengine/engine/internal/eventbus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// clientCommand is what a subscriber may send back on the stream:
// currently only topic re-subscription.
type clientCommand struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// handleEventStream upgrades to a WebSocket and relays bus events to
// the subscriber, filtered by the topics it asked for. Topics come
// from the ?topics= query parameter at connect time and can be
// replaced mid-stream with a {"action":"subscribe","topics":[...]}
// message. Emission order to one subscriber matches publication order.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// Origin was already validated by authAndOrigin.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	// Echo the bearer subprotocol back if the client used it, per the
	// WebSocket handshake rules.
	for _, proto := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(proto, ",") {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(p, wsBearerPrefix) {
				upgrader.Subprotocols = []string{p}
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	topics := parseTopics(r.URL.Query().Get("topics"))
	sub := s.d.Bus.Subscribe(topics...)
	defer func() { sub.Unsubscribe() }()

	// resubscribe carries replacement subscriptions from the read
	// loop to the write loop, which owns the subscription.
	resubscribe := make(chan []eventbus.EventType, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			var cmd clientCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
			if cmd.Action == "subscribe" {
				next := make([]eventbus.EventType, 0, len(cmd.Topics))
				for _, t := range cmd.Topics {
					next = append(next, eventbus.EventType(t))
				}
				select {
				case resubscribe <- next:
				default:
				}
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case topics := <-resubscribe:
			sub.Unsubscribe()
			sub = s.d.Bus.Subscribe(topics...)
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTopics(raw string) []eventbus.EventType {
	if raw == "" {
		return nil
	}
	var topics []eventbus.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, eventbus.EventType(t))
		}
	}
	return topics
}

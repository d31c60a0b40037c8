package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/SentientTimeline/internal/events"
)

const (
	// Number of recent events to send on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only; any origin may watch.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventFilter narrows the stream to one timeline or one instance.
type eventFilter struct {
	timelineID string
	instanceID string
}

func filterFromRequest(r *http.Request) eventFilter {
	q := r.URL.Query()
	return eventFilter{timelineID: q.Get("timeline"), instanceID: q.Get("instance")}
}

func (f eventFilter) match(e events.Event) bool {
	if f.timelineID != "" && e.Fields["timeline_id"] != f.timelineID {
		return false
	}
	if f.instanceID != "" && e.Fields["instance_id"] != f.instanceID {
		return false
	}
	return true
}

// wsEventsHandler streams events over a websocket: the recent backlog
// first, then live events until the peer goes away.
func (s *Server) wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	filter := filterFromRequest(r)
	sub := events.Subscribe()
	defer events.Unsubscribe(sub)

	send := func(e events.Event) error {
		if !filter.match(e) {
			return nil
		}
		data, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, e := range events.RecentEvents(recentEventsCount) {
		if err := send(e); err != nil {
			s.log.Debug().Err(err).Msg("ws write recent event failed")
			return
		}
	}

	// Reader handles pongs and notices the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := send(e); err != nil {
				s.log.Debug().Err(err).Msg("ws write event failed")
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

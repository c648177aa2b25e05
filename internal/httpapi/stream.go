package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from another origin during development.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleStream serves access events as text/event-stream until the client
// goes away or the broker drops it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	streamClients.WithLabelValues("sse").Inc()
	defer streamClients.WithLabelValues("sse").Dec()

	if err := s.broker.Stream(r.Context(), w, flusher.Flush); err != nil {
		s.logger.Debug().Err(err).Str("from", r.RemoteAddr).Msg("sse client gone")
	}
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleWebSocket mirrors the event stream as JSON text frames. The first
// frame is a ping event, as on the SSE endpoint.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	streamClients.WithLabelValues("ws").Inc()
	defer streamClients.WithLabelValues("ws").Dec()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	// The read side only exists to notice the client closing and to
	// handle pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(f wsFrame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	if err := write(wsFrame{Event: "ping", Data: json.RawMessage("{}")}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := write(wsFrame{Event: msg.Event, Data: msg.Data}); err != nil {
				s.logger.Debug().Err(err).Msg("websocket write")
				return
			}
		}
	}
}

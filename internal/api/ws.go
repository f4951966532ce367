package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// wsInbound is a client frame on the chat socket.
type wsInbound struct {
	Type string `json:"type"` // message, clear, interrupt
	Text string `json:"text,omitempty"`
}

// wsOutbound is a server frame on the chat socket.
type wsOutbound struct {
	Type      string `json:"type"` // response, error, cleared, interrupted
	Text      string `json:"text,omitempty"`
	HTML      string `json:"html,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id"`
}

// wsConn serializes writes; gorilla connections allow one writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(v wsOutbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

// handleChatWS serves a chat session over a WebSocket. One turn runs at
// a time; an interrupt cancels it. The session id comes from the
// session_id query parameter or is generated.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ws := &wsConn{conn: conn}
	log := s.logger.With("session_id", sessionID)
	log.Debug("chat socket opened")

	var (
		wg         sync.WaitGroup
		turnMu     sync.Mutex
		cancelTurn context.CancelFunc
	)
	ctx, cancelAll := context.WithCancel(r.Context())
	defer wg.Wait()
	defer cancelAll()

	interrupt := func() bool {
		turnMu.Lock()
		defer turnMu.Unlock()
		if cancelTurn == nil {
			return false
		}
		cancelTurn()
		return true
	}

	reply := func(out wsOutbound) {
		out.SessionID = sessionID
		if err := ws.send(out); err != nil {
			log.Debug("websocket write failed", "error", err)
		}
	}

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("chat socket closed", "error", err)
			}
			return
		}

		switch in.Type {
		case "message":
			text := strings.TrimSpace(in.Text)
			if text == "" {
				reply(wsOutbound{Type: "error", Error: "message is required"})
				continue
			}
			turnMu.Lock()
			if cancelTurn != nil {
				turnMu.Unlock()
				reply(wsOutbound{Type: "error", Error: "a message is already being processed"})
				continue
			}
			tctx, cancel := context.WithCancel(ctx)
			cancelTurn = cancel
			turnMu.Unlock()

			wg.Add(1)
			go func() {
				defer wg.Done()
				answer, _, err := s.chat(tctx, sessionID, text)

				turnMu.Lock()
				cancelled := tctx.Err() != nil
				cancelTurn = nil
				turnMu.Unlock()
				cancel()

				switch {
				case cancelled:
					// The interrupt already answered, or the socket is gone.
				case err != nil:
					log.Error("chat turn failed", "error", err)
					reply(wsOutbound{Type: "error", Error: err.Error()})
				default:
					reply(wsOutbound{Type: "response", Text: answer, HTML: RenderMarkdown(answer)})
				}
			}()

		case "clear":
			interrupt()
			if s.opts.Sessions != nil {
				s.opts.Sessions.Clear(sessionID)
			}
			reply(wsOutbound{Type: "cleared"})

		case "interrupt":
			interrupt()
			reply(wsOutbound{Type: "interrupted"})

		default:
			reply(wsOutbound{Type: "error", Error: "unknown message type " + strconv.Quote(in.Type)})
		}
	}
}

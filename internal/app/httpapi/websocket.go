package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marcelojr/pais-ao-vivo/internal/app/realtime"
	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = (pongWait * 9) / 10
	maxFrameBytes = 4096
	frameTimeout  = 5 * time.Second
)

const (
	frameJoin  = "join"
	frameLeave = "leave"
	framePost  = "post"
)

type clientFrame struct {
	Type string `json:"type" validate:"required,oneof=join leave post"`
	Room string `json:"room" validate:"required_if=Type join,required_if=Type post,max=64"`
	Body string `json:"body" validate:"required_if=Type post"`
}

// session é o Sink de uma conexão websocket: Deliver só enfileira, quem escreve é o writePump.
type session struct {
	conn *websocket.Conn
	send chan realtime.Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newSession(conn *websocket.Conn, buffer int) *session {
	return &session{
		conn: conn,
		send: make(chan realtime.Event, buffer),
		done: make(chan struct{}),
	}
}

func (s *session) Deliver(ev realtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: sessao fechada", domain.ErrConnection)
	}
	select {
	case s.send <- ev:
		return nil
	default:
		return fmt.Errorf("%w: fila de envio cheia", domain.ErrConnection)
	}
}

func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (a *API) serveWs(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("falha no upgrade do websocket", "err", err)
		return
	}

	sess := newSession(conn, a.sendBuffer)
	id := a.hub.Register(sess)
	a.logger.Debug("websocket conectado", "connection_id", id, "user_id", userID)

	go a.writePump(sess, id)
	a.readPump(sess, id, userID)
}

func (a *API) writePump(sess *session, id realtime.ConnectionID) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case ev := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(realtime.Wrap(ev)); err != nil {
				a.logger.Debug("falha ao escrever no websocket", "connection_id", id, "err", err)
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.done:
			_ = sess.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// readPump roda até a conexão cair; a saída implica deixar a sala e desregistrar.
func (a *API) readPump(sess *session, id realtime.ConnectionID, userID domain.UserID) {
	defer func() {
		a.hub.Unregister(id)
		sess.conn.Close()
		a.logger.Debug("websocket encerrado", "connection_id", id, "user_id", userID)
	}()

	sess.conn.SetReadLimit(maxFrameBytes)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				a.logger.Warn("leitura do websocket falhou", "connection_id", id, "err", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			a.notifyError(sess, domain.Validation("frame invalido: %v", err))
			continue
		}
		if err := a.validate.Struct(frame); err != nil {
			a.notifyError(sess, domain.Validation("%v", err))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		a.handleFrame(ctx, sess, id, userID, frame)
		cancel()
	}
}

func (a *API) handleFrame(ctx context.Context, sess *session, id realtime.ConnectionID, userID domain.UserID, frame clientFrame) {
	room := domain.RoomKey(frame.Room)

	switch frame.Type {
	case frameJoin:
		if err := a.hub.JoinRoom(id, room); err != nil {
			a.notifyError(sess, err)
			return
		}
		_ = sess.Deliver(realtime.Joined{Room: room})

		// a mensagem pode chegar pelo histórico e ao vivo; o cliente descarta pelo seq
		history, err := a.chat.History(ctx, room)
		if err != nil {
			a.logger.Warn("falha ao carregar historico da sala", "room", room, "err", err)
			a.notifyError(sess, err)
			return
		}
		if history == nil {
			history = []domain.ChatMessage{}
		}
		_ = sess.Deliver(realtime.HistoryBackfill{Room: room, Messages: history})

	case frameLeave:
		a.hub.LeaveRoom(id)

	case framePost:
		if _, err := a.chat.PostMessage(ctx, userID, room, frame.Body); err != nil {
			a.notifyError(sess, err)
		}
	}
}

func (a *API) notifyError(sess *session, err error) {
	_ = sess.Deliver(realtime.ErrorNotice{Code: statusFromError(err), Message: err.Error()})
}

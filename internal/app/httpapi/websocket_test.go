package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marcelojr/pais-ao-vivo/internal/app/realtime"
	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/auth"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
)

type wsFixture struct {
	server *httptest.Server
	hub    *realtime.Hub
	chat   *MockChatService
	token  string
}

type wireEvent struct {
	Type realtime.EventType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

func setupWs(t *testing.T) *wsFixture {
	known := map[domain.RoomKey]bool{domain.GlobalRoom: true, "France": true, "Brazil": true}
	hub := realtime.NewHub(realtime.HubConfig{
		RoomAllowed: func(k domain.RoomKey) bool { return known[k] },
		Logger:      logger.Discard(),
	})
	chat := new(MockChatService)
	jwt := auth.NewJWT("segredo-de-teste")

	api := New(Deps{
		Votes: new(MockVoteService),
		Chat:  chat,
		Auth:  jwt,
		Hub:   hub,
		Clock: fixedClock{now: agora},
	}, logger.Discard())
	mux := http.NewServeMux()
	api.Register(mux)

	server := httptest.NewServer(mux)
	token, err := jwt.Sign("u1", time.Hour)
	require.NoError(t, err)

	t.Cleanup(func() {
		hub.CloseAll()
		server.Close()
	})
	return &wsFixture{server: server, hub: hub, chat: chat, token: token}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + f.token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func TestWebsocket_QuandoSemToken_DeveRecusarHandshake(t *testing.T) {
	f := setupWs(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocket_Join_DeveEnviarHistoricoEMensagensDaSala(t *testing.T) {
	f := setupWs(t)
	historico := []domain.ChatMessage{{ID: "m1", Seq: 1, AuthorID: "u2", RoomKey: "France", Body: "salut", PostedAt: agora}}
	f.chat.On("History", mock.Anything, domain.RoomKey("France")).Return(historico, nil)

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "join", "room": "France"})

	joined := readEvent(t, conn)
	assert.Equal(t, realtime.EventJoined, joined.Type)

	history := readEvent(t, conn)
	require.Equal(t, realtime.EventHistory, history.Type)
	var backfill realtime.HistoryBackfill
	require.NoError(t, json.Unmarshal(history.Data, &backfill))
	assert.Equal(t, domain.RoomKey("France"), backfill.Room)
	require.Len(t, backfill.Messages, 1)
	assert.Equal(t, "salut", backfill.Messages[0].Body)

	f.hub.PublishToRoom(domain.GlobalRoom, domain.ChatMessage{ID: "g1", RoomKey: domain.GlobalRoom, Body: "nao devo chegar"})
	f.hub.PublishToRoom("France", domain.ChatMessage{ID: "m2", Seq: 2, RoomKey: "France", Body: "bonjour"})

	live := readEvent(t, conn)
	require.Equal(t, realtime.EventRoomMessage, live.Type)
	var room realtime.RoomMessage
	require.NoError(t, json.Unmarshal(live.Data, &room))
	assert.Equal(t, "bonjour", room.Message.Body)
	assert.Equal(t, int64(2), room.Message.Seq)

	f.hub.PublishTally([]domain.CountryTally{{Country: "France", VoteCount: 1}})
	tally := readEvent(t, conn)
	require.Equal(t, realtime.EventTallyUpdate, tally.Type)
	var update realtime.TallyUpdate
	require.NoError(t, json.Unmarshal(tally.Data, &update))
	assert.Equal(t, []domain.CountryTally{{Country: "France", VoteCount: 1}}, update.Tallies)
}

func TestWebsocket_Join_SalaDesconhecida_DeveEnviarErro(t *testing.T) {
	f := setupWs(t)
	conn := f.dial(t)

	send(t, conn, map[string]string{"type": "join", "room": "Atlantis"})

	ev := readEvent(t, conn)
	require.Equal(t, realtime.EventError, ev.Type)
	var notice realtime.ErrorNotice
	require.NoError(t, json.Unmarshal(ev.Data, &notice))
	assert.Equal(t, "validation", notice.Code)
}

func TestWebsocket_FrameInvalido_DeveEnviarErroEManterConexao(t *testing.T) {
	f := setupWs(t)
	f.chat.On("History", mock.Anything, domain.RoomKey("Brazil")).Return([]domain.ChatMessage{}, nil)
	conn := f.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nao e json")))
	assert.Equal(t, realtime.EventError, readEvent(t, conn).Type)

	send(t, conn, map[string]string{"type": "dance"})
	assert.Equal(t, realtime.EventError, readEvent(t, conn).Type)

	send(t, conn, map[string]string{"type": "post", "room": "Brazil"})
	assert.Equal(t, realtime.EventError, readEvent(t, conn).Type)

	send(t, conn, map[string]string{"type": "join", "room": "Brazil"})
	assert.Equal(t, realtime.EventJoined, readEvent(t, conn).Type)
}

func TestWebsocket_Post_DeveChamarServicoDeChat(t *testing.T) {
	f := setupWs(t)
	chamado := make(chan struct{})
	f.chat.On("PostMessage", mock.Anything, domain.UserID("u1"), domain.GlobalRoom, "ola").
		Return(domain.ChatMessage{ID: "m1", RoomKey: domain.GlobalRoom, Body: "ola"}, nil).
		Run(func(mock.Arguments) { close(chamado) })

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "post", "room": "global", "body": "ola"})

	select {
	case <-chamado:
	case <-time.After(2 * time.Second):
		t.Fatal("PostMessage nao foi chamado")
	}
}

func TestWebsocket_Post_QuandoLimiteAtingido_DeveEnviarErro(t *testing.T) {
	f := setupWs(t)
	f.chat.On("PostMessage", mock.Anything, domain.UserID("u1"), domain.RoomKey("France"), "spam").
		Return(domain.ChatMessage{}, domain.ErrRateLimited)

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "post", "room": "France", "body": "spam"})

	ev := readEvent(t, conn)
	require.Equal(t, realtime.EventError, ev.Type)
	var notice realtime.ErrorNotice
	require.NoError(t, json.Unmarshal(ev.Data, &notice))
	assert.Equal(t, "rate_limited", notice.Code)
}

func TestWebsocket_NovaConexao_RecebeUltimaParcial(t *testing.T) {
	f := setupWs(t)
	f.hub.PublishTally([]domain.CountryTally{{Country: "Brazil", VoteCount: 3}})

	conn := f.dial(t)

	ev := readEvent(t, conn)
	require.Equal(t, realtime.EventTallyUpdate, ev.Type)
	var update realtime.TallyUpdate
	require.NoError(t, json.Unmarshal(ev.Data, &update))
	assert.Equal(t, []domain.CountryTally{{Country: "Brazil", VoteCount: 3}}, update.Tallies)
}

func TestWebsocket_Desconexao_DeveSairDaSalaEDesregistrar(t *testing.T) {
	f := setupWs(t)
	f.chat.On("History", mock.Anything, domain.RoomKey("France")).Return([]domain.ChatMessage{}, nil)

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "join", "room": "France"})
	require.Equal(t, realtime.EventJoined, readEvent(t, conn).Type)
	require.Len(t, f.hub.RoomMembers("France"), 1)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return f.hub.Connections() == 0 && len(f.hub.RoomMembers("France")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocket_Leave_DevePararMensagensDaSala(t *testing.T) {
	f := setupWs(t)
	f.chat.On("History", mock.Anything, domain.RoomKey("France")).Return([]domain.ChatMessage{}, nil)

	conn := f.dial(t)
	send(t, conn, map[string]string{"type": "join", "room": "France"})
	require.Equal(t, realtime.EventJoined, readEvent(t, conn).Type)
	require.Equal(t, realtime.EventHistory, readEvent(t, conn).Type)

	send(t, conn, map[string]string{"type": "leave"})
	assert.Eventually(t, func() bool { return len(f.hub.RoomMembers("France")) == 0 }, 2*time.Second, 10*time.Millisecond)

	f.hub.PublishToRoom("France", domain.ChatMessage{ID: "m9", RoomKey: "France", Body: "ignorada"})
	f.hub.PublishTally([]domain.CountryTally{})

	assert.Equal(t, realtime.EventTallyUpdate, readEvent(t, conn).Type)
	assert.Equal(t, 1, f.hub.Connections())
}

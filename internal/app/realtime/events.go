package realtime

import "github.com/marcelojr/pais-ao-vivo/internal/domain"

type EventType string

const (
	EventTallyUpdate EventType = "tally_update"
	EventRoomMessage EventType = "room_message"
	EventHistory     EventType = "history"
	EventJoined      EventType = "joined"
	EventError       EventType = "error"
)

// Event é tudo que o hub ou a sessão empurram para uma conexão.
type Event interface {
	Type() EventType
}

type TallyUpdate struct {
	Tallies []domain.CountryTally `json:"tallies"`
}

type RoomMessage struct {
	Message domain.ChatMessage `json:"message"`
}

// HistoryBackfill é enviado só para a conexão que acabou de entrar na sala.
type HistoryBackfill struct {
	Room     domain.RoomKey       `json:"room"`
	Messages []domain.ChatMessage `json:"messages"`
}

type Joined struct {
	Room domain.RoomKey `json:"room"`
}

type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (TallyUpdate) Type() EventType     { return EventTallyUpdate }
func (RoomMessage) Type() EventType     { return EventRoomMessage }
func (HistoryBackfill) Type() EventType { return EventHistory }
func (Joined) Type() EventType          { return EventJoined }
func (ErrorNotice) Type() EventType     { return EventError }

// Envelope é o formato no fio: {"type": ..., "data": ...}.
type Envelope struct {
	Type EventType `json:"type"`
	Data Event     `json:"data"`
}

func Wrap(ev Event) Envelope {
	return Envelope{Type: ev.Type(), Data: ev}
}

// Pacote realtime mantém as conexões vivas, as salas e o fan-out de parciais e mensagens.
package realtime

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/ids"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/metrics"
)

type ConnectionID string

// Sink é o lado de escrita de uma conexão. Deliver não pode bloquear:
// implementações enfileiram e devolvem erro quando não conseguem.
type Sink interface {
	Deliver(ev Event) error
	Close()
}

type connection struct {
	id       ConnectionID
	sink     Sink
	failures atomic.Int32

	mu     sync.Mutex
	room   domain.RoomKey
	closed bool
}

type room struct {
	mu      sync.Mutex
	members map[ConnectionID]*connection
}

type HubConfig struct {
	// MaxSendFailures consecutivas derrubam a conexão. Zero usa 3.
	MaxSendFailures int
	// RoomAllowed valida chaves de sala em JoinRoom. Nil aceita qualquer chave não vazia.
	RoomAllowed func(domain.RoomKey) bool
	IDs         *ids.Generator
	Logger      *slog.Logger
}

// Hub guarda o registro de conexões e salas. O mutex do registro só protege os mapas;
// cada sala e cada conexão tem o próprio lock e a entrega acontece fora de todos eles.
type Hub struct {
	mu    sync.RWMutex
	conns map[ConnectionID]*connection
	rooms map[domain.RoomKey]*room

	tallyMu   sync.RWMutex
	lastTally []domain.CountryTally
	hasTally  bool

	maxFailures int32
	roomAllowed func(domain.RoomKey) bool
	ids         *ids.Generator
	log         *slog.Logger
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.MaxSendFailures <= 0 {
		cfg.MaxSendFailures = 3
	}
	if cfg.IDs == nil {
		cfg.IDs = ids.DefaultGenerator()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.L()
	}
	return &Hub{
		conns:       make(map[ConnectionID]*connection),
		rooms:       make(map[domain.RoomKey]*room),
		maxFailures: int32(cfg.MaxSendFailures),
		roomAllowed: cfg.RoomAllowed,
		ids:         cfg.IDs,
		log:         cfg.Logger,
	}
}

// Register entrega a última parcial conhecida, se houver, e só então inscreve a conexão.
// tallyMu fica retido até a inscrição para nenhuma parcial nova chegar antes do snapshot.
func (h *Hub) Register(sink Sink) ConnectionID {
	c := &connection{id: ConnectionID(h.ids.New()), sink: sink}

	h.tallyMu.RLock()
	if h.hasTally {
		h.deliver(c, TallyUpdate{Tallies: h.lastTally})
	}
	h.mu.Lock()
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()
	h.tallyMu.RUnlock()

	metrics.SetConnections(total)
	return c.id
}

// Unregister remove a conexão da sala atual e fecha o sink. Chamadas repetidas são ignoradas.
func (h *Hub) Unregister(id ConnectionID) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(h.conns, id)
	}
	total := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return
	}
	metrics.SetConnections(total)

	c.mu.Lock()
	c.closed = true
	h.leaveLocked(c)
	c.mu.Unlock()

	c.sink.Close()
}

// CloseAll desregistra todas as conexões; usado no desligamento do servidor.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	todas := lo.Keys(h.conns)
	h.mu.RUnlock()

	for _, id := range todas {
		h.Unregister(id)
	}
}

// JoinRoom troca a sala da conexão; a sala anterior é deixada antes.
func (h *Hub) JoinRoom(id ConnectionID, key domain.RoomKey) error {
	if key == "" || (h.roomAllowed != nil && !h.roomAllowed(key)) {
		return domain.Validation("sala desconhecida: %q", key)
	}
	c, err := h.lookup(id)
	if err != nil {
		return err
	}
	return h.join(c, key)
}

// join roda depois do lookup; a conexão pode ter sido desregistrada nesse intervalo.
func (h *Hub) join(c *connection, key domain.RoomKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: conexao %s", domain.ErrNotFound, c.id)
	}
	if c.room == key {
		return nil
	}
	h.leaveLocked(c)

	r := h.roomFor(key)
	r.mu.Lock()
	r.members[c.id] = c
	r.mu.Unlock()
	c.room = key
	return nil
}

func (h *Hub) LeaveRoom(id ConnectionID) {
	c, err := h.lookup(id)
	if err != nil {
		return
	}
	c.mu.Lock()
	h.leaveLocked(c)
	c.mu.Unlock()
}

// CurrentRoom devolve a sala da conexão, vazia quando não está em nenhuma.
func (h *Hub) CurrentRoom(id ConnectionID) domain.RoomKey {
	c, err := h.lookup(id)
	if err != nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// leaveLocked exige c.mu.
func (h *Hub) leaveLocked(c *connection) {
	if c.room == "" {
		return
	}
	h.mu.RLock()
	r, ok := h.rooms[c.room]
	h.mu.RUnlock()
	if ok {
		r.mu.Lock()
		delete(r.members, c.id)
		r.mu.Unlock()
	}
	c.room = ""
}

// PublishTally entrega as parciais a todas as conexões registradas e guarda o snapshot
// para quem conectar depois.
func (h *Hub) PublishTally(tallies []domain.CountryTally) {
	snapshot := make([]domain.CountryTally, len(tallies))
	copy(snapshot, tallies)

	h.tallyMu.Lock()
	h.lastTally, h.hasTally = snapshot, true
	h.mu.RLock()
	targets := lo.Values(h.conns)
	h.mu.RUnlock()
	h.tallyMu.Unlock()

	metrics.IncBroadcast(string(EventTallyUpdate))
	ev := TallyUpdate{Tallies: snapshot}
	for _, c := range targets {
		h.deliver(c, ev)
	}
}

// PublishToRoom entrega só para os membros da sala; salas vazias ou inexistentes não recebem nada.
func (h *Hub) PublishToRoom(key domain.RoomKey, msg domain.ChatMessage) {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	targets := lo.Values(r.members)
	r.mu.Unlock()

	metrics.IncBroadcast(string(EventRoomMessage))
	ev := RoomMessage{Message: msg}
	for _, c := range targets {
		h.deliver(c, ev)
	}
}

// Send entrega um evento a uma única conexão, com a mesma contagem de falhas do fan-out.
func (h *Hub) Send(id ConnectionID, ev Event) error {
	c, err := h.lookup(id)
	if err != nil {
		return err
	}
	if !h.deliver(c, ev) {
		return fmt.Errorf("%w: %s", domain.ErrConnection, id)
	}
	return nil
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) RoomMembers(key domain.RoomKey) []ConnectionID {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	members := lo.Keys(r.members)
	r.mu.Unlock()

	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}

// deliver isola a falha na conexão; ao atingir o limite de falhas seguidas ela é desregistrada.
func (h *Hub) deliver(c *connection, ev Event) bool {
	if err := c.sink.Deliver(ev); err != nil {
		metrics.IncDeliveryFailure(string(ev.Type()))
		n := c.failures.Add(1)
		h.log.Warn("falha ao entregar evento", "connection_id", c.id, "event", ev.Type(), "failures", n, "err", err)
		if n >= h.maxFailures {
			h.log.Info("desregistrando conexao apos falhas seguidas", "connection_id", c.id)
			h.Unregister(c.id)
		}
		return false
	}
	c.failures.Store(0)
	return true
}

func (h *Hub) lookup(id ConnectionID) (*connection, error) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: conexao %s", domain.ErrNotFound, id)
	}
	return c, nil
}

// roomFor cria a sala na primeira entrada; salas nunca são removidas.
func (h *Hub) roomFor(key domain.RoomKey) *room {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rooms[key]; !ok {
		r = &room{members: make(map[ConnectionID]*connection)}
		h.rooms[key] = r
	}
	return r
}

// Pacote chat valida, grava e distribui as mensagens das salas.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/ids"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/metrics"
)

const DefaultMaxBody = 500

// KnownRoom aceita a sala global e os países do catálogo.
func KnownRoom(catalog domain.CountryCatalog) func(domain.RoomKey) bool {
	return func(key domain.RoomKey) bool {
		return key == domain.GlobalRoom || catalog.Exists(string(key))
	}
}

type Service struct {
	chatLog   domain.ChatLog
	publisher domain.RoomPublisher
	known     func(domain.RoomKey) bool
	limiter   domain.Antifraude
	clock     domain.Clock
	ids       *ids.Generator
	maxBody   int
	log       *slog.Logger

	// um mutex por sala; salas nunca são removidas, então o mapa só cresce até o tamanho do catálogo
	roomLocks sync.Map
}

func NewService(
	chatLog domain.ChatLog,
	publisher domain.RoomPublisher,
	catalog domain.CountryCatalog,
	limiter domain.Antifraude,
	clock domain.Clock,
	maxBody int,
	idsGen *ids.Generator,
	log *slog.Logger,
) *Service {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if log == nil {
		log = logger.L()
	}
	return &Service{
		chatLog:   chatLog,
		publisher: publisher,
		known:     KnownRoom(catalog),
		limiter:   limiter,
		clock:     clock,
		ids:       idsGen,
		maxBody:   maxBody,
		log:       log,
	}
}

// PostMessage grava e publica sob o lock da sala, então a ordem de entrega segue a ordem de gravação.
func (s *Service) PostMessage(ctx context.Context, userID domain.UserID, room domain.RoomKey, body string) (domain.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if err := s.validate(userID, room, body); err != nil {
		metrics.ObserveChatMessage("invalid")
		return domain.ChatMessage{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Permitir(ctx, userID); err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				metrics.ObserveChatMessage("rate_limited")
				return domain.ChatMessage{}, err
			}
			// limitador fora do ar não derruba o chat
			s.log.Warn("antifraude indisponivel, seguindo sem limite", "user_id", userID, "err", err)
		}
	}

	lock := s.roomLock(room)
	lock.Lock()
	defer lock.Unlock()

	msg := domain.ChatMessage{
		ID:       domain.MessageID(s.ids.New()),
		AuthorID: userID,
		RoomKey:  room,
		Body:     body,
		PostedAt: s.clock.Now(),
	}

	saved, err := s.chatLog.Append(ctx, msg)
	if err != nil {
		s.log.Warn("falha ao gravar mensagem, tentando novamente", "room", room, "err", err)
		if saved, err = s.chatLog.Append(ctx, msg); err != nil {
			metrics.ObserveChatMessage("storage_error")
			s.log.Error("falha ao gravar mensagem", "room", room, "user_id", userID, "err", err)
			return domain.ChatMessage{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
	}

	if s.publisher != nil {
		s.publisher.PublishToRoom(room, saved)
	}
	metrics.ObserveChatMessage("accepted")
	return saved, nil
}

func (s *Service) History(ctx context.Context, room domain.RoomKey) ([]domain.ChatMessage, error) {
	if !s.known(room) {
		return nil, domain.Validation("sala desconhecida: %q", room)
	}
	msgs, err := s.chatLog.History(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return msgs, nil
}

func (s *Service) RoomExists(room domain.RoomKey) bool {
	return s.known(room)
}

func (s *Service) validate(userID domain.UserID, room domain.RoomKey, body string) error {
	switch {
	case userID == "":
		return domain.Validation("usuario obrigatorio")
	case !s.known(room):
		return domain.Validation("sala desconhecida: %q", room)
	case body == "":
		return domain.Validation("mensagem vazia")
	case utf8.RuneCountInString(body) > s.maxBody:
		return domain.Validation("mensagem acima de %d caracteres", s.maxBody)
	}
	return nil
}

func (s *Service) roomLock(room domain.RoomKey) *sync.Mutex {
	lock, _ := s.roomLocks.LoadOrStore(room, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

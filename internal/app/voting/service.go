// Pacote voting implementa as regras de voto: janela de espera por usuário, gravação e parciais.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/ids"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/metrics"
)

// Service concentra as regras de votação e delega persistência ao ledger e fan-out ao hub.
type Service struct {
	ledger     domain.VoteLedger
	catalog    domain.CountryCatalog
	gate       *CooldownGate
	aggregator *TallyAggregator
	publisher  domain.TallyPublisher
	locks      *KeyedMutex
	clock      domain.Clock
	ids        *ids.Generator
	log        *slog.Logger
}

func NewService(
	ledger domain.VoteLedger,
	catalog domain.CountryCatalog,
	publisher domain.TallyPublisher,
	clock domain.Clock,
	window time.Duration,
	idsGen *ids.Generator,
	log *slog.Logger,
) *Service {
	if idsGen == nil {
		idsGen = ids.DefaultGenerator()
	}
	if log == nil {
		log = logger.L()
	}
	return &Service{
		ledger:     ledger,
		catalog:    catalog,
		gate:       NewCooldownGate(ledger, window),
		aggregator: NewTallyAggregator(ledger),
		publisher:  publisher,
		locks:      NewKeyedMutex(),
		clock:      clock,
		ids:        idsGen,
		log:        log,
	}
}

// CastVote checa a janela e grava o voto sob o lock do usuário, então publica as parciais.
// Em caso de espera devolve *domain.CooldownError com os instantes para a contagem regressiva.
func (s *Service) CastVote(ctx context.Context, userID domain.UserID, country string) (domain.CooldownStatus, error) {
	if userID == "" {
		metrics.ObserveVoteRequest("invalid")
		return domain.CooldownStatus{}, domain.Validation("usuario obrigatorio")
	}
	if !s.catalog.Exists(country) {
		metrics.ObserveVoteRequest("invalid")
		return domain.CooldownStatus{}, domain.Validation("pais desconhecido: %q", country)
	}

	inicio := time.Now()
	status, err := s.admit(ctx, userID, country)
	metrics.ObserveAdmissionDuration(time.Since(inicio).Seconds())

	switch {
	case errors.Is(err, domain.ErrCooldown):
		metrics.ObserveVoteRequest("cooldown")
		return status, err
	case err != nil:
		metrics.ObserveVoteRequest("storage_error")
		s.log.Error("falha ao registrar voto", "user_id", userID, "country", country, "err", err)
		return domain.CooldownStatus{}, err
	}

	metrics.ObserveVoteRequest("accepted")
	s.publishTallies(ctx)
	return status, nil
}

func (s *Service) admit(ctx context.Context, userID domain.UserID, country string) (domain.CooldownStatus, error) {
	unlock := s.locks.Lock(string(userID))
	defer unlock()

	now := s.clock.Now()
	status, err := s.gate.Check(ctx, userID, now)
	if err != nil {
		return domain.CooldownStatus{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if !status.Allowed {
		return status, &domain.CooldownError{LastVoteAt: *status.LastVoteAt, NextEligibleAt: *status.NextEligibleAt}
	}

	vote := domain.Vote{
		ID:      domain.VoteID(s.ids.New()),
		UserID:  userID,
		Country: country,
		CastAt:  now,
	}
	if err := s.appendVote(ctx, vote); err != nil {
		return domain.CooldownStatus{}, err
	}

	next := now.Add(s.gate.Window())
	return domain.CooldownStatus{Allowed: false, LastVoteAt: &now, NextEligibleAt: &next}, nil
}

// appendVote tenta duas vezes com o mesmo ID. Se a primeira tentativa chegou a gravar,
// a segunda falha por chave duplicada e o voto é confirmado pela leitura.
func (s *Service) appendVote(ctx context.Context, vote domain.Vote) error {
	err := s.ledger.Append(ctx, vote)
	if err == nil {
		return nil
	}
	s.log.Warn("falha ao gravar voto, tentando novamente", "vote_id", vote.ID, "err", err)

	if err = s.ledger.Append(ctx, vote); err == nil {
		return nil
	}
	if last, lerr := s.ledger.MostRecentVote(ctx, vote.UserID); lerr == nil && last.ID == vote.ID {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

// publishTallies roda fora do lock; falhas aqui não desfazem o voto.
func (s *Service) publishTallies(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	tallies, err := s.aggregator.ComputeTallies(ctx)
	if err != nil {
		metrics.IncTallyRefreshError()
		s.log.Warn("falha ao calcular parciais apos voto", "err", err)
		return
	}
	s.publisher.PublishTally(tallies)
}

// Status consulta a janela sem efeitos colaterais.
func (s *Service) Status(ctx context.Context, userID domain.UserID) (domain.CooldownStatus, error) {
	if userID == "" {
		return domain.CooldownStatus{}, domain.Validation("usuario obrigatorio")
	}
	status, err := s.gate.Check(ctx, userID, s.clock.Now())
	if err != nil {
		return domain.CooldownStatus{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return status, nil
}

func (s *Service) Tallies(ctx context.Context) ([]domain.CountryTally, error) {
	tallies, err := s.aggregator.ComputeTallies(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return tallies, nil
}

func (s *Service) CooldownWindow() time.Duration {
	return s.gate.Window()
}

func (s *Service) Countries() []string {
	return s.catalog.List()
}

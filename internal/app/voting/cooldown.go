package voting

import (
	"context"
	"errors"
	"time"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// CooldownGate decide se o usuário pode votar no instante informado.
// A leitura é pura; a atomicidade vem do lock por usuário mantido pelo Service.
type CooldownGate struct {
	ledger domain.VoteLedger
	window time.Duration
}

func NewCooldownGate(ledger domain.VoteLedger, window time.Duration) *CooldownGate {
	return &CooldownGate{ledger: ledger, window: window}
}

// Check libera o voto quando não há voto anterior ou quando now >= último voto + janela.
// Fora da janela o voto antigo não conta mais e os instantes voltam nulos.
func (g *CooldownGate) Check(ctx context.Context, userID domain.UserID, now time.Time) (domain.CooldownStatus, error) {
	last, err := g.ledger.MostRecentVote(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CooldownStatus{Allowed: true}, nil
	}
	if err != nil {
		return domain.CooldownStatus{}, err
	}

	lastVoteAt := last.CastAt
	next := lastVoteAt.Add(g.window)
	if !now.Before(next) {
		return domain.CooldownStatus{Allowed: true}, nil
	}
	return domain.CooldownStatus{
		Allowed:        false,
		LastVoteAt:     &lastVoteAt,
		NextEligibleAt: &next,
	}, nil
}

func (g *CooldownGate) Window() time.Duration {
	return g.window
}

// Remaining é o tempo até a próxima liberação, nunca negativo.
func Remaining(now, nextEligibleAt time.Time) time.Duration {
	if d := nextEligibleAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Pacote worker contém as rotinas de fundo que não participam do caminho do voto, como a compactação do ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/metrics"
)

// Compactor remove votos brutos mais antigos que a retenção. As parciais ficam em
// country_tallies, então a contagem não muda; a janela de espera só lê o último voto,
// por isso a retenção nunca pode ser menor que ela.
type Compactor struct {
	ledger    domain.VoteLedger
	clock     domain.Clock
	retention time.Duration
	interval  time.Duration
	log       *slog.Logger
}

func NewCompactor(ledger domain.VoteLedger, clock domain.Clock, retention, cooldown, interval time.Duration, log *slog.Logger) *Compactor {
	if retention < cooldown {
		retention = cooldown
	}
	if log == nil {
		log = logger.L()
	}
	return &Compactor{
		ledger:    ledger,
		clock:     clock,
		retention: retention,
		interval:  interval,
		log:       log,
	}
}

// RunOnce apaga o que passou da retenção e devolve quantos votos saíram.
func (c *Compactor) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	before := c.clock.Now().Add(-c.retention)

	removed, err := c.ledger.Compact(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("worker: compactar votos antes de %s: %w", before.Format(time.RFC3339), err)
	}

	metrics.AddVotesCompacted(removed)
	c.log.Info("compactacao concluida", "removidos", removed, "antes_de", before, "duracao", time.Since(start))
	return removed, nil
}

// Run compacta na partida e a cada intervalo até o contexto acabar. Erros são logados
// e a próxima rodada tenta de novo.
func (c *Compactor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("erro na compactacao", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Compactor) Retention() time.Duration {
	return c.retention
}

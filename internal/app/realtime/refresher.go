package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/metrics"
)

type TallySource interface {
	Tallies(ctx context.Context) ([]domain.CountryTally, error)
}

// TallyRefresher republica as parciais em intervalo fixo, mesmo sem votos novos,
// limitando o atraso que uma conexão pode ver.
type TallyRefresher struct {
	source    TallySource
	publisher domain.TallyPublisher
	interval  time.Duration
	log       *slog.Logger
}

func NewTallyRefresher(source TallySource, publisher domain.TallyPublisher, interval time.Duration, log *slog.Logger) *TallyRefresher {
	if log == nil {
		log = logger.L()
	}
	return &TallyRefresher{source: source, publisher: publisher, interval: interval, log: log}
}

// Run publica uma vez na partida e depois a cada tick, até o contexto ser cancelado.
func (r *TallyRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *TallyRefresher) refresh(ctx context.Context) {
	tallies, err := r.source.Tallies(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.IncTallyRefreshError()
		r.log.Warn("falha ao recalcular parciais", "err", err)
		return
	}
	r.publisher.PublishTally(tallies)
}

package voting

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// TallyAggregator monta as parciais por país a partir do ledger.
type TallyAggregator struct {
	ledger domain.VoteLedger
}

func NewTallyAggregator(ledger domain.VoteLedger) *TallyAggregator {
	return &TallyAggregator{ledger: ledger}
}

// ComputeTallies ordena por votos (desc) e desempata pelo nome do país.
// Países sem votos não aparecem.
func (a *TallyAggregator) ComputeTallies(ctx context.Context) ([]domain.CountryTally, error) {
	counts, err := a.ledger.CountByCountry(ctx)
	if err != nil {
		return nil, err
	}

	tallies := lo.MapToSlice(counts, func(country string, total int64) domain.CountryTally {
		return domain.CountryTally{Country: country, VoteCount: total}
	})
	tallies = lo.Filter(tallies, func(t domain.CountryTally, _ int) bool { return t.VoteCount > 0 })
	SortTallies(tallies)
	return tallies, nil
}

func SortTallies(tallies []domain.CountryTally) {
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].VoteCount != tallies[j].VoteCount {
			return tallies[i].VoteCount > tallies[j].VoteCount
		}
		return tallies[i].Country < tallies[j].Country
	})
}

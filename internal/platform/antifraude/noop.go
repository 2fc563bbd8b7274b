package antifraude

import (
	"context"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// Noop representa uma estratégia de antifraude desabilitada.
type Noop struct{}

func NewNoop() Noop {
	return Noop{}
}

func (Noop) Permitir(context.Context, domain.UserID) error {
	return nil
}

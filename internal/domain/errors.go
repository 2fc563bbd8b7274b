package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("registro nao encontrado")
	ErrValidation  = errors.New("dados invalidos")
	ErrCooldown    = errors.New("voto ainda em periodo de espera")
	ErrStorage     = errors.New("armazenamento indisponivel, tente novamente")
	ErrConnection  = errors.New("falha ao entregar evento para conexao")
	ErrRateLimited = errors.New("limite de mensagens atingido")
)

// CooldownError carrega os instantes necessários para o cliente montar a contagem regressiva.
type CooldownError struct {
	LastVoteAt     time.Time
	NextEligibleAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: proximo voto liberado em %s", ErrCooldown, e.NextEligibleAt.Format(time.RFC3339))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

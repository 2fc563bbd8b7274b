// Pacote antifraude segura autores que inundam as salas de chat (Redis ou modo noop).
package antifraude

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// FloodLimiter conta mensagens por autor em baldes de tempo alinhados à janela.
// Cada balde é uma chave própria, então uma janela nova começa zerada mesmo que
// a expiração da anterior ainda não tenha rodado.
type FloodLimiter struct {
	client    *redis.Client
	clock     domain.Clock
	limit     int
	window    time.Duration
	keyPrefix string
}

func NewFloodLimiter(client *redis.Client, clock domain.Clock, limit int, window time.Duration, prefix string) *FloodLimiter {
	if prefix == "" {
		prefix = "chat:flood"
	}
	return &FloodLimiter{
		client:    client,
		clock:     clock,
		limit:     limit,
		window:    window,
		keyPrefix: prefix,
	}
}

// Permitir devolve domain.ErrRateLimited com o tempo até o próximo balde quando o autor passou do limite.
func (f *FloodLimiter) Permitir(ctx context.Context, author domain.UserID) error {
	if f.client == nil || f.clock == nil || f.limit <= 0 || f.window <= 0 {
		// Configurações inválidas caem automaticamente no modo permissivo.
		return nil
	}

	now := f.clock.Now()
	bucket := now.UnixNano() / int64(f.window)
	key := f.bucketKey(author, bucket)

	var incr *redis.IntCmd
	_, err := f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*f.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("antifraude: contar mensagens de %s: %w", author, err)
	}

	if incr.Val() > int64(f.limit) {
		reopens := time.Unix(0, (bucket+1)*int64(f.window))
		return fmt.Errorf("%w: tente novamente em %s", domain.ErrRateLimited, reopens.Sub(now).Round(time.Second))
	}
	return nil
}

func (f *FloodLimiter) bucketKey(author domain.UserID, bucket int64) string {
	// Hash evita expor o identificador do autor como chave legível no Redis.
	hash := sha1.Sum([]byte(author))
	return fmt.Sprintf("%s:%s:%d", f.keyPrefix, hex.EncodeToString(hash[:]), bucket)
}

var _ domain.Antifraude = (*FloodLimiter)(nil)
var _ domain.Antifraude = Noop{}

// Pacote redis guarda o histórico das salas de chat em listas Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// ChatLog mantém uma lista por sala, com sequência própria e corte pelo limite de histórico.
type ChatLog struct {
	client *redis.Client
	prefix string
	limit  int
}

// NewChatLog com limit <= 0 mantém o histórico inteiro.
func NewChatLog(client *redis.Client, prefix string, limit int) *ChatLog {
	return &ChatLog{
		client: client,
		prefix: prefix,
		limit:  limit,
	}
}

// Append não é atômico entre salas; quem chama serializa por sala para manter a ordem da sequência.
func (c *ChatLog) Append(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	seq, err := c.client.Incr(ctx, c.key(msg.RoomKey, "seq")).Result()
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("redis chat: falha ao gerar sequencia %s: %w", msg.RoomKey, err)
	}
	msg.Seq = seq

	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("redis chat: falha serializando mensagem: %w", err)
	}

	listKey := c.key(msg.RoomKey, "mensagens")
	// MULTI garante que o corte do histórico acompanha o push.
	if _, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, listKey, payload)
		if c.limit > 0 {
			pipe.LTrim(ctx, listKey, int64(-c.limit), -1)
		}
		return nil
	}); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("redis chat: falha ao gravar mensagem: %w", err)
	}

	return msg, nil
}

func (c *ChatLog) History(ctx context.Context, room domain.RoomKey) ([]domain.ChatMessage, error) {
	raw, err := c.client.LRange(ctx, c.key(room, "mensagens"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis chat: falha ao ler historico %s: %w", room, err)
	}

	mensagens := make([]domain.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("redis chat: payload invalido em %s: %w", room, err)
		}
		mensagens = append(mensagens, msg)
	}
	return mensagens, nil
}

func (c *ChatLog) key(room domain.RoomKey, suffix string) string {
	if c.prefix == "" {
		return fmt.Sprintf("%s:%s", room, suffix)
	}
	return fmt.Sprintf("%s:%s:%s", c.prefix, room, suffix)
}

var _ domain.ChatLog = (*ChatLog)(nil)

package voting

import (
	"hash/fnv"
	"sync"
)

const lockShards = 32

// KeyedMutex serializa operações de uma mesma chave sem bloquear chaves diferentes.
// Os mutexes são criados sob demanda e descartados quando ninguém mais os referencia.
type KeyedMutex struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	k := &KeyedMutex{}
	for i := range k.shards {
		k.shards[i].locks = make(map[string]*refMutex)
	}
	return k
}

// Lock bloqueia a chave e devolve a função que a libera.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	shard := k.shard(key)

	shard.mu.Lock()
	m, ok := shard.locks[key]
	if !ok {
		m = &refMutex{}
		shard.locks[key] = m
	}
	m.refs++
	shard.mu.Unlock()

	m.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Unlock()

			shard.mu.Lock()
			m.refs--
			if m.refs == 0 {
				delete(shard.locks, key)
			}
			shard.mu.Unlock()
		})
	}
}

// held devolve quantas chaves ainda têm mutex alocado.
func (k *KeyedMutex) held() int {
	total := 0
	for i := range k.shards {
		k.shards[i].mu.Lock()
		total += len(k.shards[i].locks)
		k.shards[i].mu.Unlock()
	}
	return total
}

func (k *KeyedMutex) shard(key string) *lockShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%lockShards]
}

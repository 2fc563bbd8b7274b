package health

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Probe é uma dependência verificada pelo readiness, na ordem de registro.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Checker struct {
	probes  []Probe
	timeout time.Duration
}

// NewChecker registra banco e Redis quando não nulos; probes extras entram com With.
func NewChecker(db *sql.DB, redis *redis.Client) *Checker {
	c := &Checker{timeout: 2 * time.Second}
	if db != nil {
		c.probes = append(c.probes, Probe{Name: "database", Check: db.PingContext})
	}
	if redis != nil {
		c.probes = append(c.probes, Probe{Name: "redis", Check: func(ctx context.Context) error {
			return redis.Ping(ctx).Err()
		}})
	}
	return c
}

func (c *Checker) With(name string, check func(ctx context.Context) error) *Checker {
	c.probes = append(c.probes, Probe{Name: name, Check: check})
	return c
}

func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()

		for _, probe := range c.probes {
			if err := probe.Check(ctx); err != nil {
				http.Error(w, probe.Name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// LiveHandler responde sem tocar dependências; serve para o orquestrador saber que o processo está de pé.
func LiveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

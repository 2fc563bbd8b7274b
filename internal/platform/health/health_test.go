package health

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// novoBanco abre um SQLite em memória com a tabela de parciais, como a API vê depois das migrações.
func novoBanco(t *testing.T, comParciais bool) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if comParciais {
		_, err = db.Exec("CREATE TABLE country_tallies (country TEXT PRIMARY KEY, vote_count INTEGER NOT NULL)")
		require.NoError(t, err)
	}
	return db
}

func novoRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// sondaParciais imita a sonda registrada pela API: consulta a tabela de parciais.
func sondaParciais(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		var total int64
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM country_tallies").Scan(&total)
	}
}

func pedirReadiness(t *testing.T, checker *Checker, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	checker.ReadyHandler().ServeHTTP(w, req)
	return w
}

func TestReadyHandler_CenariosDaAPI(t *testing.T) {
	tests := []struct {
		name       string
		montar     func(t *testing.T) *Checker
		wantStatus int
		wantBody   string
	}{
		{
			name: "banco redis e parciais de pe",
			montar: func(t *testing.T) *Checker {
				db := novoBanco(t, true)
				client, _ := novoRedis(t)
				return NewChecker(db, client).With("tallies", sondaParciais(db))
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "worker sem redis",
			montar: func(t *testing.T) *Checker {
				return NewChecker(novoBanco(t, true), nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "sem dependencias configuradas",
			montar: func(t *testing.T) *Checker {
				return NewChecker(nil, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "migracoes nao aplicadas",
			montar: func(t *testing.T) *Checker {
				db := novoBanco(t, false)
				return NewChecker(db, nil).With("tallies", sondaParciais(db))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "tallies unavailable\n",
		},
		{
			name: "banco fechado",
			montar: func(t *testing.T) *Checker {
				db := novoBanco(t, true)
				client, _ := novoRedis(t)
				db.Close()
				return NewChecker(db, client)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "database unavailable\n",
		},
		{
			name: "redis do chat fora do ar",
			montar: func(t *testing.T) *Checker {
				client, mr := novoRedis(t)
				mr.Close()
				return NewChecker(novoBanco(t, true), client)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "redis unavailable\n",
		},
		{
			name: "banco e redis fora reporta o banco primeiro",
			montar: func(t *testing.T) *Checker {
				db := novoBanco(t, true)
				client, mr := novoRedis(t)
				db.Close()
				mr.Close()
				return NewChecker(db, client)
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "database unavailable\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := pedirReadiness(t, tt.montar(t), context.Background())

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestReadyHandler_SondasRodamNaOrdemDeRegistro(t *testing.T) {
	var ordem []string
	sonda := func(nome string) func(context.Context) error {
		return func(context.Context) error {
			ordem = append(ordem, nome)
			return nil
		}
	}
	checker := NewChecker(nil, nil).With("tallies", sonda("tallies")).With("chat", sonda("chat"))

	w := pedirReadiness(t, checker, context.Background())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"tallies", "chat"}, ordem)
}

func TestReadyHandler_QuandoContextoCancelado_DeveInterromper(t *testing.T) {
	checker := NewChecker(novoBanco(t, true), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := pedirReadiness(t, checker, ctx)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "database unavailable\n", w.Body.String())
}

func TestLiveHandler_SempreRetorna200(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	LiveHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

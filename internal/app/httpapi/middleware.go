package httpapi

import (
	"net/http"
	"slices"
	"strings"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, userID domain.UserID)

// autenticado resolve o UserID pelo header Authorization. Navegadores não mandam header
// no handshake do websocket, então ali o token também é aceito na query ?token=.
func (a *API) autenticado(next authedHandler, allowQuery bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && allowQuery {
			token = r.URL.Query().Get("token")
		}

		userID, err := a.auth.Authenticate(token)
		if err != nil {
			a.logger.Debug("requisicao sem autenticacao valida", "path", r.URL.Path, "err", err)
			responderJSON(w, http.StatusUnauthorized, map[string]string{"erro": "nao autenticado"})
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		next(w, r, userID)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

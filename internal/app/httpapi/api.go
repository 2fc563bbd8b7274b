// Pacote httpapi expõe os handlers REST e o websocket, traduzindo requisições para os serviços de voto e chat.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/marcelojr/pais-ao-vivo/internal/app/realtime"
	"github.com/marcelojr/pais-ao-vivo/internal/app/voting"
	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

const maxPayloadBytes = 8 << 10

type VoteService interface {
	CastVote(ctx context.Context, userID domain.UserID, country string) (domain.CooldownStatus, error)
	Status(ctx context.Context, userID domain.UserID) (domain.CooldownStatus, error)
	Tallies(ctx context.Context) ([]domain.CountryTally, error)
	CooldownWindow() time.Duration
	Countries() []string
}

type ChatService interface {
	PostMessage(ctx context.Context, userID domain.UserID, room domain.RoomKey, body string) (domain.ChatMessage, error)
	History(ctx context.Context, room domain.RoomKey) ([]domain.ChatMessage, error)
}

type Authenticator interface {
	Authenticate(token string) (domain.UserID, error)
}

// Hub é o recorte do realtime.Hub usado pelas sessões websocket.
type Hub interface {
	Register(sink realtime.Sink) realtime.ConnectionID
	Unregister(id realtime.ConnectionID)
	JoinRoom(id realtime.ConnectionID, room domain.RoomKey) error
	LeaveRoom(id realtime.ConnectionID)
}

type Deps struct {
	Votes           VoteService
	Chat            ChatService
	Auth            Authenticator
	Hub             Hub
	Clock           domain.Clock
	RefreshInterval time.Duration
	AllowedOrigins  []string
	SendBuffer      int
}

// API empacota handlers HTTP ligados aos serviços e ao logger.
type API struct {
	votes           VoteService
	chat            ChatService
	auth            Authenticator
	hub             Hub
	clock           domain.Clock
	refreshInterval time.Duration
	sendBuffer      int
	upgrader        websocket.Upgrader
	validate        *validator.Validate
	logger          *slog.Logger
}

func New(deps Deps, logger *slog.Logger) *API {
	if deps.SendBuffer <= 0 {
		deps.SendBuffer = 64
	}
	return &API{
		votes:           deps.Votes,
		chat:            deps.Chat,
		auth:            deps.Auth,
		hub:             deps.Hub,
		clock:           deps.Clock,
		refreshInterval: deps.RefreshInterval,
		sendBuffer:      deps.SendBuffer,
		upgrader:        websocket.Upgrader{CheckOrigin: originChecker(deps.AllowedOrigins)},
		validate:        validator.New(),
		logger:          logger,
	}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /votes", a.autenticado(a.registrarVoto, false))
	mux.HandleFunc("GET /votes/status", a.autenticado(a.statusVoto, false))
	mux.HandleFunc("GET /tallies", a.listarParciais)
	mux.HandleFunc("GET /config", a.configuracao)
	mux.HandleFunc("GET /chat/{room}/messages", a.autenticado(a.historico, false))
	mux.HandleFunc("POST /chat/{room}/messages", a.autenticado(a.enviarMensagem, false))
	mux.HandleFunc("GET /ws", a.autenticado(a.serveWs, true))
}

type voteRequest struct {
	Country string `json:"country" validate:"required,max=64"`
}

// cooldownResponse serve tanto para voto aceito quanto para voto negado pela janela.
type cooldownResponse struct {
	Allowed          bool       `json:"allowed"`
	LastVoteAt       *time.Time `json:"last_vote_at"`
	NextEligibleAt   *time.Time `json:"next_eligible_at"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	Erro             string     `json:"erro,omitempty"`
}

func (a *API) toCooldownResponse(status domain.CooldownStatus) cooldownResponse {
	resp := cooldownResponse{
		Allowed:        status.Allowed,
		LastVoteAt:     status.LastVoteAt,
		NextEligibleAt: status.NextEligibleAt,
	}
	if status.NextEligibleAt != nil {
		resp.RemainingSeconds = int64(voting.Remaining(a.clock.Now(), *status.NextEligibleAt).Seconds())
	}
	return resp
}

func (a *API) registrarVoto(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	var req voteRequest
	if err := a.decode(w, r, &req); err != nil {
		a.logger.Warn("payload invalido ao registrar voto", "err", err)
		responderErro(w, err)
		return
	}

	status, err := a.votes.CastVote(r.Context(), userID, req.Country)
	if err != nil {
		a.logger.Warn("voto recusado", "err", err, "user_id", userID, "country", req.Country, "status", statusFromError(err))
		var cooldown *domain.CooldownError
		if errors.As(err, &cooldown) {
			resp := a.toCooldownResponse(domain.CooldownStatus{LastVoteAt: &cooldown.LastVoteAt, NextEligibleAt: &cooldown.NextEligibleAt})
			resp.Erro = domain.ErrCooldown.Error()
			responderJSON(w, http.StatusTooManyRequests, resp)
			return
		}
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusOK, a.toCooldownResponse(status))
	a.logger.Info("voto registrado", "user_id", userID, "country", req.Country)
}

func (a *API) statusVoto(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	status, err := a.votes.Status(r.Context(), userID)
	if err != nil {
		a.logger.Error("erro ao consultar janela de voto", "err", err, "user_id", userID)
		responderErro(w, err)
		return
	}
	responderJSON(w, http.StatusOK, a.toCooldownResponse(status))
}

func (a *API) listarParciais(w http.ResponseWriter, r *http.Request) {
	tallies, err := a.votes.Tallies(r.Context())
	if err != nil {
		a.logger.Error("erro ao obter parciais", "err", err)
		responderErro(w, err)
		return
	}
	if tallies == nil {
		tallies = []domain.CountryTally{}
	}
	responderJSON(w, http.StatusOK, tallies)
}

type configResponse struct {
	CooldownSeconds        int64    `json:"cooldown_seconds"`
	RefreshIntervalSeconds float64  `json:"refresh_interval_seconds"`
	Countries              []string `json:"countries"`
}

func (a *API) configuracao(w http.ResponseWriter, _ *http.Request) {
	responderJSON(w, http.StatusOK, configResponse{
		CooldownSeconds:        int64(a.votes.CooldownWindow().Seconds()),
		RefreshIntervalSeconds: a.refreshInterval.Seconds(),
		Countries:              a.votes.Countries(),
	})
}

type messageRequest struct {
	Body string `json:"body" validate:"required"`
}

func (a *API) historico(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	room := domain.RoomKey(r.PathValue("room"))
	msgs, err := a.chat.History(r.Context(), room)
	if err != nil {
		a.logger.Warn("erro ao ler historico", "err", err, "room", room)
		responderErro(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	responderJSON(w, http.StatusOK, msgs)
}

func (a *API) enviarMensagem(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	room := domain.RoomKey(r.PathValue("room"))

	var req messageRequest
	if err := a.decode(w, r, &req); err != nil {
		responderErro(w, err)
		return
	}

	msg, err := a.chat.PostMessage(r.Context(), userID, room, req.Body)
	if err != nil {
		a.logger.Warn("mensagem recusada", "err", err, "user_id", userID, "room", room, "status", statusFromError(err))
		responderErro(w, err)
		return
	}
	responderJSON(w, http.StatusCreated, msg)
}

// decode lê o JSON com limite de tamanho e valida as tags do DTO.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Validation("payload invalido: %v", err)
	}
	if err := a.validate.Struct(dst); err != nil {
		return domain.Validation("%v", err)
	}
	return nil
}

func responderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func responderErro(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrCooldown), errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStorage):
		status = http.StatusServiceUnavailable
	}

	responderJSON(w, status, map[string]string{"erro": err.Error()})
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrCooldown):
		return "cooldown"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrStorage):
		return "storage"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	voteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pais_vote_requests_total",
		Help: "Total de tentativas de voto por resultado",
	}, []string{"status"})

	voteAdmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pais_vote_admission_duration_seconds",
		Help:    "Tempo da checagem de espera somada a gravacao do voto",
		Buckets: prometheus.DefBuckets,
	})

	chatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pais_chat_messages_total",
		Help: "Mensagens de chat por resultado",
	}, []string{"status"})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pais_broadcasts_total",
		Help: "Eventos publicados pelo hub por tipo",
	}, []string{"event"})

	deliveryFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pais_delivery_failures_total",
		Help: "Falhas de entrega isoladas por conexao",
	}, []string{"event"})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pais_connections_active",
		Help: "Conexoes registradas no hub",
	})

	tallyRefreshErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pais_tally_refresh_errors_total",
		Help: "Falhas ao recalcular parciais para o hub",
	})

	votesCompactedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pais_votes_compacted_total",
		Help: "Votos brutos removidos pela compactacao",
	})
)

func ObserveVoteRequest(status string) {
	voteRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveAdmissionDuration(seconds float64) {
	voteAdmissionDuration.Observe(seconds)
}

func ObserveChatMessage(status string) {
	chatMessagesTotal.WithLabelValues(status).Inc()
}

func IncBroadcast(event string) {
	broadcastsTotal.WithLabelValues(event).Inc()
}

func IncDeliveryFailure(event string) {
	deliveryFailuresTotal.WithLabelValues(event).Inc()
}

func SetConnections(n int) {
	connectionsActive.Set(float64(n))
}

func IncTallyRefreshError() {
	tallyRefreshErrors.Inc()
}

func AddVotesCompacted(n int64) {
	votesCompactedTotal.Add(float64(n))
}

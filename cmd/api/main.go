// Executável principal da API: carrega a configuração, inicializa dependências e sobe HTTP + websocket.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelojr/pais-ao-vivo/internal/app/chat"
	"github.com/marcelojr/pais-ao-vivo/internal/app/httpapi"
	"github.com/marcelojr/pais-ao-vivo/internal/app/realtime"
	"github.com/marcelojr/pais-ao-vivo/internal/app/voting"
	"github.com/marcelojr/pais-ao-vivo/internal/domain"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/antifraude"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/auth"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/catalog"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/clock"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/config"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/health"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/ids"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/migrations"
	postgresstorage "github.com/marcelojr/pais-ao-vivo/internal/platform/storage/postgres"
	redisstorage "github.com/marcelojr/pais-ao-vivo/internal/platform/storage/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuracao invalida", "err", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	db, err := postgresstorage.OpenDriver(ctx, cfg.DBDriver, cfg.PostgresDSN(), cfg.SQLitePath)
	if err != nil {
		logger.Fatal("falha ao conectar no banco", "driver", cfg.DBDriver, "err", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("falha ao resgatar sql.DB", "err", err)
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// Redis guarda o histórico do chat e o limitador; votos não dependem dele.
	redisClient, err := redisstorage.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("falha ao conectar no redis", "err", err)
	}
	defer redisClient.Close()

	paises, err := catalog.New(cfg.Countries)
	if err != nil {
		logger.Fatal("catalogo de paises invalido", "err", err)
	}

	clockSystem := clock.NewSystemClock()
	idGen := ids.NewGenerator()
	ledger := postgresstorage.NewVoteLedger(db)
	chatLog := redisstorage.NewChatLog(redisClient, cfg.ChatKeyPrefix, cfg.ChatHistoryLimit)

	var limiter domain.Antifraude = antifraude.NewNoop()
	if cfg.RateLimitEnabled {
		limiter = antifraude.NewFloodLimiter(redisClient, clockSystem, cfg.RateLimitMaxActions, cfg.RateLimitWindow, cfg.RateLimitKeyPrefix)
	}

	hub := realtime.NewHub(realtime.HubConfig{
		MaxSendFailures: cfg.MaxSendFailures,
		RoomAllowed:     chat.KnownRoom(paises),
		IDs:             idGen,
		Logger:          logger.L(),
	})

	votos := voting.NewService(ledger, paises, hub, clockSystem, cfg.VoteCooldown, idGen, logger.L())
	chatSvc := chat.NewService(chatLog, hub, paises, limiter, clockSystem, cfg.ChatMaxBody, idGen, logger.L())

	refresher := realtime.NewTallyRefresher(votos, hub, cfg.TallyRefreshInterval, logger.L())
	go func() {
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("refresher de parciais parou", "err", err)
		}
	}()

	mux := http.NewServeMux()
	// Além do ping, a leitura das parciais confirma que as migrações rodaram.
	checker := health.NewChecker(sqlDB, redisClient).With("tallies", func(ctx context.Context) error {
		_, err := ledger.CountByCountry(ctx)
		return err
	})

	api := httpapi.New(httpapi.Deps{
		Votes:           votos,
		Chat:            chatSvc,
		Auth:            auth.NewJWT(cfg.JWTSecret),
		Hub:             hub,
		Clock:           clockSystem,
		RefreshInterval: cfg.TallyRefreshInterval,
		AllowedOrigins:  cfg.AllowedOrigins,
		SendBuffer:      cfg.SendBufferSize,
	}, logger.L())
	api.Register(mux)
	mux.HandleFunc("/healthz", health.LiveHandler)
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.Handle("/metrics", promhttp.Handler())

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
	)(mux)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Conexões sequestradas pelo websocket não são fechadas pelo Shutdown.
	srv.RegisterOnShutdown(hub.CloseAll)

	go func() {
		logger.Info("api ouvindo", "addr", cfg.HTTPAddress, "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("erro no servidor", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("encerrando api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("falha no desligamento do servidor", "err", err)
	}
}

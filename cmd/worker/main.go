// Worker de manutenção: compacta votos antigos do ledger e expõe métricas/readiness.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcelojr/pais-ao-vivo/internal/app/worker"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/clock"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/config"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/health"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/logger"
	"github.com/marcelojr/pais-ao-vivo/internal/platform/migrations"
	postgresstorage "github.com/marcelojr/pais-ao-vivo/internal/platform/storage/postgres"
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
		// Mesma migração condicional da API para evitar divergência de schema.
		if err := migrations.Run(db); err != nil {
			logger.Fatal("falha na migracao automatica", "err", err)
		}
	}

	// O worker só toca o banco; Redis fica de fora do readiness.
	checker := health.NewChecker(sqlDB, nil)

	if cfg.WorkerMetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", health.LiveHandler)
			mux.HandleFunc("/readyz", checker.ReadyHandler())
			logger.Info("worker metrics ouvindo", "addr", cfg.WorkerMetricsAddress)
			if err := http.ListenAndServe(cfg.WorkerMetricsAddress, mux); err != nil {
				logger.Error("erro no servidor de metrics do worker", "err", err)
			}
		}()
	}

	ledger := postgresstorage.NewVoteLedger(db)
	compactor := worker.NewCompactor(ledger, clock.NewSystemClock(), cfg.EffectiveRetention(), cfg.VoteCooldown, cfg.CompactionInterval, logger.L())

	logger.Info("worker iniciado", "retencao", compactor.Retention(), "intervalo", cfg.CompactionInterval)
	err = compactor.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Fatal("worker finalizado com erro", "err", err)
	}

	logger.Info("worker finalizado")
}

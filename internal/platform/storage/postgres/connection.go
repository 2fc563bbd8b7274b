// Pacote postgres implementa o livro de votos via GORM; o mesmo código roda sobre SQLite em ambiente local.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	gormDB, err := open(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres gorm: obter sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)

	return gormDB, ping(ctx, sqlDB)
}

// OpenSQLite serve para rodar a API sem Postgres; o SQLite serializa escritas, então uma conexão basta.
func OpenSQLite(ctx context.Context, path string) (*gorm.DB, error) {
	gormDB, err := open(sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"))
	if err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite gorm: obter sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return gormDB, ping(ctx, sqlDB)
}

// OpenDriver escolhe o banco pelo DB_DRIVER configurado.
func OpenDriver(ctx context.Context, driver, dsn, sqlitePath string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return Open(ctx, dsn)
	case "sqlite":
		return OpenSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("gorm: driver %q nao suportado", driver)
	}
}

func open(dialector gorm.Dialector) (*gorm.DB, error) {
	// Configuração mínima: nomes padrão e logs somente em WARN para evitar ruído.
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: abrir conexao %s: %w", dialector.Name(), err)
	}
	return gormDB, nil
}

func ping(ctx context.Context, sqlDB *sql.DB) error {
	// Ping inicial garante que a instância está acessível antes de devolver a conexão.
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctxPing); err != nil {
		return fmt.Errorf("gorm: ping falhou: %w", err)
	}
	return nil
}

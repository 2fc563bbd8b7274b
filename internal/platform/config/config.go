// Pacote config centraliza o carregamento das variáveis de ambiente usadas pelos binários.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config agrega todos os parâmetros necessários para API e worker.
type Config struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string

	DBDriver   string
	SQLitePath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	VoteCooldown         time.Duration
	TallyRefreshInterval time.Duration
	Countries            []string

	ChatKeyPrefix    string
	ChatHistoryLimit int
	ChatMaxBody      int

	RateLimitEnabled    bool
	RateLimitMaxActions int
	RateLimitWindow     time.Duration
	RateLimitKeyPrefix  string

	SendBufferSize  int
	MaxSendFailures int

	AutoMigrate bool

	VoteRetention        time.Duration
	CompactionInterval   time.Duration
	WorkerMetricsAddress string

	JWTSecret string
}

func Load() (Config, error) {
	// .env é opcional; em Docker/K8s as variáveis já chegam pelo ambiente.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env invalido: %w", err)
	}

	// Defaults priorizam execução local; variáveis permitem sobrescrever em Docker/K8s.
	cfg := Config{
		HTTPAddress:          getEnv("HTTP_ADDRESS", ":8080"),
		AllowedOrigins:       getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DBDriver:             getEnv("DB_DRIVER", "postgres"),
		SQLitePath:           getEnv("SQLITE_PATH", "pais-ao-vivo.db"),
		PostgresHost:         getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:         getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:         getEnv("POSTGRES_USER", "votos"),
		PostgresPassword:     getEnv("POSTGRES_PASSWORD", "votos"),
		PostgresDB:           getEnv("POSTGRES_DB", "pais_ao_vivo"),
		PostgresSSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		VoteCooldown:         getEnvAsDuration("VOTE_COOLDOWN", 2*time.Hour),
		TallyRefreshInterval: getEnvAsDuration("TALLY_REFRESH_INTERVAL", 3*time.Second),
		Countries:            getEnvAsList("COUNTRIES", nil),
		ChatKeyPrefix:        getEnv("REDIS_CHAT_PREFIX", "chat"),
		ChatHistoryLimit:     getEnvAsInt("CHAT_HISTORY_LIMIT", 500),
		ChatMaxBody:          getEnvAsInt("CHAT_MAX_BODY", 500),
		RateLimitEnabled:     getEnvAsBool("ANTIFRAUDE_RATE_LIMIT_ENABLED", true),
		RateLimitMaxActions:  getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_MAX", 20),
		RateLimitWindow:      getEnvAsDuration("ANTIFRAUDE_RATE_LIMIT_WINDOW", time.Minute),
		RateLimitKeyPrefix:   getEnv("ANTIFRAUDE_RATE_LIMIT_PREFIX", "chat:flood"),
		SendBufferSize:       getEnvAsInt("WS_SEND_BUFFER", 64),
		MaxSendFailures:      getEnvAsInt("WS_MAX_SEND_FAILURES", 3),
		AutoMigrate:          getEnvAsBool("DB_AUTO_MIGRATE", true),
		VoteRetention:        getEnvAsDuration("VOTE_RETENTION", 7*24*time.Hour),
		CompactionInterval:   getEnvAsDuration("COMPACTION_INTERVAL", 10*time.Minute),
		WorkerMetricsAddress: getEnv("WORKER_METRICS_ADDRESS", ":9090"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: REDIS_DB invalido: %w", err)
	}
	cfg.RedisDB = dbInt

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.VoteCooldown <= 0 {
		return fmt.Errorf("config: VOTE_COOLDOWN deve ser positivo")
	}
	if c.TallyRefreshInterval <= 0 {
		return fmt.Errorf("config: TALLY_REFRESH_INTERVAL deve ser positivo")
	}
	if c.CompactionInterval <= 0 {
		return fmt.Errorf("config: COMPACTION_INTERVAL deve ser positivo")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("config: DB_DRIVER %q nao suportado", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET obrigatorio")
	}
	return nil
}

// EffectiveRetention nunca devolve menos que a janela de espera, senão a compactação apagaria votos que ainda bloqueiam usuários.
func (c Config) EffectiveRetention() time.Duration {
	if c.VoteRetention < c.VoteCooldown {
		return c.VoteCooldown
	}
	return c.VoteRetention
}

func (c Config) PostgresDSN() string {
	// Mantemos o formato DSN compatível com GORM e ferramentas de migração.
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return true
	}
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvAsList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var itens []string
	for _, parte := range strings.Split(value, ",") {
		if parte = strings.TrimSpace(parte); parte != "" {
			itens = append(itens, parte)
		}
	}
	return itens
}

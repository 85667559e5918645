package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// mysqlDSN builds the DSN from DB_* variables. A DB_HOST of "/cloudsql/<CONNECTION_NAME>"
// is the Cloud SQL Auth Proxy socket.
func mysqlDSN() string {
	host := os.Getenv("DB_HOST")
	network, address := "tcp", fmt.Sprintf("%s:%s", host, os.Getenv("DB_PORT"))
	if strings.HasPrefix(host, "/cloudsql/") {
		network, address = "unix", host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		network,
		address,
		os.Getenv("DB_NAME"),
	)
}

// ConnectDatabaseWithRetry opens the ledger database and sets the global DB.
// It retries with backoff until the database answers or ctx is done.
func ConnectDatabaseWithRetry(ctx context.Context) error {
	dsn := mysqlDSN()
	return retryWithBackoff(ctx, "database", func() error {
		conn, err := gorm.Open(mysql.Open(dsn), NewGormConfig())
		if err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		// DB_MAX_OPEN_CONNS, DB_MAX_IDLE_CONNS, DB_CONN_MAX_LIFETIME_SECONDS
		if n := intFromEnv("DB_MAX_OPEN_CONNS", 20); n > 0 {
			sqlDB.SetMaxOpenConns(n)
		}
		if n := intFromEnv("DB_MAX_IDLE_CONNS", 10); n >= 0 {
			sqlDB.SetMaxIdleConns(n)
		}
		if secs := intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300); secs > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(secs) * time.Second)
		}
		InstallPlugins(conn)
		db = conn
		return nil
	})
}

// retryWithBackoff calls connect until it succeeds, sleeping 2s, 4s, ... up to 30s between attempts.
func retryWithBackoff(ctx context.Context, what string, connect func() error) error {
	for attempt := 1; ; attempt++ {
		err := connect()
		if err == nil {
			log.Printf("connected to %s (attempt=%d)", what, attempt)
			return nil
		}
		sleep := min(time.Second*time.Duration(1<<min(attempt, 5)), 30*time.Second)
		log.Printf("failed to connect %s (attempt=%d): %v; retrying in %s", what, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect %s: %w (last error: %v)", what, ctx.Err(), err)
		case <-time.After(sleep):
		}
	}
}

// InstallPlugins installs tracing and the tenant guard on an opened connection.
func InstallPlugins(conn *gorm.DB) {
	if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
	}
	if pluginErr := conn.Use(NewTenantGuardPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install tenant guard plugin: %v", pluginErr)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// NewGormConfig is shared by the MySQL connection and the in-memory test stores.
// TranslateError lets upsert races be detected as gorm.ErrDuplicatedKey on every dialect.
// Banking tables belong to another service, so migrations never add foreign keys to them.
func NewGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: schema.NamingStrategy{},
		TranslateError: true,

		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

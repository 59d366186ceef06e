package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/nitesh/exchange_reviews/internal/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Placeholder returns the squirrel placeholder format matching the driver.
func Placeholder(driverName string) sq.PlaceholderFormat {
	if driverName == DriverPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Normalize maps driver aliases onto the two supported driver names.
func Normalize(driverName string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driverName)) {
	case "", "postgres", "postgresql", "pq":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driverName)
	}
}

// Open connects and waits for the database to answer a ping.
// Postgres may still be starting when the service comes up in docker.
func Open(ctx context.Context, driverName, dsn string, attempts int, log *logger.Logger) (*sqlx.DB, error) {
	name, err := Normalize(driverName)
	if err != nil {
		return nil, err
	}
	conn, err := sqlx.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if name == DriverSQLite {
		// one writer at a time; also keeps in-memory databases on a single connection
		conn.SetMaxOpenConns(1)
	}
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if err = conn.PingContext(ctx); err == nil {
			return conn, nil
		}
		log.Warn("waiting for db", "attempt", i+1, "error", err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	_ = conn.Close()
	return nil, fmt.Errorf("could not connect to db: %w", err)
}

package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectBackoff is the retry policy used while waiting for the database at
// startup. Requests never retry.
func ConnectBackoff() retry.Backoff {
	return retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
}

// NewDB creates a new MySQL database connection pool with the given DSN and
// waits for it to answer a ping.
func NewDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("driver", "mysql").Wrap(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(ctx, ConnectBackoff(), func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			slog.Warn("database ping failed, retrying", "driver", "mysql", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_PING_FAILED").With("driver", "mysql").Wrap(err)
	}

	return db, nil
}

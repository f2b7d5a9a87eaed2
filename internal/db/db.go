// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const driverName = "postgres"

// Connect opens a pool for dsn and verifies it with a ping. The caller owns
// the returned pool and must Close it.
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*sql.DB, error) {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	log.Info("connected to database", zap.String("host", hostOf(dsn)))
	return conn, nil
}

// Pinger is the part of *sql.DB that Retry needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// retryDelay is the pause between a lost connection and the reconnect ping.
var retryDelay = 50 * time.Millisecond

// Retry runs fn once. If it fails with a connection-class error the pool is
// pinged and, when the ping succeeds, fn runs one more time. Any other error
// is returned as is.
func Retry(ctx context.Context, p Pinger, fn func() error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if err := p.PingContext(ctx); err != nil {
				return fmt.Errorf("reconnect: %w", err)
			}
		}
		err := fn()
		if attempt == 1 && IsConnectionError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsConnectionError reports whether err means the connection was lost rather
// than the statement being rejected.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception, 57P0x: server shutting down
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P0")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func hostOf(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return ""
	}
	rest := dsn[at+1:]
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

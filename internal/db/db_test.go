package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unclebandit/infinite-gateway/internal/db/migrations"
)

type fakePinger struct {
	calls int
	err   error
}

func (p *fakePinger) PingContext(context.Context) error {
	p.calls++
	return p.err
}

func TestRetry_SuccessFirstTry(t *testing.T) {
	p := &fakePinger{}
	runs := 0
	err := Retry(context.Background(), p, func() error { runs++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, p.calls)
}

func TestRetry_NonConnectionErrorNotRetried(t *testing.T) {
	p := &fakePinger{}
	runs := 0
	boom := errors.New("syntax error")
	err := Retry(context.Background(), p, func() error { runs++; return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 0, p.calls)
}

func TestRetry_ReconnectsOnce(t *testing.T) {
	p := &fakePinger{}
	runs := 0
	err := Retry(context.Background(), p, func() error {
		runs++
		if runs == 1 {
			return driver.ErrBadConn
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, p.calls)
}

func TestRetry_GivesUpAfterSecondFailure(t *testing.T) {
	p := &fakePinger{}
	runs := 0
	err := Retry(context.Background(), p, func() error { runs++; return sql.ErrConnDone })
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, 2, runs)
}

func TestRetry_PingFails(t *testing.T) {
	p := &fakePinger{err: errors.New("refused")}
	runs := 0
	err := Retry(context.Background(), p, func() error { runs++; return driver.ErrBadConn })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, 1, runs)
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
	assert.True(t, IsConnectionError(driver.ErrBadConn))
	assert.True(t, IsConnectionError(&pq.Error{Code: "08006"}))
	assert.True(t, IsConnectionError(&pq.Error{Code: "57P01"}))
	assert.False(t, IsConnectionError(&pq.Error{Code: "23505"}))
	assert.False(t, IsConnectionError(errors.New("plain")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("x")))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "db:5432", hostOf("postgres://u:p@db:5432/infinite?sslmode=disable"))
	assert.Equal(t, "", hostOf("host=db user=u"))
}

func TestMigrate_RunsEmbeddedMigrations(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()
	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), conn))
	assert.Equal(t, ".", gotDir)
}

func TestMigrate_Error(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	require.EqualError(t, Migrate(context.Background(), conn), "boom")
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_tokens.sql", "00002_customers.sql"}, names)
}

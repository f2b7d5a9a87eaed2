package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/infinite-gateway/internal/db"
	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

// TokenRepositoryInterface is the credential store seen by the token service.
type TokenRepositoryInterface interface {
	Get(ctx context.Context) (*model.Token, error)
	Put(ctx context.Context, t *model.Token) error
}

// TokenRepository keeps the one token row. The table's id check constraint
// means there can never be a second row.
type TokenRepository struct {
	DB *sql.DB
}

func NewTokenRepository(conn *sql.DB) *TokenRepository {
	return &TokenRepository{DB: conn}
}

// Get returns nil, nil when no token has been stored yet.
func (r *TokenRepository) Get(ctx context.Context) (*model.Token, error) {
	query := `
        SELECT login, password, access_token, refresh_token, token_type,
               expires_in, refresh_expires_in, obtained_at
        FROM tokens
        WHERE id = 1
    `
	var t model.Token
	err := db.Retry(ctx, r.DB, func() error {
		return r.DB.QueryRowContext(ctx, query).Scan(
			&t.Login, &t.Password, &t.AccessToken, &t.RefreshToken, &t.TokenType,
			&t.ExpiresIn, &t.RefreshExpiresIn, &t.ObtainedAt,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("get token", err)
	}
	return &t, nil
}

// Put replaces the stored token in one statement.
func (r *TokenRepository) Put(ctx context.Context, t *model.Token) error {
	query := `
        INSERT INTO tokens (id, login, password, access_token, refresh_token, token_type,
                            expires_in, refresh_expires_in, obtained_at)
        VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO UPDATE SET
            login = EXCLUDED.login,
            password = EXCLUDED.password,
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            token_type = EXCLUDED.token_type,
            expires_in = EXCLUDED.expires_in,
            refresh_expires_in = EXCLUDED.refresh_expires_in,
            obtained_at = EXCLUDED.obtained_at
    `
	err := db.Retry(ctx, r.DB, func() error {
		_, err := r.DB.ExecContext(ctx, query,
			t.Login, t.Password, t.AccessToken, t.RefreshToken, t.TokenType,
			t.ExpiresIn, t.RefreshExpiresIn, t.ObtainedAt,
		)
		return err
	})
	if err != nil {
		return storageError("put token", err)
	}
	return nil
}

func storageError(op string, err error) error {
	kind := appErrors.StorageUnavailable
	if db.IsUniqueViolation(err) {
		kind = appErrors.StorageConstraint
	}
	return appErrors.NewStorageError(op, kind, err)
}

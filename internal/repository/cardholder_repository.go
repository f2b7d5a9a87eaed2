package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unclebandit/infinite-gateway/internal/db"
	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

// CardholderRepositoryInterface is the read-only view of the core banking
// database.
type CardholderRepositoryInterface interface {
	ByCardNumber(ctx context.Context, pan string) (*model.Cardholder, error)
	ByCardID(ctx context.Context, cardID string) (*model.Cardholder, error)
	ByAccountCode(ctx context.Context, code string) (*model.Cardholder, error)
	ByClientCode(ctx context.Context, code string) (*model.Cardholder, error)
}

// CardholderRepository reads the cardholder_view maintained by the core
// banking side. A nil DB means no core database is configured and every
// lookup returns ErrLookupDisabled.
type CardholderRepository struct {
	DB *sql.DB
}

func NewCardholderRepository(conn *sql.DB) *CardholderRepository {
	return &CardholderRepository{DB: conn}
}

const selectCardholder = `
        SELECT client_code, surname, name, middle_name, full_name, birth_date,
               account_code, card_number, card_id, masked_pan, phone
        FROM cardholder_view
    `

func (r *CardholderRepository) ByCardNumber(ctx context.Context, pan string) (*model.Cardholder, error) {
	return r.lookup(ctx, "card_number", pan)
}

func (r *CardholderRepository) ByCardID(ctx context.Context, cardID string) (*model.Cardholder, error) {
	return r.lookup(ctx, "card_id", cardID)
}

func (r *CardholderRepository) ByAccountCode(ctx context.Context, code string) (*model.Cardholder, error) {
	return r.lookup(ctx, "account_code", code)
}

func (r *CardholderRepository) ByClientCode(ctx context.Context, code string) (*model.Cardholder, error) {
	return r.lookup(ctx, "client_code", code)
}

// lookup is only called with the fixed column names above.
func (r *CardholderRepository) lookup(ctx context.Context, column, value string) (*model.Cardholder, error) {
	if r.DB == nil {
		return nil, appErrors.ErrLookupDisabled
	}
	query := selectCardholder + "WHERE " + column + " = $1 LIMIT 1"

	var c model.Cardholder
	err := db.Retry(ctx, r.DB, func() error {
		return r.DB.QueryRowContext(ctx, query, value).Scan(
			&c.ClientCode, &c.Surname, &c.Name, &c.MiddleName, &c.FullName, &c.BirthDate,
			&c.AccountCode, &c.CardNumber, &c.CardID, &c.MaskedPAN, &c.Phone,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCardholderNotFound(column, value)
		}
		return nil, fmt.Errorf("cardholder by %s: %w", column, storageError("lookup cardholder", err))
	}
	return &c, nil
}

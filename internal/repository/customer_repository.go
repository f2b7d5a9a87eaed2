package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/unclebandit/infinite-gateway/internal/db"
	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

// CustomerRepositoryInterface defines methods used by the sync service
type CustomerRepositoryInterface interface {
	FindByPhone(ctx context.Context, phone string) (*model.StoredCustomer, error)
	Insert(ctx context.Context, c model.Customer, status model.SyncStatus) error
	Update(ctx context.Context, c model.Customer, status model.SyncStatus) error
	ListByStatus(ctx context.Context, status model.SyncStatus) ([]model.StoredCustomer, error)
	CountByStatus(ctx context.Context) (map[model.SyncStatus]int, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB *sql.DB
}

func NewCustomerRepository(conn *sql.DB) *CustomerRepository {
	return &CustomerRepository{DB: conn}
}

// customerColumns is the order used by every insert, update and select.
var customerColumns = []string{
	"phone", "email", "firstname", "lastname", "middlename", "language", "service_level",
	"card_type_id", "date_birth", "date_expiry", "additional_phone", "bank_manager_fio",
	"bank_manager_phone", "bank_product", "bin", "clid", "inn", "manager", "manual_subscribe",
	"message_id", "pan", "welcome", "project_additional_data",
}

func customerArgs(c *model.Customer) []any {
	return []any{
		c.Phone, c.Email, c.FirstName, c.LastName, c.MiddleName, c.Language, c.ServiceLevel,
		c.CardTypeID, c.DateBirth, c.DateExpiry, c.AdditionalPhone, c.BankManagerFIO,
		c.BankManagerPhone, c.BankProduct, c.BIN, c.CLID, c.INN, c.Manager, c.ManualSubscribe,
		c.MessageID, c.PAN, c.Welcome, c.ProjectAdditionalData,
	}
}

func customerDest(c *model.StoredCustomer) []any {
	return []any{
		&c.ID,
		&c.Phone, &c.Email, &c.FirstName, &c.LastName, &c.MiddleName, &c.Language, &c.ServiceLevel,
		&c.CardTypeID, &c.DateBirth, &c.DateExpiry, &c.AdditionalPhone, &c.BankManagerFIO,
		&c.BankManagerPhone, &c.BankProduct, &c.BIN, &c.CLID, &c.INN, &c.Manager, &c.ManualSubscribe,
		&c.MessageID, &c.PAN, &c.Welcome, &c.ProjectAdditionalData,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	}
}

var (
	selectCustomers = "SELECT id, " + strings.Join(customerColumns, ", ") +
		", sync_status, created_at, updated_at FROM customers"
	insertCustomer = buildInsert()
	updateCustomer = buildUpdate()
)

func buildInsert() string {
	marks := make([]string, len(customerColumns)+1)
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return "INSERT INTO customers (" + strings.Join(customerColumns, ", ") + ", sync_status) VALUES (" +
		strings.Join(marks, ", ") + ")"
}

// buildUpdate keys on phone ($1) and rewrites every other column.
func buildUpdate() string {
	sets := make([]string, 0, len(customerColumns))
	for i, col := range customerColumns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	sets = append(sets, fmt.Sprintf("sync_status = $%d", len(customerColumns)+1), "updated_at = now()")
	return "UPDATE customers SET " + strings.Join(sets, ", ") + " WHERE phone = $1"
}

// FindByPhone returns nil, nil when the phone is not stored.
func (r *CustomerRepository) FindByPhone(ctx context.Context, phone string) (*model.StoredCustomer, error) {
	var c model.StoredCustomer
	err := db.Retry(ctx, r.DB, func() error {
		return r.DB.QueryRowContext(ctx, selectCustomers+" WHERE phone = $1", phone).Scan(customerDest(&c)...)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError("find customer", err)
	}
	return &c, nil
}

func (r *CustomerRepository) Insert(ctx context.Context, c model.Customer, status model.SyncStatus) error {
	args := append(customerArgs(&c), status)
	err := db.Retry(ctx, r.DB, func() error {
		_, err := r.DB.ExecContext(ctx, insertCustomer, args...)
		return err
	})
	if err != nil {
		return storageError("insert customer", err)
	}
	return nil
}

// Update rewrites the row with c's phone. A missing row is not an error.
func (r *CustomerRepository) Update(ctx context.Context, c model.Customer, status model.SyncStatus) error {
	args := append(customerArgs(&c), status)
	var affected int64
	err := db.Retry(ctx, r.DB, func() error {
		res, err := r.DB.ExecContext(ctx, updateCustomer, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return storageError("update customer", err)
	}
	if affected == 0 {
		return appErrors.NewStorageError("update customer", appErrors.StorageConstraint,
			fmt.Errorf("no customer with phone %s", c.Phone))
	}
	return nil
}

func (r *CustomerRepository) ListByStatus(ctx context.Context, status model.SyncStatus) ([]model.StoredCustomer, error) {
	customers := []model.StoredCustomer{}
	err := db.Retry(ctx, r.DB, func() error {
		rows, err := r.DB.QueryContext(ctx, selectCustomers+" WHERE sync_status = $1 ORDER BY id", status)
		if err != nil {
			return err
		}
		defer rows.Close()

		customers = customers[:0]
		for rows.Next() {
			var c model.StoredCustomer
			if err := rows.Scan(customerDest(&c)...); err != nil {
				return err
			}
			customers = append(customers, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("list customers", err)
	}
	return customers, nil
}

func (r *CustomerRepository) CountByStatus(ctx context.Context) (map[model.SyncStatus]int, error) {
	counts := map[model.SyncStatus]int{}
	err := db.Retry(ctx, r.DB, func() error {
		rows, err := r.DB.QueryContext(ctx, "SELECT sync_status, COUNT(*) FROM customers GROUP BY sync_status")
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(counts)
		for rows.Next() {
			var (
				status model.SyncStatus
				n      int
			)
			if err := rows.Scan(&status, &n); err != nil {
				return err
			}
			counts[status] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storageError("count customers", err)
	}
	return counts, nil
}

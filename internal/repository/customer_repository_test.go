package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

func storedColumns() []string {
	cols := append([]string{"id"}, customerColumns...)
	return append(cols, "sync_status", "created_at", "updated_at")
}

func sampleCustomer() model.Customer {
	return model.Customer{
		Phone:        "+998901112233",
		Email:        model.StrPtr("a@b.uz"),
		FirstName:    "Ali",
		LastName:     "Valiyev",
		Language:     "ru",
		ServiceLevel: "BASIC",
		CardTypeID:   4,
		DateBirth:    model.NewDate(1990, time.May, 1),
		BIN:          model.StrPtr("419525"),
		Manager:      model.BoolPtr(false),
		Welcome:      model.StrPtr("1"),
	}
}

func customerRow(id int, c model.Customer, status model.SyncStatus) []driver.Value {
	now := time.Now()
	var birth any
	if !c.DateBirth.IsZero() {
		birth = c.DateBirth.Time
	}
	str := func(p *string) any {
		if p == nil {
			return nil
		}
		return *p
	}
	boolean := func(p *bool) any {
		if p == nil {
			return nil
		}
		return *p
	}
	return []driver.Value{
		id,
		c.Phone, str(c.Email), c.FirstName, c.LastName, c.MiddleName, c.Language, c.ServiceLevel,
		c.CardTypeID, birth, nil, str(c.AdditionalPhone), str(c.BankManagerFIO),
		str(c.BankManagerPhone), str(c.BankProduct), str(c.BIN), str(c.CLID), str(c.INN),
		boolean(c.Manager), boolean(c.ManualSubscribe),
		str(c.MessageID), str(c.PAN), str(c.Welcome), []byte(`[]`),
		string(status), now, now,
	}
}

func anyArgsWithPhone(phone string, status model.SyncStatus) []driver.Value {
	args := make([]driver.Value, len(customerColumns)+1)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[0] = phone
	args[len(args)-1] = string(status)
	return args
}

const findCustomerQ = `(?s)^SELECT\s+id,\s*phone,.*FROM\s+customers\s+WHERE\s+phone\s*=\s*\$1$`

func TestFindByPhone_Absent(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)

	mock.ExpectQuery(findCustomerQ).WithArgs("+998900000000").WillReturnRows(sqlmock.NewRows(storedColumns()))

	got, err := repo.FindByPhone(context.Background(), "+998900000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindByPhone_Found(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)
	c := sampleCustomer()

	mock.ExpectQuery(findCustomerQ).WithArgs(c.Phone).
		WillReturnRows(sqlmock.NewRows(storedColumns()).AddRow(customerRow(7, c, model.StatusSent)...))

	got, err := repo.FindByPhone(context.Background(), c.Phone)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.ID)
	assert.Equal(t, model.StatusSent, got.Status)
	assert.True(t, c.Equal(got.Customer), "stored row must read back equal")
}

func TestFindByPhone_Unavailable(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)

	mock.ExpectQuery(findCustomerQ).WillReturnError(errors.New("db down"))

	_, err := repo.FindByPhone(context.Background(), "+998901112233")
	var se *appErrors.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, appErrors.StorageUnavailable, se.Kind)
	assert.False(t, appErrors.IsConstraint(err))
}

func TestInsert_Success(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)
	c := sampleCustomer()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+customers\s+\(phone,.*sync_status\)\s+VALUES\s+\(\$1,.*\$24\)$`).
		WithArgs(anyArgsWithPhone(c.Phone, model.StatusSent)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Insert(context.Background(), c, model.StatusSent))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_UniqueViolationIsConstraint(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)

	mock.ExpectExec(`^INSERT\s+INTO\s+customers`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Insert(context.Background(), sampleCustomer(), model.StatusSent)
	require.Error(t, err)
	assert.True(t, appErrors.IsConstraint(err))
}

func TestUpdate_Success(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)
	c := sampleCustomer()
	c.FirstName = "Alisher"

	mock.ExpectExec(`(?s)^UPDATE\s+customers\s+SET\s+email\s*=\s*\$2,.*sync_status\s*=\s*\$24,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+phone\s*=\s*\$1$`).
		WithArgs(anyArgsWithPhone(c.Phone, model.StatusSent)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), c, model.StatusSent))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_Error(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)

	mock.ExpectExec(`^UPDATE\s+customers`).WillReturnError(errors.New("lock timeout"))

	err := repo.Update(context.Background(), sampleCustomer(), model.StatusSent)
	var se *appErrors.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "update customer", se.Op)
}

func TestUpdate_NoMatchingRow(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)

	mock.ExpectExec(`^UPDATE\s+customers`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), sampleCustomer(), model.StatusSent)
	require.Error(t, err)
	assert.True(t, appErrors.IsConstraint(err))
	assert.Contains(t, err.Error(), "+998901112233")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatus(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)
	a := sampleCustomer()
	b := sampleCustomer()
	b.Phone = "+998907654321"
	b.Email = nil

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+customers\s+WHERE\s+sync_status\s*=\s*\$1\s+ORDER\s+BY\s+id$`).
		WithArgs("sent").
		WillReturnRows(sqlmock.NewRows(storedColumns()).
			AddRow(customerRow(1, a, model.StatusSent)...).
			AddRow(customerRow(2, b, model.StatusSent)...))

	got, err := repo.ListByStatus(context.Background(), model.StatusSent)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "+998907654321", got[1].Phone)
	assert.Nil(t, got[1].Email)
}

func TestCountByStatus(t *testing.T) {
	conn, mock := newMock(t)
	repo := NewCustomerRepository(conn)

	mock.ExpectQuery(`^SELECT\s+sync_status,\s*COUNT\(\*\)\s+FROM\s+customers\s+GROUP\s+BY\s+sync_status$`).
		WillReturnRows(sqlmock.NewRows([]string{"sync_status", "count"}).
			AddRow("sent", 10).
			AddRow("new", 2))

	got, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.SyncStatus]int{model.StatusSent: 10, model.StatusNew: 2}, got)
}

func TestUpdateStatementShape(t *testing.T) {
	assert.Contains(t, updateCustomer, "project_additional_data = $23")
	assert.NotContains(t, updateCustomer, "phone = $2")
}

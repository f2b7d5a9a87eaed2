// internal/model/customer.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AdditionalData is one project attribute attached to a customer.
type AdditionalData struct {
	ProjectName  string `json:"project_name"`
	ProjectValue int    `json:"project_value"`
}

// AdditionalDataList is stored as a JSON column.
type AdditionalDataList []AdditionalData

func (l AdditionalDataList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]AdditionalData(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *AdditionalDataList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into AdditionalDataList", src)
	}
	var items []AdditionalData
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Equal compares by value; nil and empty lists are the same.
func (l AdditionalDataList) Equal(o AdditionalDataList) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// Customer is a cardholder record as the customer API knows it. Phone is the
// stable key.
type Customer struct {
	AdditionalPhone       *string            `db:"additional_phone" json:"additional_phone"`
	BankManagerFIO        *string            `db:"bank_manager_fio" json:"bank_manager_fio"`
	BankManagerPhone      *string            `db:"bank_manager_phone" json:"bank_manager_phone"`
	BankProduct           *string            `db:"bank_product" json:"bank_product"`
	BIN                   *string            `db:"bin" json:"bin"`
	CardTypeID            int                `db:"card_type_id" json:"card_type_id"`
	CLID                  *string            `db:"clid" json:"clid"`
	DateBirth             Date               `db:"date_birth" json:"date_birth"`
	DateExpiry            Date               `db:"date_expiry" json:"date_expiry"`
	Email                 *string            `db:"email" json:"email"`
	FirstName             string             `db:"firstname" json:"firstname"`
	INN                   *string            `db:"inn" json:"inn"`
	Language              string             `db:"language" json:"language"`
	LastName              string             `db:"lastname" json:"lastname"`
	Manager               *bool              `db:"manager" json:"manager"`
	ManualSubscribe       *bool              `db:"manual_subscribe" json:"manualSubscribe"`
	MessageID             *string            `db:"message_id" json:"messageId"`
	MiddleName            string             `db:"middlename" json:"middlename"`
	PAN                   *string            `db:"pan" json:"pan"`
	Phone                 string             `db:"phone" json:"phone"`
	ProjectAdditionalData AdditionalDataList `db:"project_additional_data" json:"project_additional_data"`
	ServiceLevel          string             `db:"service_level" json:"service_level"`
	Welcome               *string            `db:"welcome" json:"welcome"`
}

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// Validate checks the fields the customer API refuses to accept without.
func (c Customer) Validate() error {
	if !phonePattern.MatchString(c.Phone) {
		return fmt.Errorf("invalid phone %q", c.Phone)
	}
	var missing []string
	if strings.TrimSpace(c.FirstName) == "" {
		missing = append(missing, "firstname")
	}
	if strings.TrimSpace(c.LastName) == "" {
		missing = append(missing, "lastname")
	}
	if strings.TrimSpace(c.Language) == "" {
		missing = append(missing, "language")
	}
	if strings.TrimSpace(c.ServiceLevel) == "" {
		missing = append(missing, "service_level")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Normalized returns c with blank optional strings set to nil, so that an
// empty value is stored as NULL and never collides on the unique columns.
func (c Customer) Normalized() Customer {
	for _, f := range []**string{
		&c.AdditionalPhone, &c.BankManagerFIO, &c.BankManagerPhone, &c.BankProduct,
		&c.BIN, &c.CLID, &c.Email, &c.INN, &c.MessageID, &c.PAN, &c.Welcome,
	} {
		if *f != nil && strings.TrimSpace(**f) == "" {
			*f = nil
		}
	}
	return c
}

// Equal is field-by-field equality over everything the customer store persists.
func (c Customer) Equal(o Customer) bool {
	return c.Phone == o.Phone &&
		c.FirstName == o.FirstName &&
		c.LastName == o.LastName &&
		c.MiddleName == o.MiddleName &&
		c.Language == o.Language &&
		c.ServiceLevel == o.ServiceLevel &&
		c.CardTypeID == o.CardTypeID &&
		c.DateBirth.Equal(o.DateBirth) &&
		c.DateExpiry.Equal(o.DateExpiry) &&
		equalString(c.AdditionalPhone, o.AdditionalPhone) &&
		equalString(c.BankManagerFIO, o.BankManagerFIO) &&
		equalString(c.BankManagerPhone, o.BankManagerPhone) &&
		equalString(c.BankProduct, o.BankProduct) &&
		equalString(c.BIN, o.BIN) &&
		equalString(c.CLID, o.CLID) &&
		equalString(c.Email, o.Email) &&
		equalString(c.INN, o.INN) &&
		equalString(c.MessageID, o.MessageID) &&
		equalString(c.PAN, o.PAN) &&
		equalString(c.Welcome, o.Welcome) &&
		equalBool(c.Manager, o.Manager) &&
		equalBool(c.ManualSubscribe, o.ManualSubscribe) &&
		c.ProjectAdditionalData.Equal(o.ProjectAdditionalData)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CustomerClose identifies a remote customer to deactivate.
type CustomerClose struct {
	ID        int     `json:"id"`
	MessageID *string `json:"messageId,omitempty"`
}

// SyncStatus is the per-batch provenance marker on a stored customer row.
type SyncStatus string

const (
	StatusNew       SyncStatus = "new"
	StatusUpdated   SyncStatus = "updated"
	StatusUnchanged SyncStatus = "unchanged"
	StatusSent      SyncStatus = "sent"
)

// StoredCustomer is a customer row as last confirmed by the customer API.
type StoredCustomer struct {
	Customer
	ID        int        `db:"id" json:"id"`
	Status    SyncStatus `db:"sync_status" json:"sync_status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// StrPtr and BoolPtr help build optional fields.
func StrPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }

// internal/model/cardholder.go
package model

// Cardholder is what the core banking lookups return for a card or client.
type Cardholder struct {
	ClientCode  string  `db:"client_code" json:"client_code"`
	Surname     string  `db:"surname" json:"surname"`
	Name        string  `db:"name" json:"name"`
	MiddleName  string  `db:"middle_name" json:"middle_name"`
	FullName    string  `db:"full_name" json:"full_name"`
	BirthDate   Date    `db:"birth_date" json:"birth_date"`
	AccountCode string  `db:"account_code" json:"acc_num"`
	CardNumber  string  `db:"card_number" json:"pan"`
	CardID      string  `db:"card_id" json:"card_idn"`
	MaskedPAN   string  `db:"masked_pan" json:"masked_pan"`
	Phone       *string `db:"phone" json:"tel"`
}

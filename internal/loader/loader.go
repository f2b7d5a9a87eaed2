// Package loader reads candidate customers: the JSON candidates file and
// the bank's card export.
package loader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

// LoadJSON reads a JSON array of customers from path.
func LoadJSON(path string) ([]model.Customer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidates: %w", err)
	}
	defer f.Close()

	var customers []model.Customer
	if err := json.NewDecoder(f).Decode(&customers); err != nil {
		return nil, fmt.Errorf("decode candidates %s: %w", path, err)
	}
	return customers, nil
}

// WriteJSON writes customers as an indented JSON array, the format LoadJSON reads.
func WriteJSON(w io.Writer, customers []model.Customer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(customers)
}

// ClientLookup finds the cardholder behind a client code.
type ClientLookup interface {
	ByClientCode(ctx context.Context, code string) (*model.Cardholder, error)
}

// Export defaults for cards issued under the bank's Infinite programme.
const (
	DefaultBIN          = "419525"
	DefaultCardTypeID   = 4
	DefaultLanguage     = "ru"
	DefaultServiceLevel = "BASIC"
	DefaultWelcome      = "1"
)

var exportColumns = []string{"CLIENT_B", "F_NAMES", "SURNAME", "BIRTHDAY", "EX", "R_E_MAILS", "PAN", "R_MOB_PHONE"}

// ParseExport converts the bank's card export (CSV with a header row) into
// candidates. Middle names come from lookup when it is non-nil; a client
// unknown to the core database keeps an empty middle name.
func ParseExport(ctx context.Context, r io.Reader, lookup ClientLookup) ([]model.Customer, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read export header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, col := range exportColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("export is missing columns %s", strings.Join(missing, ", "))
	}

	var out []model.Customer
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("export line %d: %w", line, err)
		}
		get := func(col string) string {
			if i := idx[col]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		if get("R_MOB_PHONE") == "" && get("CLIENT_B") == "" {
			continue
		}

		c, err := exportRow(get)
		if err != nil {
			return nil, fmt.Errorf("export line %d: %w", line, err)
		}
		if lookup != nil && c.CLID != nil {
			middle, err := middleName(ctx, lookup, *c.CLID)
			if err != nil {
				return nil, fmt.Errorf("export line %d: %w", line, err)
			}
			c.MiddleName = middle
		}
		out = append(out, c)
	}
	return out, nil
}

func exportRow(get func(string) string) (model.Customer, error) {
	birth, err := time.Parse("02.01.2006", get("BIRTHDAY"))
	if err != nil {
		return model.Customer{}, fmt.Errorf("BIRTHDAY: %w", err)
	}
	expiry, err := ParseExpiry(get("EX"))
	if err != nil {
		return model.Customer{}, err
	}

	c := model.Customer{
		BIN:                   model.StrPtr(DefaultBIN),
		CardTypeID:            DefaultCardTypeID,
		DateBirth:             model.NewDate(birth.Year(), birth.Month(), birth.Day()),
		DateExpiry:            expiry,
		FirstName:             get("F_NAMES"),
		Language:              DefaultLanguage,
		LastName:              get("SURNAME"),
		Manager:               model.BoolPtr(false),
		ManualSubscribe:       model.BoolPtr(false),
		Phone:                 get("R_MOB_PHONE"),
		ProjectAdditionalData: model.AdditionalDataList{},
		ServiceLevel:          DefaultServiceLevel,
		Welcome:               model.StrPtr(DefaultWelcome),
	}
	if v := get("CLIENT_B"); v != "" {
		c.CLID = model.StrPtr(v)
	}
	if v := get("R_E_MAILS"); v != "" {
		c.Email = model.StrPtr(v)
	}
	if v := get("PAN"); v != "" {
		c.PAN = model.StrPtr(v)
	}
	return c, nil
}

// ParseExpiry turns a card expiry "mm.yy" into the last day of that month.
func ParseExpiry(s string) (model.Date, error) {
	var (
		t   time.Time
		err error
	)
	for _, layout := range []string{"01.06", "1.06"} {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return model.Date{}, fmt.Errorf("EX %q: want mm.yy", s)
	}
	last := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	return model.NewDate(last.Year(), last.Month(), last.Day()), nil
}

func middleName(ctx context.Context, lookup ClientLookup, clientCode string) (string, error) {
	ch, err := lookup.ByClientCode(ctx, clientCode)
	if err != nil {
		var nf *appErrors.ErrCardholderNotFound
		if errors.As(err, &nf) || errors.Is(err, appErrors.ErrLookupDisabled) {
			return "", nil
		}
		return "", fmt.Errorf("middle name for client %s: %w", clientCode, err)
	}
	return ch.MiddleName, nil
}

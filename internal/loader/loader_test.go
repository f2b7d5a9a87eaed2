package loader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

type fakeLookup struct {
	middle map[string]string
	err    error
}

func (f *fakeLookup) ByClientCode(ctx context.Context, code string) (*model.Cardholder, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.middle[code]
	if !ok {
		return nil, appErrors.NewCardholderNotFound("client_code", code)
	}
	return &model.Cardholder{ClientCode: code, MiddleName: m}, nil
}

const export = `CLIENT_B,F_NAMES,SURNAME,BIRTHDAY,EX,R_E_MAILS,PAN,R_MOB_PHONE
00012345,Ali,Valiyev,01.05.1990,02.28,ali@x.uz,4195250000001111,998901112233
00067890,Olga,Kim,15.11.1985,11.27,,4195250000002222,998907654321
`

func TestParseExport(t *testing.T) {
	lookup := &fakeLookup{middle: map[string]string{"00012345": "Karimovich"}}

	got, err := ParseExport(context.Background(), strings.NewReader(export), lookup)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ali := got[0]
	assert.Equal(t, "998901112233", ali.Phone)
	assert.Equal(t, "Ali", ali.FirstName)
	assert.Equal(t, "Valiyev", ali.LastName)
	assert.Equal(t, "Karimovich", ali.MiddleName)
	assert.Equal(t, "1990-05-01", ali.DateBirth.String())
	assert.Equal(t, "2028-02-29", ali.DateExpiry.String(), "expiry is the last day of the month")
	assert.Equal(t, "419525", *ali.BIN)
	assert.Equal(t, 4, ali.CardTypeID)
	assert.Equal(t, "ru", ali.Language)
	assert.Equal(t, "BASIC", ali.ServiceLevel)
	assert.Equal(t, "1", *ali.Welcome)
	assert.False(t, *ali.Manager)
	assert.False(t, *ali.ManualSubscribe)
	assert.Equal(t, "00012345", *ali.CLID)
	assert.Equal(t, "ali@x.uz", *ali.Email)
	assert.NotNil(t, ali.ProjectAdditionalData)
	assert.Empty(t, ali.ProjectAdditionalData)

	olga := got[1]
	assert.Nil(t, olga.Email)
	assert.Equal(t, "", olga.MiddleName, "unknown client keeps an empty middle name")
	assert.Equal(t, "2027-11-30", olga.DateExpiry.String())
	assert.NoError(t, olga.Validate())
}

func TestParseExport_MissingColumns(t *testing.T) {
	_, err := ParseExport(context.Background(), strings.NewReader("CLIENT_B,F_NAMES\n1,Ali\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SURNAME")
}

func TestParseExport_BadDate(t *testing.T) {
	bad := "CLIENT_B,F_NAMES,SURNAME,BIRTHDAY,EX,R_E_MAILS,PAN,R_MOB_PHONE\n1,Ali,V,1990-05-01,02.28,,1,998901112233\n"
	_, err := ParseExport(context.Background(), strings.NewReader(bad), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseExport_LookupFailure(t *testing.T) {
	_, err := ParseExport(context.Background(), strings.NewReader(export), &fakeLookup{err: errors.New("core db down")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core db down")
}

func TestParseExport_LookupDisabled(t *testing.T) {
	got, err := ParseExport(context.Background(), strings.NewReader(export), &fakeLookup{err: appErrors.ErrLookupDisabled})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestParseExpiry(t *testing.T) {
	d, err := ParseExpiry("2.24")
	require.NoError(t, err)
	assert.Equal(t, model.NewDate(2024, time.February, 29), d)

	_, err = ParseExpiry("2024-02")
	require.Error(t, err)
}

func TestLoadJSON_RoundTrip(t *testing.T) {
	got, err := ParseExport(context.Background(), strings.NewReader(export), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, got))
	path := filepath.Join(t.TempDir(), "new_data.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	loaded, err := LoadJSON(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for i := range got {
		assert.True(t, got[i].Equal(loaded[i]), "candidate %d survives the file", i)
	}
}

func TestLoadJSON_Missing(t *testing.T) {
	_, err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

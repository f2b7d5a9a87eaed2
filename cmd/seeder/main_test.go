package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/infinite-gateway/internal/loader"
	"github.com/unclebandit/infinite-gateway/internal/model"
)

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "export.csv")
	out := filepath.Join(dir, "new_data.json")
	csv := "CLIENT_B,F_NAMES,SURNAME,BIRTHDAY,EX,R_E_MAILS,PAN,R_MOB_PHONE\n" +
		"00012345,Ali,Valiyev,01.05.1990,02.28,ali@x.uz,4195250000001111,998901112233\n"
	require.NoError(t, os.WriteFile(in, []byte(csv), 0o600))

	require.NoError(t, convert(context.Background(), in, out, nil))

	got, err := loader.LoadJSON(out)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "998901112233", got[0].Phone)
	assert.Equal(t, "2028-02-29", got[0].DateExpiry.String())
}

func TestConvert_MissingInput(t *testing.T) {
	err := convert(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), "unused.json", nil)
	require.Error(t, err)
}

func TestPrintClasses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printClasses(&buf, []model.CandidateClass{
		{Phone: "+111", Class: model.ClassNew},
		{Phone: "+222", Class: model.ClassUnchanged},
		{Phone: "bad", Class: model.ClassInvalid, Error: "invalid phone"},
	}))
	out := buf.String()
	assert.Contains(t, out, "+111")
	assert.Contains(t, out, "invalid phone")
	assert.Contains(t, out, "new=1 changed=0 unchanged=1 invalid=1")
}

func TestConvertCmd_RequiresInput(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"convert"})
	require.Error(t, cmd.Execute())
}

package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitProgram(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`gswin64c.exe -q -sDEVICE=pdfwrite`, "gswin64c.exe"},
		{`"C:\Program Files\gs\gswin64c.exe" -q`, `C:\Program Files\gs\gswin64c.exe`},
		{`  lpr -P office`, "lpr"},
		{`"unterminated path`, "unterminated path"},
		{`single`, "single"},
		{``, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitProgram(tt.in), tt.in)
	}
}

func TestAccountName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `CORP\alice`, AccountName("alice", "CORP"))
	assert.Equal(t, "alice", AccountName("alice", ""))
	assert.Equal(t, "alice@corp.example", AccountName("alice@corp.example", "CORP"))
}

func TestFakeConfirmScript(t *testing.T) {
	t.Parallel()

	f := &Fake{Answers: []bool{true, false}, Default: true}
	assert.True(t, f.Confirm(PromptTitle, PromptCommandLocks))
	assert.False(t, f.Confirm(PromptTitle, PromptCommandLocks))
	assert.True(t, f.Confirm(PromptTitle, PromptCommandLocks))
	assert.Equal(t, 3, f.Prompts())
}

func TestFakeLogon(t *testing.T) {
	t.Parallel()

	f := &Fake{}
	cred, err := f.Logon("bob", "WORK", "secret")
	require.NoError(t, err)
	assert.Equal(t, `WORK\bob`, cred.String())
	assert.False(t, cred.Restricted())

	ran := false
	require.NoError(t, cred.Impersonate(func() error { ran = true; return nil }))
	assert.True(t, ran)
	require.NoError(t, cred.Close())

	f.LogonErr = errors.New("bad password")
	_, err = f.Logon("bob", "WORK", "wrong")
	require.Error(t, err)
	assert.Equal(t, []string{`WORK\bob`, `WORK\bob`}, f.Logons())
}

func TestNativeComputerName(t *testing.T) {
	t.Parallel()
	assert.NotEmpty(t, Native().ComputerName())
}

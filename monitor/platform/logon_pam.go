//go:build linux && cgo && pam
// +build linux,cgo,pam

package platform

import (
	"errors"
	"fmt"

	"github.com/msteinert/pam"

	"github.com/lomo74/mfilemon/monitor/status"
)

// pamService is the PAM stack passwords are checked against.
const pamService = "login"

// checkPassword authenticates name through PAM and checks that the
// account may be used.
func checkPassword(name, password string) error {
	t, err := pam.StartFunc(pamService, name, func(s pam.Style, msg string) (string, error) {
		switch s {
		case pam.PromptEchoOff, pam.PromptEchoOn:
			return password, nil
		case pam.ErrorMsg, pam.TextInfo:
			return "", nil
		}
		return "", errors.New("unrecognized PAM message style")
	})
	if err != nil {
		return fmt.Errorf("pam start: %v: %w", err, status.ErrLogonFailure)
	}
	if err := t.Authenticate(0); err != nil {
		return fmt.Errorf("%v: %w", err, status.ErrLogonFailure)
	}
	if err := t.AcctMgmt(0); err != nil {
		return fmt.Errorf("%v: %w", err, status.ErrLogonFailure)
	}
	return nil
}

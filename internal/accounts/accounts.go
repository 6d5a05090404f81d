// Package accounts loads login credentials from an accounts file and
// optionally watches it for edits, so long-running commands pick up
// rotated passwords without a restart.
package accounts

import (
	"fmt"
	"os"

	"github.com/nmxmxh/empire-core/pkg/json"
)

// Account is one login identity. ServerURL and Zone override the
// process configuration when set.
type Account struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	ServerURL string `json:"server_url,omitempty"`
	Zone      string `json:"zone,omitempty"`
}

// Load reads and validates the accounts file.
func Load(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", path, err)
	}
	for i, account := range accounts {
		if account.Username == "" {
			return nil, fmt.Errorf("account %d: missing username", i)
		}
		if account.Password == "" {
			return nil, fmt.Errorf("account %d (%s): missing password", i, account.Username)
		}
	}
	return accounts, nil
}

// First returns the first account of the file.
func First(path string) (Account, error) {
	accounts, err := Load(path)
	if err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{}, fmt.Errorf("accounts file %s is empty", path)
	}
	return accounts[0], nil
}

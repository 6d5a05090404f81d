package accounts

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeAccounts(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	writeAccounts(t, path, `[
		{"username":"lord","password":"castle"},
		{"username":"vassal","password":"moat","server_url":"wss://ep-live-de1-game.goodgamestudios.com/","zone":"EmpireEx_2"}
	]`)

	accounts, err := Load(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "lord", accounts[0].Username)
	assert.Empty(t, accounts[0].Zone)
	assert.Equal(t, "EmpireEx_2", accounts[1].Zone)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read accounts file")

	bad := filepath.Join(dir, "bad.json")
	writeAccounts(t, bad, `{not json`)
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse accounts file")

	anonymous := filepath.Join(dir, "anonymous.json")
	writeAccounts(t, anonymous, `[{"password":"x"}]`)
	_, err = Load(anonymous)
	assert.ErrorContains(t, err, "missing username")

	passwordless := filepath.Join(dir, "passwordless.json")
	writeAccounts(t, passwordless, `[{"username":"lord"}]`)
	_, err = Load(passwordless)
	assert.ErrorContains(t, err, "missing password")
}

func TestFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	writeAccounts(t, path, `[{"username":"lord","password":"castle"},{"username":"other","password":"y"}]`)

	account, err := First(path)
	require.NoError(t, err)
	assert.Equal(t, "lord", account.Username)

	empty := filepath.Join(dir, "empty.json")
	writeAccounts(t, empty, `[]`)
	_, err = First(empty)
	assert.ErrorContains(t, err, "is empty")
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	writeAccounts(t, path, `[{"username":"lord","password":"castle"}]`)

	var mu sync.Mutex
	var latest []Account
	w, err := NewWatcher(zaptest.NewLogger(t), path, func(accounts []Account) {
		mu.Lock()
		latest = accounts
		mu.Unlock()
	})
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop()) }()

	writeAccounts(t, path, `[{"username":"lord","password":"castle"},{"username":"vassal","password":"moat"}]`)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 2
	}, 3*time.Second, 25*time.Millisecond)
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	writeAccounts(t, path, `[{"username":"lord","password":"castle"}]`)

	calls := make(chan struct{}, 4)
	w, err := NewWatcher(zaptest.NewLogger(t), path, func([]Account) { calls <- struct{}{} })
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop()) }()

	writeAccounts(t, filepath.Join(dir, "unrelated.txt"), "noise")

	select {
	case <-calls:
		t.Fatal("unrelated file must not trigger a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchKeepsListOnBrokenRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	writeAccounts(t, path, `[{"username":"lord","password":"castle"}]`)

	calls := make(chan int, 4)
	w, err := NewWatcher(zaptest.NewLogger(t), path, func(accounts []Account) { calls <- len(accounts) })
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { require.NoError(t, w.Stop()) }()

	writeAccounts(t, path, `{broken`)

	select {
	case <-calls:
		t.Fatal("a broken rewrite must not reach the callback")
	case <-time.After(300 * time.Millisecond):
	}
}

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/empire-core/internal/config"
	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

type fakeWire struct {
	mu           sync.Mutex
	connected    bool
	connectCalls int
	connectErr   error
	sendErr      error
	sent         chan string
}

func newFakeWire() *fakeWire {
	return &fakeWire{sent: make(chan string, 16)}
}

func (f *fakeWire) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeWire) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeWire) Send(_ context.Context, frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent <- frame
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Zone:           "EmpireEx_21",
		GameVersion:    "166",
		Username:       "lord",
		Password:       "castle",
		ConnectTimeout: time.Second,
		LoginTimeout:   2 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

func newTestSession(t *testing.T, cfg *config.Config) (*Session, *fakeWire, *dispatch.Dispatcher) {
	t.Helper()
	fw := newFakeWire()
	d := dispatch.New(zaptest.NewLogger(t))
	sess := New(cfg, fw, d, zaptest.NewLogger(t))
	return sess, fw, d
}

func nextFrame(t *testing.T, fw *fakeWire) string {
	t.Helper()
	select {
	case frame := <-fw.sent:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame sent")
		return ""
	}
}

func reply(t *testing.T, d *dispatch.Dispatcher, raw string) {
	t.Helper()
	pkt, err := protocol.Decode([]byte(raw))
	require.NoError(t, err)
	d.Dispatch(pkt)
}

func TestLoginHandshake(t *testing.T) {
	sess, fw, d := newTestSession(t, testConfig())

	done := make(chan error, 1)
	go func() { done <- sess.Login(context.Background()) }()

	assert.Equal(t, protocol.VersionCheckMessage("166"), nextFrame(t, fw))
	reply(t, d, "<msg t='sys'><body action='apiOK' r='0'></body></msg>")

	assert.Equal(t, protocol.ZoneLoginMessage("EmpireEx_21"), nextFrame(t, fw))
	reply(t, d, "<msg t='sys'><body action='rlu' r='0'></body></msg>")

	assert.Equal(t, protocol.AutoJoinMessage(), nextFrame(t, fw))
	reply(t, d, "<msg t='sys'><body action='joinOK' r='1'></body></msg>")

	lli := nextFrame(t, fw)
	require.True(t, strings.HasPrefix(lli, "%xt%EmpireEx_21%lli%1%{"), lli)
	pkt, err := protocol.DecodeExtension(lli)
	require.NoError(t, err)
	payload := pkt.PayloadMap()
	assert.Equal(t, "lord", payload["NOM"])
	assert.Equal(t, "castle", payload["PW"])
	assert.Equal(t, "en", payload["LANG"])
	assert.Equal(t, "https://empire.goodgamestudios.com", payload["REF"])
	assert.Nil(t, payload["LT"])

	reply(t, d, `%xt%EmpireEx_21%lli%1%{"error_code":0}%`)

	require.NoError(t, <-done)
	assert.True(t, sess.LoggedIn())
}

func TestLoginCooldown(t *testing.T) {
	sess, fw, d := newTestSession(t, testConfig())

	done := make(chan error, 1)
	go func() { done <- sess.Login(context.Background()) }()

	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='apiOK' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='rlu' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='joinOK' r='1'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, `%xt%EmpireEx_21%lli%1%21%{"CD":37}%`)

	err := <-done
	var cooldown *gameerr.LoginCooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 37, cooldown.Seconds)
	assert.False(t, sess.LoggedIn())
}

func TestLoginAuthFailure(t *testing.T) {
	sess, fw, d := newTestSession(t, testConfig())

	done := make(chan error, 1)
	go func() { done <- sess.Login(context.Background()) }()

	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='apiOK' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='rlu' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='joinOK' r='1'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, `%xt%EmpireEx_21%lli%1%{"error_code":3}%`)

	err := <-done
	var authErr *gameerr.AuthFailedError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 3, authErr.Code)
	assert.False(t, sess.LoggedIn())
}

func TestJoinTimeoutIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 100 * time.Millisecond
	sess, fw, d := newTestSession(t, cfg)

	done := make(chan error, 1)
	go func() { done <- sess.Login(context.Background()) }()

	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='apiOK' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='rlu' r='0'></body></msg>")
	nextFrame(t, fw) // autoJoin goes unanswered

	lli := nextFrame(t, fw)
	require.Contains(t, lli, "%lli%")
	reply(t, d, `%xt%EmpireEx_21%lli%1%{"error_code":0}%`)

	require.NoError(t, <-done)
	assert.True(t, sess.LoggedIn())
}

func TestVersionCheckTimeoutFails(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	sess, fw, _ := newTestSession(t, cfg)

	done := make(chan error, 1)
	go func() { done <- sess.Login(context.Background()) }()

	nextFrame(t, fw) // verChk goes unanswered

	err := <-done
	assert.ErrorIs(t, err, gameerr.ErrTimeout)
	assert.False(t, sess.LoggedIn())
}

func TestLoginRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Username = ""
	sess, fw, _ := newTestSession(t, cfg)

	err := sess.Login(context.Background())
	var vErr *gameerr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "username", vErr.Field)
	assert.Zero(t, fw.connectCalls)
}

func TestLoginConnectFailure(t *testing.T) {
	cfg := testConfig()
	sess, fw, _ := newTestSession(t, cfg)
	fw.connectErr = errors.New("connection refused")

	err := sess.Login(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, sess.LoggedIn())
}

func TestLoginSkipsDialWhenConnected(t *testing.T) {
	sess, fw, d := newTestSession(t, testConfig())
	fw.mu.Lock()
	fw.connected = true
	fw.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- sess.Login(context.Background()) }()

	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='apiOK' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='rlu' r='0'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, "<msg t='sys'><body action='joinOK' r='1'></body></msg>")
	nextFrame(t, fw)
	reply(t, d, `%xt%EmpireEx_21%lli%1%{"error_code":0}%`)

	require.NoError(t, <-done)
	assert.Zero(t, fw.connectCalls)
}

func TestResetClearsLoggedIn(t *testing.T) {
	sess, _, _ := newTestSession(t, testConfig())
	sess.loggedIn.Store(true)

	sess.Reset()
	assert.False(t, sess.LoggedIn())
}

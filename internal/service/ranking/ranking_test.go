package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	"github.com/nmxmxh/empire-core/internal/request"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

type fakeWire struct {
	d     *dispatch.Dispatcher
	reply func(frame string) string
	sent  []string
}

func (f *fakeWire) Send(_ context.Context, frame string) error {
	f.sent = append(f.sent, frame)
	if f.reply == nil {
		return nil
	}
	response := f.reply(frame)
	if response == "" {
		return nil
	}
	pkt, err := protocol.Decode([]byte(response))
	if err != nil {
		return err
	}
	f.d.Dispatch(pkt)
	return nil
}

func newService(t *testing.T) (*Service, *fakeWire) {
	t.Helper()
	d := dispatch.New(zaptest.NewLogger(t))
	d.SetOnline(true)
	wire := &fakeWire{d: d}
	api := request.NewAPI(request.APIOptions{Zone: "EmpireEx_21", Timeout: time.Second}, wire, d, nil, zaptest.NewLogger(t))
	return New(api, zaptest.NewLogger(t)), wire
}

func TestAroundReturnsOwnPage(t *testing.T) {
	svc, wire := newService(t)
	wire.reply = func(string) string {
		return `%xt%EmpireEx_21%hgh%1%0%{"LT":6,"R":812,"L":[[811,50100,"rival"],[812,50000,"me"]]}%`
	}

	page, err := svc.Around(context.Background(), request.RankingPlayerMight)
	require.NoError(t, err)
	assert.Equal(t, 812, page.OwnRank)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "me", page.Entries[1].Name)
	require.Len(t, wire.sent, 1)
	assert.Contains(t, wire.sent[0], `"SV":"-1"`)
}

func TestSearchRequiresName(t *testing.T) {
	svc, wire := newService(t)

	_, err := svc.Search(context.Background(), request.RankingPlayerHonor, "")
	var verr *gameerr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
	assert.Empty(t, wire.sent)
}

func TestPageUsesRankOffset(t *testing.T) {
	svc, wire := newService(t)
	wire.reply = func(string) string {
		return `%xt%EmpireEx_21%llsp%1%0%{"LT":5,"L":[[1,999,"leader"]]}%`
	}

	page, err := svc.Page(context.Background(), request.RankingPlayerHonor, 100)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Len(t, wire.sent, 1)
	assert.Contains(t, wire.sent[0], "%llsp%")
	assert.Contains(t, wire.sent[0], `"R":100`)
}

func TestTopStartsAtRankZero(t *testing.T) {
	svc, wire := newService(t)
	wire.reply = func(string) string {
		return `%xt%EmpireEx_21%llsp%1%0%{"LT":5,"L":[]}%`
	}

	_, err := svc.Top(context.Background(), request.RankingPlayerHonor)
	require.NoError(t, err)
	require.Len(t, wire.sent, 1)
	assert.Contains(t, wire.sent[0], `"R":0`)
}

func TestServerRejectionSurfaces(t *testing.T) {
	svc, wire := newService(t)
	wire.reply = func(string) string {
		return `%xt%EmpireEx_21%hgh%1%64%{}%`
	}

	_, err := svc.Around(context.Background(), request.RankingPlayerMight)
	var serr *gameerr.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 64, serr.Code)
}

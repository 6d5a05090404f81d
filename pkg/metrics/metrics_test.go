package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegister(t *testing.T) {
	// promauto registers on the default registry at init; touching each
	// collector here catches duplicate registration panics early.
	PacketsTotal.WithLabelValues("extension", "gam").Inc()
	DecodeErrorsTotal.Inc()
	FramesSentTotal.WithLabelValues("xml").Inc()
	ReconnectsTotal.Inc()
	WaitersActive.Set(3)
	DispatchDuration.Observe(0.002)
	IncomingAttacks.Inc()

	assert.GreaterOrEqual(t, testutil.ToFloat64(DecodeErrorsTotal), 1.0)
	assert.Equal(t, 3.0, testutil.ToFloat64(WaitersActive))
}

func TestPacketCounterLabels(t *testing.T) {
	before := testutil.ToFloat64(PacketsTotal.WithLabelValues("extension", "mov"))
	PacketsTotal.WithLabelValues("extension", "mov").Inc()
	PacketsTotal.WithLabelValues("extension", "mov").Inc()
	assert.Equal(t, before+2, testutil.ToFloat64(PacketsTotal.WithLabelValues("extension", "mov")))
}

func TestNewServer(t *testing.T) {
	srv := NewServer(":0")
	require.NotNil(t, srv)
	assert.Equal(t, ":0", srv.Addr)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "empire_decode_errors_total")
}

package scan

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	"github.com/nmxmxh/empire-core/internal/request"
	"github.com/nmxmxh/empire-core/internal/state"
	"github.com/nmxmxh/empire-core/internal/store"
	"github.com/nmxmxh/empire-core/pkg/json"
)

// mapSender answers every chunk request inline with a synthetic gaa
// frame built from the populated set.
type mapSender struct {
	t    *testing.T
	d    *dispatch.Dispatcher
	size int

	mu        sync.Mutex
	requests  []request.MapChunk
	populated map[store.Chunk]int
	silent    bool
	onSend    func(req request.MapChunk)
}

func newMapSender(t *testing.T, d *dispatch.Dispatcher) *mapSender {
	return &mapSender{t: t, d: d, size: DefaultChunkSize, populated: map[store.Chunk]int{}}
}

func (m *mapSender) Send(_ context.Context, req request.Request) error {
	chunkReq, ok := req.(request.MapChunk)
	require.True(m.t, ok, "scanner must send chunk requests")

	m.mu.Lock()
	m.requests = append(m.requests, chunkReq)
	silent := m.silent
	hook := m.onSend
	chunk := store.Chunk{X: chunkReq.X1 / m.size, Y: chunkReq.Y1 / m.size}
	objects := m.populated[chunk]
	m.mu.Unlock()

	if hook != nil {
		hook(chunkReq)
	}
	if silent {
		return nil
	}

	areas := make([]any, 0, objects)
	for i := 0; i < objects; i++ {
		areaID := chunk.X*1000 + chunk.Y*10 + i
		areas = append(areas, []any{
			1, chunkReq.X1 + 5 + i, chunkReq.Y1 + 5, areaID, 900 + i, 14,
			0, 0, 0, 0, fmt.Sprintf("keep%d", areaID),
		})
	}
	body, err := json.MarshalToString(map[string]any{
		"KID": chunkReq.KingdomID,
		"AX1": chunkReq.X1, "AY1": chunkReq.Y1,
		"AX2": chunkReq.X2, "AY2": chunkReq.Y2,
		"AI": areas,
	})
	require.NoError(m.t, err)

	pkt, err := protocol.Decode([]byte(fmt.Sprintf("%%xt%%EmpireEx_21%%gaa%%1%%0%%%s%%", body)))
	require.NoError(m.t, err)
	m.d.Dispatch(pkt)
	return nil
}

func (m *mapSender) sent() []request.MapChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]request.MapChunk(nil), m.requests...)
}

func newScanFixture(t *testing.T) (*dispatch.Dispatcher, *state.Store, *mapSender) {
	d := dispatch.New(zaptest.NewLogger(t))
	d.SetOnline(true)
	world := state.NewStore(zaptest.NewLogger(t))
	// Mirror the client wiring: the world store consumes chunk
	// responses ahead of any scan subscription.
	d.Subscribe(protocol.CmdMapChunk, func(pkt *protocol.Packet) { world.Apply(pkt) })
	return d, world, newMapSender(t, d)
}

func fastOptions() Options {
	return Options{Rate: 10000, BatchTimeout: 2 * time.Second, MaxWaves: 10}
}

func TestScanStopsAtEmptyBorder(t *testing.T) {
	d, world, sender := newScanFixture(t)
	center := store.Chunk{X: 7, Y: 7}
	for _, chunk := range []store.Chunk{
		center, {X: 8, Y: 7}, {X: 6, Y: 7}, {X: 7, Y: 8}, {X: 7, Y: 6},
	} {
		sender.populated[chunk] = 1
	}

	persist := store.NewMemory()
	var progress []int
	opts := fastOptions()
	opts.OnProgress = func(wave, _, _ int) { progress = append(progress, wave) }

	scanner := New(opts, sender, d, world, persist, zaptest.NewLogger(t))
	result, err := scanner.Run(context.Background(), 0, center)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Waves)
	assert.Equal(t, 5, result.ObjectsFound)
	assert.Equal(t, 13, result.ChunksScanned)
	assert.Zero(t, result.ChunksSkipped)
	assert.Len(t, result.Objects, 5)
	assert.Equal(t, []int{1, 2}, progress)
	assert.Len(t, sender.sent(), 13)

	// The world store saw every chunk response through its own
	// subscription.
	assert.Equal(t, 5, world.MapObjectCount())

	saved, err := persist.MapObjectCount(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, saved)
	chunks, err := persist.ScannedChunks(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, chunks, 13)
}

func TestScanExpandsOnlyOpenDirections(t *testing.T) {
	d, world, sender := newScanFixture(t)
	center := store.Chunk{X: 7, Y: 7}
	sender.populated[center] = 1
	sender.populated[store.Chunk{X: 8, Y: 7}] = 1

	scanner := New(fastOptions(), sender, d, world, nil, zaptest.NewLogger(t))
	result, err := scanner.Run(context.Background(), 0, center)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Waves)
	// Wave two only probes eastward: west, north and south closed
	// after the first wave.
	require.Len(t, sender.sent(), 8)
	for _, req := range sender.sent()[5:] {
		assert.Greater(t, req.X1/DefaultChunkSize, center.X)
	}
	assert.Equal(t, 2, result.ObjectsFound)
}

func TestScanSkipsPersistedChunks(t *testing.T) {
	d, world, sender := newScanFixture(t)
	center := store.Chunk{X: 3, Y: 3}

	persist := store.NewMemory()
	ctx := context.Background()
	for _, chunk := range []store.Chunk{
		center, {X: 4, Y: 3}, {X: 2, Y: 3}, {X: 3, Y: 4}, {X: 3, Y: 2},
	} {
		require.NoError(t, persist.MarkChunkScanned(ctx, 0, chunk))
	}

	scanner := New(fastOptions(), sender, d, world, persist, zaptest.NewLogger(t))
	result, err := scanner.Run(ctx, 0, center)
	require.NoError(t, err)

	// Every first-wave chunk was already covered, which closes all
	// four borders without a single request.
	assert.Equal(t, 1, result.Waves)
	assert.Zero(t, result.ChunksScanned)
	assert.Equal(t, 5, result.ChunksSkipped)
	assert.Empty(t, sender.sent())
}

func TestScanWaveTimeoutDoesNotCloseBorders(t *testing.T) {
	d, world, sender := newScanFixture(t)
	sender.silent = true

	opts := fastOptions()
	opts.BatchTimeout = 30 * time.Millisecond
	opts.MaxWaves = 2

	scanner := New(opts, sender, d, world, nil, zaptest.NewLogger(t))
	result, err := scanner.Run(context.Background(), 0, store.Chunk{X: 1, Y: 1})
	require.NoError(t, err)

	// Unanswered chunks never vote a border closed, so the scan runs
	// into its wave cap.
	assert.Equal(t, 2, result.Waves)
	assert.Zero(t, result.ChunksScanned)
	assert.Len(t, sender.sent(), 13)
	assert.Zero(t, result.ObjectsFound)
}

func TestScanHonorsContext(t *testing.T) {
	d, world, sender := newScanFixture(t)
	sender.silent = true
	ctx, cancel := context.WithCancel(context.Background())
	sender.onSend = func(request.MapChunk) { cancel() }

	scanner := New(fastOptions(), sender, d, world, nil, zaptest.NewLogger(t))
	result, err := scanner.Run(ctx, 0, store.Chunk{X: 1, Y: 1})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
}

func TestWaveOffsets(t *testing.T) {
	assert.Len(t, waveOffsets(1), 5)
	assert.Len(t, waveOffsets(2), 8)
	assert.Len(t, waveOffsets(3), 12)

	seen := map[store.Chunk]bool{}
	for _, off := range waveOffsets(2) {
		assert.Equal(t, 2, abs(off.X)+abs(off.Y))
		assert.False(t, seen[off], "duplicate offset %v", off)
		seen[off] = true
	}
}

func TestObserveIgnoresUnknownChunks(t *testing.T) {
	r := &run{
		size:    DefaultChunkSize,
		pending: map[store.Chunk]bool{{X: 1, Y: 1}: true},
		empty:   make(map[store.Chunk]bool),
		areaIDs: make(map[int]bool),
		done:    make(chan struct{}),
	}
	pkt, err := protocol.Decode([]byte(`%xt%EmpireEx_21%gaa%1%0%{"AX1":900,"AY1":900,"AI":[]}%`))
	require.NoError(t, err)
	r.observe(pkt)

	assert.Len(t, r.pending, 1)
	assert.Empty(t, r.empty)
	select {
	case <-r.done:
		t.Fatal("batch must not complete on a foreign chunk")
	default:
	}
}

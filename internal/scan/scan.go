// Package scan walks a kingdom map outward from a start chunk in
// Manhattan-ring waves. Chunk responses all share one command, so the
// scanner listens on a durable subscription and tracks a pending batch
// instead of arming per-chunk waiters.
package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	"github.com/nmxmxh/empire-core/internal/request"
	"github.com/nmxmxh/empire-core/internal/state"
	"github.com/nmxmxh/empire-core/internal/store"
)

// DefaultChunkSize is the map area edge length covered by one chunk
// request.
const DefaultChunkSize = 90

// Sender issues chunk requests. *request.API satisfies it.
type Sender interface {
	Send(ctx context.Context, req request.Request) error
}

// Progress is invoked after every completed wave.
type Progress func(wave, chunksScanned, objectsFound int)

// Options tune a scanner. Zero values fall back to defaults.
type Options struct {
	// ChunkSize is the area edge length per chunk request.
	ChunkSize int
	// Rate caps chunk requests per second.
	Rate float64
	// BatchTimeout bounds the wait for one wave's responses.
	BatchTimeout time.Duration
	// MaxWaves stops a scan that never finds an empty border.
	MaxWaves int
	// OnProgress, when set, observes wave completions.
	OnProgress Progress
}

func (o *Options) withDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Rate <= 0 {
		o.Rate = 2.0
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 15 * time.Second
	}
	if o.MaxWaves <= 0 {
		o.MaxWaves = 20
	}
}

// Result summarizes one finished scan.
type Result struct {
	KingdomID     int
	Waves         int
	ChunksScanned int
	ChunksSkipped int
	ObjectsFound  int
	Objects       []state.MapObject
	Duration      time.Duration
}

// Scanner runs kingdom scans. It is safe to reuse for sequential runs.
type Scanner struct {
	opts    Options
	api     Sender
	disp    *dispatch.Dispatcher
	world   *state.Store
	persist store.Store
	log     *zap.Logger
}

// New builds a scanner. persist may be nil, in which case previously
// scanned chunks are not skipped and nothing is saved.
func New(opts Options, api Sender, disp *dispatch.Dispatcher, world *state.Store, persist store.Store, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	opts.withDefaults()
	return &Scanner{
		opts:    opts,
		api:     api,
		disp:    disp,
		world:   world,
		persist: persist,
		log:     log.With(zap.String("component", "scan")),
	}
}

const (
	dirNorth = iota
	dirEast
	dirSouth
	dirWest
)

// run is the mutable state of one scan. The subscription handler and
// the wave loop share it under mu.
type run struct {
	mu      sync.Mutex
	size    int
	pending map[store.Chunk]bool
	empty   map[store.Chunk]bool
	areaIDs map[int]bool
	done    chan struct{}
}

// observe folds one chunk response into the batch. It runs on the
// dispatch path and must not block.
func (r *run) observe(pkt *protocol.Packet) {
	body := pkt.PayloadMap()
	if body == nil {
		return
	}
	chunk := store.Chunk{
		X: asInt(body["AX1"]) / r.size,
		Y: asInt(body["AY1"]) / r.size,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pending[chunk] {
		return
	}
	delete(r.pending, chunk)

	areas, _ := body["AI"].([]any)
	count := 0
	for _, rawArea := range areas {
		ai, ok := rawArea.([]any)
		if !ok || len(ai) < 4 {
			continue
		}
		if id := asInt(ai[3]); id != 0 {
			r.areaIDs[id] = true
			count++
		}
	}
	r.empty[chunk] = count == 0

	if len(r.pending) == 0 {
		close(r.done)
	}
}

// Run scans kingdomID outward from center (in chunk coordinates) until
// every direction hits an empty border, MaxWaves is reached, or ctx
// ends. A partial Result accompanies any error.
func (s *Scanner) Run(ctx context.Context, kingdomID int, center store.Chunk) (*Result, error) {
	start := time.Now()
	result := &Result{KingdomID: kingdomID}

	skip := map[store.Chunk]bool{}
	if s.persist != nil {
		scanned, err := s.persist.ScannedChunks(ctx, kingdomID)
		if err != nil {
			s.log.Warn("could not load scanned chunks, scanning everything",
				zap.Int("kingdom_id", kingdomID), zap.Error(err))
		} else {
			skip = scanned
		}
	}

	r := &run{
		size:    s.opts.ChunkSize,
		empty:   make(map[store.Chunk]bool),
		areaIDs: make(map[int]bool),
	}
	sub := s.disp.Subscribe(protocol.CmdMapChunk, r.observe)
	defer s.disp.Unsubscribe(sub)

	limiter := rate.NewLimiter(rate.Limit(s.opts.Rate), 1)
	bounded := [4]bool{}
	visited := map[store.Chunk]bool{}

	for wave := 1; wave <= s.opts.MaxWaves; wave++ {
		todo, skipped := s.planWave(center, wave, bounded, visited, skip)
		result.ChunksSkipped += len(skipped)
		if len(todo) == 0 && len(skipped) == 0 {
			break
		}
		result.Waves = wave

		if len(todo) > 0 {
			if err := s.sendWave(ctx, limiter, r, kingdomID, todo); err != nil {
				s.finish(ctx, result, r, start)
				return result, err
			}
			if err := s.awaitWave(ctx, r); err != nil {
				s.finish(ctx, result, r, start)
				return result, err
			}
		}

		result.ChunksScanned += s.settleWave(ctx, r, kingdomID, todo)

		// Skipped chunks count as empty for border votes so a rescan
		// does not creep past the stored frontier.
		for _, chunk := range skipped {
			r.empty[chunk] = true
		}
		for dir := range bounded {
			if bounded[dir] {
				continue
			}
			bounded[dir] = waveEdgeEmpty(r, center, wave, dir, visited)
		}

		if s.opts.OnProgress != nil {
			s.opts.OnProgress(wave, result.ChunksScanned, len(r.areaIDs))
		}
		if bounded[dirNorth] && bounded[dirEast] && bounded[dirSouth] && bounded[dirWest] {
			break
		}
	}

	s.finish(ctx, result, r, start)
	s.log.Info("scan complete",
		zap.Int("kingdom_id", kingdomID),
		zap.Int("waves", result.Waves),
		zap.Int("chunks", result.ChunksScanned),
		zap.Int("objects", result.ObjectsFound),
		zap.Duration("took", result.Duration))
	return result, nil
}

// planWave lists the chunks of one wave that still expand an unbounded
// direction, split into to-scan and already-persisted.
func (s *Scanner) planWave(center store.Chunk, wave int, bounded [4]bool, visited, skip map[store.Chunk]bool) (todo, skipped []store.Chunk) {
	for _, off := range waveOffsets(wave) {
		chunk := store.Chunk{X: center.X + off.X, Y: center.Y + off.Y}
		if visited[chunk] {
			continue
		}
		if wave > 1 && !expandsUnbounded(off, bounded) {
			continue
		}
		visited[chunk] = true
		if skip[chunk] {
			skipped = append(skipped, chunk)
			continue
		}
		todo = append(todo, chunk)
	}
	return todo, skipped
}

func (s *Scanner) sendWave(ctx context.Context, limiter *rate.Limiter, r *run, kingdomID int, todo []store.Chunk) error {
	r.mu.Lock()
	r.pending = make(map[store.Chunk]bool, len(todo))
	for _, chunk := range todo {
		r.pending[chunk] = true
	}
	r.done = make(chan struct{})
	r.mu.Unlock()

	size := s.opts.ChunkSize
	for _, chunk := range todo {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		req := request.MapChunk{
			KingdomID: kingdomID,
			X1:        chunk.X * size,
			Y1:        chunk.Y * size,
			X2:        chunk.X*size + size - 1,
			Y2:        chunk.Y*size + size - 1,
		}
		if err := s.api.Send(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) awaitWave(ctx context.Context, r *run) error {
	timer := time.NewTimer(s.opts.BatchTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-timer.C:
		r.mu.Lock()
		missing := len(r.pending)
		r.pending = nil
		r.mu.Unlock()
		s.log.Warn("wave timed out with unanswered chunks", zap.Int("missing", missing))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settleWave persists what the wave produced and returns how many of
// its chunks were answered.
func (s *Scanner) settleWave(ctx context.Context, r *run, kingdomID int, todo []store.Chunk) int {
	answered := 0
	r.mu.Lock()
	chunks := make([]store.Chunk, 0, len(todo))
	for _, chunk := range todo {
		if _, ok := r.empty[chunk]; ok {
			answered++
			chunks = append(chunks, chunk)
		}
	}
	r.mu.Unlock()

	if s.persist == nil {
		return answered
	}
	for _, chunk := range chunks {
		if err := s.persist.MarkChunkScanned(ctx, kingdomID, chunk); err != nil {
			s.log.Warn("could not mark chunk scanned", zap.Error(err))
			return answered
		}
	}
	return answered
}

// finish resolves collected area ids into objects and saves them.
func (s *Scanner) finish(ctx context.Context, result *Result, r *run, start time.Time) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.areaIDs))
	for id := range r.areaIDs {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Ints(ids)

	result.ObjectsFound = len(ids)
	result.Objects = make([]state.MapObject, 0, len(ids))
	if s.world != nil {
		for _, id := range ids {
			if obj := s.world.MapObject(id); obj != nil {
				result.Objects = append(result.Objects, *obj)
			}
		}
	}
	result.Duration = time.Since(start)

	if s.persist != nil && len(result.Objects) > 0 {
		if err := s.persist.SaveMapObjects(ctx, result.Objects); err != nil {
			s.log.Warn("could not save map objects", zap.Error(err))
		}
	}
}

// waveOffsets yields the chunk offsets of one wave. The first wave is
// the center plus its four orthogonal neighbors; wave k is the ring at
// Manhattan distance k.
func waveOffsets(wave int) []store.Chunk {
	if wave == 1 {
		return []store.Chunk{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: -1}}
	}
	offsets := make([]store.Chunk, 0, 4*wave)
	for dx := -wave; dx <= wave; dx++ {
		dy := wave - abs(dx)
		offsets = append(offsets, store.Chunk{X: dx, Y: dy})
		if dy != 0 {
			offsets = append(offsets, store.Chunk{X: dx, Y: -dy})
		}
	}
	return offsets
}

// expandsUnbounded reports whether an offset pushes into at least one
// direction that has not hit an empty border yet.
func expandsUnbounded(off store.Chunk, bounded [4]bool) bool {
	if off.X > 0 && !bounded[dirEast] {
		return true
	}
	if off.X < 0 && !bounded[dirWest] {
		return true
	}
	if off.Y > 0 && !bounded[dirSouth] {
		return true
	}
	if off.Y < 0 && !bounded[dirNorth] {
		return true
	}
	return false
}

// waveEdgeEmpty reports whether every chunk of this wave lying on the
// given edge came back empty. Unanswered chunks vote non-empty so a
// lossy wave cannot close a border.
func waveEdgeEmpty(r *run, center store.Chunk, wave, dir int, visited map[store.Chunk]bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := 0
	for _, off := range waveOffsets(wave) {
		if !onEdge(off, dir) {
			continue
		}
		chunk := store.Chunk{X: center.X + off.X, Y: center.Y + off.Y}
		if !visited[chunk] {
			continue
		}
		members++
		empty, answered := r.empty[chunk]
		if !answered || !empty {
			return false
		}
	}
	return members > 0
}

func onEdge(off store.Chunk, dir int) bool {
	switch dir {
	case dirNorth:
		return off.Y < 0
	case dirSouth:
		return off.Y > 0
	case dirEast:
		return off.X > 0
	case dirWest:
		return off.X < 0
	default:
		return false
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

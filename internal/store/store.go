// Package store is the optional persistence boundary. The client core
// calls it through the Store interface and never assumes durability;
// the in-memory implementation is the default and the Redis one is
// opt-in via configuration.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nmxmxh/empire-core/internal/state"
)

// Chunk addresses one map chunk in chunk-grid coordinates.
type Chunk struct {
	X int
	Y int
}

func (c Chunk) String() string { return fmt.Sprintf("%d:%d", c.X, c.Y) }

// Store persists scan output between sessions.
type Store interface {
	// SaveMapObjects upserts discovered map objects by area id.
	SaveMapObjects(ctx context.Context, objects []state.MapObject) error
	// MapObjects returns all stored objects for a kingdom.
	MapObjects(ctx context.Context, kingdomID int) ([]state.MapObject, error)
	// MapObjectCount returns the number of stored objects for a kingdom.
	MapObjectCount(ctx context.Context, kingdomID int) (int, error)
	// MarkChunkScanned records that a chunk has been requested and
	// answered.
	MarkChunkScanned(ctx context.Context, kingdomID int, chunk Chunk) error
	// ScannedChunks returns the set of chunks already covered for a
	// kingdom.
	ScannedChunks(ctx context.Context, kingdomID int) (map[Chunk]bool, error)
	// Close releases any underlying resources.
	Close() error
}

// Memory is the default Store. Everything lives in process memory.
type Memory struct {
	mu      sync.RWMutex
	objects map[int]map[int]state.MapObject
	chunks  map[int]map[Chunk]bool
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[int]map[int]state.MapObject),
		chunks:  make(map[int]map[Chunk]bool),
	}
}

func (m *Memory) SaveMapObjects(_ context.Context, objects []state.MapObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range objects {
		if obj.AreaID == 0 {
			continue
		}
		kingdom := m.objects[obj.KingdomID]
		if kingdom == nil {
			kingdom = make(map[int]state.MapObject)
			m.objects[obj.KingdomID] = kingdom
		}
		kingdom[obj.AreaID] = obj
	}
	return nil
}

func (m *Memory) MapObjects(_ context.Context, kingdomID int) ([]state.MapObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kingdom := m.objects[kingdomID]
	objects := make([]state.MapObject, 0, len(kingdom))
	for _, obj := range kingdom {
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].AreaID < objects[j].AreaID })
	return objects, nil
}

func (m *Memory) MapObjectCount(_ context.Context, kingdomID int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[kingdomID]), nil
}

func (m *Memory) MarkChunkScanned(_ context.Context, kingdomID int, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kingdom := m.chunks[kingdomID]
	if kingdom == nil {
		kingdom = make(map[Chunk]bool)
		m.chunks[kingdomID] = kingdom
	}
	kingdom[chunk] = true
	return nil
}

func (m *Memory) ScannedChunks(_ context.Context, kingdomID int) (map[Chunk]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks := make(map[Chunk]bool, len(m.chunks[kingdomID]))
	for chunk := range m.chunks[kingdomID] {
		chunks[chunk] = true
	}
	return chunks, nil
}

func (m *Memory) Close() error { return nil }

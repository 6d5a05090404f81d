package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/state"
	"github.com/nmxmxh/empire-core/pkg/json"
	"github.com/nmxmxh/empire-core/pkg/redis"
)

// Redis persists scan output in Redis. Map objects live in one hash
// per kingdom keyed by area id; scanned chunks live in one set per
// kingdom with "x:y" members.
type Redis struct {
	client *redis.Client
	keys   *redis.KeyBuilder
	log    *zap.Logger
}

func NewRedis(client *redis.Client, log *zap.Logger) *Redis {
	return &Redis{
		client: client,
		keys:   redis.NewKeyBuilder("empire", "world"),
		log:    log.With(zap.String("component", "store")),
	}
}

func (r *Redis) objectsKey(kingdomID int) string {
	return r.keys.Build("objects", fmt.Sprintf("k%d", kingdomID))
}

func (r *Redis) chunksKey(kingdomID int) string {
	return r.keys.Build("chunks", fmt.Sprintf("k%d", kingdomID))
}

func (r *Redis) SaveMapObjects(ctx context.Context, objects []state.MapObject) error {
	if len(objects) == 0 {
		return nil
	}
	byKingdom := make(map[int][]any)
	for _, obj := range objects {
		if obj.AreaID == 0 {
			continue
		}
		doc, err := json.MarshalToString(obj)
		if err != nil {
			return fmt.Errorf("marshal map object %d: %w", obj.AreaID, err)
		}
		byKingdom[obj.KingdomID] = append(byKingdom[obj.KingdomID],
			strconv.Itoa(obj.AreaID), doc)
	}
	pipe := r.client.Pipeline()
	for kid, pairs := range byKingdom {
		pipe.HSet(ctx, r.objectsKey(kid), pairs...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save map objects: %w", err)
	}
	return nil
}

func (r *Redis) MapObjects(ctx context.Context, kingdomID int) ([]state.MapObject, error) {
	docs, err := r.client.HVals(ctx, r.objectsKey(kingdomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load map objects: %w", err)
	}
	objects := make([]state.MapObject, 0, len(docs))
	for _, doc := range docs {
		var obj state.MapObject
		if err := json.UnmarshalFromString(doc, &obj); err != nil {
			r.log.Warn("skipping undecodable map object", zap.Error(err))
			continue
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (r *Redis) MapObjectCount(ctx context.Context, kingdomID int) (int, error) {
	n, err := r.client.HLen(ctx, r.objectsKey(kingdomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count map objects: %w", err)
	}
	return int(n), nil
}

func (r *Redis) MarkChunkScanned(ctx context.Context, kingdomID int, chunk Chunk) error {
	if err := r.client.SAdd(ctx, r.chunksKey(kingdomID), chunk.String()).Err(); err != nil {
		return fmt.Errorf("mark chunk scanned: %w", err)
	}
	return nil
}

func (r *Redis) ScannedChunks(ctx context.Context, kingdomID int) (map[Chunk]bool, error) {
	members, err := r.client.SMembers(ctx, r.chunksKey(kingdomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load scanned chunks: %w", err)
	}
	chunks := make(map[Chunk]bool, len(members))
	for _, member := range members {
		chunk, ok := parseChunk(member)
		if !ok {
			continue
		}
		chunks[chunk] = true
	}
	return chunks, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func parseChunk(s string) (Chunk, bool) {
	x, y, ok := strings.Cut(s, ":")
	if !ok {
		return Chunk{}, false
	}
	cx, err := strconv.Atoi(x)
	if err != nil {
		return Chunk{}, false
	}
	cy, err := strconv.Atoi(y)
	if err != nil {
		return Chunk{}, false
	}
	return Chunk{X: cx, Y: cy}, true
}

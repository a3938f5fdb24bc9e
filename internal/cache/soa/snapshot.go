package soa

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces all snapshot keys in Redis.
const defaultKeyPrefix = "soa_cache"

// snapshotEntry is the JSON shape of one persisted entry.
type snapshotEntry struct {
	PromptHash    string  `json:"prompt_hash"`
	PromptPreview string  `json:"prompt_preview"`
	Response      string  `json:"response"`
	CreatedAt     float64 `json:"created_at"`
	HitCount      int64   `json:"hit_count"`
}

// RedisSnapshot mirrors the cache state into Redis so a restart can resume
// with a warm cache. The layout is three key families under one prefix:
//
//	<prefix>:count       ASCII entry count
//	<prefix>:entry:<i>   JSON metadata for slot i
//	<prefix>:embeddings  the whole matrix as little-endian float32 bytes
//
// Writes go through MULTI/EXEC so a reader never observes a count without
// its matching blob.
type RedisSnapshot struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSnapshot wraps an existing Redis client. An empty prefix falls back
// to the default.
func NewRedisSnapshot(client redis.UniversalClient, prefix string) *RedisSnapshot {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisSnapshot{client: client, prefix: prefix}
}

func (s *RedisSnapshot) key(suffix string) string {
	return s.prefix + ":" + suffix
}

func (s *RedisSnapshot) entryKey(i int) string {
	return s.key("entry:" + strconv.Itoa(i))
}

// persistSlot writes one updated slot plus the count and the full matrix.
// This is the per-insert path: only the touched entry needs new JSON.
func (s *RedisSnapshot) persistSlot(ctx context.Context, count, slot int, e *Entry, columns []float32) error {
	payload, err := json.Marshal(toSnapshotEntry(e))
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	blob := encodeMatrix(columns)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(slot), payload, 0)
		pipe.Set(ctx, s.key("count"), strconv.Itoa(count), 0)
		pipe.Set(ctx, s.key("embeddings"), blob, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

// persistAll rewrites every occupied slot. Used after invalidation, when
// compaction may have moved entries between slots.
func (s *RedisSnapshot) persistAll(ctx context.Context, entries []*Entry, columns []float32) error {
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		p, err := json.Marshal(toSnapshotEntry(e))
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", i, err)
		}
		payloads[i] = p
	}
	blob := encodeMatrix(columns)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range payloads {
			pipe.Set(ctx, s.entryKey(i), p, 0)
		}
		pipe.Set(ctx, s.key("count"), strconv.Itoa(len(entries)), 0)
		pipe.Set(ctx, s.key("embeddings"), blob, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis exec: %w", err)
	}
	return nil
}

// restoredState carries a fully validated snapshot back to the cache.
type restoredState struct {
	count   int
	columns []float32
	entries []*Entry
}

// restore reads the snapshot back. It returns (nil, nil) when no snapshot
// exists. Any missing or malformed piece fails the whole restore, partial
// state never reaches the cache.
func (s *RedisSnapshot) restore(ctx context.Context, dim, maxEntries int) (*restoredState, error) {
	countRaw, err := s.client.Get(ctx, s.key("count")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(countRaw))
	if err != nil {
		return nil, fmt.Errorf("parse count %q: %w", countRaw, err)
	}
	if count < 0 || count > maxEntries {
		return nil, fmt.Errorf("snapshot count %d out of range [0, %d]", count, maxEntries)
	}

	blob, err := s.client.Get(ctx, s.key("embeddings")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("snapshot has a count but no embeddings blob")
	}
	if err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	if want := dim * maxEntries * 4; len(blob) != want {
		return nil, fmt.Errorf("embeddings blob is %d bytes, want %d", len(blob), want)
	}

	entries := make([]*Entry, count)
	for i := 0; i < count; i++ {
		raw, err := s.client.Get(ctx, s.entryKey(i)).Bytes()
		if err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
		var se snapshotEntry
		if err := json.Unmarshal(raw, &se); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", i, err)
		}
		entries[i] = fromSnapshotEntry(se)
	}

	return &restoredState{
		count:   count,
		columns: decodeMatrix(blob),
		entries: entries,
	}, nil
}

func toSnapshotEntry(e *Entry) snapshotEntry {
	return snapshotEntry{
		PromptHash:    e.PromptHash,
		PromptPreview: e.PromptPreview,
		Response:      e.Response,
		CreatedAt:     e.CreatedAt,
		HitCount:      e.hits.Load(),
	}
}

func fromSnapshotEntry(se snapshotEntry) *Entry {
	e := &Entry{
		PromptHash:    se.PromptHash,
		PromptPreview: se.PromptPreview,
		Response:      se.Response,
		CreatedAt:     se.CreatedAt,
	}
	e.hits.Store(se.HitCount)
	return e
}

// encodeMatrix serializes float32 values as little-endian bytes.
func encodeMatrix(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeMatrix is the inverse of encodeMatrix.
func decodeMatrix(raw []byte) []float32 {
	vals := make([]float32, len(raw)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vals
}

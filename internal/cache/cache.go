// Package cache stores finished answer payloads keyed by the
// normalized question. It sits in front of the pipeline, never inside
// it: a hit skips the loop entirely, a miss is invisible.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

type Cache interface {
	Get(ctx context.Context, question string) ([]byte, bool, error)
	Set(ctx context.Context, question string, payload []byte) error
}

// Key normalizes the question and hashes it, so trivial whitespace and
// case differences share an entry.
func Key(question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is a TTL cache for single-process deployments and tests.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Memory{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *Memory) Get(_ context.Context, question string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := Key(question)
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.payload, true, nil
}

func (m *Memory) Set(_ context.Context, question string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[Key(question)] = memoryEntry{payload: payload, expiresAt: m.now().Add(m.ttl)}
	return nil
}

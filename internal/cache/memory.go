package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// sweepEvery is how many Sets pass between index sweeps.
const sweepEvery = 1024

type Memory struct {
	rc *ristretto.Cache[string, []byte]

	// ristretto only keeps key hashes, so prefix deletes need their own
	// index. Values are expiry times; keys ristretto no longer holds are
	// pruned on a Get miss or by the periodic sweep.
	mu     sync.Mutex
	keys   map[string]time.Time
	writes int
}

func NewMemory(maxCost int64) (*Memory, error) {
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("new ristretto cache: %w", err)
	}
	return &Memory{rc: rc, keys: make(map[string]time.Time)}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.rc.Get(key)
	if !ok {
		m.mu.Lock()
		if _, live := m.rc.GetTTL(key); !live {
			delete(m.keys, key)
		}
		m.mu.Unlock()
	}
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.rc.SetWithTTL(key, val, int64(len(val))+1, ttl)
	// make the write visible to the next Get
	m.rc.Wait()

	now := time.Now()
	m.mu.Lock()
	m.keys[key] = now.Add(ttl)
	m.writes++
	if m.writes%sweepEvery == 0 {
		m.sweepLocked(now)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for k, exp := range m.keys {
		if !exp.After(now) {
			delete(m.keys, k)
			continue
		}
		if _, live := m.rc.GetTTL(k); !live {
			delete(m.keys, k)
		}
	}
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.rc.Del(k)
		delete(m.keys, k)
	}
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.keys {
		if strings.HasPrefix(k, prefix) {
			m.rc.Del(k)
			delete(m.keys, k)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.rc.Close()
	return nil
}

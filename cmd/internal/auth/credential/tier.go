package credential

import (
	"context"
	"sync"
)

// Tier is one storage tier.
//
// SetAll must be all-or-nothing: either every key is written or none is.
type Tier interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetAll(ctx context.Context, kv map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryTier is a process-scoped tier. It backs the per-tab tier and is the
// durable fallback when no Redis URL is configured.
type MemoryTier struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryTier constructs an empty MemoryTier.
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{data: make(map[string]string)}
}

func (t *MemoryTier) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.data[key]
	return v, ok, nil
}

func (t *MemoryTier) SetAll(ctx context.Context, kv map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for k, v := range kv {
		t.data[k] = v
	}
	return nil
}

func (t *MemoryTier) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, k := range keys {
		delete(t.data, k)
	}
	return nil
}

// Len returns the number of stored keys.
func (t *MemoryTier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

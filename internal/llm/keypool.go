package llm

import (
	"strings"
	"sync"
	"time"
)

// DefaultCooldown is how long a failing key is skipped.
const DefaultCooldown = 15 * time.Second

// KeyPool rotates API keys round-robin and skips keys that are cooling down
// after a failure. It is safe for concurrent use.
type KeyPool struct {
	mu       sync.Mutex
	keys     []string
	until    []time.Time
	cursor   int
	cooldown time.Duration
	now      func() time.Time
}

// NewKeyPool builds a pool over keys. Empty keys are dropped.
func NewKeyPool(keys []string, cooldown time.Duration, now func() time.Time) *KeyPool {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	var clean []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			clean = append(clean, k)
		}
	}
	return &KeyPool{
		keys:     clean,
		until:    make([]time.Time, len(clean)),
		cooldown: cooldown,
		now:      now,
	}
}

// ParseKeys splits a comma-separated key list.
func ParseKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of keys.
func (p *KeyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Next returns the next key that is not cooling down, in round-robin order.
// When every key is cooling it returns the next one anyway. ok is false only
// for an empty pool.
func (p *KeyPool) Next() (key string, index int, ok bool) {
	if p.Len() == 0 {
		return "", -1, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := len(p.keys)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if !now.Before(p.until[idx]) {
			p.cursor = (idx + 1) % n
			return p.keys[idx], idx, true
		}
	}
	idx := p.cursor
	p.cursor = (idx + 1) % n
	return p.keys[idx], idx, true
}

// CoolDown marks the key at index unusable for the pool's cooldown.
func (p *KeyPool) CoolDown(index int) {
	if index < 0 || index >= p.Len() {
		return
	}
	p.mu.Lock()
	p.until[index] = p.now().Add(p.cooldown)
	p.mu.Unlock()
}

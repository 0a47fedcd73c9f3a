package appstore

import (
	"sync"

	"github.com/vpspilot/vpspilot/internal/pkg/cache"
)

var (
	sharedKeys    *KeySource
	sharedKeysMux sync.Once
)

// GetKeySource returns the process-wide key source. The key cache must be
// shared across requests, so unlike the per-request services this is a
// singleton.
func GetKeySource() *KeySource {
	sharedKeysMux.Do(func() {
		cfg := NewConfigFromEnv()
		sharedKeys = NewKeySource(cfg).WithSharedCache(cache.Get, cache.Set)
	})
	return sharedKeys
}

// Package creds manages per-provider credential pools with round-robin
// rotation. A pool is an ordered list of credential strings for one logical
// provider name; the rotation cursor advances exactly once per Next call,
// whether or not the returned credential ends up working.
package creds

import (
	"fmt"
	"sync"

	"github.com/probemesh/probemesh/pkg/apperrors"
)

// Rotator hands out credentials from named pools in cyclic order.
type Rotator struct {
	mu      sync.Mutex
	pools   map[string][]string
	cursors map[string]int
}

// NewRotator creates a Rotator from a map of provider name to ordered
// credential list. Entries with empty lists are kept; Next on them fails
// with NO_CREDENTIALS_CONFIGURED.
func NewRotator(pools map[string][]string) *Rotator {
	copied := make(map[string][]string, len(pools))
	for name, keys := range pools {
		copied[name] = append([]string(nil), keys...)
	}
	return &Rotator{
		pools:   copied,
		cursors: make(map[string]int, len(pools)),
	}
}

// Next returns the credential at the current cursor for the provider and
// advances the cursor by one, wrapping around at the end of the pool.
func (r *Rotator) Next(provider string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.pools[provider]
	if len(pool) == 0 {
		return "", apperrors.New(apperrors.ErrCodeNoCredentials,
			fmt.Sprintf("no credentials configured for provider %q", provider), nil)
	}

	cursor := r.cursors[provider]
	credential := pool[cursor%len(pool)]
	r.cursors[provider] = (cursor + 1) % len(pool)
	return credential, nil
}

// PoolSize returns the number of credentials configured for the provider.
// Callers use it to bound failover loops to one pass over the pool.
func (r *Rotator) PoolSize(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools[provider])
}

// Package proxy implements proxy pool selection for the transport client.
package proxy

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// Selector manages proxy selection from pools.
// Thread-safe for concurrent access.
type Selector struct {
	mu    sync.Mutex
	pools map[string]*poolState
}

// poolState holds runtime state for a single pool.
type poolState struct {
	pool    *types.ProxyPool
	rrIndex int64
}

// NewSelector creates a new proxy selector.
func NewSelector() *Selector {
	return &Selector{
		pools: make(map[string]*poolState),
	}
}

// RegisterPool validates and registers a proxy pool.
// Re-registering a name replaces the pool and resets its rotation.
func (s *Selector) RegisterPool(pool *types.ProxyPool) error {
	if err := pool.Validate(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool.Name] = &poolState{pool: pool}
	return nil
}

// SelectRequest contains parameters for endpoint selection.
type SelectRequest struct {
	// Pool is the pool name to select from.
	Pool string
	// StrategyOverride optionally overrides the pool's strategy.
	StrategyOverride *types.ProxyStrategy
	// Commit determines whether to advance rotation counters.
	// When false, returns what would be selected without mutating state.
	Commit bool
}

// Select selects a proxy endpoint from the specified pool.
func (s *Selector) Select(req SelectRequest) (*types.ProxyEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[req.Pool]
	if !ok {
		return nil, fmt.Errorf("pool %q not found", req.Pool)
	}

	strategy := state.pool.Strategy
	if req.StrategyOverride != nil {
		strategy = *req.StrategyOverride
	}

	var idx int
	switch strategy {
	case types.ProxyStrategyRoundRobin:
		idx = int(state.rrIndex % int64(len(state.pool.Endpoints)))
		if req.Commit {
			state.rrIndex++
		}
	case types.ProxyStrategyRandom:
		var err error
		if idx, err = selectRandom(len(state.pool.Endpoints)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}

	ep := state.pool.Endpoints[idx]
	return &ep, nil
}

// selectRandom selects uniformly at random from n endpoints.
func selectRandom(n int) (int, error) {
	if n == 1 {
		return 0, nil
	}
	bigIdx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(bigIdx.Int64()), nil
}

// PoolStats holds rotation statistics for a pool.
type PoolStats struct {
	RoundRobinIndex int64
	Endpoints       int
}

// Stats returns statistics for a pool.
func (s *Selector) Stats(poolName string) (*PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[poolName]
	if !ok {
		return nil, fmt.Errorf("pool %q not found", poolName)
	}

	return &PoolStats{
		RoundRobinIndex: state.rrIndex,
		Endpoints:       len(state.pool.Endpoints),
	}, nil
}

//go:build !deadlock

// Package syncutil holds the locks used by the link, the pipeline stats and
// the detection cache. The default build uses the sync package directly;
// -tags=deadlock swaps in github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex guards device, link and serial state.
//
//nolint:gocritic // embedded so callers get Lock/Unlock unchanged
type Mutex struct {
	sync.Mutex
}

// RWMutex guards read-mostly state: pipeline stats and the detection cache.
//
//nolint:gocritic // embedded so callers get RLock/RUnlock unchanged
type RWMutex struct {
	sync.RWMutex
}

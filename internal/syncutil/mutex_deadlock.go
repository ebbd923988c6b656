//go:build deadlock

// Package syncutil holds the locks used by the link, the pipeline stats and
// the detection cache, here backed by go-deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex guards device, link and serial state.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex guards read-mostly state: pipeline stats and the detection cache.
type RWMutex struct {
	deadlock.RWMutex
}

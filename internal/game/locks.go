package game

import (
	"sort"
	"sync"
)

// keyedMutex serializes work per player id inside one process. Cross-process
// safety comes from the store's version check.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// LockAll acquires every id in sorted order so two callers locking the same
// pair cannot deadlock.
func (k *keyedMutex) LockAll(ids ...string) func() {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	unlocks := make([]func(), 0, len(sorted))
	var prev string
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		unlocks = append(unlocks, k.Lock(id))
		prev = id
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

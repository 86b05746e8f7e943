// Package keymutex provides a mutex per string key. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
package keymutex

import "sync"

// KeyMutex serializes callers that use the same key
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	ref int
}

// New creates an empty KeyMutex
func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Lock locks key and returns the function that unlocks it
func (k *KeyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.ref++
	k.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.ref--
			if e.ref == 0 {
				delete(k.entries, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of keys locked or waited on
func (k *KeyMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

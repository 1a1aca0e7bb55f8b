package service

import (
	"strings"
	"sync"
)

// Identity is the engine's cell for the authenticated owner id. The id is
// opaque to the engine: it is stamped on optimistic rows and used to scope
// every backend call, nothing more.
type Identity struct {
	mu      sync.RWMutex
	ownerID string
}

func NewIdentity() *Identity {
	return &Identity{}
}

// Set stores the owner id after sign-in.
func (i *Identity) Set(ownerID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ownerID = strings.TrimSpace(ownerID)
}

// Clear forgets the owner id on sign-out.
func (i *Identity) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ownerID = ""
}

// Get returns the current owner id, or an empty string before sign-in.
func (i *Identity) Get() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ownerID
}

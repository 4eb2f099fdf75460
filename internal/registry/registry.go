package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnbound is returned when a connection handle has no bound identity.
// Events from such connections are discarded by the caller.
var ErrUnbound = errors.New("connection not bound to an identity")

// Registry maps transient connection handles to stable participant
// identities (wallet addresses) and tracks which rooms each connection
// currently occupies. Reconnecting with the same address on a new handle
// re-binds the identity rather than creating a second participant.
type Registry struct {
	mu         sync.Mutex
	identities map[uuid.UUID]string
	rooms      map[uuid.UUID]map[string]struct{}
}

// New initializes an empty Registry.
func New() *Registry {
	return &Registry{
		identities: make(map[uuid.UUID]string),
		rooms:      make(map[uuid.UUID]map[string]struct{}),
	}
}

// Bind associates a connection handle with a stable identity. Re-binding an
// already-bound handle overwrites the association.
func (r *Registry) Bind(connID uuid.UUID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[connID] = address
}

// Resolve returns the identity bound to a connection handle.
func (r *Registry) Resolve(connID uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.identities[connID]
	if !ok {
		return "", ErrUnbound
	}
	return addr, nil
}

// EnterRoom records that a connection occupies the given room.
func (r *Registry) EnterRoom(connID uuid.UUID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes, ok := r.rooms[connID]
	if !ok {
		codes = make(map[string]struct{})
		r.rooms[connID] = codes
	}
	codes[code] = struct{}{}
}

// ExitRoom records that a connection no longer occupies the given room.
func (r *Registry) ExitRoom(connID uuid.UUID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if codes, ok := r.rooms[connID]; ok {
		delete(codes, code)
		if len(codes) == 0 {
			delete(r.rooms, connID)
		}
	}
}

// Unbind removes the handle's identity association and returns the identity
// plus the room codes the connection still occupied. The caller must run
// departure handling for each returned room.
func (r *Registry) Unbind(connID uuid.UUID) (string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := r.identities[connID]
	delete(r.identities, connID)

	var codes []string
	for code := range r.rooms[connID] {
		codes = append(codes, code)
	}
	delete(r.rooms, connID)
	return addr, codes
}

package room

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrRoomNotFound is returned for any operation on an unknown room code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrCodeCollision is returned when creating a room whose code is
	// already active. The existing room is never overwritten.
	ErrCodeCollision = errors.New("room code already exists")
)

// Store manages the active rooms in memory, keyed by their short code.
// It is the single piece of mutable shared state in the service; every
// component reaches rooms through it rather than holding private copies.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// Create adds a new room to the store. Returns ErrCodeCollision if the code
// is already taken.
func (s *Store) Create(r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.Code]; exists {
		return ErrCodeCollision
	}
	s.rooms[r.Code] = r
	log.Infof("room store: added room %s", r.Code)
	return nil
}

// Get retrieves a room by code.
func (s *Store) Get(code string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Delete removes a room by code. Deleting an absent code is a no-op.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[code]; exists {
		delete(s.rooms, code)
		log.Infof("room store: deleted room %s", code)
	}
}

// Rooms returns a snapshot slice of all active rooms. The slice is a copy so
// callers can iterate while the store keeps mutating.
func (s *Store) Rooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Len returns the number of active rooms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a mutex-guarded in-memory session store for dev and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Session
	byToken map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]Session),
		byToken: make(map[string]string),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Active && r.activeExistsLocked(s.ClassroomID, s.ID) {
		return Session{}, ErrActiveExists
	}
	r.byID[s.ID] = s
	r.byToken[s.QRToken] = s.ID
	return s, nil
}

// activeExistsLocked reports whether another session is active for the
// classroom. Callers hold r.mu.
func (r *MemoryRepository) activeExistsLocked(classroomID, excludeID string) bool {
	for _, s := range r.byID {
		if s.ClassroomID == classroomID && s.Active && s.ID != excludeID {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) GetByToken(_ context.Context, token string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) FindActive(_ context.Context, classroomID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if s.ClassroomID == classroomID && s.Active {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *MemoryRepository) SaveRotation(_ context.Context, id, token string, expiresAt, rotatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if r.activeExistsLocked(s.ClassroomID, s.ID) {
		return ErrActiveExists
	}
	delete(r.byToken, s.QRToken)
	s.QRToken = token
	s.ExpiresAt = expiresAt
	s.Active = true
	s.RotatedAt = rotatedAt
	r.byID[id] = s
	r.byToken[token] = id
	return nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = false
	r.byID[id] = s
	return nil
}

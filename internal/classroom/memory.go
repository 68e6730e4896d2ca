package classroom

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory classroom store for dev and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]Classroom
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]Classroom)}
}

func (r *MemoryRepository) Insert(_ context.Context, c Classroom) (Classroom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.byID[c.ID] = c
	return c, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (Classroom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Classroom{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepository) GetByCode(_ context.Context, code string) (Classroom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if c.Code == code {
			return c, nil
		}
	}
	return Classroom{}, ErrNotFound
}

func (r *MemoryRepository) ListByInstructor(_ context.Context, instructorID string) ([]Classroom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []Classroom
	for _, c := range r.byID {
		if c.InstructorID == instructorID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (r *MemoryRepository) Update(_ context.Context, c Classroom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; !ok {
		return ErrNotFound
	}
	r.byID[c.ID] = c
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

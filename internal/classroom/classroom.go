package classroom

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("classroom not found")
	ErrForbidden = errors.New("classroom not owned by caller")
)

// Geofence is a circular allowed area around a classroom or session.
type Geofence struct {
	Enabled bool    `json:"enabled"`
	Lat     float64 `json:"latitude"`
	Lng     float64 `json:"longitude"`
	RadiusM float64 `json:"radius_m"`
}

// Classroom is one course section owned by an instructor. Its geofence, when
// enabled, is the default for sessions that do not override it.
type Classroom struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	InstructorID string    `json:"instructor_id"`
	Geofence     Geofence  `json:"geofence"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists classrooms.
type Repository interface {
	Insert(ctx context.Context, c Classroom) (Classroom, error)
	GetByID(ctx context.Context, id string) (Classroom, error)
	GetByCode(ctx context.Context, code string) (Classroom, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]Classroom, error)
	Update(ctx context.Context, c Classroom) error
	Delete(ctx context.Context, id string) error
}

// Service manages classroom records with instructor ownership checks.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create registers a classroom. Creating an existing code returns the
// existing classroom unchanged, matching the idempotent behavior students
// and instructors expect when re-submitting forms.
func (s *Service) Create(ctx context.Context, instructorID string, c Classroom) (Classroom, bool, error) {
	c.Code = strings.TrimSpace(c.Code)
	c.Name = strings.TrimSpace(c.Name)
	if c.Code == "" || c.Name == "" {
		return Classroom{}, false, errors.New("classroom code and name required")
	}
	if existing, err := s.repo.GetByCode(ctx, c.Code); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Classroom{}, false, err
	}
	c.InstructorID = instructorID
	if !c.Geofence.Enabled {
		c.Geofence = Geofence{}
	}
	created, err := s.repo.Insert(ctx, c)
	return created, err == nil, err
}

// Get returns a classroom by id.
func (s *Service) Get(ctx context.Context, id string) (Classroom, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the caller's classrooms.
func (s *Service) List(ctx context.Context, instructorID string) ([]Classroom, error) {
	return s.repo.ListByInstructor(ctx, instructorID)
}

// Update edits name and geofence defaults. Owner only.
func (s *Service) Update(ctx context.Context, instructorID, id string, name string, fence Geofence) (Classroom, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Classroom{}, err
	}
	if c.InstructorID != instructorID {
		return Classroom{}, ErrForbidden
	}
	if name = strings.TrimSpace(name); name != "" {
		c.Name = name
	}
	if fence.Enabled {
		c.Geofence = fence
	} else {
		c.Geofence = Geofence{}
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return Classroom{}, err
	}
	return c, nil
}

// Delete removes a classroom. Owner only. Sessions and attendance history
// keep their rows; they reference the classroom id, not the row itself.
func (s *Service) Delete(ctx context.Context, instructorID, id string) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.InstructorID != instructorID {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

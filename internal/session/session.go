package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rollcall/internal/classroom"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrActiveExists reports that the classroom already has an active
	// session. The store enforces at most one, so a lost race on insert or
	// reactivation surfaces as this error.
	ErrActiveExists = errors.New("classroom already has an active session")
)

var rotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "rollcall_session_rotations_total",
	Help: "Number of QR token rotations performed.",
})

// Session is one attendance window for a classroom. Exactly one QR token is
// valid per session at any moment; rotation replaces it with no grace period.
type Session struct {
	ID          string             `json:"id"`
	ClassroomID string             `json:"classroom_id"`
	QRToken     string             `json:"qr_token"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Active      bool               `json:"active"`
	Geofence    classroom.Geofence `json:"geofence"`
	CreatedAt   time.Time          `json:"created_at"`
	RotatedAt   time.Time          `json:"rotated_at"`
}

// Repository persists sessions.
type Repository interface {
	Insert(ctx context.Context, s Session) (Session, error)
	GetByID(ctx context.Context, id string) (Session, error)
	GetByToken(ctx context.Context, token string) (Session, error)
	// FindActive returns the classroom's active session, expired or not.
	// At most one exists; Insert and SaveRotation return ErrActiveExists
	// rather than create a second.
	FindActive(ctx context.Context, classroomID string) (Session, error)
	SaveRotation(ctx context.Context, id, token string, expiresAt, rotatedAt time.Time) error
	Deactivate(ctx context.Context, id string) error
}

// Service owns the session lifecycle: creation, token rotation, and lazy
// expiry. Expiry is materialized on access: the first resolve or rotate that
// observes a past expiration persists active=false before answering.
type Service struct {
	repo    Repository
	classes classroom.Repository
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates the lifecycle manager. ttl is the attendance window
// applied at creation and at every rotation.
func NewService(repo Repository, classes classroom.Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{repo: repo, classes: classes, ttl: ttl, now: time.Now}
}

// Start opens an attendance window for a classroom. If an active, unexpired
// session already exists it is returned unchanged (created=false) so a
// double-submitted start cannot open two concurrent windows. The geofence
// override, when enabled, replaces the classroom default for this session.
func (s *Service) Start(ctx context.Context, instructorID, classroomID string, override *classroom.Geofence) (Session, bool, error) {
	cls, err := s.classes.GetByID(ctx, classroomID)
	if err != nil {
		return Session{}, false, err
	}
	if cls.InstructorID != instructorID {
		return Session{}, false, classroom.ErrForbidden
	}

	now := s.now()
	existing, err := s.repo.FindActive(ctx, classroomID)
	switch {
	case err == nil:
		if now.Before(existing.ExpiresAt) {
			return existing, false, nil
		}
		// materialize expiry so the new window can become the active one
		if err := s.repo.Deactivate(ctx, existing.ID); err != nil {
			return Session{}, false, fmt.Errorf("deactivate expired session: %w", err)
		}
	case !errors.Is(err, ErrNotFound):
		return Session{}, false, err
	}

	fence := cls.Geofence
	if override != nil && override.Enabled {
		fence = *override
	}
	created, err := s.repo.Insert(ctx, Session{
		ID:          uuid.NewString(),
		ClassroomID: classroomID,
		QRToken:     NewToken(),
		ExpiresAt:   now.Add(s.ttl),
		Active:      true,
		Geofence:    fence,
		CreatedAt:   now,
		RotatedAt:   now,
	})
	if errors.Is(err, ErrActiveExists) {
		// lost a race with a concurrent start; hand back the winner's window
		if winner, ferr := s.repo.FindActive(ctx, classroomID); ferr == nil {
			return winner, false, nil
		}
		return Session{}, false, fmt.Errorf("insert session: %w", err)
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("insert session: %w", err)
	}
	return created, true, nil
}

// Rotate replaces the QR token and restarts the window. Allowed from both
// active and expired states; the previous token becomes invalid immediately.
// Accumulated attendance records are untouched. A session superseded by a
// newer active window cannot be revived; that fails with ErrActiveExists.
func (s *Service) Rotate(ctx context.Context, instructorID, sessionID string) (Session, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := s.authorize(ctx, instructorID, sess); err != nil {
		return Session{}, err
	}

	now := s.now()
	token := NewToken()
	if err := s.repo.SaveRotation(ctx, sess.ID, token, now.Add(s.ttl), now); err != nil {
		if errors.Is(err, ErrActiveExists) {
			return Session{}, ErrActiveExists
		}
		return Session{}, fmt.Errorf("rotate session: %w", err)
	}
	rotationsTotal.Inc()

	sess.QRToken = token
	sess.ExpiresAt = now.Add(s.ttl)
	sess.Active = true
	sess.RotatedAt = now
	return sess, nil
}

// ResolveActive looks up a session by its current QR token. An expired
// session is deactivated in the store before reporting ErrNotFound, so an
// expired token is never resolvable, even momentarily. Callers cannot tell
// "never existed" from "just expired"; that is deliberate.
func (s *Service) ResolveActive(ctx context.Context, token string) (Session, error) {
	sess, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	if !sess.Active {
		return Session{}, ErrNotFound
	}
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.repo.Deactivate(ctx, sess.ID); err != nil {
			return Session{}, fmt.Errorf("deactivate expired session: %w", err)
		}
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Expire persists active=false for a session. Used by the verification
// pipeline when it observes expiration after resolution.
func (s *Service) Expire(ctx context.Context, sessionID string) error {
	return s.repo.Deactivate(ctx, sessionID)
}

// Get returns a session after checking the caller owns its classroom.
func (s *Service) Get(ctx context.Context, instructorID, sessionID string) (Session, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := s.authorize(ctx, instructorID, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) authorize(ctx context.Context, instructorID string, sess Session) error {
	cls, err := s.classes.GetByID(ctx, sess.ClassroomID)
	if err != nil {
		return err
	}
	if cls.InstructorID != instructorID {
		return classroom.ErrForbidden
	}
	return nil
}

// NewToken generates an opaque, unpredictable QR token. Tokens carry no
// relationship to each other; a v4 UUID is crypto-random.
func NewToken() string {
	return uuid.NewString()
}

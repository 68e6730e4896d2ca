package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rollcall/internal/geo"
	"rollcall/internal/session"
)

var (
	// ErrDuplicateRecord is returned by stores when inserting a
	// non-suspicious record that would violate the per-student or
	// per-network uniqueness for a session.
	ErrDuplicateRecord = errors.New("duplicate attendance record")

	ErrTokenRequired      = errors.New("qr token required")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)

var checkinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rollcall_checkins_total",
	Help: "Check-in attempts by pipeline outcome.",
}, []string{"outcome"})

// Record is one check-in attempt outcome. Immutable once written; suspicious
// records are kept as evidence and never satisfy the duplicate condition.
type Record struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	StudentID         string    `json:"student_id"`
	StudentName       string    `json:"student_name,omitempty"`        // resolved from accounts on reads
	StudentExternalID string    `json:"student_external_id,omitempty"` // e.g. university student number
	NetworkAddr       string    `json:"network_addr"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	Suspicious        bool      `json:"suspicious"`
	MarkedAt          time.Time `json:"marked_at"`
}

// Outcome classifies a check-in decision.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeInvalidSession  Outcome = "invalid_session"
	OutcomeExpired         Outcome = "expired"
	OutcomeMissingLocation Outcome = "missing_location"
	OutcomeOutsideGeofence Outcome = "outside_geofence"
	OutcomeDuplicate       Outcome = "duplicate"
)

// Decision is the result of running the verification pipeline. Record is set
// for accepted check-ins and for flagged out-of-area attempts; DistanceM is
// set when a geofence comparison happened.
type Decision struct {
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	Record    *Record `json:"record,omitempty"`
	DistanceM float64 `json:"distance_m,omitempty"`
}

// CheckIn is a single verification request. StudentID comes from the identity
// collaborator, never from the request body. Lat/Lng are nil when the caller
// sent no coordinates.
type CheckIn struct {
	Token             string
	StudentID         string
	Lat               *float64
	Lng               *float64
	NetworkAddr       string
	DeviceFingerprint string
}

// Repository persists attendance records and enforces the non-suspicious
// uniqueness invariant atomically.
type Repository interface {
	Insert(ctx context.Context, rec Record) (Record, error)
	// FindNonSuspicious reports which duplicate condition an existing
	// non-suspicious record matches: "student", "network", or "".
	FindNonSuspicious(ctx context.Context, sessionID, studentID, networkAddr string, byNetwork bool) (string, error)
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
}

// Service runs the ordered verification checks for check-in attempts.
type Service struct {
	records        Repository
	sessions       *session.Service
	dedupByNetwork bool
	now            func() time.Time
}

// NewService wires the pipeline. dedupByNetwork toggles the network-address
// half of the duplicate rule; it catches shared-device abuse at the cost of
// false positives on shared networks.
func NewService(records Repository, sessions *session.Service, dedupByNetwork bool) *Service {
	return &Service{
		records:        records,
		sessions:       sessions,
		dedupByNetwork: dedupByNetwork,
		now:            time.Now,
	}
}

// Mark runs the verification pipeline for one check-in attempt. Check order
// matters and each check short-circuits:
//
//  1. resolve the token to an active session (not found and just-expired are
//     indistinguishable to the caller)
//  2. re-check expiration; persist deactivation if it passed since resolution
//  3. geofence, if enabled: missing coordinates reject; out-of-area attempts
//     are persisted with suspicious=true before rejecting
//  4. duplicate over non-suspicious records by student or network address
//  5. insert the accepted record; a uniqueness violation from a concurrent
//     writer lands here and is reported as a duplicate
//
// A returned error means a validation failure or an unavailable store, never
// a business rejection; those are all expressed as Decisions.
func (s *Service) Mark(ctx context.Context, in CheckIn) (Decision, error) {
	if in.Token == "" {
		return Decision{}, ErrTokenRequired
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return Decision{}, ErrInvalidCoordinates
	}
	if in.Lat != nil && !geo.ValidCoordinate(*in.Lat, *in.Lng) {
		return Decision{}, ErrInvalidCoordinates
	}

	sess, err := s.sessions.ResolveActive(ctx, in.Token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return s.decide(Decision{Outcome: OutcomeInvalidSession, Reason: "active session not found"}), nil
		}
		return Decision{}, fmt.Errorf("resolve session: %w", err)
	}

	// Resolution and the checks below are not atomic; the window can close
	// in between. Persist the deactivation here too.
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.sessions.Expire(ctx, sess.ID); err != nil {
			return Decision{}, fmt.Errorf("expire session: %w", err)
		}
		return s.decide(Decision{Outcome: OutcomeExpired, Reason: "session expired"}), nil
	}

	if sess.Geofence.Enabled {
		if in.Lat == nil {
			return s.decide(Decision{Outcome: OutcomeMissingLocation, Reason: "location required for geofenced session"}), nil
		}
		dist := geo.Distance(*in.Lat, *in.Lng, sess.Geofence.Lat, sess.Geofence.Lng)
		if dist > sess.Geofence.RadiusM {
			rec, err := s.records.Insert(ctx, s.newRecord(sess.ID, in, true))
			if err != nil {
				return Decision{}, fmt.Errorf("persist suspicious record: %w", err)
			}
			return s.decide(Decision{
				Outcome:   OutcomeOutsideGeofence,
				Reason:    fmt.Sprintf("outside allowed area: %.0f m from center, limit %.0f m", dist, sess.Geofence.RadiusM),
				Record:    &rec,
				DistanceM: dist,
			}), nil
		}
	}

	// Read-first duplicate check avoids a needless write; correctness comes
	// from the store's uniqueness constraint handled below.
	match, err := s.records.FindNonSuspicious(ctx, sess.ID, in.StudentID, in.NetworkAddr, s.dedupByNetwork)
	if err != nil {
		return Decision{}, fmt.Errorf("duplicate check: %w", err)
	}
	switch match {
	case "student":
		return s.decide(Decision{Outcome: OutcomeDuplicate, Reason: "attendance already marked for this account"}), nil
	case "network":
		return s.decide(Decision{Outcome: OutcomeDuplicate, Reason: "attendance already marked from this network address"}), nil
	}

	rec, err := s.records.Insert(ctx, s.newRecord(sess.ID, in, false))
	if err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return s.decide(Decision{Outcome: OutcomeDuplicate, Reason: "attendance already marked"}), nil
		}
		return Decision{}, fmt.Errorf("persist record: %w", err)
	}
	return s.decide(Decision{Outcome: OutcomeAccepted, Record: &rec}), nil
}

// ListSessionAttendance returns every record for a session, suspicious ones
// included, ordered by submission time. Owner only.
func (s *Service) ListSessionAttendance(ctx context.Context, instructorID, sessionID string) ([]Record, error) {
	if _, err := s.sessions.Get(ctx, instructorID, sessionID); err != nil {
		return nil, err
	}
	return s.records.ListBySession(ctx, sessionID)
}

// ListStudentAttendance returns a student's own records across sessions.
func (s *Service) ListStudentAttendance(ctx context.Context, studentID string) ([]Record, error) {
	return s.records.ListByStudent(ctx, studentID)
}

func (s *Service) newRecord(sessionID string, in CheckIn, suspicious bool) Record {
	return Record{
		SessionID:         sessionID,
		StudentID:         in.StudentID,
		NetworkAddr:       in.NetworkAddr,
		DeviceFingerprint: in.DeviceFingerprint,
		Suspicious:        suspicious,
		MarkedAt:          s.now().UTC(),
	}
}

func (s *Service) decide(d Decision) Decision {
	checkinsTotal.WithLabelValues(string(d.Outcome)).Inc()
	return d
}

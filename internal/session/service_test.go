package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollcall/internal/classroom"
)

const instructorID = "teach-1"

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	classes *classroom.MemoryRepository
	cls     classroom.Classroom
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	classes := classroom.NewMemoryRepository()
	cls, err := classes.Insert(context.Background(), classroom.Classroom{
		Code:         "CS101",
		Name:         "Intro to Systems",
		InstructorID: instructorID,
	})
	if err != nil {
		t.Fatalf("insert classroom: %v", err)
	}
	repo := NewMemoryRepository()
	svc := NewService(repo, classes, 5*time.Minute)
	now := time.Now()
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, repo: repo, classes: classes, cls: cls, clock: &now}
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func TestStartCreatesFiveMinuteWindow(t *testing.T) {
	f := newFixture(t)
	sess, created, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !created {
		t.Fatal("expected a new session")
	}
	if !sess.Active {
		t.Fatal("new session should be active")
	}
	if got, want := sess.ExpiresAt, f.clock.Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("expires at %v, want %v", got, want)
	}
	if sess.QRToken == "" {
		t.Fatal("session has no token")
	}
}

func TestStartIsIdempotentWhileActive(t *testing.T) {
	f := newFixture(t)
	first, _, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, created, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if created {
		t.Fatal("second start must not create a duplicate window")
	}
	if second.ID != first.ID || second.QRToken != first.QRToken {
		t.Fatalf("second start returned a different session: %s vs %s", second.ID, first.ID)
	}
}

func TestStartAfterExpiryCreatesNewSession(t *testing.T) {
	f := newFixture(t)
	first, _, _ := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	f.advance(6 * time.Minute)
	second, created, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if err != nil {
		t.Fatalf("start after expiry: %v", err)
	}
	if !created || second.ID == first.ID {
		t.Fatal("expired window must not be reused")
	}
}

func TestStartRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Start(context.Background(), "someone-else", f.cls.ID, nil)
	if !errors.Is(err, classroom.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestStartUsesGeofenceOverride(t *testing.T) {
	f := newFixture(t)
	override := &classroom.Geofence{Enabled: true, Lat: 1.5, Lng: 2.5, RadiusM: 75}
	sess, _, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, override)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.Geofence != *override {
		t.Fatalf("geofence = %+v, want %+v", sess.Geofence, *override)
	}
}

func TestRotateReplacesTokenAndRestartsWindow(t *testing.T) {
	f := newFixture(t)
	sess, _, _ := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	oldToken := sess.QRToken

	f.advance(2 * time.Minute)
	rotated, err := f.svc.Rotate(context.Background(), instructorID, sess.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.QRToken == oldToken {
		t.Fatal("rotation kept the old token")
	}
	if got, want := rotated.ExpiresAt, f.clock.Add(5*time.Minute); !got.Equal(want) {
		t.Fatalf("expires at %v, want %v", got, want)
	}

	// old token is invalid immediately, no grace period
	if _, err := f.svc.ResolveActive(context.Background(), oldToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old token resolved after rotation: %v", err)
	}
	got, err := f.svc.ResolveActive(context.Background(), rotated.QRToken)
	if err != nil {
		t.Fatalf("new token did not resolve: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("resolved wrong session %s", got.ID)
	}
}

func TestRotateRevivesExpiredSession(t *testing.T) {
	f := newFixture(t)
	sess, _, _ := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	f.advance(10 * time.Minute)

	// expiry materializes on access
	if _, err := f.svc.ResolveActive(context.Background(), sess.QRToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired token resolved: %v", err)
	}

	rotated, err := f.svc.Rotate(context.Background(), instructorID, sess.ID)
	if err != nil {
		t.Fatalf("rotate expired session: %v", err)
	}
	if !rotated.Active {
		t.Fatal("rotation must reactivate the session")
	}
	if _, err := f.svc.ResolveActive(context.Background(), rotated.QRToken); err != nil {
		t.Fatalf("rotated token did not resolve: %v", err)
	}
}

func TestConcurrentStartsShareOneWindow(t *testing.T) {
	f := newFixture(t)

	type result struct {
		sess    Session
		created bool
	}
	results := make([]result, 16)
	errs := make([]error, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, created, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
			results[i] = result{sess: sess, created: created}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("start %d: %v", i, errs[i])
		}
		if res.created {
			createdCount++
		}
		if res.sess.ID != results[0].sess.ID {
			t.Fatalf("start %d opened a second window: %s vs %s", i, res.sess.ID, results[0].sess.ID)
		}
	}
	if createdCount != 1 {
		t.Fatalf("created %d windows, want exactly 1", createdCount)
	}
}

func TestClassroomDeleteKeepsSessions(t *testing.T) {
	f := newFixture(t)
	sess, _, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := f.classes.Delete(context.Background(), f.cls.ID); err != nil {
		t.Fatalf("delete classroom: %v", err)
	}

	// the window and its token outlive the classroom row
	got, err := f.svc.ResolveActive(context.Background(), sess.QRToken)
	if err != nil {
		t.Fatalf("resolve after classroom delete: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("resolved wrong session %s", got.ID)
	}
	if _, err := f.repo.GetByID(context.Background(), sess.ID); err != nil {
		t.Fatalf("session row gone after classroom delete: %v", err)
	}
}

func TestRotateSupersededSessionConflicts(t *testing.T) {
	f := newFixture(t)
	old, _, _ := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	f.advance(6 * time.Minute)
	current, created, err := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if err != nil || !created {
		t.Fatalf("start after expiry: created=%v err=%v", created, err)
	}

	// the old window cannot be revived while the new one is active
	if _, err := f.svc.Rotate(context.Background(), instructorID, old.ID); !errors.Is(err, ErrActiveExists) {
		t.Fatalf("err = %v, want ErrActiveExists", err)
	}
	if _, err := f.svc.Rotate(context.Background(), instructorID, current.ID); err != nil {
		t.Fatalf("rotate current window: %v", err)
	}
}

func TestRotateNotFoundAndForbidden(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Rotate(context.Background(), instructorID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	sess, _, _ := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	if _, err := f.svc.Rotate(context.Background(), "someone-else", sess.ID); !errors.Is(err, classroom.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestResolveActiveMaterializesExpiry(t *testing.T) {
	f := newFixture(t)
	sess, _, _ := f.svc.Start(context.Background(), instructorID, f.cls.ID, nil)
	f.advance(5 * time.Minute) // boundary counts as expired

	if _, err := f.svc.ResolveActive(context.Background(), sess.QRToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	stored, err := f.repo.GetByID(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Active {
		t.Fatal("expired session still active in store")
	}

	// every later resolve agrees
	for i := 0; i < 3; i++ {
		if _, err := f.svc.ResolveActive(context.Background(), sess.QRToken); !errors.Is(err, ErrNotFound) {
			t.Fatalf("resolve %d: err = %v, want ErrNotFound", i, err)
		}
	}
}

func TestResolveActiveUnknownToken(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ResolveActive(context.Background(), NewToken()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := NewToken()
		if seen[tok] {
			t.Fatalf("token repeated after %d draws", i)
		}
		seen[tok] = true
	}
}

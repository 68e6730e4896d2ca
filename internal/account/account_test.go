package account

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())

	acct, err := svc.Register(context.Background(), "Ada Lovelace", "Ada@Example.EDU", "correct horse", "U1001", "student")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.Email != "ada@example.edu" {
		t.Fatalf("email not normalized: %q", acct.Email)
	}
	if acct.PasswordHash == "correct horse" {
		t.Fatal("password stored in clear")
	}

	got, err := svc.Authenticate(context.Background(), "ada@example.edu", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != acct.ID {
		t.Fatalf("authenticated wrong account %s", got.ID)
	}
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	if _, err := svc.Register(context.Background(), "Ada", "ada@example.edu", "correct horse", "", "student"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "ada@example.edu", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@example.edu", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	if _, err := svc.Register(context.Background(), "Ada", "ada@example.edu", "correct horse", "", "student"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "Imposter", "ada@example.edu", "other pass", "", "student"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	if _, err := svc.Register(context.Background(), "", "ada@example.edu", "pw", "", "student"); err == nil {
		t.Fatal("empty name accepted")
	}
	if _, err := svc.Register(context.Background(), "Ada", "ada@example.edu", "", "", "student"); err == nil {
		t.Fatal("empty password accepted")
	}
}

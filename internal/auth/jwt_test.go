package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundtrip(t *testing.T) {
	token, exp, err := Issue("acct-1", RoleInstructor, "rollcall", "secret", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}

	claims, err := Parse(token, "secret", "rollcall")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "acct-1" || claims.Role != RoleInstructor {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, _ := Issue("acct-1", RoleStudent, "rollcall", "secret", time.Hour)
	if _, err := Parse(token, "other-secret", "rollcall"); err == nil {
		t.Fatal("token accepted with wrong key")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, _, _ := Issue("acct-1", RoleStudent, "other-service", "secret", time.Hour)
	if _, err := Parse(token, "secret", "rollcall"); err == nil {
		t.Fatal("token accepted with wrong issuer")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, _, _ := Issue("acct-1", RoleStudent, "rollcall", "secret", -time.Minute)
	if _, err := Parse(token, "secret", "rollcall"); err == nil {
		t.Fatal("expired token accepted")
	}
}

package httpmiddleware

import (
	"testing"
	"time"
)

func TestTokenBucketExhaustsAndRefills(t *testing.T) {
	l := NewTokenBucket(60) // 1 token per second
	now := time.Now()

	for i := 0; i < 60; i++ {
		if !l.allow("1.2.3.4", now) {
			t.Fatalf("request %d denied within capacity", i)
		}
	}
	if l.allow("1.2.3.4", now) {
		t.Fatal("request allowed past capacity")
	}

	if !l.allow("1.2.3.4", now.Add(2*time.Second)) {
		t.Fatal("refill did not restore tokens")
	}
}

func TestTokenBucketIsolatesClients(t *testing.T) {
	l := NewTokenBucket(1)
	now := time.Now()

	if !l.allow("1.2.3.4", now) {
		t.Fatal("first client denied")
	}
	if l.allow("1.2.3.4", now) {
		t.Fatal("first client not limited")
	}
	if !l.allow("5.6.7.8", now) {
		t.Fatal("second client starved by first")
	}
}

func TestTokenBucketSweepsIdleClients(t *testing.T) {
	l := NewTokenBucket(10)
	now := time.Now()
	l.allow("1.2.3.4", now)
	l.allow("5.6.7.8", now)

	l.allow("9.9.9.9", now.Add(11*time.Minute))
	if len(l.buckets) != 1 {
		t.Fatalf("idle buckets not swept: %d remain", len(l.buckets))
	}
}

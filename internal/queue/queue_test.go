package queue

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func TestInMemoryRoundtrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	want := Message{Type: "checkin", Body: []byte(`{"session_id":"s1"}`)}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-msgs:
		if got.Type != want.Type || string(got.Body) != string(want.Body) {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Message{Type: "checkin"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// queue is full and nobody is consuming
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.Publish(cancelled, Message{Type: "checkin"}); err == nil {
		t.Fatal("publish on full queue with cancelled context succeeded")
	}
}

func TestInMemoryConsumeStopsWithoutReader(t *testing.T) {
	before := runtime.NumGoroutine()

	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := q.Consume(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := q.Publish(context.Background(), Message{Type: "checkin", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// let the forwarder pick up the message and block on the unread channel
	time.Sleep(20 * time.Millisecond)
	cancel()

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("forwarder still running after cancel: %d goroutines, started with %d",
				runtime.NumGoroutine(), before)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSerializeRoundtrip(t *testing.T) {
	msg := Message{Type: "checkin", Body: []byte(`{"note":"has|pipes|inside"}`)}
	got := deserialize(serialize(msg))
	if got.Type != msg.Type {
		t.Fatalf("type = %q, want %q", got.Type, msg.Type)
	}
	if string(got.Body) != string(msg.Body) {
		t.Fatalf("body = %q, want %q", got.Body, msg.Body)
	}
}

func TestDeserializeWithoutType(t *testing.T) {
	got := deserialize("just a body")
	if got.Type != "" || string(got.Body) != "just a body" {
		t.Fatalf("got %+v", got)
	}
}

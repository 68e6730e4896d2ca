// Package stats maintains live per-session check-in counters in Redis.
// The worker feeds it from queue events; the instructor dashboard reads it.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MessageType tags check-in events on the queue.
const MessageType = "checkin"

// CheckinEvent is the queue payload published for every logged check-in
// decision (accepted or flagged).
type CheckinEvent struct {
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Suspicious bool      `json:"suspicious"`
	At         time.Time `json:"at"`
}

// Encode marshals an event for a queue message body.
func (e CheckinEvent) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

// DecodeEvent parses a queue message body.
func DecodeEvent(body []byte) (CheckinEvent, error) {
	var e CheckinEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return CheckinEvent{}, fmt.Errorf("decode checkin event: %w", err)
	}
	return e, nil
}

// SessionStats are the live counters for one session.
type SessionStats struct {
	Accepted   int64 `json:"accepted"`
	Suspicious int64 `json:"suspicious"`
}

// Recorder reads and writes counters in Redis hashes keyed per session.
type Recorder struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecorder creates a recorder. Counters expire after ttl so stale
// sessions clean themselves up; 0 means no expiry.
func NewRecorder(client *redis.Client, ttl time.Duration) *Recorder {
	return &Recorder{client: client, ttl: ttl}
}

// Record bumps the counter for one event.
func (r *Recorder) Record(ctx context.Context, e CheckinEvent) error {
	field := "accepted"
	if e.Suspicious {
		field = "suspicious"
	}
	key := statsKey(e.SessionID)
	if err := r.client.HIncrBy(ctx, key, field, 1).Err(); err != nil {
		return fmt.Errorf("incr session stats: %w", err)
	}
	if r.ttl > 0 {
		r.client.Expire(ctx, key, r.ttl)
	}
	return nil
}

// Get returns the counters for a session; zero counters if none recorded.
func (r *Recorder) Get(ctx context.Context, sessionID string) (SessionStats, error) {
	vals, err := r.client.HGetAll(ctx, statsKey(sessionID)).Result()
	if err != nil {
		return SessionStats{}, fmt.Errorf("read session stats: %w", err)
	}
	var s SessionStats
	fmt.Sscanf(vals["accepted"], "%d", &s.Accepted)
	fmt.Sscanf(vals["suspicious"], "%d", &s.Suspicious)
	return s, nil
}

func statsKey(sessionID string) string {
	return "rollcall:session:" + sessionID + ":stats"
}

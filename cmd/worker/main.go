package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/stats"
	"rollcall/internal/store"
)

// Worker consumes check-in events and keeps the per-session live counters in
// Redis current for the instructor dashboard.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Println("WARNING: redis not reachable, will keep retrying")
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:checkins")
	}

	recorder := stats.NewRecorder(redisClient.Client, 0)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for check-in events...")
	for msg := range messages {
		if msg.Type != stats.MessageType {
			continue
		}
		evt, err := stats.DecodeEvent(msg.Body)
		if err != nil {
			log.Printf("skipping malformed event: %v", err)
			continue
		}
		if err := recorder.Record(ctx, evt); err != nil {
			log.Printf("record stats for session %s failed: %v", evt.SessionID, err)
		}
	}

	log.Println("worker stopped")
}

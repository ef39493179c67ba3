// Command transcripts prints archived conversations. With no argument it
// lists the most recent ones; with an id it prints that transcript.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rumbleFTW/koe-app/internal/archive"
)

func main() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := archive.NewStore(client, 0)

	if len(os.Args) > 1 {
		t, err := store.Get(ctx, os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load transcript: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Transcript %s (voice %s)\n", t.ID, t.Voice)
		fmt.Printf("%s - %s\n\n", t.StartedAt.Format(time.DateTime), t.EndedAt.Format(time.DateTime))
		for _, m := range t.Messages {
			fmt.Printf("%-9s %s\n", m.Role+":", m.Content)
		}
		return
	}

	list, err := store.List(ctx, archive.DefaultListLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list transcripts: %v\n", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Println("No transcripts archived.")
		return
	}
	for _, s := range list {
		fmt.Printf("%s  %s  %3d messages  %s\n", s.ID, s.EndedAt.Format(time.DateTime), s.Messages, s.Voice)
	}
}

package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rumbleFTW/koe-app/internal/chat"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestStore_SaveGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	tr := &Transcript{
		Voice:     "v1",
		StartedAt: time.Unix(100, 0).UTC(),
		EndedAt:   time.Unix(200, 0).UTC(),
		Messages: []chat.Message{
			{Role: shared.RoleUser, Content: "hi"},
			{Role: shared.RoleAssistant, Content: "hello"},
		},
	}
	if err := store.Save(ctx, tr); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if tr.ID == "" {
		t.Fatal("Save did not assign an id")
	}
	if ttl := mr.TTL(TranscriptKey(tr.ID)); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	got, err := store.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Voice != "v1" || len(got.Messages) != 2 || got.Messages[1].Content != "hello" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.EndedAt.Equal(tr.EndedAt) {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, tr.EndedAt)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_List(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		tr := &Transcript{ID: id, EndedAt: time.Unix(int64(1000+i), 0), Messages: make([]chat.Message, i)}
		if err := store.Save(ctx, tr); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("List(2) = %+v, want c then b", list)
	}
	if list[0].Messages != 2 {
		t.Errorf("summary message count = %d, want 2", list[0].Messages)
	}

	mr.Del(TranscriptKey("c"))
	list, err = store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" {
		t.Errorf("List after expiry = %+v", list)
	}
	if members, _ := mr.ZMembers(indexKey); len(members) != 2 {
		t.Errorf("index not pruned: %v", members)
	}
}

func TestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	tr := &Transcript{ID: "x"}
	if err := store.Save(ctx, tr); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "x"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("Get after Delete = %v", err)
	}
}

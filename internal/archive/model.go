package archive

import (
	"time"

	"github.com/rumbleFTW/koe-app/internal/chat"
)

const indexKey = "koe:transcripts"

type Transcript struct {
	ID        string         `json:"id"`
	Voice     string         `json:"voice"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Messages  []chat.Message `json:"messages"`
}

func (t *Transcript) RedisKey() string {
	return TranscriptKey(t.ID)
}

func TranscriptKey(id string) string {
	return "koe:transcript:" + id
}

// Summary is a list entry; it leaves out the messages.
type Summary struct {
	ID        string    `json:"id"`
	Voice     string    `json:"voice"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Messages  int       `json:"messages"`
}

func (t *Transcript) Summary() Summary {
	return Summary{
		ID:        t.ID,
		Voice:     t.Voice,
		StartedAt: t.StartedAt,
		EndedAt:   t.EndedAt,
		Messages:  len(t.Messages),
	}
}

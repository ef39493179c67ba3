package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/rumbleFTW/koe-app/internal/shared"
)

const (
	// InterruptionMarker ends an assistant message that was cut off by the user.
	InterruptionMarker = "—"
	// SilenceMarker stands in for a user turn with no speech.
	SilenceMarker = "..."
)

type Message struct {
	Role    shared.Role `json:"role"`
	Content string      `json:"content"`
}

// Compress folds consecutive same-role messages into one, joining content
// with a newline. The input is not modified.
func Compress(messages []Message) []Message {
	compressed := make([]Message, 0, len(messages))
	for _, m := range messages {
		if n := len(compressed); n > 0 && compressed[n-1].Role == m.Role {
			compressed[n-1].Content += "\n" + m.Content
			continue
		}
		compressed = append(compressed, m)
	}
	return compressed
}

// IsActive reports whether role holds the current turn. Empty and marker-only
// entries are skipped; a trailing silence marker means nobody is speaking.
func IsActive(history []Message, role shared.Role) bool {
	for i := len(history) - 1; i >= 0; i-- {
		content := strings.TrimSpace(history[i].Content)
		if content == "" || markerOnly(content) {
			continue
		}
		if content == SilenceMarker {
			return false
		}
		return history[i].Role == role
	}
	return false
}

func interrupted(m Message) bool {
	if m.Role != shared.RoleAssistant {
		return false
	}
	content := strings.TrimSpace(m.Content)
	return strings.HasSuffix(content, InterruptionMarker) && !markerOnly(content)
}

func markerOnly(content string) bool {
	return strings.Trim(content, InterruptionMarker+" \t\n") == ""
}

// Aggregator is the single writer of the raw chat log. Readers get copies.
type Aggregator struct {
	mu  sync.RWMutex
	now func() time.Time

	raw              []Message
	watermark        int
	lastInterruption time.Time
	onInterrupt      func(at time.Time)
}

func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// OnInterruption registers a callback fired once per detected interruption.
func (a *Aggregator) OnInterruption(fn func(at time.Time)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onInterrupt = fn
}

func (a *Aggregator) Append(role shared.Role, content string) {
	a.mu.Lock()
	a.raw = append(a.raw, Message{Role: role, Content: content})
	at, fired := a.detectLocked()
	cb := a.onInterrupt
	a.mu.Unlock()

	if fired && cb != nil {
		cb(at)
	}
}

// detectLocked advances the watermark past a qualifying trailing assistant
// message so the same message never fires twice.
func (a *Aggregator) detectLocked() (time.Time, bool) {
	compressed := Compress(a.raw)
	if len(compressed) <= a.watermark {
		return time.Time{}, false
	}
	if !interrupted(compressed[len(compressed)-1]) {
		return time.Time{}, false
	}
	a.watermark = len(compressed)
	a.lastInterruption = a.now()
	return a.lastInterruption, true
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw = nil
	a.watermark = 0
	a.lastInterruption = time.Time{}
}

func (a *Aggregator) Snapshot() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Message, len(a.raw))
	copy(out, a.raw)
	return out
}

func (a *Aggregator) Compressed() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Compress(a.raw)
}

func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.raw)
}

// LastInterruption is zero until an interruption has been detected.
func (a *Aggregator) LastInterruption() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastInterruption
}

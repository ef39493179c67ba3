package chat

import (
	"strings"

	"github.com/rumbleFTW/koe-app/internal/shared"
)

const DefaultSubtitleLines = 3

// Subtitles returns the last nLines lines of role's most recent non-empty
// message.
func Subtitles(history []Message, role shared.Role, nLines int) []string {
	if nLines <= 0 {
		nLines = DefaultSubtitleLines
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != role || strings.TrimSpace(history[i].Content) == "" {
			continue
		}
		lines := strings.Split(strings.TrimSpace(history[i].Content), "\n")
		if len(lines) > nLines {
			lines = lines[len(lines)-nLines:]
		}
		return lines
	}
	return nil
}

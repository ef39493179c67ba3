package dto

import (
	"encoding/json"

	"github.com/rumbleFTW/koe-app/internal/chat"
)

type ChatResponse struct {
	Messages []chat.Message `json:"messages"`
}

type SubtitlesResponse struct {
	Role  string   `json:"role" example:"assistant"`
	Lines []string `json:"lines"`
}

type DebugResponse struct {
	DebugDict json.RawMessage `json:"debug_dict"`
}

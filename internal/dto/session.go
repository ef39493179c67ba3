package dto

import (
	"github.com/rumbleFTW/koe-app/internal/conversation"
	"github.com/rumbleFTW/koe-app/internal/realtime"
)

type ConnectResponse struct {
	SessionID string `json:"session_id" example:"0b6c1f0e-8a53-4c2f-9e0d-2f1f5a3c9d11"`
	State     string `json:"state" example:"connected"`
}

type SessionResponse struct {
	conversation.Info
	Config realtime.SessionConfig `json:"config"`
}

// UpdateConfigRequest replaces the session config. An empty voice with
// RandomVoice set picks a random good English voice from the backend.
type UpdateConfigRequest struct {
	Instructions   realtime.Instructions `json:"instructions"`
	Voice          string                `json:"voice" example:"barack_demo.wav"`
	AllowRecording bool                  `json:"allow_recording" example:"false"`
	RandomVoice    bool                  `json:"random_voice,omitempty" example:"false"`
}

func (r UpdateConfigRequest) SessionConfig() realtime.SessionConfig {
	return realtime.SessionConfig{
		Instructions:   r.Instructions,
		Voice:          r.Voice,
		AllowRecording: r.AllowRecording,
	}
}

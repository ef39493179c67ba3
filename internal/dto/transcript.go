package dto

import (
	"github.com/rumbleFTW/koe-app/internal/archive"
	"github.com/rumbleFTW/koe-app/internal/backend"
)

type TranscriptListResponse struct {
	Transcripts []archive.Summary `json:"transcripts"`
}

type VoiceListResponse struct {
	Voices []VoiceResponse `json:"voices"`
}

type VoiceResponse struct {
	DisplayName string `json:"display_name" example:"Watercooler"`
	backend.VoiceSample
}

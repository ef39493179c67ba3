package realtime

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

const (
	TypeSessionUpdate      = "session.update"
	TypeInputAudioAppend   = "input_audio_buffer.append"
	TypeAudioDelta         = "response.audio.delta"
	TypeAdditionalOutputs  = "unmute.additional_outputs"
	TypeTranscriptionDelta = "conversation.item.input_audio_transcription.delta"
	TypeTextDelta          = "response.text.delta"
	TypeError              = "error"
)

// ignoredTypes are control acks the client knows about and has no use for.
var ignoredTypes = []string{
	"session.updated",
	"response.created",
	"response.text.done",
	"response.audio.done",
	"input_audio_buffer.speech_started",
	"input_audio_buffer.speech_stopped",
	"unmute.interrupted_by_vad",
	"unmute.response.text.delta.ready",
	"unmute.response.audio.delta.ready",
}

var ErrInvalidConfig = errors.New("invalid session config")

type InstructionKind string

const (
	InstructionsConstant    InstructionKind = "constant"
	InstructionsSmalltalk   InstructionKind = "smalltalk"
	InstructionsGuessAnimal InstructionKind = "guess_animal"
	InstructionsQuizShow    InstructionKind = "quiz_show"
)

type Language string

const (
	LanguageEnglish       Language = "en"
	LanguageFrench        Language = "fr"
	LanguageEnglishFrench Language = "en/fr"
	LanguageFrenchEnglish Language = "fr/en"
)

// Instructions is a closed union over InstructionKind. Only constant
// instructions carry text.
type Instructions struct {
	Type     InstructionKind `json:"type"`
	Text     string          `json:"text,omitempty"`
	Language Language        `json:"language,omitempty"`
}

func ConstantInstructions(text string, lang Language) Instructions {
	return Instructions{Type: InstructionsConstant, Text: text, Language: lang}
}

func SmalltalkInstructions(lang Language) Instructions {
	return Instructions{Type: InstructionsSmalltalk, Language: lang}
}

func GuessAnimalInstructions(lang Language) Instructions {
	return Instructions{Type: InstructionsGuessAnimal, Language: lang}
}

func QuizShowInstructions(lang Language) Instructions {
	return Instructions{Type: InstructionsQuizShow, Language: lang}
}

func (i Instructions) Validate() error {
	switch i.Language {
	case "", LanguageEnglish, LanguageFrench, LanguageEnglishFrench, LanguageFrenchEnglish:
	default:
		return fmt.Errorf("%w: unknown language %q", ErrInvalidConfig, i.Language)
	}

	switch i.Type {
	case InstructionsConstant:
		if i.Text == "" {
			return fmt.Errorf("%w: constant instructions need text", ErrInvalidConfig)
		}
	case InstructionsSmalltalk, InstructionsGuessAnimal, InstructionsQuizShow:
		if i.Text != "" {
			return fmt.Errorf("%w: %s instructions take no text", ErrInvalidConfig, i.Type)
		}
	default:
		return fmt.Errorf("%w: unknown instructions type %q", ErrInvalidConfig, i.Type)
	}
	return nil
}

type SessionConfig struct {
	Instructions   Instructions `json:"instructions"`
	Voice          string       `json:"voice"`
	AllowRecording bool         `json:"allow_recording"`
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Instructions: SmalltalkInstructions(LanguageEnglishFrench),
		Voice:        "barack_demo.wav",
	}
}

func (c SessionConfig) Validate() error {
	if c.Voice == "" {
		return fmt.Errorf("%w: voice is required", ErrInvalidConfig)
	}
	return c.Instructions.Validate()
}

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type audioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func encodeSessionUpdate(cfg SessionConfig) ([]byte, error) {
	return json.Marshal(sessionUpdateMessage{Type: TypeSessionUpdate, Session: cfg})
}

func encodeAudioAppend(frame []byte) ([]byte, error) {
	return json.Marshal(audioAppendMessage{
		Type:  TypeInputAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(frame),
	})
}

// Event is one inbound message. The set of implementations is closed; any
// type tag the client does not know decodes to UnknownEvent.
type Event interface {
	EventType() string
}

type AudioDeltaEvent struct {
	Audio []byte
}

type AdditionalOutputsEvent struct {
	DebugDict json.RawMessage
}

type TranscriptionDeltaEvent struct {
	Delta string
}

type TextDeltaEvent struct {
	Delta string
}

type ErrorEvent struct {
	Kind    string
	Message string
}

type IgnoredEvent struct {
	Type string
}

type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (AudioDeltaEvent) EventType() string         { return TypeAudioDelta }
func (AdditionalOutputsEvent) EventType() string  { return TypeAdditionalOutputs }
func (TranscriptionDeltaEvent) EventType() string { return TypeTranscriptionDelta }
func (TextDeltaEvent) EventType() string          { return TypeTextDelta }
func (ErrorEvent) EventType() string              { return TypeError }
func (e IgnoredEvent) EventType() string          { return e.Type }
func (e UnknownEvent) EventType() string          { return e.Type }

func (e ErrorEvent) Warning() bool {
	return e.Kind == "warning"
}

type inboundEnvelope struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Args  *struct {
		DebugDict json.RawMessage `json:"debug_dict"`
	} `json:"args"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeEvent parses one text frame from the backend.
func DecodeEvent(data []byte) (Event, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch env.Type {
	case TypeAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(env.Delta)
		if err != nil {
			return nil, fmt.Errorf("decode audio delta: %w", err)
		}
		return AudioDeltaEvent{Audio: audio}, nil
	case TypeAdditionalOutputs:
		var debug json.RawMessage
		if env.Args != nil {
			debug = env.Args.DebugDict
		}
		return AdditionalOutputsEvent{DebugDict: debug}, nil
	case TypeTranscriptionDelta:
		return TranscriptionDeltaEvent{Delta: env.Delta}, nil
	case TypeTextDelta:
		return TextDeltaEvent{Delta: env.Delta}, nil
	case TypeError:
		ev := ErrorEvent{}
		if env.Error != nil {
			ev.Kind = env.Error.Type
			ev.Message = env.Error.Message
		}
		return ev, nil
	}

	if slices.Contains(ignoredTypes, env.Type) {
		return IgnoredEvent{Type: env.Type}, nil
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	return UnknownEvent{Type: env.Type, Raw: raw}, nil
}

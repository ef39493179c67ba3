package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rumbleFTW/koe-app/internal/archive"
	"github.com/rumbleFTW/koe-app/internal/backend"
	"github.com/rumbleFTW/koe-app/internal/chat"
	"github.com/rumbleFTW/koe-app/internal/conversation"
	"github.com/rumbleFTW/koe-app/internal/dto"
	"github.com/rumbleFTW/koe-app/internal/realtime"
	"github.com/rumbleFTW/koe-app/internal/recording"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

const maxSnapshotSize = 2048

type Conversation interface {
	Connect(ctx context.Context) (string, error)
	Disconnect()
	Info() conversation.Info
	Session() realtime.SessionConfig
	UpdateConfig(cfg realtime.SessionConfig) error
	History() []chat.Message
	Subtitles(role shared.Role, lines int) []string
	Debug() json.RawMessage
	Snapshot(role shared.Role, size int) ([]byte, error)
	Download() (recording.Artifact, error)
	DownloadAudio() (recording.Artifact, error)
}

type Backend interface {
	Health(ctx context.Context) backend.Health
	Voices(ctx context.Context) []backend.VoiceSample
}

type Transcripts interface {
	Get(ctx context.Context, id string) (*archive.Transcript, error)
	List(ctx context.Context, limit int) ([]archive.Summary, error)
}

type Handler struct {
	conv        Conversation
	backend     Backend
	transcripts Transcripts
	logger      *slog.Logger
}

func NewHandler(conv Conversation, b Backend, transcripts Transcripts, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		conv:        conv,
		backend:     b,
		transcripts: transcripts,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/backend/health", h.BackendHealth)
	g.GET("/voices", h.Voices)

	g.POST("/session/connect", h.Connect)
	g.POST("/session/disconnect", h.Disconnect)
	g.GET("/session", h.Session)
	g.PUT("/session/config", h.UpdateConfig)

	g.GET("/chat", h.Chat)
	g.GET("/chat/subtitles", h.Subtitles)
	g.GET("/debug", h.Debug)

	g.GET("/transcripts", h.ListTranscripts)
	g.GET("/transcripts/:id", h.GetTranscript)

	g.GET("/visualizer/:role", h.Visualizer)
	g.GET("/recording", h.Recording)
	g.GET("/recording/audio", h.RecordingAudio)
}

// BackendHealth godoc
// @Summary      Probe the voice backend
// @Description  Reports which backend services are up. Throttled calls return the last result
// @Tags         backend
// @Produce      json
// @Success      200  {object}  backend.Health
// @Router       /backend/health [get]
func (h *Handler) BackendHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.backend.Health(c.Request().Context()))
}

// Voices godoc
// @Summary      List voices
// @Description  Returns the voices the backend offers
// @Tags         backend
// @Produce      json
// @Success      200  {object}  dto.VoiceListResponse
// @Router       /voices [get]
func (h *Handler) Voices(c echo.Context) error {
	voices := h.backend.Voices(c.Request().Context())
	resp := dto.VoiceListResponse{Voices: make([]dto.VoiceResponse, len(voices))}
	for i, v := range voices {
		resp.Voices[i] = dto.VoiceResponse{DisplayName: backend.VoiceName(v), VoiceSample: v}
	}
	return c.JSON(http.StatusOK, resp)
}

// Connect godoc
// @Summary      Start a conversation
// @Description  Requests the microphone, sets up audio and dials the backend
// @Tags         session
// @Produce      json
// @Success      200  {object}  dto.ConnectResponse
// @Failure      403  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /session/connect [post]
func (h *Handler) Connect(c echo.Context) error {
	id, err := h.conv.Connect(c.Request().Context())
	if err != nil {
		h.logger.Warn("connect failed", "error", err)
		return shared.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, dto.ConnectResponse{
		SessionID: id,
		State:     h.conv.Info().State.String(),
	})
}

// Disconnect godoc
// @Summary      End the conversation
// @Description  Closes the channel and releases the audio devices
// @Tags         session
// @Success      204  "No Content"
// @Router       /session/disconnect [post]
func (h *Handler) Disconnect(c echo.Context) error {
	h.conv.Disconnect()
	return c.NoContent(http.StatusNoContent)
}

// Session godoc
// @Summary      Get session state
// @Description  Returns connection state, session id, recording flag and the active config
// @Tags         session
// @Produce      json
// @Success      200  {object}  dto.SessionResponse
// @Router       /session [get]
func (h *Handler) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.SessionResponse{
		Info:   h.conv.Info(),
		Config: h.conv.Session(),
	})
}

// UpdateConfig godoc
// @Summary      Update session config
// @Description  Replaces the session config. An active session is disconnected
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body      dto.UpdateConfigRequest  true  "Session config"
// @Success      200  {object}  realtime.SessionConfig
// @Failure      400  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Router       /session/config [put]
func (h *Handler) UpdateConfig(c echo.Context) error {
	var req dto.UpdateConfigRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	cfg := req.SessionConfig()
	if cfg.Voice == "" && req.RandomVoice {
		v, ok := backend.RandomEnglishVoice(h.backend.Voices(c.Request().Context()))
		if !ok {
			return shared.Unavailable("no_voice_available", "no voice available from the backend")
		}
		cfg = backend.SessionConfigFor(v, cfg)
	}

	if err := h.conv.UpdateConfig(cfg); err != nil {
		if errors.Is(err, realtime.ErrInvalidConfig) {
			return shared.BadRequest("invalid_config", err.Error())
		}
		return shared.ToHTTPError(err)
	}
	return c.JSON(http.StatusOK, h.conv.Session())
}

// Chat godoc
// @Summary      Get chat history
// @Description  Returns the compressed chat history
// @Tags         chat
// @Produce      json
// @Success      200  {object}  dto.ChatResponse
// @Router       /chat [get]
func (h *Handler) Chat(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.ChatResponse{Messages: h.conv.History()})
}

// Subtitles godoc
// @Summary      Get subtitles
// @Description  Returns the last lines spoken by one role
// @Tags         chat
// @Produce      json
// @Param        role   query  string  false  "user or assistant"
// @Param        lines  query  int     false  "Number of lines"
// @Success      200  {object}  dto.SubtitlesResponse
// @Failure      400  {object}  shared.APIError
// @Router       /chat/subtitles [get]
func (h *Handler) Subtitles(c echo.Context) error {
	role := shared.RoleAssistant
	if r := c.QueryParam("role"); r != "" {
		role = shared.Role(r)
	}
	if !role.Speaker() {
		return shared.BadRequest("invalid_role", "role must be user or assistant")
	}

	lines := chat.DefaultSubtitleLines
	if v := c.QueryParam("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return shared.BadRequest("invalid_lines", "lines must be a positive integer")
		}
		lines = n
	}

	return c.JSON(http.StatusOK, dto.SubtitlesResponse{
		Role:  role.String(),
		Lines: h.conv.Subtitles(role, lines),
	})
}

// Debug godoc
// @Summary      Get debug dict
// @Description  Returns the latest additional outputs from the backend
// @Tags         chat
// @Produce      json
// @Success      200  {object}  dto.DebugResponse
// @Router       /debug [get]
func (h *Handler) Debug(c echo.Context) error {
	d := h.conv.Debug()
	if len(d) == 0 {
		d = json.RawMessage("null")
	}
	return c.JSON(http.StatusOK, dto.DebugResponse{DebugDict: d})
}

// ListTranscripts godoc
// @Summary      List transcripts
// @Description  Returns archived conversations, newest first
// @Tags         transcripts
// @Produce      json
// @Param        limit  query  int  false  "Maximum results"
// @Success      200  {object}  dto.TranscriptListResponse
// @Failure      400  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /transcripts [get]
func (h *Handler) ListTranscripts(c echo.Context) error {
	if h.transcripts == nil {
		return shared.Unavailable("archive_disabled", "transcript archive is not configured")
	}

	limit := archive.DefaultListLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return shared.BadRequest("invalid_limit", "limit must be a positive integer")
		}
		limit = n
	}

	list, err := h.transcripts.List(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list transcripts", "error", err)
		return shared.InternalError("list_failed", "failed to list transcripts")
	}
	return c.JSON(http.StatusOK, dto.TranscriptListResponse{Transcripts: list})
}

// GetTranscript godoc
// @Summary      Get a transcript
// @Description  Returns one archived conversation
// @Tags         transcripts
// @Produce      json
// @Param        id  path  string  true  "Transcript ID"
// @Success      200  {object}  archive.Transcript
// @Failure      404  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /transcripts/{id} [get]
func (h *Handler) GetTranscript(c echo.Context) error {
	if h.transcripts == nil {
		return shared.Unavailable("archive_disabled", "transcript archive is not configured")
	}

	id := c.Param("id")
	t, err := h.transcripts.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("transcript_not_found", "transcript not found")
		}
		h.logger.Error("failed to get transcript", "error", err, "transcript_id", id)
		return shared.InternalError("get_failed", "failed to get transcript")
	}
	return c.JSON(http.StatusOK, t)
}

// Visualizer godoc
// @Summary      Render a visualizer frame
// @Description  Returns the current circle for one role as a PNG
// @Tags         visualizer
// @Produce      image/png
// @Param        role  path   string  true   "user or assistant"
// @Param        size  query  int     false  "Edge length in pixels"
// @Success      200  {file}    binary
// @Failure      400  {object}  shared.APIError
// @Router       /visualizer/{role} [get]
func (h *Handler) Visualizer(c echo.Context) error {
	role := shared.Role(c.Param("role"))
	if !role.Speaker() {
		return shared.BadRequest("invalid_role", "role must be user or assistant")
	}

	size := conversation.DefaultSnapshotSize
	if v := c.QueryParam("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxSnapshotSize {
			return shared.NewAPIError("invalid_size", "size out of range").
				WithDetails(map[string]int{"min": 1, "max": maxSnapshotSize}).
				ToHTTP(http.StatusBadRequest)
		}
		size = n
	}

	data, err := h.conv.Snapshot(role, size)
	if err != nil {
		return shared.ToHTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", data)
}

// Recording godoc
// @Summary      Download the recording
// @Description  Returns the last finished webm recording once
// @Tags         recording
// @Produce      video/webm
// @Success      200  {file}    binary
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Router       /recording [get]
func (h *Handler) Recording(c echo.Context) error {
	return h.serveArtifact(c, h.conv.Download)
}

// RecordingAudio godoc
// @Summary      Download the recording audio
// @Description  Returns the mixed audio of the last recording as WAV
// @Tags         recording
// @Produce      audio/wav
// @Success      200  {file}    binary
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Router       /recording/audio [get]
func (h *Handler) RecordingAudio(c echo.Context) error {
	return h.serveArtifact(c, h.conv.DownloadAudio)
}

func (h *Handler) serveArtifact(c echo.Context, take func() (recording.Artifact, error)) error {
	a, err := take()
	if err != nil {
		return shared.ToHTTPError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+a.Filename+`"`)
	return c.Blob(http.StatusOK, a.ContentType, a.Data)
}

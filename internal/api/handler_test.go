package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

type fakeConversation struct {
	connectErr   error
	connected    bool
	config       realtime.SessionConfig
	history      []chat.Message
	debug        json.RawMessage
	artifact     *recording.Artifact
	recording    bool
	disconnects  int
	snapshotRole shared.Role
}

func (f *fakeConversation) Connect(context.Context) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	f.connected = true
	return "sess-1", nil
}

func (f *fakeConversation) Disconnect() {
	f.disconnects++
	f.connected = false
}

func (f *fakeConversation) Info() conversation.Info {
	info := conversation.Info{State: realtime.Disconnected, Voice: f.config.Voice, Recording: f.recording}
	if f.connected {
		info.State = realtime.Connected
		info.SessionID = "sess-1"
	}
	return info
}

func (f *fakeConversation) Session() realtime.SessionConfig { return f.config }

func (f *fakeConversation) UpdateConfig(cfg realtime.SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.config = cfg
	return nil
}

func (f *fakeConversation) History() []chat.Message { return f.history }

func (f *fakeConversation) Subtitles(role shared.Role, lines int) []string {
	return chat.Subtitles(f.history, role, lines)
}

func (f *fakeConversation) Debug() json.RawMessage { return f.debug }

func (f *fakeConversation) Snapshot(role shared.Role, size int) ([]byte, error) {
	f.snapshotRole = role
	return []byte("\x89PNG" + fmt.Sprint(size)), nil
}

func (f *fakeConversation) Download() (recording.Artifact, error) {
	if f.recording {
		return recording.Artifact{}, shared.ErrRecordingInProgress
	}
	if f.artifact == nil {
		return recording.Artifact{}, shared.ErrNoRecordingAvailable
	}
	a := *f.artifact
	f.artifact = nil
	return a, nil
}

func (f *fakeConversation) DownloadAudio() (recording.Artifact, error) {
	return recording.Artifact{}, shared.ErrNoRecordingAvailable
}

type fakeBackend struct {
	voices []backend.VoiceSample
}

func (fakeBackend) Health(context.Context) backend.Health {
	return backend.Health{Connected: backend.ConnectedOK, OK: true, TTSUp: true}
}

func (f fakeBackend) Voices(context.Context) []backend.VoiceSample { return f.voices }

type fakeTranscripts struct {
	items map[string]*archive.Transcript
}

func (f fakeTranscripts) Get(_ context.Context, id string) (*archive.Transcript, error) {
	t, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return t, nil
}

func (f fakeTranscripts) List(_ context.Context, limit int) ([]archive.Summary, error) {
	var out []archive.Summary
	for _, t := range f.items {
		if len(out) == limit {
			break
		}
		out = append(out, t.Summary())
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func newTestServer(conv *fakeConversation, b Backend, tr Transcripts) *echo.Echo {
	e := echo.New()
	h := NewHandler(conv, b, tr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.RegisterRoutes(e.Group("/v1"))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body %q: %v", rec.Body.String(), err)
	}
	return body.Code
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := newTestServer(&fakeConversation{}, fakeBackend{}, nil)

	expected := []string{
		"/v1/backend/health",
		"/v1/voices",
		"/v1/session/connect",
		"/v1/session/disconnect",
		"/v1/session",
		"/v1/session/config",
		"/v1/chat",
		"/v1/chat/subtitles",
		"/v1/debug",
		"/v1/transcripts",
		"/v1/transcripts/:id",
		"/v1/visualizer/:role",
		"/v1/recording",
		"/v1/recording/audio",
	}

	paths := make(map[string]bool)
	for _, r := range e.Routes() {
		paths[r.Path] = true
	}
	for _, p := range expected {
		if !paths[p] {
			t.Errorf("expected route %s to be registered", p)
		}
	}
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"permission", shared.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
		{"active", shared.ErrAlreadyActive, http.StatusConflict, "already_active"},
		{"device", fmt.Errorf("open input: %w", shared.ErrDeviceError), http.StatusServiceUnavailable, "device_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(&fakeConversation{connectErr: tt.err}, fakeBackend{}, nil)
			rec := do(e, http.MethodPost, "/v1/session/connect", "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	conv := &fakeConversation{config: realtime.DefaultSessionConfig()}
	e := newTestServer(conv, fakeBackend{}, nil)

	rec := do(e, http.MethodPost, "/v1/session/connect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("connect status = %d", rec.Code)
	}
	var resp dto.ConnectResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != "sess-1" || resp.State != "connected" {
		t.Errorf("resp = %+v", resp)
	}

	rec = do(e, http.MethodGet, "/v1/session", "")
	var session map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &session)
	if session["state"] != "connected" || session["session_id"] != "sess-1" {
		t.Errorf("session = %v", session)
	}

	rec = do(e, http.MethodPost, "/v1/session/disconnect", "")
	if rec.Code != http.StatusNoContent || conv.disconnects != 1 {
		t.Errorf("disconnect status = %d, calls = %d", rec.Code, conv.disconnects)
	}
}

func TestUpdateConfig(t *testing.T) {
	conv := &fakeConversation{config: realtime.DefaultSessionConfig()}
	e := newTestServer(conv, fakeBackend{}, nil)

	rec := do(e, http.MethodPut, "/v1/session/config", `{"instructions":{"type":"constant","text":"be brief"},"voice":"v2","allow_recording":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if conv.config.Voice != "v2" || !conv.config.AllowRecording || conv.config.Instructions.Text != "be brief" {
		t.Errorf("config = %+v", conv.config)
	}

	rec = do(e, http.MethodPut, "/v1/session/config", `{"instructions":{"type":"smalltalk"},"voice":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty voice status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_config" {
		t.Errorf("code = %q", code)
	}

	rec = do(e, http.MethodPut, "/v1/session/config", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed status = %d", rec.Code)
	}
}

func TestUpdateConfig_RandomVoice(t *testing.T) {
	lang := realtime.LanguageEnglish
	instr := realtime.Instructions{Type: realtime.InstructionsSmalltalk, Language: lang}
	voices := []backend.VoiceSample{{
		Name:         strPtr("Narrator"),
		Good:         true,
		Instructions: &instr,
		Source:       backend.VoiceSource{SourceType: "file", PathOnServer: "voices/narrator.wav"},
	}}
	conv := &fakeConversation{config: realtime.DefaultSessionConfig()}
	e := newTestServer(conv, fakeBackend{voices: voices}, nil)

	rec := do(e, http.MethodPut, "/v1/session/config", `{"random_voice":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if conv.config.Voice != "voices/narrator.wav" {
		t.Errorf("voice = %q", conv.config.Voice)
	}

	e = newTestServer(conv, fakeBackend{}, nil)
	rec = do(e, http.MethodPut, "/v1/session/config", `{"random_voice":true}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no voices status = %d", rec.Code)
	}
}

func TestVoices(t *testing.T) {
	voices := []backend.VoiceSample{{Name: strPtr("Narrator"), Source: backend.VoiceSource{PathOnServer: "n.wav"}}}
	e := newTestServer(&fakeConversation{}, fakeBackend{voices: voices}, nil)

	rec := do(e, http.MethodGet, "/v1/voices", "")
	var resp dto.VoiceListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Voices) != 1 || resp.Voices[0].DisplayName != "Narrator" {
		t.Errorf("voices = %+v", resp.Voices)
	}
}

func TestChatAndSubtitles(t *testing.T) {
	conv := &fakeConversation{history: []chat.Message{
		{Role: shared.RoleUser, Content: "hello"},
		{Role: shared.RoleAssistant, Content: "one\ntwo\nthree\nfour"},
	}}
	e := newTestServer(conv, fakeBackend{}, nil)

	rec := do(e, http.MethodGet, "/v1/chat", "")
	var chatResp dto.ChatResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &chatResp)
	if len(chatResp.Messages) != 2 {
		t.Errorf("messages = %+v", chatResp.Messages)
	}

	rec = do(e, http.MethodGet, "/v1/chat/subtitles?role=assistant&lines=2", "")
	var subs dto.SubtitlesResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &subs)
	if len(subs.Lines) != 2 || subs.Lines[0] != "three" || subs.Lines[1] != "four" {
		t.Errorf("lines = %q", subs.Lines)
	}

	if rec := do(e, http.MethodGet, "/v1/chat/subtitles?role=system", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("system role status = %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/chat/subtitles?lines=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("zero lines status = %d", rec.Code)
	}
}

func TestDebug(t *testing.T) {
	conv := &fakeConversation{}
	e := newTestServer(conv, fakeBackend{}, nil)

	rec := do(e, http.MethodGet, "/v1/debug", "")
	if !strings.Contains(rec.Body.String(), `"debug_dict":null`) {
		t.Errorf("empty debug body = %s", rec.Body.String())
	}

	conv.debug = json.RawMessage(`{"turn":3}`)
	rec = do(e, http.MethodGet, "/v1/debug", "")
	if !strings.Contains(rec.Body.String(), `"turn":3`) {
		t.Errorf("debug body = %s", rec.Body.String())
	}
}

func TestTranscripts(t *testing.T) {
	tr := fakeTranscripts{items: map[string]*archive.Transcript{
		"abc": {ID: "abc", Voice: "v1", Messages: []chat.Message{{Role: shared.RoleUser, Content: "hi"}}},
	}}
	e := newTestServer(&fakeConversation{}, fakeBackend{}, tr)

	rec := do(e, http.MethodGet, "/v1/transcripts", "")
	var list dto.TranscriptListResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list.Transcripts) != 1 || list.Transcripts[0].Messages != 1 {
		t.Errorf("list = %+v", list)
	}

	rec = do(e, http.MethodGet, "/v1/transcripts/abc", "")
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/v1/transcripts/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rec.Code)
	}

	if rec := do(e, http.MethodGet, "/v1/transcripts?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}

	e = newTestServer(&fakeConversation{}, fakeBackend{}, nil)
	if rec := do(e, http.MethodGet, "/v1/transcripts", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled archive status = %d", rec.Code)
	}
}

func TestVisualizer(t *testing.T) {
	conv := &fakeConversation{}
	e := newTestServer(conv, fakeBackend{}, nil)

	rec := do(e, http.MethodGet, "/v1/visualizer/user?size=64", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if conv.snapshotRole != shared.RoleUser || !strings.HasSuffix(rec.Body.String(), "64") {
		t.Errorf("role = %s, body = %q", conv.snapshotRole, rec.Body.String())
	}

	if rec := do(e, http.MethodGet, "/v1/visualizer/system", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("system role status = %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/visualizer/assistant?size=99999", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized status = %d", rec.Code)
	}
}

func TestRecording(t *testing.T) {
	conv := &fakeConversation{}
	e := newTestServer(conv, fakeBackend{}, nil)

	rec := do(e, http.MethodGet, "/v1/recording", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "no_recording_available" {
		t.Errorf("code = %q", code)
	}

	conv.recording = true
	if rec := do(e, http.MethodGet, "/v1/recording", ""); rec.Code != http.StatusConflict {
		t.Errorf("in progress status = %d", rec.Code)
	}

	conv.recording = false
	conv.artifact = &recording.Artifact{Filename: "koe-2024-05-01_10-00-00.webm", ContentType: recording.ContentTypeWebM, Data: []byte("webm")}
	rec = do(e, http.MethodGet, "/v1/recording", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "koe-2024-05-01_10-00-00.webm") {
		t.Errorf("content disposition = %q", cd)
	}
	if rec.Body.String() != "webm" {
		t.Errorf("body = %q", rec.Body.String())
	}

	if rec := do(e, http.MethodGet, "/v1/recording/audio", ""); rec.Code != http.StatusNotFound {
		t.Errorf("audio status = %d", rec.Code)
	}
}

package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rumbleFTW/koe-app/internal/archive"
	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/chat"
	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/device"
	"github.com/rumbleFTW/koe-app/internal/processor"
	"github.com/rumbleFTW/koe-app/internal/realtime"
	"github.com/rumbleFTW/koe-app/internal/recording"
	"github.com/rumbleFTW/koe-app/internal/shared"
	"github.com/rumbleFTW/koe-app/internal/visualizer"
)

const (
	DefaultArchiveTimeout = 5 * time.Second
	DefaultSnapshotSize   = 512
)

type Archiver interface {
	Save(ctx context.Context, t *archive.Transcript) error
}

type Config struct {
	SampleRate     int
	FPS            int
	ArchiveTimeout time.Duration
	Colors         visualizer.Colors
}

// Deps are the collaborators of one conversation. Recorder and Archive are
// optional.
type Deps struct {
	Consent   device.Consent
	Opener    device.Opener
	Processor *processor.Processor
	Client    *realtime.Client
	History   *chat.Aggregator
	Recorder  *recording.Compositor
	Archive   Archiver
}

type Info struct {
	SessionID string         `json:"session_id,omitempty"`
	State     realtime.State `json:"state"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Voice     string         `json:"voice"`
	Recording bool           `json:"recording"`
}

type Conversation struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	engines map[shared.Role]*visualizer.Engine

	connectMu sync.Mutex
	// recMu orders recorder start against session teardown.
	recMu sync.Mutex

	mu          sync.Mutex
	sessionID   string
	startedAt   time.Time
	voice       string
	connected   bool
	stopEngines context.CancelFunc
	wg          sync.WaitGroup
}

func New(cfg Config, deps Deps, log *slog.Logger) *Conversation {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = codec.SampleRate
	}
	if cfg.FPS <= 0 {
		cfg.FPS = visualizer.DefaultFPS
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = DefaultArchiveTimeout
	}
	if cfg.Colors == (visualizer.Colors{}) {
		cfg.Colors = visualizer.DefaultColors()
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Conversation{
		cfg:  cfg,
		deps: deps,
		log:  log.With("component", "conversation"),
	}

	connected := func() bool { return deps.Client.State() == realtime.Connected }
	c.engines = map[shared.Role]*visualizer.Engine{
		shared.RoleAssistant: visualizer.NewEngine(visualizer.Options{
			Role:  shared.RoleAssistant,
			Color: cfg.Colors.Assistant,
			Clear: true,
		}, visualizer.Sources{
			Analyser:  deps.Processor.OutputAnalyser,
			History:   deps.History.Compressed,
			Connected: connected,
		}),
		shared.RoleUser: visualizer.NewEngine(visualizer.Options{
			Role:     shared.RoleUser,
			Color:    cfg.Colors.User,
			ShowPlay: true,
			Clear:    true,
		}, visualizer.Sources{
			Analyser:     deps.Processor.InputAnalyser,
			History:      deps.History.Compressed,
			Interruption: deps.History.LastInterruption,
			Connected:    connected,
		}),
	}

	deps.Client.Subscribe(realtime.Observer{OnState: c.onState})
	return c
}

// Connect runs the whole connect flow and returns the new session id.
func (c *Conversation) Connect(ctx context.Context) (string, error) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.deps.Client.State() != realtime.Disconnected || c.deps.Processor.Active() {
		return "", shared.ErrAlreadyActive
	}

	src, err := processor.RequestAccess(ctx, c.deps.Consent, c.deps.Opener, c.cfg.SampleRate)
	if err != nil {
		c.log.Warn("microphone access failed", "error", err)
		return "", err
	}
	if err := c.deps.Processor.Setup(ctx, src); err != nil {
		return "", err
	}

	id := uuid.NewString()
	session := c.deps.Client.Session()
	c.mu.Lock()
	c.sessionID = id
	c.startedAt = time.Now()
	c.voice = session.Voice
	c.connected = false
	c.mu.Unlock()

	log := c.log.With("session_id", id)
	if err := c.deps.Client.Connect(ctx, c.deps.Processor); err != nil {
		c.deps.Processor.Shutdown()
		c.clearSession(id)
		log.Error("connect failed", "error", err)
		return "", err
	}

	c.startEngines()
	c.startRecording(id, c.deps.Processor.Destination(), log)

	log.Info("conversation started", "voice", session.Voice)
	return id, nil
}

// startRecording starts the recorder only while id is still the live session.
// A session torn down between dial and here is left unrecorded.
func (c *Conversation) startRecording(id string, dest *audio.Mixer, log *slog.Logger) {
	if c.deps.Recorder == nil {
		return
	}
	c.recMu.Lock()
	defer c.recMu.Unlock()

	c.mu.Lock()
	live := c.sessionID == id
	c.mu.Unlock()
	if !live {
		log.Debug("session ended before recording started")
		return
	}
	if err := c.deps.Recorder.Start(dest); err != nil {
		log.Warn("recording not started", "error", err)
	}
}

func (c *Conversation) Disconnect() {
	c.deps.Client.Disconnect()
	c.deps.Processor.Shutdown()
}

func (c *Conversation) UpdateConfig(cfg realtime.SessionConfig) error {
	return c.deps.Client.UpdateConfig(cfg)
}

func (c *Conversation) startEngines() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopEngines != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopEngines = cancel
	for _, e := range c.engines {
		c.wg.Add(1)
		go func(e *visualizer.Engine) {
			defer c.wg.Done()
			e.Run(ctx, c.cfg.FPS)
		}(e)
	}
}

func (c *Conversation) onState(s realtime.State) {
	switch s {
	case realtime.Connected:
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	case realtime.Disconnected:
		c.finishSession()
	}
}

// finishSession runs on the goroutine that reported Disconnected, before any
// new Connect can claim the recorder. Only the archive write is detached.
func (c *Conversation) finishSession() {
	c.recMu.Lock()
	c.mu.Lock()
	id, started, voice, connected := c.sessionID, c.startedAt, c.voice, c.connected
	c.sessionID = ""
	c.connected = false
	c.mu.Unlock()
	if c.deps.Recorder != nil {
		if err := c.deps.Recorder.Stop(); err != nil {
			c.log.Warn("recording stop failed", "error", err)
		}
	}
	c.recMu.Unlock()
	c.deps.Processor.Shutdown()

	if id == "" || !connected {
		return
	}

	messages := c.deps.History.Compressed()
	log := c.log.With("session_id", id)
	log.Info("conversation ended", "messages", len(messages))
	if c.deps.Archive == nil || len(messages) == 0 {
		return
	}

	t := &archive.Transcript{
		ID:        id,
		Voice:     voice,
		StartedAt: started,
		EndedAt:   time.Now(),
		Messages:  messages,
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ArchiveTimeout)
		defer cancel()
		if err := c.deps.Archive.Save(ctx, t); err != nil {
			log.Error("failed to archive transcript", "error", err)
		}
	}()
}

func (c *Conversation) clearSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == id {
		c.sessionID = ""
		c.connected = false
	}
}

// Close ends any session and stops the engines.
func (c *Conversation) Close() {
	c.Disconnect()

	c.mu.Lock()
	stop := c.stopEngines
	c.stopEngines = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	c.wg.Wait()
}

func (c *Conversation) State() realtime.State {
	return c.deps.Client.State()
}

func (c *Conversation) Info() Info {
	c.mu.Lock()
	info := Info{
		SessionID: c.sessionID,
		Voice:     c.voice,
	}
	if c.sessionID != "" {
		started := c.startedAt
		info.StartedAt = &started
	}
	c.mu.Unlock()

	info.State = c.deps.Client.State()
	if info.Voice == "" {
		info.Voice = c.deps.Client.Session().Voice
	}
	if c.deps.Recorder != nil {
		info.Recording = c.deps.Recorder.Recording()
	}
	return info
}

func (c *Conversation) Session() realtime.SessionConfig {
	return c.deps.Client.Session()
}

func (c *Conversation) History() []chat.Message {
	return c.deps.History.Compressed()
}

func (c *Conversation) Subtitles(role shared.Role, lines int) []string {
	return chat.Subtitles(c.deps.History.Compressed(), role, lines)
}

func (c *Conversation) Debug() json.RawMessage {
	return c.deps.Client.Debug()
}

// Snapshot renders the role's visualizer as PNG.
func (c *Conversation) Snapshot(role shared.Role, size int) ([]byte, error) {
	e, ok := c.engines[role]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if size <= 0 {
		size = DefaultSnapshotSize
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, e.Snapshot(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Conversation) Download() (recording.Artifact, error) {
	if c.deps.Recorder == nil {
		return recording.Artifact{}, shared.ErrNoRecordingAvailable
	}
	return c.deps.Recorder.Download()
}

func (c *Conversation) DownloadAudio() (recording.Artifact, error) {
	if c.deps.Recorder == nil {
		return recording.Artifact{}, shared.ErrNoRecordingAvailable
	}
	return c.deps.Recorder.DownloadAudio()
}

package recording

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/chat"
	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/shared"
	"github.com/rumbleFTW/koe-app/internal/visualizer"
)

const (
	DefaultFPS         = 30
	DefaultJPEGQuality = 80

	ContentTypeWebM = "video/webm"
	ContentTypeWAV  = "audio/wav"

	audioTrack = 0
	videoTrack = 1

	// opusPreSkip is the encoder lookahead at 48 kHz.
	opusPreSkip  = 312
	finalizeWait = 2 * time.Second
)

type Sources struct {
	InputAnalyser  func() *audio.Analyser
	OutputAnalyser func() *audio.Analyser
	History        func() []chat.Message
	Interruption   func() time.Time
}

type Config struct {
	Size        int
	FPS         int
	Branding    string
	LogoPath    string
	Colors      visualizer.Colors
	SampleRate  int
	JPEGQuality int
	// OnBytes, if set, receives the size of each finished artifact.
	OnBytes func(n int)
	Now     func() time.Time
}

type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Compositor struct {
	cfg    Config
	log    *slog.Logger
	canvas *canvas

	mu      sync.Mutex
	current *session
	video   *Artifact
	wav     *Artifact
}

type session struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	sink    *memorySink
	writers []webm.BlockWriteCloser
	opus    *codec.OpusCodec
	dest    *audio.Mixer
	started time.Time

	pcm    []int16
	blocks int
}

func New(cfg Config, src Sources, log *slog.Logger) *Compositor {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = codec.SampleRate
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	if cfg.Colors == (visualizer.Colors{}) {
		cfg.Colors = visualizer.DefaultColors()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "recording")

	logo := loadOptionalLogo(cfg.LogoPath, log)
	return &Compositor{
		cfg:    cfg,
		log:    log,
		canvas: newCanvas(cfg.Size, cfg.Branding, logo, cfg.Colors, src),
	}
}

func loadOptionalLogo(path string, log *slog.Logger) image.Image {
	if path == "" {
		return nil
	}
	img, err := loadLogo(path)
	if err != nil {
		log.Warn("logo not loaded", "path", path, "error", err)
		return nil
	}
	return img
}

// Start begins recording the canvas and the mixed audio from dest.
func (c *Compositor) Start(dest *audio.Mixer) error {
	if dest == nil {
		return shared.ErrNotReady
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return shared.ErrRecordingInProgress
	}

	opus, err := codec.NewOpusCodec(c.cfg.SampleRate)
	if err != nil {
		return err
	}

	sink := newMemorySink()
	writers, err := webm.NewSimpleBlockWriter(sink, c.tracks())
	if err != nil {
		return fmt.Errorf("create webm writer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		cancel:  cancel,
		done:    make(chan struct{}),
		sink:    sink,
		writers: writers,
		opus:    opus,
		dest:    dest,
		started: c.cfg.Now(),
	}
	c.current = s
	c.video = nil
	c.wav = nil

	go c.run(ctx, s)
	c.log.Info("recording started", "size", c.cfg.Size, "fps", c.cfg.FPS)
	return nil
}

func (c *Compositor) tracks() []webm.TrackEntry {
	return []webm.TrackEntry{
		{
			Name:         "Audio",
			TrackNumber:  1,
			TrackUID:     1,
			CodecID:      "A_OPUS",
			CodecPrivate: codec.OpusHead(codec.Channels, opusPreSkip, c.cfg.SampleRate),
			TrackType:    2,
			Audio: &webm.Audio{
				SamplingFrequency: 48000,
				Channels:          codec.Channels,
			},
		},
		{
			Name:            "Video",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         "V_MJPEG",
			TrackType:       1,
			DefaultDuration: uint64(time.Second / time.Duration(c.cfg.FPS)),
			Video: &webm.Video{
				PixelWidth:  uint64(c.cfg.Size),
				PixelHeight: uint64(c.cfg.Size),
			},
		},
	}
}

func (c *Compositor) run(ctx context.Context, s *session) {
	defer close(s.done)

	frames := time.NewTicker(time.Second / time.Duration(c.cfg.FPS))
	defer frames.Stop()
	chunks := time.NewTicker(codec.FrameDuration)
	defer chunks.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-frames.C:
			c.writeVideo(s, now)
		case now := <-chunks.C:
			c.writeAudio(s, now)
		}
	}
}

func (c *Compositor) writeVideo(s *session, now time.Time) {
	img := c.canvas.compose(now)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.cfg.JPEGQuality}); err != nil {
		c.log.Debug("jpeg encode failed", "error", err)
		return
	}
	if _, err := s.writers[videoTrack].Write(true, now.Sub(s.started).Milliseconds(), buf.Bytes()); err != nil {
		c.log.Warn("video block write failed", "error", err)
		return
	}
	s.blocks++
}

func (c *Compositor) writeAudio(s *session, now time.Time) {
	pcm := s.dest.Read(s.opus.FrameSamples())
	s.pcm = append(s.pcm, pcm...)

	packet, err := s.opus.Encode(pcm)
	if err != nil {
		c.log.Debug("opus encode failed", "error", err)
		return
	}
	if _, err := s.writers[audioTrack].Write(true, now.Sub(s.started).Milliseconds(), packet); err != nil {
		c.log.Warn("audio block write failed", "error", err)
		return
	}
	s.blocks++
}

// Stop finalizes the container. It is a no-op when not recording.
func (c *Compositor) Stop() error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	var err error
	s.stopOnce.Do(func() {
		err = c.finish(s)
	})
	return err
}

func (c *Compositor) finish(s *session) error {
	s.cancel()
	<-s.done

	var closeErr error
	for _, w := range s.writers {
		if err := w.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("close webm track: %w", err)
		}
	}
	select {
	case <-s.sink.closed:
	case <-time.After(finalizeWait):
		c.log.Warn("webm writer did not finalize in time")
	}

	var video, wav *Artifact
	if s.blocks > 0 {
		stamp := s.started.Format("2006-01-02_15-04-05")
		video = &Artifact{
			Filename:    "koe-" + stamp + ".webm",
			ContentType: ContentTypeWebM,
			Data:        s.sink.Bytes(),
		}
		data, err := audio.EncodeWAV(s.pcm, c.cfg.SampleRate)
		if err != nil {
			c.log.Warn("wav export failed", "error", err)
		} else {
			wav = &Artifact{Filename: "koe-" + stamp + ".wav", ContentType: ContentTypeWAV, Data: data}
		}
	}

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.video = video
	c.wav = wav
	c.mu.Unlock()

	if video != nil {
		if c.cfg.OnBytes != nil {
			c.cfg.OnBytes(len(video.Data))
		}
		c.log.Info("recording finished", "bytes", len(video.Data), "blocks", s.blocks)
	}
	return closeErr
}

func (c *Compositor) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Download hands out the finished recording once.
func (c *Compositor) Download() (Artifact, error) {
	return c.take(&c.video)
}

// DownloadAudio hands out the mixed audio as WAV once.
func (c *Compositor) DownloadAudio() (Artifact, error) {
	return c.take(&c.wav)
}

func (c *Compositor) take(slot **Artifact) (Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return Artifact{}, shared.ErrRecordingInProgress
	}
	if *slot == nil || len((*slot).Data) == 0 {
		return Artifact{}, shared.ErrNoRecordingAvailable
	}
	a := **slot
	*slot = nil
	return a, nil
}

type memorySink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newMemorySink() *memorySink {
	return &memorySink{closed: make(chan struct{})}
}

func (m *memorySink) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *memorySink) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *memorySink) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.buf.Bytes())
}

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rumbleFTW/koe-app/internal/realtime"
	"github.com/rumbleFTW/koe-app/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultProbeTimeout = 3 * time.Second

	ConnectedNo = "no"
	ConnectedOK = "yes_request_ok"
)

type Config struct {
	BaseURL      string
	ProbeTimeout time.Duration
	ProbesPerSec float64
	ProbeBurst   int
	HTTPClient   *http.Client
}

type Health struct {
	Connected      string `json:"connected"`
	OK             bool   `json:"ok"`
	TTSUp          bool   `json:"tts_up"`
	STTUp          bool   `json:"stt_up"`
	LLMUp          bool   `json:"llm_up"`
	VoiceCloningUp bool   `json:"voice_cloning_up"`
}

type SoundInstance struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	License  string `json:"license"`
}

type VoiceSource struct {
	SourceType      string         `json:"source_type"`
	URL             string         `json:"url,omitempty"`
	StartTime       float64        `json:"start_time,omitempty"`
	SoundInstance   *SoundInstance `json:"sound_instance,omitempty"`
	PathOnServer    string         `json:"path_on_server"`
	Description     string         `json:"description,omitempty"`
	DescriptionLink string         `json:"description_link,omitempty"`
}

type VoiceSample struct {
	Name         *string                `json:"name"`
	Comment      string                 `json:"comment"`
	Good         bool                   `json:"good"`
	Instructions *realtime.Instructions `json:"instructions"`
	Source       VoiceSource            `json:"source"`
}

// VoiceName is the display name of v, falling back to the freesound
// uploader or a prefix of the server path.
func VoiceName(v VoiceSample) string {
	if v.Name != nil && *v.Name != "" {
		return *v.Name
	}
	if v.Source.SourceType == "freesound" && v.Source.SoundInstance != nil {
		return v.Source.SoundInstance.Username
	}
	p := v.Source.PathOnServer
	if len(p) > 10 {
		p = p[:10]
	}
	return p
}

// RandomEnglishVoice picks a voice whose instructions are English or carry
// no language. It returns false when there is none.
func RandomEnglishVoice(voices []VoiceSample) (VoiceSample, bool) {
	var english []VoiceSample
	for _, v := range voices {
		lang := realtime.LanguageEnglish
		if v.Instructions != nil && v.Instructions.Language != "" {
			lang = v.Instructions.Language
		}
		if lang == realtime.LanguageEnglish {
			english = append(english, v)
		}
	}
	if len(english) == 0 {
		return VoiceSample{}, false
	}
	return english[rand.IntN(len(english))], true
}

// SessionConfigFor builds the session config a voice is meant to be used with.
func SessionConfigFor(v VoiceSample, base realtime.SessionConfig) realtime.SessionConfig {
	base.Voice = v.Source.PathOnServer
	if v.Instructions != nil {
		base.Instructions = *v.Instructions
	} else {
		base.Instructions = realtime.DefaultSessionConfig().Instructions
	}
	return base
}

type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu         sync.Mutex
	lastHealth Health
	lastVoices []VoiceSample
}

func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.ProbesPerSec <= 0 {
		cfg.ProbesPerSec = 2
	}
	if cfg.ProbeBurst <= 0 {
		cfg.ProbeBurst = 4
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		base:       base,
		timeout:    cfg.ProbeTimeout,
		http:       httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.ProbesPerSec), cfg.ProbeBurst),
		log:        log.With("component", "backend"),
		lastHealth: Health{Connected: ConnectedNo},
	}, nil
}

// RealtimeURL is the websocket endpoint matching the http base url.
func (c *Client) RealtimeURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/realtime"
	return u.String()
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", shared.ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Health never fails. An unreachable or unhealthy backend reports
// Connected "no". Calls over the probe rate get the previous result.
func (c *Client) Health(ctx context.Context) Health {
	if !c.limiter.Allow() {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.lastHealth
	}

	h := Health{Connected: ConnectedNo}
	var got Health
	if err := c.getJSON(ctx, "/v1/health", &got); err != nil {
		c.log.Warn("backend health probe failed", "error", err)
	} else {
		h = got
		h.Connected = ConnectedOK
		if h.OK && !h.VoiceCloningUp {
			c.log.Debug("voice cloning not available")
		}
	}

	c.mu.Lock()
	c.lastHealth = h
	c.mu.Unlock()
	return h
}

// Voices returns an empty list when the backend cannot be reached.
func (c *Client) Voices(ctx context.Context) []VoiceSample {
	if !c.limiter.Allow() {
		c.mu.Lock()
		defer c.mu.Unlock()
		return append([]VoiceSample{}, c.lastVoices...)
	}

	var voices []VoiceSample
	if err := c.getJSON(ctx, "/v1/voices", &voices); err != nil {
		c.log.Warn("failed to fetch voices", "error", err)
		voices = []VoiceSample{}
	}

	c.mu.Lock()
	c.lastVoices = voices
	c.mu.Unlock()
	return append([]VoiceSample{}, voices...)
}

package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rumbleFTW/koe-app/internal/realtime"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Recording RecordingConfig `yaml:"recording"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type BackendConfig struct {
	URL          string        `yaml:"url"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type AudioConfig struct {
	// Input is "ffmpeg" or "wav:<path>", Output "ffplay" or "null".
	Input     string `yaml:"input"`
	Output    string `yaml:"output"`
	LoopInput bool   `yaml:"loop_input"`
	// Consent is "prompt", "granted" or "denied".
	Consent string `yaml:"consent"`
}

type SessionConfig struct {
	Voice          string `yaml:"voice"`
	Instructions   string `yaml:"instructions"`
	Text           string `yaml:"text"`
	Language       string `yaml:"language"`
	AllowRecording bool   `yaml:"allow_recording"`
}

type RecordingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Size     int    `yaml:"size"`
	FPS      int    `yaml:"fps"`
	Branding string `yaml:"branding"`
	LogoPath string `yaml:"logo_path"`
	Theme    string `yaml:"theme"`
}

type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	TranscriptTTL time.Duration `yaml:"transcript_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() *Config {
	session := realtime.DefaultSessionConfig()
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8411",
			AllowOrigins: []string{"*"},
		},
		Backend: BackendConfig{
			URL:          "http://localhost:8000",
			ProbeTimeout: 3 * time.Second,
		},
		Audio: AudioConfig{
			Input:   "ffmpeg",
			Output:  "ffplay",
			Consent: "prompt",
		},
		Session: SessionConfig{
			Voice:          session.Voice,
			Instructions:   string(session.Instructions.Type),
			Language:       string(session.Instructions.Language),
			AllowRecording: session.AllowRecording,
		},
		Recording: RecordingConfig{
			Enabled:  true,
			Size:     1080,
			FPS:      30,
			Branding: "koe",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			TranscriptTTL: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads .env, then the YAML file named by KOE_CONFIG, then
// environment overrides.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path := os.Getenv("KOE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	if origins := os.Getenv("ALLOW_ORIGINS"); origins != "" {
		c.Server.AllowOrigins = splitList(origins)
	}

	c.Backend.URL = getEnv("BACKEND_URL", c.Backend.URL)
	c.Backend.ProbeTimeout = getEnvDuration("BACKEND_PROBE_TIMEOUT", c.Backend.ProbeTimeout)

	c.Audio.Input = getEnv("AUDIO_INPUT", c.Audio.Input)
	c.Audio.Output = getEnv("AUDIO_OUTPUT", c.Audio.Output)
	c.Audio.LoopInput = getEnvBool("AUDIO_LOOP_INPUT", c.Audio.LoopInput)
	c.Audio.Consent = getEnv("MIC_CONSENT", c.Audio.Consent)

	c.Session.Voice = getEnv("SESSION_VOICE", c.Session.Voice)
	c.Session.Instructions = getEnv("SESSION_INSTRUCTIONS", c.Session.Instructions)
	c.Session.Text = getEnv("SESSION_TEXT", c.Session.Text)
	c.Session.Language = getEnv("SESSION_LANGUAGE", c.Session.Language)
	c.Session.AllowRecording = getEnvBool("SESSION_ALLOW_RECORDING", c.Session.AllowRecording)

	c.Recording.Enabled = getEnvBool("RECORDING_ENABLED", c.Recording.Enabled)
	c.Recording.Size = getEnvInt("RECORDING_SIZE", c.Recording.Size)
	c.Recording.FPS = getEnvInt("RECORDING_FPS", c.Recording.FPS)
	c.Recording.Branding = getEnv("RECORDING_BRANDING", c.Recording.Branding)
	c.Recording.LogoPath = getEnv("RECORDING_LOGO", c.Recording.LogoPath)
	c.Recording.Theme = getEnv("THEME_CSS", c.Recording.Theme)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.TranscriptTTL = getEnvDuration("TRANSCRIPT_TTL", c.Redis.TranscriptTTL)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// SessionDefaults is the session config used before the user changes it.
func (c *Config) SessionDefaults() realtime.SessionConfig {
	return realtime.SessionConfig{
		Instructions: realtime.Instructions{
			Type:     realtime.InstructionKind(c.Session.Instructions),
			Text:     c.Session.Text,
			Language: realtime.Language(c.Session.Language),
		},
		Voice:          c.Session.Voice,
		AllowRecording: c.Session.AllowRecording,
	}
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server: addr is required")
	}

	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend: url must be http(s), got %q", c.Backend.URL)
	}
	if c.Backend.ProbeTimeout <= 0 {
		return errors.New("backend: probe_timeout must be positive")
	}

	switch c.Audio.Consent {
	case "prompt", "granted", "denied":
	default:
		return fmt.Errorf("audio: consent must be prompt, granted or denied, got %q", c.Audio.Consent)
	}
	if c.Audio.Input == "" || c.Audio.Output == "" {
		return errors.New("audio: input and output are required")
	}

	if err := c.SessionDefaults().Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if c.Recording.Enabled {
		if c.Recording.Size < 64 {
			return fmt.Errorf("recording: size must be at least 64, got %d", c.Recording.Size)
		}
		if c.Recording.FPS <= 0 || c.Recording.FPS > 60 {
			return fmt.Errorf("recording: fps must be in 1..60, got %d", c.Recording.FPS)
		}
	}

	if c.Redis.Addr == "" {
		return errors.New("redis: addr is required")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log: format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

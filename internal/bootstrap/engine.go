package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/rumbleFTW/koe-app/internal/archive"
	"github.com/rumbleFTW/koe-app/internal/backend"
	"github.com/rumbleFTW/koe-app/internal/chat"
	"github.com/rumbleFTW/koe-app/internal/conversation"
	"github.com/rumbleFTW/koe-app/internal/device"
	"github.com/rumbleFTW/koe-app/internal/metrics"
	"github.com/rumbleFTW/koe-app/internal/processor"
	"github.com/rumbleFTW/koe-app/internal/realtime"
	"github.com/rumbleFTW/koe-app/internal/recording"
	"github.com/rumbleFTW/koe-app/internal/visualizer"
	"go.uber.org/fx"
)

func ProvideOpener(cfg *Config) device.Opener {
	return device.NewOpener(device.Config{
		Input:     cfg.Audio.Input,
		Output:    cfg.Audio.Output,
		LoopInput: cfg.Audio.LoopInput,
	})
}

func ProvideConsent(cfg *Config) device.Consent {
	switch cfg.Audio.Consent {
	case "granted":
		return device.StaticConsent(true)
	case "denied":
		return device.StaticConsent(false)
	default:
		return device.PromptConsent{In: os.Stdin, Out: os.Stderr}
	}
}

func ProvideHistory(logger *slog.Logger) *chat.Aggregator {
	history := chat.NewAggregator()
	history.OnInterruption(func(at time.Time) {
		logger.Debug("user interrupted the assistant", "at", at)
	})
	return history
}

func ProvideProcessor(opener device.Opener, m *metrics.Metrics, logger *slog.Logger) *processor.Processor {
	return processor.New(processor.Config{
		Hooks: processor.Hooks{
			OnDecoderDrop: m.DecoderDrop,
			OnPlaybackDrop: func(dropped int) {
				m.PlaybackDrops.Add(float64(dropped))
			},
		},
	}, opener, logger)
}

func ProvideBackendClient(cfg *Config, logger *slog.Logger) (*backend.Client, error) {
	return backend.NewClient(backend.Config{
		BaseURL:      cfg.Backend.URL,
		ProbeTimeout: cfg.Backend.ProbeTimeout,
	}, logger)
}

func ProvideRealtimeClient(cfg *Config, b *backend.Client, history *chat.Aggregator, m *metrics.Metrics, logger *slog.Logger) (*realtime.Client, error) {
	client := realtime.NewClient(realtime.Config{
		URL:   b.RealtimeURL(),
		Stats: m,
	}, history, logger)
	if err := client.UpdateConfig(cfg.SessionDefaults()); err != nil {
		return nil, err
	}
	return client, nil
}

func ProvideColors(cfg *Config, logger *slog.Logger) visualizer.Colors {
	return visualizer.LoadTheme(cfg.Recording.Theme, logger)
}

// ProvideRecorder returns nil when recording is turned off.
func ProvideRecorder(cfg *Config, proc *processor.Processor, history *chat.Aggregator, colors visualizer.Colors, m *metrics.Metrics, logger *slog.Logger) *recording.Compositor {
	if !cfg.Recording.Enabled {
		return nil
	}
	return recording.New(recording.Config{
		Size:     cfg.Recording.Size,
		FPS:      cfg.Recording.FPS,
		Branding: cfg.Recording.Branding,
		LogoPath: cfg.Recording.LogoPath,
		Colors:   colors,
		OnBytes:  m.RecordingFinished,
	}, recording.Sources{
		InputAnalyser:  proc.InputAnalyser,
		OutputAnalyser: proc.OutputAnalyser,
		History:        history.Compressed,
		Interruption:   history.LastInterruption,
	}, logger)
}

type ConversationParams struct {
	fx.In

	Consent   device.Consent
	Opener    device.Opener
	Processor *processor.Processor
	Client    *realtime.Client
	History   *chat.Aggregator
	Recorder  *recording.Compositor
	Archive   *archive.Store
	Colors    visualizer.Colors
	Logger    *slog.Logger
}

func ProvideConversation(lc fx.Lifecycle, p ConversationParams) *conversation.Conversation {
	deps := conversation.Deps{
		Consent:   p.Consent,
		Opener:    p.Opener,
		Processor: p.Processor,
		Client:    p.Client,
		History:   p.History,
		Archive:   p.Archive,
	}
	if p.Recorder != nil {
		deps.Recorder = p.Recorder
	}

	conv := conversation.New(conversation.Config{Colors: p.Colors}, deps, p.Logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conv.Close()
			return nil
		},
	})
	return conv
}

var EngineModule = fx.Options(
	fx.Provide(
		ProvideOpener,
		ProvideConsent,
		ProvideHistory,
		ProvideProcessor,
		ProvideBackendClient,
		ProvideRealtimeClient,
		ProvideColors,
		ProvideRecorder,
		ProvideConversation,
	),
)

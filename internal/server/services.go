package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackzampolin/narrator/internal/abs"
	"github.com/jackzampolin/narrator/internal/audio"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/epub"
	"github.com/jackzampolin/narrator/internal/health"
	"github.com/jackzampolin/narrator/internal/jobs"
	"github.com/jackzampolin/narrator/internal/library"
	"github.com/jackzampolin/narrator/internal/metrics"
	"github.com/jackzampolin/narrator/internal/notify"
	"github.com/jackzampolin/narrator/internal/output"
	"github.com/jackzampolin/narrator/internal/svcctx"
	"github.com/jackzampolin/narrator/internal/tts"
	"github.com/jackzampolin/narrator/internal/voices"
)

// stores are the persistence backends, all DefraDB or all in memory.
type stores struct {
	jobs     jobs.Store
	settings config.Store
	metrics  metrics.Store
	voices   voices.Store
}

// buildServices wires the pipeline from the effective config.
func (s *Server) buildServices(cfg *config.Config, st stores) (*svcctx.Services, error) {
	logger := s.logger

	ttsCfg := cfg.TTS.ClientConfig()
	ttsCfg.Logger = logger
	ttsClient := tts.NewClient(ttsCfg)

	pacerCfg := cfg.TTS.PacerConfig()
	pacerCfg.Logger = logger
	s.pacer = tts.NewPacer(pacerCfg)

	bus := notify.NewBus(cfg.Notify.MaxEvents)

	events := make([]notify.Name, 0, len(cfg.Notify.Events))
	for _, e := range cfg.Notify.Events {
		events = append(events, notify.Name(e))
	}
	webhook, err := notify.NewWebhook(notify.WebhookConfig{
		URL:     cfg.Notify.WebhookURL,
		Events:  events,
		Timeout: time.Duration(cfg.Notify.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid notify config: %w", err)
	}

	assembler := audio.NewAssembler(audio.Config{
		Toolchain:         audio.NewFFmpeg(cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath, logger),
		Bitrate:           cfg.Audio.Bitrate,
		Crossfade:         time.Duration(cfg.Audio.CrossfadeMS) * time.Millisecond,
		Silence:           time.Duration(cfg.Audio.SilenceSeconds) * time.Second,
		Format:            audio.Format{SampleRate: cfg.Audio.SampleRate},
		KeepIntermediates: cfg.Audio.KeepIntermediates,
		Logger:            logger,
	})

	workDir, err := s.workDir(cfg)
	if err != nil {
		return nil, err
	}

	conv, err := jobs.NewConverter(jobs.ConverterConfig{
		Store: st.jobs,
		Extractor: epub.NewExtractor(epub.Options{
			MinChapterWords:      cfg.Extract.MinChapterWords,
			FallbackChapterWords: cfg.Extract.FallbackChapterWords,
			Logger:               logger,
		}),
		Synthesizer: ttsClient,
		Pacer:       s.pacer,
		Assembler:   assembler,
		Chunking:    cfg.Chunker.Options(),
		WorkDir:     workDir,
		Events:      bus,
		Metrics:     st.metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	placer := output.NewManager(output.Config{Dir: cfg.Output.Dir, Sidecars: cfg.Output.Sidecars, Logger: logger})
	wcfg := jobs.WorkerConfig{
		Store:        st.jobs,
		Converter:    conv,
		Events:       bus,
		Placer:       placer,
		DefaultVoice: cfg.TTS.DefaultVoice,
		Concurrency:  cfg.Worker.Concurrency,
		Settings:     cfg.Worker.Settings(),
		Logger:       logger,
	}
	if webhook.Enabled() {
		wcfg.Notifier = webhook
		logger.Info("webhook notifications enabled", "url", cfg.Notify.WebhookURL)
	}
	scanner := abs.NewClient(abs.Config{
		URL:     cfg.Audiobookshelf.URL,
		Token:   config.ResolveEnvVars(cfg.Audiobookshelf.Token),
		Library: cfg.Audiobookshelf.Library,
		Timeout: time.Duration(cfg.Audiobookshelf.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	if scanner.Enabled() {
		wcfg.Scanner = scanner
		logger.Info("audiobookshelf scans enabled", "url", cfg.Audiobookshelf.URL)
	}
	worker, err := jobs.NewWorker(wcfg)
	if err != nil {
		return nil, err
	}

	hcfg := health.Config{
		TTS:       ttsClient,
		Worker:    worker,
		Library:   cfg.Library.Path,
		OutputDir: cfg.Output.Dir,
		Logger:    logger,
	}
	if s.defraClient != nil {
		hcfg.Store = s.defraClient
	}

	svcs := &svcctx.Services{
		JobStore:      st.jobs,
		Worker:        worker,
		ConfigManager: s.configMgr,
		SettingStore:  st.settings,
		Events:        bus,
		Metrics:       st.metrics,
		TTS:           ttsClient,
		Voices:        voices.NewCatalog(ttsClient, st.voices, logger),
		Health:        health.NewMonitor(hcfg),
		Logger:        logger,
		Home:          s.home,
	}
	if s.defraClient != nil {
		svcs.DefraClient = s.defraClient
	}
	if cfg.Library.Path != "" {
		svcs.Library = library.NewReader(cfg.Library.Path, logger)
		s.watcher, err = library.NewWatcher(library.WatcherConfig{
			Reader:   svcs.Library,
			Handle:   autoQueue(st.jobs, worker, placer, s.configMgr, logger),
			Enabled:  func() bool { return s.configMgr.Get().Library.AutoConvert },
			Interval: time.Duration(cfg.Library.ScanIntervalSeconds) * time.Second,
			Settle:   time.Duration(cfg.Library.SettleSeconds) * time.Second,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return svcs, nil
}

func (s *Server) workDir(cfg *config.Config) (string, error) {
	dir := cfg.Worker.WorkDir
	switch {
	case dir != "":
	case s.home != nil:
		dir = s.home.WorkPath()
	default:
		dir = filepath.Join(os.TempDir(), "narrator-work")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	return dir, nil
}

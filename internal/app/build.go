// Package app wires the interview runtime's components into a running
// service. STT and TTS take an explicit mode, where "auto" picks the
// hosted provider when its endpoint URL is configured and the mock
// otherwise; the vision detector is remote only when its mode is
// "remote" and the mock otherwise; storage follows the configured
// driver.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/coderunner"
	"github.com/interviewrt/core/internal/config"
	"github.com/interviewrt/core/internal/dialogue"
	"github.com/interviewrt/core/internal/evaluation"
	"github.com/interviewrt/core/internal/httpapi"
	"github.com/interviewrt/core/internal/llmclient"
	"github.com/interviewrt/core/internal/objectstore"
	"github.com/interviewrt/core/internal/observability"
	"github.com/interviewrt/core/internal/proctor"
	"github.com/interviewrt/core/internal/recording"
	"github.com/interviewrt/core/internal/registry"
	"github.com/interviewrt/core/internal/slotstore"
	"github.com/interviewrt/core/internal/sttrelay"
	"github.com/interviewrt/core/internal/token"
	"github.com/interviewrt/core/internal/ttscache"
)

// BuildResult is everything main needs to run and shut down cleanly.
type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Registry *registry.Registry
	Metrics  *observability.Metrics

	// Cleanup releases external resources (DB pool) on shutdown.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*BuildResult, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: DATABASE_URL is required")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	clock := clockid.SystemClock{}

	zone, err := time.LoadLocation(cfg.ISTZone)
	if err != nil {
		return nil, fmt.Errorf("app: load zone %q: %w", cfg.ISTZone, err)
	}

	slots, err := slotstore.New(ctx, cfg.DatabaseURL, clock, zone)
	if err != nil {
		return nil, fmt.Errorf("app: slot store init: %w", err)
	}
	pool := slots.Pool()

	keys, err := clockid.NewKeyRing(cfg.HMACActiveKeyID, cfg.HMACSecrets)
	if err != nil {
		slots.Close()
		return nil, fmt.Errorf("app: signing keys: %w", err)
	}
	tokens := token.NewService(clock, keys, slots,
		time.Duration(cfg.AccessWindowLeadMin)*time.Minute,
		time.Duration(cfg.AccessWindowGraceMin)*time.Minute)

	reg := registry.New(clock, 30*time.Minute)

	storage, err := objectstore.New(cfg.StorageDriver, cfg.StorageRoot, objectstore.S3Config{
		Bucket: cfg.S3Bucket,
		Region: cfg.S3Region,
	})
	if err != nil {
		slots.Close()
		return nil, fmt.Errorf("app: object store init: %w", err)
	}

	llm := llmclient.New(cfg.LLMAPIKey, cfg.LLMModel)

	cache, err := buildTTSCache(cfg, storage, metrics, log)
	if err != nil {
		slots.Close()
		return nil, err
	}
	dialogueCtrl := dialogue.New(reg, llm, dialogue.NewTTSCacheAdapter(cache), metrics, clock, cfg.TTSVoice)

	relay := sttrelay.New(resolveSTTProvider(cfg, log), metrics)

	detector := resolveDetector(cfg, log)
	proctorMgr := proctor.NewManager(detector, storage, clock, metrics, log)

	assembler, err := recording.NewAssembler(filepath.Join(cfg.StorageRoot, "work"))
	if err != nil {
		slots.Close()
		return nil, fmt.Errorf("app: recording assembler init: %w", err)
	}
	recordingSvc := recording.NewService(assembler,
		recording.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, nil), storage, metrics, log)

	codeStore, err := coderunner.NewPostgresStore(ctx, pool, clock)
	if err != nil {
		slots.Close()
		return nil, fmt.Errorf("app: coding store init: %w", err)
	}
	llmDeadline := time.Duration(cfg.LLMCallDeadlineS) * time.Second
	runner := coderunner.NewRunner(codeStore,
		coderunner.NewContainerSandbox(time.Duration(cfg.CodeRunnerImageTimeoutS)*time.Second),
		llm, llmDeadline, metrics, log)

	snapshots, err := dialogue.NewSnapshotStore(ctx, pool)
	if err != nil {
		slots.Close()
		return nil, fmt.Errorf("app: snapshot store init: %w", err)
	}
	evalStore, err := evaluation.NewPostgresStore(ctx, pool)
	if err != nil {
		slots.Close()
		return nil, fmt.Errorf("app: evaluation store init: %w", err)
	}
	evalAssembler := evaluation.NewAssembler(evalStore, storage, llm, llmDeadline, clock, metrics, log)

	api := httpapi.New(httpapi.Deps{
		Config:    cfg,
		Log:       log,
		Metrics:   metrics,
		Clock:     clock,
		Slots:     slots,
		Tokens:    tokens,
		Registry:  reg,
		Dialogue:  dialogueCtrl,
		Relay:     relay,
		Proctor:   proctorMgr,
		Recording: recordingSvc,
		Runner:    runner,
		CodeStore: codeStore,
		Snapshots: snapshots,
		Assembler: evalAssembler,
		Evals:     evalStore,
		Storage:   storage,
	})

	// Sessions that outlive their access window are finalized as
	// Abandoned, persisting whatever partial artifacts exist.
	reg.SetExpireHook(api.ExpireSession)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Registry: reg,
		Metrics:  metrics,
		Cleanup: func() error {
			return slots.Close()
		},
	}, nil
}

func buildTTSCache(cfg config.Config, storage objectstore.Store, metrics *observability.Metrics, log zerolog.Logger) (*ttscache.Cache, error) {
	var provider ttscache.Provider
	mode := strings.ToLower(cfg.TTSProvider)
	switch {
	case mode == "mock":
		provider = &ttscache.MockProvider{}
		log.Info().Msg("tts provider: mock")
	case mode == "http", mode == "auto" && cfg.TTSEndpoint != "":
		provider = ttscache.NewHTTPProvider(cfg.TTSEndpoint, cfg.TTSAPIKey, nil)
		log.Info().Str("endpoint", cfg.TTSEndpoint).Msg("tts provider: http")
	case mode == "auto":
		provider = &ttscache.MockProvider{}
		log.Warn().Msg("TTS_ENDPOINT unset, tts provider: mock")
	default:
		return nil, fmt.Errorf("app: unknown TTS_PROVIDER %q", cfg.TTSProvider)
	}

	var store ttscache.BackingStore
	if cfg.RedisURL != "" {
		redisStore, err := ttscache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("app: tts cache redis init: %w", err)
		}
		store = redisStore
		log.Info().Msg("tts cache store: redis")
	} else {
		store = ttscache.NewMemoryStore()
		log.Info().Msg("tts cache store: in-memory")
	}

	publisher := ttscache.ObjectStorePublisher{Store: storage}
	return ttscache.New(provider, store, publisher, time.Duration(cfg.TTSCallDeadlineS)*time.Second, metrics), nil
}

func resolveSTTProvider(cfg config.Config, log zerolog.Logger) sttrelay.Provider {
	mode := strings.ToLower(cfg.STTProvider)
	if mode == "mock" || (mode == "auto" && cfg.STTWSURL == "") {
		if mode != "mock" {
			log.Warn().Msg("STT_WS_URL unset, stt provider: mock")
		} else {
			log.Info().Msg("stt provider: mock")
		}
		return &sttrelay.MockProvider{}
	}
	log.Info().Str("url", cfg.STTWSURL).Msg("stt provider: websocket")
	return sttrelay.NewWSProvider(cfg.STTWSURL, cfg.STTAPIKey)
}

func resolveDetector(cfg config.Config, log zerolog.Logger) proctor.Detector {
	if strings.ToLower(cfg.ProctorDetectorMode) == "remote" {
		log.Info().Str("url", cfg.ProctorDetectorURL).Msg("proctor detector: remote")
		return proctor.NewRemoteDetector(cfg.ProctorDetectorURL, nil)
	}
	log.Info().Msg("proctor detector: mock")
	return &proctor.MockDetector{}
}

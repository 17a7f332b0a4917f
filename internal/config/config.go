// Package config loads runtime settings for the interview runtime from
// the environment, with defaults and validation in one place.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the interview service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	AdminBearerToken string

	DatabaseURL string
	RedisURL    string

	LLMAPIKey string
	STTAPIKey string
	TTSAPIKey string

	LLMProvider string
	LLMModel    string
	STTProvider string
	STTWSURL    string
	TTSProvider string
	TTSEndpoint string
	TTSVoice    string

	HMACActiveKeyID string
	HMACSecrets     map[string][]byte

	StorageRoot   string
	StorageDriver string
	S3Bucket      string
	S3Region      string

	ProctorDetectorMode string
	ProctorDetectorURL  string

	FFmpegPath  string
	FFprobePath string

	ISTZone string

	SlotDefaultDurationMin int
	AccessWindowLeadMin    int
	AccessWindowGraceMin   int

	STTEndpointingMS     int
	STTUtteranceEndMS    int
	LLMCallDeadlineS     int
	TTSCallDeadlineS     int
	ProctorPollIntervalS int

	CodeRunnerImageTimeoutS int
}

// Load reads environment variables and applies the runtime's defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "interviewrt"),
		AllowAnyOrigin:   false,
		AdminBearerToken: trimmedEnv("ADMIN_BEARER_TOKEN"),
		ShutdownTimeout:  15 * time.Second,

		DatabaseURL: trimmedEnv("DATABASE_URL"),
		RedisURL:    envOrDefault("REDIS_URL", ""),

		LLMAPIKey: trimmedEnv("LLM_API_KEY"),
		STTAPIKey: trimmedEnv("STT_API_KEY"),
		TTSAPIKey: trimmedEnv("TTS_API_KEY"),

		LLMProvider: envOrDefault("LLM_PROVIDER", "anthropic"),
		LLMModel:    envOrDefault("LLM_MODEL", ""),
		STTProvider: envOrDefault("STT_PROVIDER", "auto"),
		STTWSURL:    trimmedEnv("STT_WS_URL"),
		TTSProvider: envOrDefault("TTS_PROVIDER", "auto"),
		TTSEndpoint: trimmedEnv("TTS_ENDPOINT"),
		TTSVoice:    envOrDefault("TTS_VOICE", "default"),

		HMACActiveKeyID: envOrDefault("HMAC_ACTIVE_KEY_ID", "k1"),

		StorageRoot:   envOrDefault("STORAGE_ROOT", "./var/storage"),
		StorageDriver: envOrDefault("STORAGE_DRIVER", "local"),
		S3Bucket:      trimmedEnv("S3_BUCKET"),
		S3Region:      envOrDefault("S3_REGION", "us-east-1"),

		ProctorDetectorMode: envOrDefault("PROCTOR_DETECTOR_MODE", "mock"),
		ProctorDetectorURL:  trimmedEnv("PROCTOR_DETECTOR_URL"),

		FFmpegPath:  envOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: envOrDefault("FFPROBE_PATH", "ffprobe"),

		ISTZone: envOrDefault("IST_ZONE", "Asia/Kolkata"),

		SlotDefaultDurationMin: 10,
		AccessWindowLeadMin:    15,
		AccessWindowGraceMin:   10,

		STTEndpointingMS:  500,
		STTUtteranceEndMS: 2000,
		LLMCallDeadlineS:  20,
		TTSCallDeadlineS:  15,

		ProctorPollIntervalS: 5,

		CodeRunnerImageTimeoutS: 30,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotDefaultDurationMin, err = intFromEnv("SLOT_DEFAULT_DURATION_MIN", cfg.SlotDefaultDurationMin)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessWindowLeadMin, err = intFromEnv("ACCESS_WINDOW_LEAD_MIN", cfg.AccessWindowLeadMin)
	if err != nil {
		return Config{}, err
	}
	cfg.AccessWindowGraceMin, err = intFromEnv("ACCESS_WINDOW_GRACE_MIN", cfg.AccessWindowGraceMin)
	if err != nil {
		return Config{}, err
	}
	cfg.STTEndpointingMS, err = intFromEnv("STT_ENDPOINTING_MS", cfg.STTEndpointingMS)
	if err != nil {
		return Config{}, err
	}
	cfg.STTUtteranceEndMS, err = intFromEnv("STT_UTTERANCE_END_MS", cfg.STTUtteranceEndMS)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMCallDeadlineS, err = intFromEnv("LLM_CALL_DEADLINE_S", cfg.LLMCallDeadlineS)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSCallDeadlineS, err = intFromEnv("TTS_CALL_DEADLINE_S", cfg.TTSCallDeadlineS)
	if err != nil {
		return Config{}, err
	}
	cfg.ProctorPollIntervalS, err = intFromEnv("PROCTOR_POLL_INTERVAL_S", cfg.ProctorPollIntervalS)
	if err != nil {
		return Config{}, err
	}
	cfg.CodeRunnerImageTimeoutS, err = intFromEnv("CODERUNNER_IMAGE_TIMEOUT_S", cfg.CodeRunnerImageTimeoutS)
	if err != nil {
		return Config{}, err
	}

	cfg.HMACSecrets, err = loadHMACSecrets(cfg.HMACActiveKeyID)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.SlotDefaultDurationMin <= 0 {
		return fmt.Errorf("SLOT_DEFAULT_DURATION_MIN must be positive")
	}
	if cfg.AccessWindowLeadMin < 0 || cfg.AccessWindowGraceMin < 0 {
		return fmt.Errorf("ACCESS_WINDOW_LEAD_MIN and ACCESS_WINDOW_GRACE_MIN must be >= 0")
	}
	if cfg.STTEndpointingMS <= 0 || cfg.STTUtteranceEndMS <= 0 {
		return fmt.Errorf("STT_ENDPOINTING_MS and STT_UTTERANCE_END_MS must be positive")
	}
	if cfg.LLMCallDeadlineS <= 0 || cfg.TTSCallDeadlineS <= 0 {
		return fmt.Errorf("LLM_CALL_DEADLINE_S and TTS_CALL_DEADLINE_S must be positive")
	}
	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}
	if cfg.ProctorDetectorMode == "remote" && cfg.ProctorDetectorURL == "" {
		return fmt.Errorf("PROCTOR_DETECTOR_URL is required when PROCTOR_DETECTOR_MODE=remote")
	}
	return nil
}

// loadHMACSecrets reads HMAC_SECRET_{key_id} variables, falling back to
// a single HMAC_SECRET entry under the configured active key id.
func loadHMACSecrets(activeKeyID string) (map[string][]byte, error) {
	secrets := map[string][]byte{}
	const prefix = "HMAC_SECRET_"
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		keyID := strings.ToLower(kv[len(prefix):eq])
		val := kv[eq+1:]
		if keyID != "" && val != "" {
			secrets[keyID] = []byte(val)
		}
	}
	if len(secrets) == 0 {
		if v := trimmedEnv("HMAC_SECRET"); v != "" {
			secrets[activeKeyID] = []byte(v)
		}
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("no HMAC signing secret configured: set HMAC_SECRET or HMAC_SECRET_%s", activeKeyID)
	}
	if _, ok := secrets[activeKeyID]; !ok {
		return nil, fmt.Errorf("HMAC_ACTIVE_KEY_ID %q has no matching HMAC_SECRET_%s", activeKeyID, activeKeyID)
	}
	return secrets, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HMAC_SECRET", "defaults-test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SlotDefaultDurationMin != 10 {
		t.Fatalf("SlotDefaultDurationMin = %d, want 10", cfg.SlotDefaultDurationMin)
	}
	if cfg.AccessWindowLeadMin != 15 || cfg.AccessWindowGraceMin != 10 {
		t.Fatalf("access window defaults = %d/%d, want 15/10", cfg.AccessWindowLeadMin, cfg.AccessWindowGraceMin)
	}
	if cfg.STTEndpointingMS != 500 || cfg.STTUtteranceEndMS != 2000 {
		t.Fatalf("stt timing defaults = %d/%d, want 500/2000", cfg.STTEndpointingMS, cfg.STTUtteranceEndMS)
	}
	if cfg.LLMCallDeadlineS != 20 || cfg.TTSCallDeadlineS != 15 {
		t.Fatalf("call deadline defaults = %d/%d, want 20/15", cfg.LLMCallDeadlineS, cfg.TTSCallDeadlineS)
	}
	if cfg.ISTZone != "Asia/Kolkata" {
		t.Fatalf("ISTZone = %q, want Asia/Kolkata", cfg.ISTZone)
	}
	if cfg.HMACActiveKeyID != "k1" {
		t.Fatalf("HMACActiveKeyID = %q, want k1", cfg.HMACActiveKeyID)
	}
	if got := string(cfg.HMACSecrets["k1"]); got != "defaults-test-secret" {
		t.Fatalf("HMACSecrets[k1] = %q, want defaults-test-secret", got)
	}
}

func TestLoadMissingHMACSecretFails(t *testing.T) {
	setCoreEnvEmpty(t)

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for missing HMAC secret")
	}
}

func TestLoadKeyedHMACSecretsSupportRotation(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HMAC_ACTIVE_KEY_ID", "k2")
	t.Setenv("HMAC_SECRET_K1", "old-secret")
	t.Setenv("HMAC_SECRET_K2", "new-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(cfg.HMACSecrets["k1"]) != "old-secret" {
		t.Fatalf("HMACSecrets[k1] = %q, want old-secret", cfg.HMACSecrets["k1"])
	}
	if string(cfg.HMACSecrets["k2"]) != "new-secret" {
		t.Fatalf("HMACSecrets[k2] = %q, want new-secret", cfg.HMACSecrets["k2"])
	}
}

func TestLoadRejectsS3DriverWithoutBucket(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HMAC_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "s3")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for s3 driver without bucket")
	}
}

func TestLoadRejectsRemoteProctorWithoutURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HMAC_SECRET", "secret")
	t.Setenv("PROCTOR_DETECTOR_MODE", "remote")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want error for remote proctor without URL")
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HMAC_SECRET", "secret")
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("SLOT_DEFAULT_DURATION_MIN", "30")
	t.Setenv("ACCESS_WINDOW_LEAD_MIN", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want :9191", cfg.BindAddr)
	}
	if cfg.SlotDefaultDurationMin != 30 {
		t.Fatalf("SlotDefaultDurationMin = %d, want 30", cfg.SlotDefaultDurationMin)
	}
	if cfg.AccessWindowLeadMin != 5 {
		t.Fatalf("AccessWindowLeadMin = %d, want 5", cfg.AccessWindowLeadMin)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"REDIS_URL",
		"LLM_API_KEY",
		"STT_API_KEY",
		"TTS_API_KEY",
		"LLM_PROVIDER",
		"STT_PROVIDER",
		"TTS_PROVIDER",
		"HMAC_ACTIVE_KEY_ID",
		"HMAC_SECRET",
		"HMAC_SECRET_K1",
		"HMAC_SECRET_K2",
		"STORAGE_ROOT",
		"STORAGE_DRIVER",
		"S3_BUCKET",
		"S3_REGION",
		"PROCTOR_DETECTOR_MODE",
		"PROCTOR_DETECTOR_URL",
		"FFMPEG_PATH",
		"FFPROBE_PATH",
		"IST_ZONE",
		"SLOT_DEFAULT_DURATION_MIN",
		"ACCESS_WINDOW_LEAD_MIN",
		"ACCESS_WINDOW_GRACE_MIN",
		"STT_ENDPOINTING_MS",
		"STT_UTTERANCE_END_MS",
		"LLM_CALL_DEADLINE_S",
		"TTS_CALL_DEADLINE_S",
		"PROCTOR_POLL_INTERVAL_S",
		"CODERUNNER_IMAGE_TIMEOUT_S",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

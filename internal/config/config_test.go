package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HistoryLimit != 20 || cfg.ShareMaxLength != 2000 || cfg.ShareBaseURL != DefaultShareBase {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attestview.yaml")
	if err := os.WriteFile(path, []byte("history_limit: 5\nshare_codec: lz4\njsonc: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HistoryLimit != 5 || cfg.ShareCodec != "lz4" || !cfg.JSONC {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaxDepth != 64 {
		t.Errorf("untouched fields keep defaults, max_depth = %d", cfg.MaxDepth)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("history_limit: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("err = %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ATTESTVIEW_HISTORY_PATH":  "/tmp/h.json",
		"ATTESTVIEW_MAX_DEPTH":     "8",
		"ATTESTVIEW_JSONC":         "true",
		"ATTESTVIEW_LOG_LEVEL":     "debug",
		"ATTESTVIEW_SHARE_BASE_URL": "https://viewer.test/?json=",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatal(err)
	}
	if cfg.HistoryPath != "/tmp/h.json" || cfg.MaxDepth != 8 || !cfg.JSONC || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ShareBaseURL != "https://viewer.test/?json=" {
		t.Errorf("share base = %q", cfg.ShareBaseURL)
	}
}

func TestApplyEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		if k == "ATTESTVIEW_HISTORY_LIMIT" {
			return "many", true
		}
		return "", false
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("ATTESTVIEW_DOTENV_PROBE=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ATTESTVIEW_DOTENV_PROBE") })
	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("ATTESTVIEW_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("env = %q", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg := Default()
	cfg.HistoryLimit = 0
	cfg.ShareCodec = "gzip"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "history_limit") || !strings.Contains(err.Error(), "share_codec") {
		t.Fatalf("err = %v", err)
	}
}

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"upi-gateway/internal/adapter"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginLogout(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := run(t, "", "login", "--config", cfg); err == nil {
		t.Fatal("login without --key should fail")
	}

	out, err := run(t, "", "login", "--config", cfg, "--key", "abc", "--server", "http://gw:9999")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !strings.Contains(out, "Key saved") {
		t.Errorf("Unexpected output: %q", out)
	}

	store := adapter.NewKeyStore(cfg)
	if key, _ := store.Key(); key != "abc" {
		t.Errorf("Expected key abc, got %q", key)
	}

	if _, err := run(t, "", "logout", "--config", cfg); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if key, _ := store.Key(); key != "" {
		t.Errorf("Expected key removed, got %q", key)
	}
}

func TestListen_WithoutKeyDropsEverything(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	input := `{"app":"` + adapter.DefaultSource + `","title":"₹5.00 received","text":"note000001"}` + "\n"

	out, err := run(t, input, "listen", "--config", cfg, "--server", "http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	if !strings.Contains(out, "no_key=1") || !strings.Contains(out, "forwarded=0") {
		t.Errorf("Unexpected summary: %q", out)
	}
}

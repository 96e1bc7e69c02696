package main

import (
	"testing"

	"github.com/eugenenazirov/codepush-server/internal/config"
)

func TestParseFlagsLeavesUnsetOverridesNil(t *testing.T) {
	overrides := parseFlags(nil)

	if overrides.ConfigFile != "" {
		t.Fatalf("expected no config file, got %q", overrides.ConfigFile)
	}
	if overrides.Port != nil || overrides.Env != nil || overrides.StorageType != nil || overrides.StorageDir != nil {
		t.Fatalf("expected string overrides to be unset")
	}
	if overrides.RateLimitRPS != nil || overrides.RateLimitBurst != nil {
		t.Fatalf("expected rate limit overrides to be unset")
	}
}

func TestParseFlagsAppliesValues(t *testing.T) {
	overrides := parseFlags([]string{
		"--config", "server.yaml",
		"--port", "8080",
		"--env", "development",
		"--storage-type", "local",
		"--storage-dir", "/var/lib/codepush",
		"--rate-limit-rps", "0",
		"--rate-limit-burst", "10",
	})

	if overrides.ConfigFile != "server.yaml" {
		t.Fatalf("unexpected config file %q", overrides.ConfigFile)
	}
	if overrides.Port == nil || *overrides.Port != "8080" {
		t.Fatalf("expected port override")
	}
	if overrides.Env == nil || *overrides.Env != string(config.Development) {
		t.Fatalf("expected env override")
	}
	if overrides.StorageType == nil || *overrides.StorageType != config.StorageTypeLocal {
		t.Fatalf("expected storage type override")
	}
	if overrides.StorageDir == nil || *overrides.StorageDir != "/var/lib/codepush" {
		t.Fatalf("expected storage dir override")
	}
	if overrides.RateLimitRPS == nil || *overrides.RateLimitRPS != 0 {
		t.Fatalf("expected zero rps to disable limiting")
	}
	if overrides.RateLimitBurst == nil || *overrides.RateLimitBurst != 10 {
		t.Fatalf("expected burst override")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Auth.TokenTTLMinutes != 60 {
		t.Fatalf("token ttl = %d", cfg.Auth.TokenTTLMinutes)
	}
	if cfg.Intake.EscalationThreshold != 3 {
		t.Fatalf("escalation threshold = %d", cfg.Intake.EscalationThreshold)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`portal:
  name: Test Portal
auth:
  token_ttl_minutes: 15
intake:
  escalation_threshold: 2
webhooks:
  - url: https://crm.example.com/hooks/leads
    secret: hook-secret
    types: [challenge.submitted, challenge.verified]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Portal.Name != "Test Portal" || cfg.Auth.TokenTTLMinutes != 15 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Webhooks) != 1 || len(cfg.Webhooks[0].Types) != 2 {
		t.Fatalf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []string{
		"portal:\n  name: \"\"\nauth:\n  token_ttl_minutes: 60\nintake:\n  escalation_threshold: 3\n",
		"portal:\n  name: P\nauth:\n  token_ttl_minutes: 0\nintake:\n  escalation_threshold: 3\n",
		"portal:\n  name: P\nauth:\n  token_ttl_minutes: 60\nintake:\n  escalation_threshold: 0\n",
		"portal:\n  name: P\nauth:\n  token_ttl_minutes: 60\nintake:\n  escalation_threshold: 3\nwebhooks:\n  - url: \"\"\n",
	}
	for i, src := range cases {
		if _, err := FromYAML([]byte(src)); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	workspace := t.TempDir()
	cfg, err := LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Portal.Name != Default().Portal.Name {
		t.Fatalf("cfg = %+v", cfg)
	}

	custom := "portal:\n  name: Branch Portal\nauth:\n  token_ttl_minutes: 30\nintake:\n  escalation_threshold: 5\n"
	if err := os.WriteFile(filepath.Join(workspace, "portal.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(workspace)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Portal.Name != "Branch Portal" || cfg.Intake.EscalationThreshold != 5 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
}

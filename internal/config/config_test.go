package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default("devteam")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Team.ID != "devteam" {
		t.Errorf("team id = %q", cfg.Team.ID)
	}
	if cfg.Pipeline.MaxRevisions != 2 {
		t.Errorf("max revisions = %d", cfg.Pipeline.MaxRevisions)
	}
	if cfg.Thresholds.CoveragePercent != 90 {
		t.Errorf("coverage threshold = %.1f", cfg.Thresholds.CoveragePercent)
	}
}

func TestFromYAMLRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing team id", `
team:
  id: ""
approval:
  weights: {quality: 0.4, readiness: 0.3, issues: 0.2, dna: 0.1}
`},
		{"weights do not sum", `
team:
  id: demo
approval:
  weights: {quality: 0.9, readiness: 0.3, issues: 0.2, dna: 0.1}
`},
		{"threshold out of range", `
team:
  id: demo
thresholds:
  coverage_percent: 140
approval:
  weights: {quality: 0.4, readiness: 0.3, issues: 0.2, dna: 0.1}
`},
		{"webhook without url", `
team:
  id: demo
approval:
  weights: {quality: 0.4, readiness: 0.3, issues: 0.2, dna: 0.1}
webhooks:
  - secret: shh
`},
		{"negative revisions", `
team:
  id: demo
pipeline:
  max_revisions: -1
approval:
  weights: {quality: 0.4, readiness: 0.3, issues: 0.2, dna: 0.1}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromYAML([]byte(tc.yaml)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg != nil {
		t.Fatal("expected nil config for missing file")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	workspace := t.TempDir()
	path := filepath.Join(workspace, "devteam.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault("roundtrip")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Team.ID != "roundtrip" {
		t.Errorf("team id = %q", cfg.Team.ID)
	}
	if cfg.Approval.Threshold != 80 {
		t.Errorf("approval threshold = %.1f", cfg.Approval.Threshold)
	}
}

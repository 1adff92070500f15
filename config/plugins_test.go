package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
defaults:
  volume:
    size_gb: 8
    fs_type: ext4
  distro:
    policy_file_mode: 0755

environments:
  prod-debian:
    plugins:
      metrics: logger
      cloud: ec2
      finalizer: tagging_ebs
      volume: linux
      distro: debian
      provisioner: aptitude
    overrides:
      volume:
        size_gb: 20
    tags:
      - key: Team
        value: infra
      - key: Environment
        value: prod
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gator.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	return path
}

func TestLoadAndPluginSelection(t *testing.T) {
	pc, err := Load(writeSampleConfig(t))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	sel, err := pc.PluginSelection("prod-debian")
	if err != nil {
		t.Fatalf("PluginSelection() = %v", err)
	}
	if sel["distro"] != "debian" {
		t.Errorf("distro plugin = %q, want debian", sel["distro"])
	}
	if sel["provisioner"] != "aptitude" {
		t.Errorf("provisioner plugin = %q, want aptitude", sel["provisioner"])
	}
}

func TestLoadUnknownEnvironment(t *testing.T) {
	pc, err := Load(writeSampleConfig(t))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if _, err := pc.PluginSelection("bogus"); err == nil {
		t.Fatal("PluginSelection() = nil error, want error for unknown environment")
	}
}

func TestStageConfigMergesOverride(t *testing.T) {
	pc, err := Load(writeSampleConfig(t))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	cfg, err := pc.StageConfig("prod-debian", "volume")
	if err != nil {
		t.Fatalf("StageConfig() = %v", err)
	}

	var merged struct {
		SizeGB int    `yaml:"size_gb"`
		FSType string `yaml:"fs_type"`
	}
	if err := cfg.Raw.Decode(&merged); err != nil {
		t.Fatalf("decode merged volume config: %v", err)
	}
	if merged.SizeGB != 20 {
		t.Errorf("SizeGB = %d, want 20 (override should win)", merged.SizeGB)
	}
	if merged.FSType != "ext4" {
		t.Errorf("FSType = %q, want ext4 (default should survive merge)", merged.FSType)
	}
}

func TestStageConfigNoOverrideReturnsDefault(t *testing.T) {
	pc, err := Load(writeSampleConfig(t))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	cfg, err := pc.StageConfig("prod-debian", "distro")
	if err != nil {
		t.Fatalf("StageConfig() = %v", err)
	}
	var merged struct {
		PolicyFileMode int `yaml:"policy_file_mode"`
	}
	if err := cfg.Raw.Decode(&merged); err != nil {
		t.Fatalf("decode distro config: %v", err)
	}
	if merged.PolicyFileMode != 0755 {
		t.Errorf("PolicyFileMode = %o, want 0755", merged.PolicyFileMode)
	}
}

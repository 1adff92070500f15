package distro

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDebianHooksInstallAndRemove(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "usr", "sbin"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	h := debianHooks{fileMode: policyFileMode}
	if err := h.Install(root); err != nil {
		t.Fatalf("Install() = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(root, policyRCD))
	if err != nil {
		t.Fatalf("read policy-rc.d: %v", err)
	}
	if string(content) != policyRCDScript {
		t.Fatalf("policy-rc.d content = %q, want %q", content, policyRCDScript)
	}

	if err := h.Remove(root); err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, policyRCD)); !os.IsNotExist(err) {
		t.Fatalf("policy-rc.d still present after Remove()")
	}
}

func TestRedHatHooksShortCircuitAndRewire(t *testing.T) {
	root := t.TempDir()
	for _, cmd := range blockedCommands {
		full := filepath.Join(root, cmd)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir parent of %s: %v", full, err)
		}
		if err := os.WriteFile(full, []byte("#!/bin/sh\necho real\n"), 0o755); err != nil {
			t.Fatalf("seed %s: %v", full, err)
		}
	}

	h := redhatHooks{}
	if err := h.Install(root); err != nil {
		t.Fatalf("Install() = %v", err)
	}
	for _, cmd := range blockedCommands {
		full := filepath.Join(root, cmd)
		link, err := os.Readlink(full)
		if err != nil {
			t.Fatalf("readlink %s: %v", full, err)
		}
		if link != "/bin/true" {
			t.Errorf("%s -> %q, want /bin/true", full, link)
		}
	}

	if err := h.Remove(root); err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	for _, cmd := range blockedCommands {
		full := filepath.Join(root, cmd)
		content, err := os.ReadFile(full)
		if err != nil {
			t.Fatalf("read restored %s: %v", full, err)
		}
		if string(content) != "#!/bin/sh\necho real\n" {
			t.Errorf("%s content = %q, not restored", full, content)
		}
	}
}

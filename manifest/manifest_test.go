package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/fieldvm/vm"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a fieldvm.toml
	dir := t.TempDir()
	tomlContent := `
[network]
devices = 25
topology = "grid"
spacing = 2.0
range = 3.5

[run]
rounds = 40
program = "programs/gradient.cbor"
assign-policy = "define"
capabilities = ["neighbor"]
denied-capabilities = ["spatial"]

[trace]
path = "trace.db"

[log]
verbosity = 2
file = "fieldvm.log"

[metrics]
address = ":9090"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Network.Devices != 25 {
		t.Errorf("network devices = %d, want 25", m.Network.Devices)
	}
	if m.Network.Topology != "grid" {
		t.Errorf("network topology = %q, want grid", m.Network.Topology)
	}
	if m.Network.Spacing != 2 || m.Network.Range != 3.5 {
		t.Errorf("network spacing/range = %v/%v, want 2/3.5", m.Network.Spacing, m.Network.Range)
	}
	if m.Run.Rounds != 40 {
		t.Errorf("run rounds = %d, want 40", m.Run.Rounds)
	}
	if m.Run.Example != "" {
		t.Errorf("run example = %q, want empty when a program is set", m.Run.Example)
	}
	if p, _ := m.Policy(); p != vm.AssignDefine {
		t.Errorf("policy = %v, want define", p)
	}
	if len(m.Run.Capabilities) != 1 || m.Run.Capabilities[0] != "neighbor" {
		t.Errorf("run capabilities = %v, want [neighbor]", m.Run.Capabilities)
	}
	if len(m.Run.Denied) != 1 || m.Run.Denied[0] != "spatial" {
		t.Errorf("run denied capabilities = %v, want [spatial]", m.Run.Denied)
	}
	if want := filepath.Join(m.Dir, "programs", "gradient.cbor"); m.ProgramPath() != want {
		t.Errorf("ProgramPath() = %q, want %q", m.ProgramPath(), want)
	}
	if want := filepath.Join(m.Dir, "trace.db"); m.TracePath() != want {
		t.Errorf("TracePath() = %q, want %q", m.TracePath(), want)
	}
	if m.Log.Verbosity != 2 || m.Log.File != "fieldvm.log" {
		t.Errorf("log = %+v", m.Log)
	}
	if m.Metrics.Address != ":9090" {
		t.Errorf("metrics address = %q, want :9090", m.Metrics.Address)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
[network]
spacing = 2.0
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Network.Devices != 10 || m.Network.Topology != "line" {
		t.Errorf("default network = %+v", m.Network)
	}
	// Default range follows the spacing
	if m.Network.Range != 3 {
		t.Errorf("default range = %v, want 3", m.Network.Range)
	}
	if m.Run.Rounds != 10 || m.Run.Example != "neighbors" {
		t.Errorf("default run = %+v", m.Run)
	}
	if p, _ := m.Policy(); p != vm.AssignStrict {
		t.Errorf("default policy = %v, want strict", p)
	}
	if m.TracePath() != "" {
		t.Errorf("TracePath() = %q, want empty (tracing off)", m.TracePath())
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad topology", "[network]\ntopology = \"torus\"\n", "topology"},
		{"negative devices", "[network]\ndevices = -1\n", "devices"},
		{"bad policy", "[run]\nassign-policy = \"loose\"\n", "assign-policy"},
		{"syntax", "[network\n", "parse error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[run]
rounds = 3
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Run.Rounds != 3 {
		t.Errorf("run rounds = %d, want 3", m.Run.Rounds)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no fieldvm.toml exists")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.Network.Topology = "ring"
	m.Trace.Path = "out.db"

	if err := Save(dir, m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Network != m.Network {
		t.Errorf("network = %+v, want %+v", loaded.Network, m.Network)
	}
	if loaded.Trace.Path != "out.db" {
		t.Errorf("trace path = %q, want out.db", loaded.Trace.Path)
	}
}

func TestResolve(t *testing.T) {
	m := &Manifest{Dir: "/app"}

	if got := m.Resolve("p.cbor"); got != "/app/p.cbor" {
		t.Errorf("Resolve(relative) = %q, want /app/p.cbor", got)
	}
	if got := m.Resolve("/abs/p.cbor"); got != "/abs/p.cbor" {
		t.Errorf("Resolve(absolute) = %q", got)
	}
	if got := m.Resolve(""); got != "" {
		t.Errorf("Resolve(empty) = %q", got)
	}
}

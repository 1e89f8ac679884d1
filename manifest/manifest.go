// Package manifest handles fieldvm.toml simulation configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/chazu/fieldvm/vm"
)

// FileName is the name of the configuration file.
const FileName = "fieldvm.toml"

// Topologies lists the supported network layouts.
var Topologies = []string{"line", "grid", "ring"}

// Manifest represents a fieldvm.toml configuration.
type Manifest struct {
	Network Network `toml:"network"`
	Run     Run     `toml:"run"`
	Trace   Trace   `toml:"trace"`
	Log     Log     `toml:"log"`
	Metrics Metrics `toml:"metrics"`

	// Dir is the directory containing the fieldvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Network describes the simulated devices and how they are placed.
type Network struct {
	Devices  int     `toml:"devices"`
	Topology string  `toml:"topology"`
	Spacing  float64 `toml:"spacing"`
	Range    float64 `toml:"range"`
}

// Run configures what is evaluated and for how long.
type Run struct {
	Rounds       int      `toml:"rounds"`
	Program      string   `toml:"program"`
	Example      string   `toml:"example"`
	AssignPolicy string   `toml:"assign-policy"`
	Capabilities []string `toml:"capabilities"` // allowed; empty = all
	Denied       []string `toml:"denied-capabilities"`
}

// Trace configures the SQLite round recorder. An empty path disables it.
type Trace struct {
	Path string `toml:"path"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Metrics configures the Prometheus endpoint. An empty address disables it.
type Metrics struct {
	Address string `toml:"address"`
}

// Default returns the configuration used when no fieldvm.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Network.Devices == 0 {
		m.Network.Devices = 10
	}
	if m.Network.Topology == "" {
		m.Network.Topology = "line"
	}
	if m.Network.Spacing == 0 {
		m.Network.Spacing = 1
	}
	if m.Network.Range == 0 {
		m.Network.Range = 1.5 * m.Network.Spacing
	}
	if m.Run.Rounds == 0 {
		m.Run.Rounds = 10
	}
	if m.Run.Program == "" && m.Run.Example == "" {
		m.Run.Example = "neighbors"
	}
	if m.Run.AssignPolicy == "" {
		m.Run.AssignPolicy = vm.AssignStrict.String()
	}
}

// Validate checks value ranges and enumerations.
func (m *Manifest) Validate() error {
	if m.Network.Devices < 1 {
		return fmt.Errorf("network.devices must be positive, got %d", m.Network.Devices)
	}
	if !slices.Contains(Topologies, m.Network.Topology) {
		return fmt.Errorf("network.topology %q not one of %v", m.Network.Topology, Topologies)
	}
	if m.Network.Spacing <= 0 || m.Network.Range <= 0 {
		return fmt.Errorf("network.spacing and network.range must be positive")
	}
	if m.Run.Rounds < 1 {
		return fmt.Errorf("run.rounds must be positive, got %d", m.Run.Rounds)
	}
	if _, err := m.Policy(); err != nil {
		return fmt.Errorf("run.assign-policy: %w", err)
	}
	return nil
}

// Load parses a fieldvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a fieldvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Save writes m as fieldvm.toml into dir.
func Save(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Policy returns the parsed assignment policy.
func (m *Manifest) Policy() (vm.AssignPolicy, error) {
	return vm.ParseAssignPolicy(m.Run.AssignPolicy)
}

// Resolve returns path relative to the manifest directory. Absolute and
// empty paths are returned unchanged.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// ProgramPath returns the absolute path of the configured program file.
func (m *Manifest) ProgramPath() string { return m.Resolve(m.Run.Program) }

// TracePath returns the absolute path of the trace database.
func (m *Manifest) TracePath() string { return m.Resolve(m.Trace.Path) }

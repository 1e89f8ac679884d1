package dist

import (
	"fmt"
	"iter"
	"slices"

	"github.com/chazu/fieldvm/vm"
)

// Context capabilities a program may require.
const (
	CapNeighbor = "neighbor" // nbr: exchange values with neighbors
	CapSpatial  = "spatial"  // nbrRange: distances to neighbors
)

// CapabilityManifest declares what a program needs from its execution
// context.
type CapabilityManifest struct {
	Required []string `cbor:"1,keyasint"`
}

// opCapabilities maps node ops to the capability they need.
var opCapabilities = map[string]string{
	"nbr":      CapNeighbor,
	"nbrRange": CapSpatial,
}

func scanOps(ops iter.Seq[string]) *CapabilityManifest {
	seen := map[string]bool{}
	for op := range ops {
		if c, ok := opCapabilities[op]; ok {
			seen[c] = true
		}
	}
	m := &CapabilityManifest{}
	for c := range seen {
		m.Required = append(m.Required, c)
	}
	slices.Sort(m.Required)
	return m
}

// Capabilities scans p and returns the capabilities its nodes use, sorted.
func Capabilities(p *vm.Program) *CapabilityManifest {
	return scanOps(func(yield func(string) bool) {
		for _, n := range p.Nodes() {
			if !yield(n.Op()) {
				return
			}
		}
	})
}

// bundleCapabilities scans the wire nodes of b.
func bundleCapabilities(b *Bundle) *CapabilityManifest {
	return scanOps(func(yield func(string) bool) {
		for _, wn := range b.Nodes {
			if !yield(wn.Op) {
				return
			}
		}
	})
}

// CapabilityPolicy controls which capabilities a program may use on a
// host. A nil AllowedCapabilities means "allow all".
type CapabilityPolicy struct {
	AllowedCapabilities map[string]bool // nil = allow all
	DeniedCapabilities  map[string]bool
}

// NewPermissivePolicy creates a policy that allows all capabilities.
func NewPermissivePolicy() *CapabilityPolicy {
	return &CapabilityPolicy{}
}

// NewRestrictedPolicy creates a policy that only allows the specified
// capabilities.
func NewRestrictedPolicy(allowed []string) *CapabilityPolicy {
	m := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		m[c] = true
	}
	return &CapabilityPolicy{AllowedCapabilities: m}
}

// Check verifies that all capabilities required by a manifest are allowed
// by this policy. Returns an error naming the first denied capability.
func (p *CapabilityPolicy) Check(manifest *CapabilityManifest) error {
	if manifest == nil {
		return nil
	}
	for _, c := range manifest.Required {
		if p.DeniedCapabilities != nil && p.DeniedCapabilities[c] {
			return fmt.Errorf("dist: capability %q is explicitly denied", c)
		}
		if p.AllowedCapabilities != nil && !p.AllowedCapabilities[c] {
			return fmt.Errorf("dist: capability %q is not allowed", c)
		}
	}
	return nil
}

// CheckBundle verifies b and checks the capabilities its nodes use. The
// declared list must match them.
func (p *CapabilityPolicy) CheckBundle(b *Bundle) error {
	if err := b.Verify(); err != nil {
		return err
	}
	m := bundleCapabilities(b)
	if !slices.Equal(m.Required, b.Capabilities) {
		return fmt.Errorf("dist: bundle declares capabilities %v, nodes use %v", b.Capabilities, m.Required)
	}
	return p.Check(m)
}

// Deny adds a capability to the deny list.
func (p *CapabilityPolicy) Deny(c string) {
	if p.DeniedCapabilities == nil {
		p.DeniedCapabilities = make(map[string]bool)
	}
	p.DeniedCapabilities[c] = true
}

// Package sim runs a compiled program on a simulated network of devices.
//
// Every device holds its own copy of the program and its own execution
// context. A round evaluates all devices concurrently, then delivers the
// values each successful device published to its neighbors, to be read in
// the next round.
package sim

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/chazu/fieldvm/manifest"
	"github.com/chazu/fieldvm/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("fieldvm.sim")

// Config describes the network to build.
type Config struct {
	Devices  int
	Topology string
	Spacing  float64
	Range    float64
	Policy   vm.AssignPolicy
}

// ConfigFromManifest extracts the network configuration from m.
func ConfigFromManifest(m *manifest.Manifest) (Config, error) {
	policy, err := m.Policy()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Devices:  m.Network.Devices,
		Topology: m.Network.Topology,
		Spacing:  m.Network.Spacing,
		Range:    m.Network.Range,
		Policy:   policy,
	}, nil
}

// Result is the outcome of one device in one round. Value is the program
// result of the device's last successful round; it is nil if the device
// never completed one.
type Result struct {
	Round  int
	Device vm.DeviceID
	Value  vm.Value
	Err    error
}

// Recorder receives every device result as rounds complete.
type Recorder interface {
	Record(round int, device vm.DeviceID, v vm.Value, err error) error
}

// Option configures a Network.
type Option func(*Network)

// WithIDs names the devices instead of generating random identities. The
// slice must hold one distinct id per device.
func WithIDs(ids ...vm.DeviceID) Option {
	return func(n *Network) { n.ids = ids }
}

// WithRecorder installs a recorder.
func WithRecorder(r Recorder) Option {
	return func(n *Network) { n.rec = r }
}

// WithMetrics installs metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(n *Network) { n.metrics = m }
}

// WithGlobals binds names visible to the program on every device.
func WithGlobals(globals map[string]vm.Value) Option {
	return func(n *Network) { n.globals = maps.Clone(globals) }
}

// WithConcurrency bounds the number of devices evaluated at once.
func WithConcurrency(limit int) Option {
	return func(n *Network) { n.limit = limit }
}

type device struct {
	id   vm.DeviceID
	pos  Point
	prog *vm.Program
	ctx  *vm.SimpleContext
}

// Network is a set of devices running the same program.
type Network struct {
	devices []*device
	links   [][]link
	round   int
	results []Result

	ids     []vm.DeviceID
	globals map[string]vm.Value
	rec     Recorder
	metrics *Metrics
	limit   int
}

// NewNetwork places cfg.Devices devices and gives each a copy of prog.
func NewNetwork(prog *vm.Program, cfg Config, opts ...Option) (*Network, error) {
	if prog == nil {
		return nil, fmt.Errorf("sim: %w: nil program", vm.ErrNullReference)
	}
	if cfg.Devices < 1 {
		return nil, fmt.Errorf("sim: need at least one device, got %d", cfg.Devices)
	}
	n := &Network{}
	for _, opt := range opts {
		opt(n)
	}
	if n.ids != nil && len(n.ids) != cfg.Devices {
		return nil, fmt.Errorf("sim: %d ids for %d devices", len(n.ids), cfg.Devices)
	}

	pts, err := Layout(cfg.Topology, cfg.Devices, cfg.Spacing)
	if err != nil {
		return nil, err
	}
	n.links = connect(pts, cfg.Range)

	seen := make(map[vm.DeviceID]bool, cfg.Devices)
	n.devices = make([]*device, cfg.Devices)
	for i := range n.devices {
		id := vm.DeviceID(uuid.NewString())
		if n.ids != nil {
			id = n.ids[i]
		}
		if seen[id] {
			return nil, fmt.Errorf("sim: duplicate device id %q", id)
		}
		seen[id] = true
		n.devices[i] = &device{
			id:   id,
			pos:  pts[i],
			prog: prog.Copy(),
			ctx:  vm.NewSimpleContext(id, vm.WithAssignPolicy(cfg.Policy), vm.WithGlobals(n.globals)),
		}
	}
	if n.metrics != nil {
		n.metrics.devices.Set(float64(cfg.Devices))
	}
	log.Infof("network of %d devices (%s, range %g)", cfg.Devices, cfg.Topology, cfg.Range)
	return n, nil
}

// Step runs one round on every device and delivers the exports. It returns
// an error only if ctx is cancelled or the recorder fails; device failures
// are reported in the results. Devices evaluate copies of their programs,
// which replace the originals only once every device has finished, so a
// cancelled round leaves the network as it was.
func (n *Network) Step(ctx context.Context) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	round := n.round + 1
	results := make([]Result, len(n.devices))
	next := make([]*vm.Program, len(n.devices))

	g, gctx := errgroup.WithContext(ctx)
	if n.limit > 0 {
		g.SetLimit(n.limit)
	}
	for i, d := range n.devices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prog := d.prog.Copy()
			d.ctx.BeginRound()
			err := prog.Eval(d.ctx)
			v, _ := prog.Annotation()
			results[i] = Result{Round: round, Device: d.id, Value: v, Err: err}
			next[i] = prog
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, d := range n.devices {
		d.prog = next[i]
	}

	failed := n.deliver(results)
	n.round = round
	n.results = results

	for _, r := range results {
		if r.Err != nil {
			log.Warningf("round %d: device %s: %v", round, r.Device, r.Err)
		}
		if n.rec != nil {
			if err := n.rec.Record(r.Round, r.Device, r.Value, r.Err); err != nil {
				return results, fmt.Errorf("sim: record round %d: %w", round, err)
			}
		}
	}
	elapsed := time.Since(start)
	n.metrics.observeRound(elapsed.Seconds(), len(results)-failed, failed)
	log.Debugf("round %d done in %s, %d failed", round, elapsed, failed)
	return results, nil
}

// deliver hands every device the exports of its successful neighbors and
// returns the number of failed devices.
func (n *Network) deliver(results []Result) int {
	exports := make([]map[vm.NodeID]vm.Value, len(n.devices))
	failed := 0
	for i, d := range n.devices {
		if results[i].Err != nil {
			failed++
			continue
		}
		exports[i] = d.ctx.Exports()
	}
	for i, d := range n.devices {
		var msgs []vm.Message
		for _, l := range n.links[i] {
			if exports[l.to] == nil {
				continue
			}
			msgs = append(msgs, vm.Message{
				From:     n.devices[l.to].id,
				Exports:  exports[l.to],
				Distance: l.dist,
			})
		}
		d.ctx.Receive(msgs)
	}
	return failed
}

// Run executes rounds rounds, stopping early if ctx is cancelled.
func (n *Network) Run(ctx context.Context, rounds int) error {
	for range rounds {
		if _, err := n.Step(ctx); err != nil {
			return err
		}
	}
	log.Infof("completed %d round(s)", n.round)
	return nil
}

// Round returns the number of completed rounds.
func (n *Network) Round() int { return n.round }

// Results returns the results of the last completed round, in device order.
func (n *Network) Results() []Result {
	return append([]Result(nil), n.results...)
}

// Devices returns the device ids in placement order.
func (n *Network) Devices() []vm.DeviceID {
	ids := make([]vm.DeviceID, len(n.devices))
	for i, d := range n.devices {
		ids[i] = d.id
	}
	return ids
}

// Position returns where a device is placed.
func (n *Network) Position(id vm.DeviceID) (Point, bool) {
	for _, d := range n.devices {
		if d.id == id {
			return d.pos, true
		}
	}
	return Point{}, false
}

// Neighbors returns the ids of the devices in range of id.
func (n *Network) Neighbors(id vm.DeviceID) []vm.DeviceID {
	for i, d := range n.devices {
		if d.id != id {
			continue
		}
		out := make([]vm.DeviceID, 0, len(n.links[i]))
		for _, l := range n.links[i] {
			out = append(out, n.devices[l.to].id)
		}
		return out
	}
	return nil
}

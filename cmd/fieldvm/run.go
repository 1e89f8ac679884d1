package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/chazu/fieldvm/manifest"
	"github.com/chazu/fieldvm/sim"
	"github.com/chazu/fieldvm/trace"
	"github.com/chazu/fieldvm/vm"
	"github.com/chazu/fieldvm/vm/dist"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("fieldvm")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a program on the simulated network",
		Long: `Run loads ` + manifest.FileName + ` (or the defaults), overrides it with the
given flags, evaluates the program for the configured number of rounds and
prints the value every device computed in the last round.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, m); err != nil {
				return err
			}
			configureLogging(m)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSimulation(ctx, m, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.String("program", "", "CBOR program bundle to run")
	f.String("example", "", "Built-in example to run (see 'fieldvm examples')")
	f.Int("rounds", 0, "Number of rounds")
	f.Int("devices", 0, "Number of devices")
	f.String("topology", "", "Device layout: line, grid or ring")
	f.String("trace", "", "SQLite file to record every round into")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.CountP("verbose", "v", "Increase log verbosity")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, m *manifest.Manifest) error {
	f := cmd.Flags()
	if f.Changed("program") {
		m.Run.Program, _ = f.GetString("program")
		m.Run.Example = ""
	}
	if f.Changed("example") {
		m.Run.Example, _ = f.GetString("example")
		m.Run.Program = ""
	}
	if f.Changed("rounds") {
		m.Run.Rounds, _ = f.GetInt("rounds")
	}
	if f.Changed("devices") {
		m.Network.Devices, _ = f.GetInt("devices")
	}
	if f.Changed("topology") {
		m.Network.Topology, _ = f.GetString("topology")
	}
	if f.Changed("trace") {
		m.Trace.Path, _ = f.GetString("trace")
	}
	if f.Changed("metrics-addr") {
		m.Metrics.Address, _ = f.GetString("metrics-addr")
	}
	v, _ := f.GetCount("verbose")
	m.Log.Verbosity += v
	return m.Validate()
}

func configureLogging(m *manifest.Manifest) {
	var path *string
	if m.Log.File != "" {
		p := m.Resolve(m.Log.File)
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity, path)
}

func capabilityPolicy(m *manifest.Manifest) *dist.CapabilityPolicy {
	p := dist.NewPermissivePolicy()
	if len(m.Run.Capabilities) > 0 {
		p = dist.NewRestrictedPolicy(m.Run.Capabilities)
	}
	for _, c := range m.Run.Denied {
		p.Deny(c)
	}
	return p
}

// loadProgram returns the configured program after checking it against the
// capability policy.
func loadProgram(m *manifest.Manifest) (*vm.Program, error) {
	policy := capabilityPolicy(m)
	if m.Run.Program == "" {
		prog, err := buildExample(m.Run.Example)
		if err != nil {
			return nil, err
		}
		if err := policy.Check(dist.Capabilities(prog)); err != nil {
			return nil, err
		}
		return prog, nil
	}

	data, err := os.ReadFile(m.ProgramPath())
	if err != nil {
		return nil, err
	}
	b, err := dist.UnmarshalBundle(data)
	if err != nil {
		return nil, err
	}
	if err := policy.CheckBundle(b); err != nil {
		return nil, err
	}
	return b.Program(nil)
}

func runSimulation(ctx context.Context, m *manifest.Manifest, out io.Writer) error {
	prog, err := loadProgram(m)
	if err != nil {
		return err
	}
	cfg, err := sim.ConfigFromManifest(m)
	if err != nil {
		return err
	}

	metrics := sim.NewMetrics()
	opts := []sim.Option{sim.WithMetrics(metrics)}

	if path := m.TracePath(); path != "" {
		store, err := trace.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, sim.WithRecorder(store))
		log.Infof("recording rounds to %s", path)
	}

	if m.Metrics.Address != "" {
		shutdown, err := serveMetrics(m.Metrics.Address, metrics)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	n, err := sim.NewNetwork(prog, cfg, opts...)
	if err != nil {
		return err
	}
	if err := n.Run(ctx, m.Run.Rounds); err != nil {
		return err
	}
	return printResults(out, n)
}

func serveMetrics(addr string, metrics *sim.Metrics) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	log.Infof("serving metrics on http://%s/metrics", ln.Addr())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

func printResults(out io.Writer, n *sim.Network) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "round %d\n", n.Round())
	for _, r := range n.Results() {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", r.Device, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", r.Device, vm.Format(r.Value))
	}
	return w.Flush()
}

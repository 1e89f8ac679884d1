package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/fieldvm/manifest"
	"github.com/chazu/fieldvm/trace"
	"github.com/chazu/fieldvm/vm"
	"github.com/chazu/fieldvm/vm/dist"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// lastRound parses the device values printed by run.
func lastRound(t *testing.T, out string) []string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "round ") {
		t.Fatalf("unexpected run output:\n%s", out)
	}
	var values []string
	for _, l := range lines[1:] {
		fields := strings.Fields(l)
		values = append(values, strings.Join(fields[1:], " "))
	}
	return values
}

func TestExamplesBuild(t *testing.T) {
	for _, name := range exampleNames() {
		prog, err := buildExample(name)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		ctx := vm.NewSimpleContext("d")
		ctx.BeginRound()
		if err := prog.Eval(ctx); err != nil {
			t.Errorf("%s: isolated evaluation failed: %v", name, err)
		}
	}
	if _, err := buildExample("nope"); err == nil {
		t.Error("expected error for unknown example")
	}
}

func TestExamplesCommand(t *testing.T) {
	out, err := execute(t, "examples")
	if err != nil {
		t.Fatalf("examples: %v", err)
	}
	for _, name := range exampleNames() {
		if !strings.Contains(out, name) {
			t.Errorf("output lacks %q:\n%s", name, out)
		}
	}
}

func TestRunExample(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "--dir", dir, "--example", "neighbors", "--devices", "3", "--rounds", "2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := lastRound(t, out)
	want := []string{"1", "2", "1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("values = %v, want %v", got, want)
	}
}

func TestRunSquares(t *testing.T) {
	out, err := execute(t, "run", "--dir", t.TempDir(), "--example", "squares", "--devices", "1", "--rounds", "1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := lastRound(t, out); len(got) != 1 || got[0] != "[1, 4, 9]" {
		t.Errorf("values = %v, want [[1, 4, 9]]", got)
	}
}

func TestRunCapabilityDenied(t *testing.T) {
	dir := t.TempDir()
	m := manifest.Default()
	m.Run.Example = "nearest"
	m.Run.Capabilities = []string{"neighbor"}
	if err := manifest.Save(dir, m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := execute(t, "run", "--dir", dir)
	if err == nil || !strings.Contains(err.Error(), "spatial") {
		t.Errorf("run error = %v, want spatial capability refused", err)
	}

	if _, err := execute(t, "run", "--dir", dir, "--example", "neighbors", "--rounds", "1"); err != nil {
		t.Errorf("allowed example failed: %v", err)
	}
}

func TestEncodeShowRun(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "leader.cbor")

	if _, err := execute(t, "encode", "leader", "-o", bundle); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := execute(t, "show", bundle)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"capabilities: neighbor", "minHoodPlusSelf"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output lacks %q:\n%s", want, out)
		}
	}

	db := filepath.Join(dir, "trace.db")
	if _, err := execute(t, "run", "--dir", dir, "--program", bundle, "--rounds", "3", "--devices", "4", "--trace", db); err != nil {
		t.Fatalf("run: %v", err)
	}
	s, err := trace.Open(db)
	if err != nil {
		t.Fatalf("trace.Open: %v", err)
	}
	defer s.Close()
	if n, err := s.Rounds(); err != nil || n != 3 {
		t.Errorf("recorded rounds = %d, %v; want 3", n, err)
	}
	entries, err := s.Results(3)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("got %d entries in round 3, want 4", len(entries))
	}
}

func TestShowRejectsTamperedBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "n.cbor")
	if _, err := execute(t, "encode", "neighbors", "-o", bundle); err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := os.ReadFile(bundle)
	if err != nil {
		t.Fatal(err)
	}
	// inside the declared hash, which follows the map header and its key
	data[5] ^= 0xff
	if err := os.WriteFile(bundle, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "show", bundle); err == nil {
		t.Error("expected show to reject a modified bundle")
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "init", "--dir", dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := manifest.Load(dir); err != nil {
		t.Errorf("Load after init: %v", err)
	}
	if _, err := execute(t, "init", "--dir", dir); err == nil {
		t.Error("expected init to refuse an existing file")
	}
	if _, err := execute(t, "init", "--dir", dir, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestRunDeniedCapability(t *testing.T) {
	dir := t.TempDir()
	m := manifest.Default()
	m.Run.Denied = []string{"neighbor"}
	if err := manifest.Save(dir, m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := execute(t, "run", "--dir", dir, "--example", "leader", "--rounds", "1")
	if err == nil || !strings.Contains(err.Error(), "neighbor") {
		t.Errorf("run error = %v, want neighbor capability denied", err)
	}
	if _, err := execute(t, "run", "--dir", dir, "--example", "squares", "--rounds", "1"); err != nil {
		t.Errorf("local-only example failed: %v", err)
	}
}

func TestRunProgramChecksBundleNodes(t *testing.T) {
	dir := t.TempDir()
	prog, err := buildExample("nearest")
	if err != nil {
		t.Fatal(err)
	}
	b, err := dist.Pack(prog)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	// Hide the spatial capability from the declared list.
	b.Capabilities = nil
	data, err := dist.MarshalBundle(b)
	if err != nil {
		t.Fatalf("MarshalBundle: %v", err)
	}
	bundle := filepath.Join(dir, "nearest.cbor")
	if err := os.WriteFile(bundle, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m := manifest.Default()
	m.Run.Capabilities = []string{"neighbor"}
	if err := manifest.Save(dir, m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := execute(t, "run", "--dir", dir, "--program", bundle, "--rounds", "1"); err == nil {
		t.Error("expected run to refuse a bundle whose declared capabilities differ from its nodes")
	}
}

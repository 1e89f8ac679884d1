package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/chazu/fieldvm/vm"
	"github.com/spf13/cobra"
)

type example struct {
	summary string
	build   func(b *vm.Builder, ops *vm.OperatorRegistry) vm.NodeID
}

func mustOp(ops *vm.OperatorRegistry, name string) vm.HoodOp {
	op, ok := ops.Lookup(name)
	if !ok {
		panic("fieldvm: missing hood operator " + name)
	}
	return op
}

var examples = map[string]example{
	"neighbors": {
		summary: "number of devices in range: sumHood(nbr(1))",
		build: func(b *vm.Builder, ops *vm.OperatorRegistry) vm.NodeID {
			return b.Hood(mustOp(ops, "sum"), b.Nbr(b.Const(vm.Num(1))), false)
		},
	},
	"nearest": {
		summary: "distance to the closest neighbor: minHood(nbrRange)",
		build: func(b *vm.Builder, ops *vm.OperatorRegistry) vm.NodeID {
			return b.Hood(mustOp(ops, "min"), b.NbrRange(), false)
		},
	},
	"leader": {
		summary: "smallest id among the device and its neighbors: minHoodPlusSelf(nbr(self))",
		build: func(b *vm.Builder, ops *vm.OperatorRegistry) vm.NodeID {
			return b.Hood(mustOp(ops, "min"), b.Nbr(b.Self()), true)
		},
	},
	"neighborhood": {
		summary: "set of ids of the device and its neighbors: unionHoodPlusSelf(nbr(self))",
		build: func(b *vm.Builder, ops *vm.OperatorRegistry) vm.NodeID {
			return b.Hood(mustOp(ops, "union"), b.Nbr(b.Self()), true)
		},
	},
	"connected": {
		summary: "whether any neighbor is in range: anyHood(nbr(true))",
		build: func(b *vm.Builder, ops *vm.OperatorRegistry) vm.NodeID {
			return b.Hood(mustOp(ops, "any"), b.Nbr(b.Const(vm.Bool(true))), false)
		},
	},
	"squares": {
		summary: "local computation only: let sq = (x) -> x * x; [1, 2, 3].map(sq)",
		build: func(b *vm.Builder, _ *vm.OperatorRegistry) vm.NodeID {
			sq := b.Def("sq", []string{"x"}, b.Send("*", b.Var("x"), b.Var("x")))
			input := b.Const(vm.NewTuple(vm.Num(1), vm.Num(2), vm.Num(3)))
			return b.Block(b.Let("sq", sq), b.Send("map", input, b.Var("sq")))
		},
	},
}

func exampleNames() []string {
	names := make([]string, 0, len(examples))
	for name := range examples {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// buildExample compiles the named example program.
func buildExample(name string) (*vm.Program, error) {
	ex, ok := examples[name]
	if !ok {
		return nil, fmt.Errorf("unknown example %q (have %v)", name, exampleNames())
	}
	b := vm.NewBuilder()
	return b.Build(ex.build(b, vm.DefaultOperators()))
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List the built-in example programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range exampleNames() {
				fmt.Fprintf(w, "%s\t%s\n", name, examples[name].summary)
			}
			return w.Flush()
		},
	}
}

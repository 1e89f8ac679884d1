package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/chazu/fieldvm/vm/dist"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <example>",
		Short: "Write an example program as a CBOR bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := buildExample(args[0])
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = args[0] + ".cbor"
			}

			b, err := dist.Pack(prog)
			if err != nil {
				return err
			}
			data, err := dist.MarshalBundle(b)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d bytes, sha256 %x\n", out, len(b.Nodes), len(data), b.Hash)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default <example>.cbor)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file.cbor>",
		Short: "Verify a program bundle and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := dist.UnmarshalBundle(data)
			if err != nil {
				return err
			}
			prog, err := b.Program(nil)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "sha256:       %x\n", b.Hash)
			fmt.Fprintf(w, "nodes:        %d\n", prog.Len())
			caps := dist.Capabilities(prog).Required
			if len(caps) == 0 {
				fmt.Fprintf(w, "capabilities: none\n")
			} else {
				fmt.Fprintf(w, "capabilities: %s\n", strings.Join(caps, ", "))
			}
			fmt.Fprintf(w, "\n%s\n", prog)
			return nil
		},
	}
}

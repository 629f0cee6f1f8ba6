package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the stored record of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			e, err := a.sync.Reference(args[0])
			if err != nil {
				return err
			}
			if err := e.Reload(cmd.Context()); err != nil {
				return err
			}
			b, err := e.SerializedStoredData()
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), b)
		},
	}
}

func newPutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put [file]",
		Short: "Save a flat JSON record read from file or stdin",
		Long: `Put reads a record of the form {"id":..,"data":..,"prototypeName":..}
and saves it. A missing id is generated. The saved id is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read record: %w", err)
			}
			a, err := openApp(cmd.Context(), opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			e, err := a.sync.CreateFromJSON(body)
			if err != nil {
				return err
			}
			if err := e.Save(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), e.ID())
			return err
		},
	}
}

func newPrototypesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prototypes",
		Short: "List registered prototypes and plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()
			for _, p := range a.sync.Plugins() {
				fmt.Fprintf(out, "plugin %s %s\n", p.Name, p.Version)
			}
			for _, name := range a.sync.PrototypeNames() {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "graphsyncd", version)
		},
	}
}

func writeIndented(w io.Writer, b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

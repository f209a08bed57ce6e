package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Li-Yaosong/webadb2/cmd/webadb/logview"
)

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect saved packet logs",
		Long: `Inspect packet logs written by the packet_log.file setting or by
"log export" in the shell. Files ending in .zst or .lz4 are
decompressed transparently.`,
	}
	cmd.AddCommand(logViewCmd(), logStatsCmd(), logExportCmd(), logFilterCmd())
	return cmd
}

func logViewCmd() *cobra.Command {
	var (
		opts     logview.FilterOptions
		maxBytes int
	)

	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Filter()
			if err != nil {
				return err
			}
			view := logview.ViewFilter{
				Serial:    filter.Serial,
				Layer:     filter.Layer,
				Direction: filter.Direction,
				Category:  filter.Category,
			}
			return logview.RunView(args[0], view, maxBytes, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Serial, "serial", "", "Only events of this device")
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "Layer: transport, session, mirror")
	cmd.Flags().StringVar(&opts.Direction, "dir", "", "Direction: in, out")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Category: packet, state, error")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 64, "Frame bytes to print (0 for all)")

	return cmd
}

func logStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarize events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}

func logExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Convert events to JSONL or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return logview.RunExport(args[0], format, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Output format: jsonl, csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func logFilterCmd() *cobra.Command {
	var opts logview.FilterOptions

	cmd := &cobra.Command{
		Use:   "filter <file>",
		Short: "Write matching events to a new log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output == "" {
				return fmt.Errorf("--output is required")
			}
			n, err := logview.RunFilter(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Filtered %d events to %s\n", n, opts.Output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file (.zst or .lz4 to compress)")
	cmd.Flags().StringVar(&opts.ConnID, "conn", "", "Connection ID")
	cmd.Flags().StringVar(&opts.Serial, "serial", "", "Device serial")
	cmd.Flags().StringVar(&opts.TimeStart, "time-start", "", "Start time (RFC3339)")
	cmd.Flags().StringVar(&opts.TimeEnd, "time-end", "", "End time (RFC3339)")
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "Layer: transport, session, mirror")
	cmd.Flags().StringVar(&opts.Direction, "dir", "", "Direction: in, out")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Category: packet, state, error")

	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("webadb %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Built:      %s\n", date)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}

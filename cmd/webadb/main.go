// Command webadb is an interactive Android debug bridge client with
// screen mirroring and remote control.
//
// Devices are found over USB, saved WebSocket and TCP endpoints, and
// wireless debugging (mDNS). Every frame exchanged with a device is
// recorded in the packet log, which can be inspected live or saved.
//
// Usage:
//
//	webadb [flags]                     Start the interactive shell
//	webadb connect --ws host:port      Connect, then start the shell
//	webadb devices                     List devices and exit
//	webadb log view <file>             Show a saved packet log
//	webadb version                     Print version information
//
// Examples:
//
//	# Mirror a device reachable over a WebSocket bridge
//	webadb connect --ws ws://192.168.1.20:8080/ws --artifact ./webadb-server.jar
//
//	# Keep devices in SQLite and expose the status API
//	webadb --store sqlite --status-listen 127.0.0.1:9090
//
//	# Inspect a compressed packet log
//	webadb log view --layer mirror session.wlog.zst
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Li-Yaosong/webadb2/pkg/discovery"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every command that builds an App.
type globalFlags struct {
	configPath   string
	stateDir     string
	logLevel     string
	store        string
	statusListen string
	artifact     string
	noMDNS       bool
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "webadb",
		Short: "Android debug bridge client with screen mirroring",
		Long: `webadb connects to Android devices over USB, WebSocket bridges, TCP
and wireless debugging, mirrors their screen and forwards input.

Without a subcommand it starts the interactive shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), &flags, nil)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Configuration file (YAML)")
	pf.StringVar(&flags.stateDir, "state-dir", "", "Directory for keys and saved devices")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.store, "store", "", "Device store: json or sqlite")
	pf.StringVar(&flags.statusListen, "status-listen", "", "Address of the status HTTP server")
	pf.StringVar(&flags.artifact, "artifact", "", "Mirror server artifact (path, URL or s3://bucket/key)")
	pf.BoolVar(&flags.noMDNS, "no-mdns", false, "Disable wireless debugging discovery")

	rootCmd.AddCommand(
		connectCmd(&flags),
		devicesCmd(&flags),
		logCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies flag overrides.
func (f *globalFlags) loadConfig() (*Config, error) {
	cfg, err := LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.stateDir != "" {
		cfg.StateDir = f.stateDir
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.store != "" {
		cfg.Store = f.store
	}
	if f.statusListen != "" {
		cfg.Status.Listen = f.statusListen
	}
	if f.artifact != "" {
		cfg.Server.Artifact = f.artifact
	}
	if f.noMDNS {
		cfg.MDNS.Enabled = false
	}
	return cfg, cfg.Validate()
}

// newApp loads the configuration and builds a started App. Logs go to
// the returned writer, which the shell redirects through readline.
func (f *globalFlags) newApp(ctx context.Context) (*App, *switchWriter, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	level, _ := parseLevel(cfg.LogLevel)
	out := &switchWriter{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Start(ctx); err != nil {
		app.Close()
		return nil, nil, err
	}
	return app, out, nil
}

// runShell builds the App, runs before (if set) and then the shell until
// quit or a signal.
func runShell(ctx context.Context, flags *globalFlags, before func(context.Context, *App) error) error {
	app, logOut, err := flags.newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if before != nil {
		if err := before(ctx, app); err != nil {
			return err
		}
	}

	shell, err := NewShell(app)
	if err != nil {
		return err
	}
	logOut.Set(shell.Stdout())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go shell.Run(ctx, cancel)
	<-ctx.Done()

	logOut.Set(os.Stderr)
	fmt.Fprintln(os.Stderr, "Shutting down...")
	return nil
}

func connectCmd(flags *globalFlags) *cobra.Command {
	var ws, tcp string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a device, then start the shell",
		Long: `Connect to a device and start the interactive shell.

With --ws or --tcp the endpoint is saved first. Without either, the
selected (or last used) device is connected.

Examples:
  webadb connect --ws ws://192.168.1.20:8080/ws
  webadb connect --tcp 192.168.1.20:5555`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ws != "" && tcp != "" {
				return fmt.Errorf("--ws and --tcp are mutually exclusive")
			}
			return runShell(cmd.Context(), flags, func(ctx context.Context, app *App) error {
				switch {
				case ws != "":
					return app.ConnectTo(ctx, discovery.KindWebSocket, ws)
				case tcp != "":
					return app.ConnectTo(ctx, discovery.KindTCP, tcp)
				default:
					return app.manager.Connect(ctx)
				}
			})
		},
	}

	cmd.Flags().StringVar(&ws, "ws", "", "WebSocket URL of the device")
	cmd.Flags().StringVar(&tcp, "tcp", "", "TCP address (host:port) of the device")

	return cmd
}

func devicesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.noMDNS = true
			app, _, err := flags.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			devices := app.refresh(cmd.Context())
			if len(devices) == 0 {
				fmt.Println("No devices")
				return nil
			}
			for _, opt := range discovery.Options(devices) {
				kind := discovery.Find(devices, opt.Key).Kind()
				fmt.Printf("%-10s %s\n", kind, opt.Text)
			}
			return nil
		},
	}
}

// switchWriter serializes writes to a replaceable destination.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Set replaces the destination.
func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

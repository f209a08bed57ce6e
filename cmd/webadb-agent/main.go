// Command webadb-agent serves a simulated Android device.
//
// The agent accepts debug bridge clients over TCP and WebSocket,
// authenticates them against an authorized keys file, stores pushed
// files and runs the mirror server protocol with synthetic video. It is
// used to develop and test webadb without hardware.
//
// Usage:
//
//	webadb-agent [flags]
//
// Examples:
//
//	# Accept any client and advertise over mDNS
//	webadb-agent --trust --serial EMU01
//
//	# WebSocket only, keeping pushed files on disk
//	webadb-agent --listen "" --ws-listen :8080 --root /tmp/agent
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/Li-Yaosong/webadb2/internal/agent"
	"github.com/Li-Yaosong/webadb2/pkg/auth"
	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/log"
	"github.com/Li-Yaosong/webadb2/pkg/transport"
)

// Version information set at build time.
var version = "dev"

type options struct {
	listen    string
	wsListen  string
	root      string
	keys      string
	serial    string
	model     string
	trust     bool
	allowExec bool
	mdns      bool
	iface     string
	logLevel  string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:           "webadb-agent",
		Short:         "Simulated Android device for webadb",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.listen, "listen", ":5555", "TCP listen address (empty to disable)")
	f.StringVar(&opts.wsListen, "ws-listen", ":8080", "WebSocket listen address (empty to disable)")
	f.StringVar(&opts.root, "root", "", "Directory for pushed files (default in memory)")
	f.StringVar(&opts.keys, "keys", "", "Authorized keys file")
	f.StringVar(&opts.serial, "serial", "", "Device serial (default random)")
	f.StringVar(&opts.model, "model", "", "Device model")
	f.BoolVar(&opts.trust, "trust", false, "Accept and remember unknown client keys")
	f.BoolVar(&opts.allowExec, "allow-exec", false, "Run shell commands on the host")
	f.BoolVar(&opts.mdns, "mdns", true, "Advertise the TCP port over mDNS")
	f.StringVar(&opts.iface, "interface", "", "Network interface for mDNS")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if opts.listen == "" && opts.wsListen == "" {
		return errors.New("nothing to serve: both --listen and --ws-listen are empty")
	}

	keys, err := auth.LoadAuthorizedKeys(opts.keys)
	if err != nil {
		return err
	}
	a, err := agent.New(agent.Config{
		Serial:       opts.serial,
		Model:        opts.model,
		Keys:         keys,
		TrustNewKeys: opts.trust,
		RootDir:      opts.root,
		AllowExec:    opts.allowExec,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	a.OnEvent(func(e agent.Event) {
		switch e.Type {
		case agent.EventPushed:
			logger.Info("file pushed", "conn", e.ConnectionID, "path", e.Path, "size", e.Size)
		case agent.EventReboot:
			logger.Info("reboot requested", "conn", e.ConnectionID, "mode", e.Mode)
		case agent.EventControl:
			logger.Debug("control", "conn", e.ConnectionID, "type", e.Control.Type)
		default:
			logger.Info(e.Type.String(), "conn", e.ConnectionID, "key", e.Fingerprint)
		}
	})

	srv, err := transport.NewServer(transport.ServerConfig{
		Address:   opts.listen,
		Logger:    log.NewSlogAdapter(logger),
		OnConnect: a.Serve,
		OnError: func(err error) {
			logger.Warn("connection error", "error", err)
		},
	})
	if err != nil {
		return err
	}
	defer srv.Stop()

	if opts.listen != "" {
		if err := srv.Start(ctx); err != nil {
			return err
		}
		logger.Info("listening", "addr", srv.Addr().String(), "serial", a.Serial())

		if opts.mdns {
			adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
				Interface: opts.iface,
				Logger:    logger,
			})
			defer adv.Shutdown()
			if err := advertise(adv, a, srv.Addr()); err != nil {
				logger.Warn("mDNS advertisement failed", "error", err)
			}
		}
	}

	var httpSrv *http.Server
	if opts.wsListen != "" {
		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Handle("/ws", srv.WebSocketHandler())
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "ok %s\n", a.Serial())
		})

		ln, err := net.Listen("tcp", opts.wsListen)
		if err != nil {
			return fmt.Errorf("websocket listen: %w", err)
		}
		httpSrv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("websocket server stopped", "error", err)
			}
		}()
		logger.Info("websocket listening", "url", "ws://"+ln.Addr().String()+"/ws")
	}

	<-ctx.Done()
	logger.Info("shutting down", "connections", srv.ConnectionCount())
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// advertise announces the TCP endpoint with the banner properties.
func advertise(adv *discovery.MDNSAdvertiser, a *agent.Agent, addr net.Addr) error {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	props := a.Properties()
	return adv.Advertise(discovery.AdvertiseInfo{
		Instance: a.Serial(),
		Port:     port,
		Text: map[string]string{
			"serial": props[client.PropSerial],
			"model":  props[client.PropModel],
		},
	})
}

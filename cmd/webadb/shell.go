package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Li-Yaosong/webadb2/cmd/webadb/logview"
	"github.com/Li-Yaosong/webadb2/pkg/client"
	"github.com/Li-Yaosong/webadb2/pkg/connection"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/log"
	"github.com/Li-Yaosong/webadb2/pkg/mirror"
	"github.com/Li-Yaosong/webadb2/pkg/wire"
)

// commandTimeout bounds one device request from the shell.
const commandTimeout = 30 * time.Second

// Shell is the interactive command interface.
type Shell struct {
	app *App
	rl  *readline.Instance
	out io.Writer
}

// NewShell creates a readline shell for app.
func NewShell(app *App) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "webadb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	app.SetOutput(rl.Stdout())
	return &Shell{app: app, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.out
}

// Run reads commands until quit, EOF or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if s.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should
// exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "devices", "ls":
		err = s.cmdDevices(ctx)
	case "add":
		err = s.cmdAdd(ctx, args)
	case "remove", "rm":
		err = s.cmdRemove(ctx, args)
	case "select":
		err = s.cmdSelect(args)
	case "connect", "c":
		err = s.cmdConnect(ctx, args)
	case "disconnect", "dc":
		err = s.app.manager.Disconnect(ctx)
	case "status":
		s.cmdStatus()
	case "info":
		err = s.cmdInfo(ctx)
	case "power":
		err = s.cmdPower(ctx, args)
	case "mirror", "m":
		err = s.cmdMirror(ctx, args)
	case "key", "k":
		err = s.cmdKey(args)
	case "type":
		err = s.cmdType(line)
	case "tap":
		err = s.cmdTap(args)
	case "back":
		err = s.withMirror(func(o *mirror.Orchestrator) error { return o.BackOrScreenOn() })
	case "blur":
		err = s.withMirror(func(o *mirror.Orchestrator) error { return o.Blur() })
	case "packets", "p":
		err = s.cmdPackets(args)
	case "log":
		err = s.cmdLog(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
webadb Commands:
  Devices:
    devices                    - List devices (USB, WebSocket, TCP)
    add ws <url>               - Save a WebSocket device
    add tcp <host:port>        - Save a TCP device
    remove <serial>            - Remove a saved device
    select <serial>            - Select the device to connect to
    connect [serial]           - Connect to the selected device
    disconnect                 - Close the session
    status                     - Show session and mirror state

  Device:
    info                       - Show device properties
    power <mode>               - Reboot (normal, poweroff, bootloader, fastboot,
                                 recovery, sideload, edl, download)
    power button               - Press the power button

  Remote control:
    mirror start|stop|status   - Control screen mirroring
    key <name>                 - Press home, back, power, volup, voldown, enter...
    type <text>                - Type text
    tap <x> <y> <w> <h>        - Tap at x,y on a w x h screen
    back                       - Back, or screen on when off
    blur                       - Release all held keys

  Packet log:
    packets [n]                - Show the last n packets (default 20)
    log stats                  - Show packet log statistics
    log export <file>          - Save the packet log (.wlog, .zst, .lz4)

  General:
    help                       - Show this help
    quit                       - Exit`)
}

func (s *Shell) cmdDevices(ctx context.Context) error {
	devices := s.app.refresh(ctx)
	if len(devices) == 0 {
		fmt.Fprintln(s.out, "No devices. Use 'add ws <url>' or 'add tcp <host:port>'.")
		return nil
	}
	var selected, connected string
	if dev := s.app.manager.Selected(); dev != nil {
		selected = dev.Serial()
	}
	if sess := s.app.manager.Current(); sess != nil {
		connected = sess.Device.Serial()
	}
	for _, opt := range discovery.Options(devices) {
		marker := " "
		switch opt.Key {
		case connected:
			marker = "*"
		case selected:
			marker = ">"
		}
		kind := discovery.Find(devices, opt.Key).Kind()
		fmt.Fprintf(s.out, "%s %-10s %s\n", marker, kind, opt.Text)
	}
	return nil
}

func (s *Shell) cmdAdd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: add ws <url> | add tcp <host:port>")
	}
	kind, err := discovery.ParseKind(args[0])
	if err != nil {
		return err
	}
	dev, err := s.app.AddDevice(ctx, kind, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s device %s\n", kind, dev.Serial())
	return nil
}

func (s *Shell) cmdRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: remove <serial>")
	}
	if err := s.app.RemoveDevice(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Removed %s\n", args[0])
	return nil
}

func (s *Shell) cmdSelect(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: select <serial>")
	}
	if err := s.app.manager.Select(args[0]); err != nil {
		return err
	}
	if s.app.manager.State() != connection.StateIdle {
		fmt.Fprintln(s.out, "Selection applies after disconnect")
	}
	return nil
}

func (s *Shell) cmdConnect(ctx context.Context, args []string) error {
	if len(args) == 1 {
		if err := s.cmdSelect(args); err != nil {
			return err
		}
	}
	dev := s.app.manager.Selected()
	if dev == nil {
		return errors.New("no device selected")
	}
	fmt.Fprintf(s.out, "Connecting to %s...\n", dev.Serial())
	if err := s.app.manager.Connect(ctx); err != nil {
		return err
	}
	if c, err := s.app.Client(); err == nil {
		b := c.Banner()
		fmt.Fprintf(s.out, "Connected: %s %s\n", b.Serial, b.Model)
	}
	return nil
}

func (s *Shell) cmdStatus() {
	m := s.app.manager
	fmt.Fprintf(s.out, "Session: %s\n", m.State())
	if sess := m.Current(); sess != nil {
		fmt.Fprintf(s.out, "  Device:    %s (%s)\n", sess.Device.Serial(), sess.Device.Kind())
		fmt.Fprintf(s.out, "  ID:        %s\n", sess.ID)
		fmt.Fprintf(s.out, "  Connected: %s ago\n", time.Since(sess.ConnectedAt).Round(time.Second))
	}
	if o := s.app.mirror; o != nil {
		fmt.Fprintf(s.out, "Mirror:  %s\n", o.Status())
		if stats, ok := o.Stats(); ok {
			fmt.Fprintf(s.out, "  Frames: %d (%s)\n", stats.Frames, mirror.FormatSize(float64(stats.Bytes)))
		}
	}
	fmt.Fprintf(s.out, "Packets: %d retained, %d total\n", s.app.packets.Len(), s.app.packets.Total())
}

func (s *Shell) cmdInfo(ctx context.Context) error {
	c, err := s.app.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	props, err := c.Properties(ctx)
	if err != nil {
		return err
	}
	b := client.ParseBanner(props)
	fmt.Fprintf(s.out, "Serial:   %s\n", b.Serial)
	fmt.Fprintf(s.out, "Model:    %s\n", b.Model)
	fmt.Fprintf(s.out, "Product:  %s\n", b.Product)
	fmt.Fprintf(s.out, "Device:   %s\n", b.Device)
	fmt.Fprintf(s.out, "Release:  %s\n", props[client.PropRelease])
	fmt.Fprintf(s.out, "Features: %s\n", strings.Join(b.Features, ", "))
	return nil
}

func (s *Shell) cmdPower(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: power <mode> | power button")
	}
	c, err := s.app.Client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if args[0] == "button" {
		return c.PowerButton(ctx)
	}
	mode := client.RebootMode(args[0])
	if args[0] == "normal" {
		mode = client.RebootNormal
	}
	if err := c.Reboot(ctx, mode); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Rebooting (%s)\n", mode)
	return nil
}

func (s *Shell) cmdMirror(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: mirror start|stop|status")
	}
	switch args[0] {
	case "start":
		if err := s.app.StartMirror(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Mirroring")
	case "stop":
		return s.withMirror(func(o *mirror.Orchestrator) error { return o.Stop() })
	case "status":
		if s.app.mirror == nil {
			return ErrNoArtifact
		}
		fmt.Fprintln(s.out, s.app.mirror.Status())
	default:
		return fmt.Errorf("unknown mirror command %q", args[0])
	}
	return nil
}

func (s *Shell) cmdKey(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: key <name>")
	}
	code, ok := mirror.KeyForName(args[0])
	if !ok {
		return fmt.Errorf("unknown key %q", args[0])
	}
	return s.withMirror(func(o *mirror.Orchestrator) error { return o.PressKey(code, 0) })
}

// cmdType types everything after the command word, spaces included.
func (s *Shell) cmdType(line string) error {
	_, text, _ := strings.Cut(strings.TrimLeft(line, " \t"), " ")
	if text == "" {
		return errors.New("usage: type <text>")
	}
	return s.withMirror(func(o *mirror.Orchestrator) error {
		for i := 0; i < len(text); i++ {
			code, meta, ok := mirror.KeyForByte(text[i])
			if !ok {
				continue
			}
			if err := o.PressKey(code, meta); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Shell) cmdTap(args []string) error {
	if len(args) != 4 {
		return errors.New("usage: tap <x> <y> <w> <h>")
	}
	var v [4]int
	for i, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid number %q", arg)
		}
		v[i] = n
	}
	p := mirror.Pointer{X: int32(v[0]), Y: int32(v[1]), Width: uint16(v[2]), Height: uint16(v[3]), Buttons: 1}
	return s.withMirror(func(o *mirror.Orchestrator) error {
		if err := o.InjectPointer(wire.ActionDown, p); err != nil {
			return err
		}
		p.Buttons = 0
		return o.InjectPointer(wire.ActionUp, p)
	})
}

func (s *Shell) cmdPackets(args []string) error {
	n := 20
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid count %q", args[0])
		}
		n = v
	}
	category := log.CategoryPacket
	events := s.app.packets.Filter(log.Filter{Category: &category})
	if len(events) > n {
		events = events[len(events)-n:]
	}
	logview.PrintEvents(s.out, events, 32)
	return nil
}

func (s *Shell) cmdLog(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: log stats | log export <file>")
	}
	switch args[0] {
	case "stats":
		logview.PrintStats(s.out, logview.Collect(s.app.packets.Snapshot()))
	case "export":
		if len(args) != 2 {
			return errors.New("usage: log export <file>")
		}
		events := s.app.packets.Snapshot()
		if err := log.Export(args[1], events); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Exported %d events to %s (%s)\n", len(events), args[1], log.CompressionForPath(args[1]))
	default:
		return fmt.Errorf("unknown log command %q", args[0])
	}
	return nil
}

func (s *Shell) withMirror(fn func(*mirror.Orchestrator) error) error {
	if s.app.mirror == nil {
		return ErrNoArtifact
	}
	return fn(s.app.mirror)
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("devices"),
		readline.PcItem("add", readline.PcItem("ws"), readline.PcItem("tcp")),
		readline.PcItem("remove"),
		readline.PcItem("select"),
		readline.PcItem("connect"),
		readline.PcItem("disconnect"),
		readline.PcItem("status"),
		readline.PcItem("info"),
		readline.PcItem("power",
			readline.PcItem("button"), readline.PcItem("normal"), readline.PcItem("poweroff"),
			readline.PcItem("bootloader"), readline.PcItem("fastboot"), readline.PcItem("recovery"),
			readline.PcItem("sideload"), readline.PcItem("edl"), readline.PcItem("download"),
		),
		readline.PcItem("mirror", readline.PcItem("start"), readline.PcItem("stop"), readline.PcItem("status")),
		readline.PcItem("key",
			readline.PcItem("home"), readline.PcItem("back"), readline.PcItem("power"),
			readline.PcItem("volup"), readline.PcItem("voldown"), readline.PcItem("recents"),
		),
		readline.PcItem("type"),
		readline.PcItem("tap"),
		readline.PcItem("back"),
		readline.PcItem("blur"),
		readline.PcItem("packets"),
		readline.PcItem("log", readline.PcItem("stats"), readline.PcItem("export")),
		readline.PcItem("quit"),
	)
}

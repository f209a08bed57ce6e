package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Li-Yaosong/webadb2/pkg/artifact"
	"github.com/Li-Yaosong/webadb2/pkg/connection"
	"github.com/Li-Yaosong/webadb2/pkg/decoder"
	"github.com/Li-Yaosong/webadb2/pkg/log"
)

const tracerName = "github.com/Li-Yaosong/webadb2/pkg/mirror"

// DefaultMaxArtifactSize bounds the downloaded server size.
const DefaultMaxArtifactSize = 64 << 20

// Config configures an Orchestrator.
type Config struct {
	// Artifact is where the server comes from. Required.
	Artifact artifact.Source

	// Digest, when set, is checked against the downloaded artifact.
	Digest artifact.Digest

	// MaxArtifactSize bounds the download. Default: DefaultMaxArtifactSize.
	MaxArtifactSize int64

	// ServerPath is the device path the server is pushed to.
	ServerPath string

	// ServerClass is the entry point passed to app_process.
	ServerClass string

	// ServerVersion is passed to the server and must match its build.
	ServerVersion string

	// Decoders lists the decoding backends. Default: decoder.Default().
	Decoders *decoder.Registry

	// Decoder names the preferred backend.
	Decoder string

	// Video describes the stream for the decoder.
	Video decoder.Config

	// Capture is the exclusive input grant, if the platform has one.
	Capture InputCapture

	// CaptureInput requests Capture at start.
	CaptureInput bool

	// MeterWindow is the throughput smoothing window.
	MeterWindow time.Duration

	// Reporter receives every failure (optional).
	Reporter connection.ErrorReporter

	// PacketLogger receives state changes (optional).
	PacketLogger log.Logger

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// Stats counts the video received by the running mirror.
type Stats struct {
	Frames  int64
	Bytes   int64
	Started time.Time
}

// Orchestrator runs at most one remote-control session at a time.
type Orchestrator struct {
	config Config
	tracer trace.Tracer

	// opMu serializes Start, Stop and cascade teardown.
	opMu sync.Mutex

	mu            sync.RWMutex
	status        Status
	run           *run
	onProgress    func(Progress)
	onStateChange func(oldStatus, newStatus Status)
}

// run is one Start call and, if it succeeds, the running mirror.
type run struct {
	session *connection.Session
	ctx     context.Context
	cancel  context.CancelFunc

	keyboard *Keyboard
	stream   ServerStream
	decoder  decoder.Decoder
	writeMu  sync.Mutex

	captured    bool
	releaseOnce sync.Once

	frames  atomic.Int64
	bytes   atomic.Int64
	started time.Time

	// pumping is set under opMu once the pump goroutine owns pumpDone.
	pumping  bool
	pumpDone chan struct{}
	done     chan struct{}
	disposed bool
}

// New creates a stopped orchestrator.
func New(config Config) (*Orchestrator, error) {
	if config.Artifact == nil {
		return nil, errors.New("artifact source is required")
	}
	if config.MaxArtifactSize <= 0 {
		config.MaxArtifactSize = DefaultMaxArtifactSize
	}
	if config.ServerPath == "" {
		config.ServerPath = DefaultServerPath
	}
	if config.ServerClass == "" {
		config.ServerClass = DefaultServerClass
	}
	if config.ServerVersion == "" {
		config.ServerVersion = DefaultServerVersion
	}
	if config.Decoders == nil {
		config.Decoders = decoder.Default()
	}
	return &Orchestrator{
		config: config,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Status returns the current state and stage.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.Status().State
}

// Stats returns video counters of the running mirror.
func (o *Orchestrator) Stats() (Stats, bool) {
	o.mu.RLock()
	r, running := o.run, o.status.State == StateRunning
	o.mu.RUnlock()
	if !running || r == nil {
		return Stats{}, false
	}
	return Stats{Frames: r.frames.Load(), Bytes: r.bytes.Load(), Started: r.started}, true
}

// OnProgress sets the deployment progress observer. It is called from
// the goroutine running Start.
func (o *Orchestrator) OnProgress(fn func(Progress)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onProgress = fn
}

// OnStateChange sets a callback for state and stage changes.
func (o *Orchestrator) OnStateChange(fn func(oldStatus, newStatus Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onStateChange = fn
}

// Start deploys the server on sess and starts mirroring. It blocks until
// the mirror is running or the deployment failed.
func (o *Orchestrator) Start(ctx context.Context, sess *connection.Session) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	if o.State() != StateStopped {
		return ErrNotStopped
	}
	if sess == nil {
		return ErrNoSession
	}
	select {
	case <-sess.Done():
		return ErrNoSession
	default:
	}
	dev, ok := DeviceFor(sess.Transport)
	if !ok {
		return connection.NewError(connection.KindUnsupported, "start", ErrUnsupportedTransport)
	}

	ctx, span := o.tracer.Start(ctx, "mirror.start", trace.WithAttributes(
		attribute.String("connection.id", sess.ID),
		attribute.String("device.serial", sess.Device.Serial()),
	))
	defer span.End()

	// The run outlives the caller's ctx; ctx only bounds deployment.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopDeadline := context.AfterFunc(ctx, cancel)
	r := &run{
		session:  sess,
		ctx:      runCtx,
		cancel:   cancel,
		keyboard: NewKeyboard(),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	o.mu.Lock()
	o.run = r
	o.mu.Unlock()

	go o.watch(r)
	o.capture(r)

	stage, err := o.deploy(r, dev)
	if err == nil && !stopDeadline() {
		err = ctx.Err()
	}
	if err != nil {
		stopDeadline()
		if sessionEnded(sess) {
			err = fmt.Errorf("%s: %w", stage, ErrSessionEnded)
		} else if cerr := ctx.Err(); cerr != nil && errors.Is(err, context.Canceled) {
			err = cerr
		}
		derr := connection.NewError(connection.KindDeployment, stageOp(stage), err)
		span.RecordError(derr)
		span.SetStatus(codes.Error, stage.String())
		o.abort(r, derr)
		return derr
	}

	r.started = time.Now()
	o.setStatus(Status{State: StateRunning}, "")
	r.pumping = true
	go o.pump(r)
	return nil
}

// Stop ends the running mirror.
func (o *Orchestrator) Stop() error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.mu.RLock()
	r, state := o.run, o.status.State
	o.mu.RUnlock()
	if state != StateRunning || r == nil {
		return ErrNotRunning
	}
	o.teardown(r, "stopped")
	return nil
}

// deploy runs the three stages. It returns the failing stage on error.
func (o *Orchestrator) deploy(r *run, dev Device) (Stage, error) {
	o.setStatus(Status{State: StateDeploying, Stage: StageDownloading}, "")
	data, err := o.download(r.ctx)
	if err != nil {
		return StageDownloading, err
	}
	total := int64(len(data))

	o.setStatus(Status{State: StateDeploying, Stage: StagePushing}, "")
	if err := o.push(r.ctx, dev, data); err != nil {
		return StagePushing, err
	}

	o.setStatus(Status{State: StateDeploying, Stage: StageStarting}, "")
	o.emit(Progress{Stage: StageStarting, Done: 0, Total: 1})
	args := ServerArgs(o.config.ServerPath, o.config.ServerClass, o.config.ServerVersion)
	stream, err := dev.StartServer(r.ctx, args...)
	if err != nil {
		return StageStarting, err
	}
	r.stream = stream

	backend, err := o.config.Decoders.Select(o.config.Decoder)
	if err != nil {
		return StageStarting, err
	}
	video := o.config.Video
	if video.Title == "" {
		video.Title = r.session.Device.Serial()
	}
	dec, err := backend.New(r.ctx, video)
	if err != nil {
		return StageStarting, fmt.Errorf("decoder %s: %w", backend.Name(), err)
	}
	r.decoder = dec
	o.emit(Progress{Stage: StageStarting, Done: 1, Total: 1})
	o.debugLog("mirror server started", "bytes", total, "decoder", backend.Name())
	return StageStarting, nil
}

// download reads the artifact into memory.
func (o *Orchestrator) download(ctx context.Context) ([]byte, error) {
	body, size, err := o.config.Artifact.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	if size > o.config.MaxArtifactSize {
		return nil, fmt.Errorf("artifact is %d bytes, limit %d", size, o.config.MaxArtifactSize)
	}

	progress := o.newTracker(StageDownloading, size)
	progress.report(0)

	var src io.Reader = &countingReader{ctx: ctx, r: body, onRead: progress.add}
	if !o.config.Digest.IsZero() {
		src = artifact.NewVerifyingReader(src, o.config.Digest)
	}

	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	n, err := io.Copy(&buf, io.LimitReader(src, o.config.MaxArtifactSize+1))
	if err != nil {
		return nil, err
	}
	if n > o.config.MaxArtifactSize {
		return nil, fmt.Errorf("artifact exceeds %d bytes", o.config.MaxArtifactSize)
	}
	if size >= 0 && n != size {
		return nil, fmt.Errorf("downloaded %d bytes, expected %d", n, size)
	}
	if size < 0 {
		// The total is known now.
		progress.total = n
		progress.report(n)
	}
	return buf.Bytes(), nil
}

func (o *Orchestrator) push(ctx context.Context, dev Device, data []byte) error {
	total := int64(len(data))
	progress := o.newTracker(StagePushing, total)
	progress.report(0)

	err := dev.Push(ctx, o.config.ServerPath, bytes.NewReader(data), total, 0o644, progress.set)
	if err != nil {
		return err
	}
	if progress.done != total {
		return fmt.Errorf("pushed %d of %d bytes", progress.done, total)
	}
	return nil
}

// pump copies video into the decoder until the stream ends.
func (o *Orchestrator) pump(r *run) {
	defer close(r.pumpDone)
	for {
		chunk, err := r.stream.ReadChunk()
		if err != nil {
			if r.ctx.Err() == nil {
				go o.serverExited(r, err)
			}
			return
		}
		r.frames.Add(1)
		r.bytes.Add(int64(len(chunk)))
		if _, err := r.decoder.Write(chunk); err != nil {
			if r.ctx.Err() == nil {
				go o.serverExited(r, fmt.Errorf("decoder: %w", err))
			}
			return
		}
	}
}

// serverExited stops the mirror after the server or decoder ended on
// its own.
func (o *Orchestrator) serverExited(r *run, cause error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.disposed(r) {
		return
	}
	select {
	case <-r.session.Transport.Disconnected():
		// The connection manager reports transport failures.
		cause = io.EOF
	default:
	}
	if !errors.Is(cause, io.EOF) {
		o.report(connection.NewError(connection.KindTransportRuntime, "mirror", cause))
	}
	o.teardown(r, "server exited")
}

// watch tears the run down when its session ends.
func (o *Orchestrator) watch(r *run) {
	select {
	case <-r.session.Done():
	case <-r.done:
		return
	}
	// Unblock a deployment stage first; Start holds opMu until it returns.
	r.cancel()

	o.opMu.Lock()
	defer o.opMu.Unlock()
	if o.disposed(r) {
		return
	}
	o.debugLog("session ended, stopping mirror")
	o.teardown(r, "session ended")
}

func (o *Orchestrator) disposed(r *run) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return r.disposed
}

// capture requests input capture for r if enabled and supported.
func (o *Orchestrator) capture(r *run) {
	c := o.config.Capture
	if !o.config.CaptureInput || c == nil || !c.Supported() {
		return
	}
	if err := c.Lock(); err != nil {
		o.debugLog("input capture unavailable", "error", err)
		return
	}
	r.captured = true
}

// release gives up the capture grant once.
func (o *Orchestrator) release(r *run) {
	r.releaseOnce.Do(func() {
		if !r.captured {
			return
		}
		if err := o.config.Capture.Unlock(); err != nil {
			o.debugLog("input capture release failed", "error", err)
		}
	})
}

// abort cleans up a failed Start. Callers hold opMu.
func (o *Orchestrator) abort(r *run, err *connection.Error) {
	o.report(err)
	o.teardown(r, err.Error())
}

// teardown releases everything r holds exactly once. Callers hold opMu.
func (o *Orchestrator) teardown(r *run, why string) {
	o.mu.Lock()
	if r.disposed {
		o.mu.Unlock()
		return
	}
	r.disposed = true
	o.mu.Unlock()

	r.cancel()
	if r.stream != nil {
		if err := r.stream.Close(); err != nil {
			o.debugLog("close mirror stream", "error", err)
		}
	}
	if r.decoder != nil {
		if err := r.decoder.Close(); err != nil {
			o.debugLog("close decoder", "error", err)
		}
	}
	if r.pumping {
		<-r.pumpDone
	}
	r.keyboard.Reset()
	o.release(r)

	o.setStatus(Status{State: StateStopped}, why)

	o.mu.Lock()
	if o.run == r {
		o.run = nil
	}
	o.mu.Unlock()
	close(r.done)
}

func (o *Orchestrator) setStatus(status Status, why string) {
	o.mu.Lock()
	old := o.status
	o.status = status
	fn := o.onStateChange
	var connID string
	if o.run != nil {
		connID = o.run.session.ID
	}
	o.mu.Unlock()

	o.debugLog("mirror state change", "from", old, "to", status, "reason", why)
	if o.config.PacketLogger != nil {
		o.config.PacketLogger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: connID,
			Layer:        log.LayerMirror,
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityMirror,
				OldState: old.String(),
				NewState: status.String(),
				Reason:   why,
			},
		})
	}
	if fn != nil && old != status {
		fn(old, status)
	}
}

func (o *Orchestrator) emit(p Progress) {
	o.mu.RLock()
	fn := o.onProgress
	o.mu.RUnlock()
	if fn != nil {
		fn(p)
	}
}

func (o *Orchestrator) report(err error) {
	if o.config.Reporter != nil {
		o.config.Reporter.ReportError(err)
	}
}

func (o *Orchestrator) debugLog(msg string, args ...any) {
	if o.config.Logger != nil {
		o.config.Logger.Debug(msg, args...)
	}
}

// tracker turns byte counts of one stage into progress events. Counts
// never go backwards.
type tracker struct {
	o     *Orchestrator
	stage Stage
	total int64
	done  int64
	meter *Meter
}

func (o *Orchestrator) newTracker(stage Stage, total int64) *tracker {
	return &tracker{o: o, stage: stage, total: total, meter: NewMeter(o.config.MeterWindow)}
}

func (t *tracker) add(n int) {
	t.set(t.done + int64(n))
}

func (t *tracker) set(done int64) {
	if done <= t.done {
		return
	}
	t.report(done)
}

func (t *tracker) report(done int64) {
	t.done = done
	rate := t.meter.Update(done)
	t.o.emit(Progress{Stage: t.stage, Done: done, Total: t.total, BytesPerSecond: rate})
}

// countingReader reports every read and stops when ctx ends.
type countingReader struct {
	ctx    context.Context
	r      io.Reader
	onRead func(n int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.onRead(n)
	}
	return n, err
}

func sessionEnded(sess *connection.Session) bool {
	select {
	case <-sess.Done():
		return true
	default:
		return false
	}
}

func stageOp(s Stage) string {
	switch s {
	case StageDownloading:
		return "download"
	case StagePushing:
		return "push"
	case StageStarting:
		return "start"
	default:
		return "deploy"
	}
}

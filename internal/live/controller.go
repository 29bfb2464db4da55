// Package live implements the streaming voice session: microphone capture,
// gapless output playback, transcript-driven emotion tracking, and output
// visualization, all owned by a single Controller state machine.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/noor-app/noorvoice/internal/emotion"
	"github.com/noor-app/noorvoice/internal/observe"
	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/audio/claim"
	"github.com/noor-app/noorvoice/pkg/audio/sched"
	provider "github.com/noor-app/noorvoice/pkg/provider/live"
)

// State is the session lifecycle state.
type State string

const (
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// Config carries everything a Controller needs. Provider, Lines, and Claim
// are required; the remaining fields have working defaults.
type Config struct {
	Provider provider.Provider
	Lines    audio.Lines
	Claim    *claim.Coordinator

	Session      provider.SessionConfig
	OutputDevice int // -1 for the platform default

	EmotionDecay time.Duration
	VizInterval  time.Duration

	Metrics *observe.Metrics
	Logger  *slog.Logger

	// Notification hooks, all optional. Each is invoked from the
	// controller's own goroutines; implementations must not call back into
	// the controller synchronously except for the idempotent Close.
	OnState      func(State)
	OnEmotion    func(emotion.State)
	OnViz        func(VizFrame)
	OnTranscript func(string)
}

// Controller owns one streaming session end to end: it acquires the audio
// claim, opens the input and output lines, connects the remote session, and
// runs the capture, playback, emotion, and visualization loops until Close
// or a transport failure.
//
// Lifecycle: connecting → active → closed | error. Both terminal states run
// the same idempotent teardown.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	ownerID string
	sched   *sched.Scheduler
	viz     *Visualizer
	tracker *emotion.Tracker
	muted   atomic.Bool
	sources atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	lastErr error
	out     audio.OutputLine
	in      audio.InputLine
	session provider.SessionHandle
	torn    bool
}

// NewController creates a Controller in the connecting state. Call Start to
// bring the session up.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Provider == nil || cfg.Lines == nil || cfg.Claim == nil {
		return nil, fmt.Errorf("live: provider, lines, and claim are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.EmotionDecay == 0 {
		cfg.EmotionDecay = emotion.DefaultDecay
	}
	if cfg.VizInterval == 0 {
		cfg.VizInterval = SampleInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "live"),
		metrics: cfg.Metrics,
		ownerID: claim.NewOwnerID("live-session"),
		sched:   sched.New(audio.PlaybackRate, 1),
		viz:     NewVisualizer(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateConnecting,
	}
	c.sched.SetTap(c.viz.Feed)
	c.sched.SetOnActiveChange(c.countSources)
	c.tracker = emotion.NewTracker(
		emotion.WithDecay(cfg.EmotionDecay),
		emotion.WithOnChange(c.emotionChanged),
	)
	return c, nil
}

// Start acquires audio resources and connects the remote session. It returns
// once the session is active or has failed; ctx bounds the handshake only.
// On failure the controller is left in the error state with everything torn
// down, and the error is also returned.
func (c *Controller) Start(ctx context.Context) error {
	c.notifyState(StateConnecting)

	// Single-flight: silence every other audio producer before this session
	// can become audible. The registered stop only silences playback; the
	// microphone keeps running.
	c.cfg.Claim.Register(c.ownerID, c.sched.StopAll)
	c.cfg.Claim.Acquire(c.ownerID)
	c.metrics.RecordClaimHandoff(c.ctx, "live-session")

	out, err := c.cfg.Lines.OpenOutput(c.cfg.OutputDevice, audio.PlaybackRate, 1, c.sched.Render)
	if err != nil {
		return c.fail(fmt.Errorf("live: open output: %w", err))
	}
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()

	in, err := c.cfg.Lines.OpenInput(audio.CaptureRate, audio.FrameSamples)
	if err != nil {
		return c.fail(fmt.Errorf("live: open input: %w", err))
	}
	c.mu.Lock()
	c.in = in
	c.mu.Unlock()

	connectStart := time.Now()
	// The handshake is bounded by the caller's ctx and by the controller's
	// own lifetime, so a Close mid-handshake cancels the dial.
	connectCtx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	unbind := context.AfterFunc(c.ctx, cancelConnect)
	defer unbind()
	session, err := c.cfg.Provider.Connect(connectCtx, c.cfg.Session)
	if err != nil {
		if c.ctx.Err() != nil {
			return errors.New("live: closed during connect")
		}
		return c.fail(fmt.Errorf("live: connect: %w", err))
	}
	c.metrics.ConnectDuration.Record(c.ctx, time.Since(connectStart).Seconds())

	c.mu.Lock()
	if c.torn {
		// Close raced the handshake; the session we just opened is ours to
		// clean up.
		c.mu.Unlock()
		session.Close()
		return errors.New("live: closed during connect")
	}
	c.session = session
	c.state = StateActive
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(c.ctx, 1)
	c.notifyState(StateActive)
	c.log.Info("session active", "voice", c.cfg.Session.Voice.ID)

	pipeline := &capturePipeline{
		line:      in,
		sender:    session,
		muted:     &c.muted,
		log:       c.log,
		onFrame:   c.countFrame,
		onSendErr: func(err error) { c.fail(fmt.Errorf("live: send: %w", err)) },
	}

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		pipeline.run(c.ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.playbackLoop(session)
	}()
	go func() {
		defer c.wg.Done()
		c.transcriptLoop(session)
	}()

	if c.cfg.OnViz != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.viz.Run(c.ctx, c.cfg.VizInterval, c.cfg.OnViz)
		}()
	}
	return nil
}

// playbackLoop forwards inbound audio chunks to the output scheduler. A chunk
// that fails to decode is dropped with a warning; the session survives it.
func (c *Controller) playbackLoop(session provider.SessionHandle) {
	for payload := range session.Audio() {
		if _, err := c.sched.ScheduleChunk(payload); err != nil {
			c.log.Warn("dropping undecodable chunk", "error", err)
			c.metrics.DecodeErrors.Add(c.ctx, 1)
			continue
		}
		c.metrics.ChunksScheduled.Add(c.ctx, 1)
	}

	// Audio channel closed: either a graceful remote close or a transport
	// failure, distinguished by the session's terminal error.
	if err := session.Err(); err != nil {
		c.fail(fmt.Errorf("live: transport: %w", err))
		return
	}
	c.closeWith(StateClosed, nil)
}

// transcriptLoop feeds transcript fragments to the emotion tracker.
func (c *Controller) transcriptLoop(session provider.SessionHandle) {
	for text := range session.Transcripts() {
		c.tracker.Observe(text)
		if c.cfg.OnTranscript != nil {
			c.cfg.OnTranscript(text)
		}
	}
}

func (c *Controller) emotionChanged(s emotion.State) {
	c.metrics.RecordEmotionTransition(c.ctx, string(s))
	if c.cfg.OnEmotion != nil {
		c.cfg.OnEmotion(s)
	}
}

// countSources keeps the active-sources gauge in step with the scheduler's
// source count.
func (c *Controller) countSources(active int) {
	prev := c.sources.Swap(int64(active))
	if delta := int64(active) - prev; delta != 0 {
		c.metrics.ActiveSources.Add(c.ctx, delta)
	}
}

func (c *Controller) countFrame(muted bool) {
	c.metrics.CaptureFrames.Add(c.ctx, 1,
		metric.WithAttributes(observe.Attr("muted", strconv.FormatBool(muted))))
}

// SetMuted flips the capture mute flag. Takes effect on the next frame.
func (c *Controller) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports the current capture mute flag.
func (c *Controller) Muted() bool {
	return c.muted.Load()
}

// SetOutputDevice routes live playback to another output device. Inert when
// the platform cannot switch at runtime.
func (c *Controller) SetOutputDevice(id int) {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out != nil {
		out.SetDevice(id)
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that put the controller in the error state, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Emotion returns the current display emotion.
func (c *Controller) Emotion() emotion.State {
	return c.tracker.State()
}

// Viz returns the current visualization frame.
func (c *Controller) Viz() VizFrame {
	return c.viz.Sample()
}

// Close tears the session down gracefully. Safe to call at any point in the
// lifecycle, including mid-handshake, and safe to call more than once.
func (c *Controller) Close() error {
	c.closeWith(StateClosed, nil)
	return nil
}

// fail moves the controller to the error state and tears everything down.
// Returns the error for convenience at call sites.
func (c *Controller) fail(err error) error {
	c.log.Error("session failed", "error", err)
	c.closeWith(StateError, err)
	return err
}

// closeWith runs the teardown exactly once and settles on the given terminal
// state. A later error cannot overwrite an earlier terminal state.
func (c *Controller) closeWith(terminal State, err error) {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	wasActive := c.state == StateActive
	c.state = terminal
	c.lastErr = err
	out, in, session := c.out, c.in, c.session
	c.out, c.in, c.session = nil, nil, nil
	c.mu.Unlock()

	if wasActive {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	c.cancel()
	if session != nil {
		session.Close()
	}
	if in != nil {
		if cerr := in.Close(); cerr != nil {
			c.log.Warn("closing input line", "error", cerr)
		}
	}
	c.sched.StopAll()
	if out != nil {
		if cerr := out.Close(); cerr != nil {
			c.log.Warn("closing output line", "error", cerr)
		}
	}
	c.tracker.Close()
	c.cfg.Claim.Unregister(c.ownerID)

	c.notifyState(terminal)
	c.log.Info("session torn down", "state", string(terminal))
}

// Wait blocks until every controller goroutine has exited. Intended for
// tests and orderly shutdown.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) notifyState(s State) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

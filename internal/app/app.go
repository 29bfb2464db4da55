// Package app wires all noorvoice subsystems into a running daemon.
//
// The App owns one audio claim coordinator and every producer that competes
// for it: the live session, the speech player, the global track player, and
// any number of per-message players. At most one live session runs at a
// time; starting a new one replaces the previous session.
//
// For testing, inject mock lines and providers via the constructor
// arguments; everything App creates internally has a working default.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noor-app/noorvoice/internal/config"
	"github.com/noor-app/noorvoice/internal/emotion"
	"github.com/noor-app/noorvoice/internal/health"
	"github.com/noor-app/noorvoice/internal/live"
	"github.com/noor-app/noorvoice/internal/observe"
	"github.com/noor-app/noorvoice/internal/player"
	"github.com/noor-app/noorvoice/internal/resilience"
	"github.com/noor-app/noorvoice/internal/transcript"
	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/audio/claim"
	liveprov "github.com/noor-app/noorvoice/pkg/provider/live"
	"github.com/noor-app/noorvoice/pkg/provider/tts"
	"github.com/noor-app/noorvoice/pkg/types"
)

// Sentinel errors for callers that map failures to responses.
var (
	// ErrUnknownGuide is returned when a guide ID is not configured.
	ErrUnknownGuide = errors.New("unknown guide")

	// ErrUnknownMessage is returned when a message ID does not exist.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrNoLiveSession is returned by controls that need a running session.
	ErrNoLiveSession = errors.New("no live session")
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Live liveprov.Provider
	TTS  tts.Provider
}

// EventSink receives application events (session state, emotion, viz frames,
// transcripts) for fan-out to connected clients. Implementations must not
// block.
type EventSink interface {
	Publish(eventType string, data any)
}

// LiveStatus is a snapshot of the live session.
type LiveStatus struct {
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
	GuideID   string `json:"guide_id,omitempty"`
	State     string `json:"state,omitempty"`
	Emotion   string `json:"emotion,omitempty"`
	Muted     bool   `json:"muted"`
	Error     string `json:"error,omitempty"`
}

// MessageStatus is a snapshot of one message player.
type MessageStatus struct {
	ID              string  `json:"id"`
	Playing         bool    `json:"playing"`
	PositionSeconds float64 `json:"position_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
	Rate            float64 `json:"rate"`
}

// Option is a functional option for New.
type Option func(*App)

// WithEventSink wires an event sink for state, emotion, viz, and transcript
// fan-out.
func WithEventSink(s EventSink) Option {
	return func(a *App) { a.sink = s }
}

// WithLevelVar lets config reloads adjust the process log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithTranscripts injects a transcript log instead of the default in-memory
// one.
func WithTranscripts(l *transcript.Log) Option {
	return func(a *App) { a.transcripts = l }
}

// WithMetrics injects a metrics bundle instead of the lazy global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger injects the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// App owns all subsystem lifetimes.
type App struct {
	providers *Providers
	lines     audio.Lines
	claim     *claim.Coordinator

	metrics     *observe.Metrics
	log         *slog.Logger
	sink        EventSink
	levelVar    *slog.LevelVar
	transcripts *transcript.Log

	speech *player.SpeechPlayer
	global *player.GlobalPlayer

	mu           sync.Mutex
	cfg          *config.Config
	live         *live.Controller
	liveGuide    string
	liveSession  string
	messages     map[string]*player.MessagePlayer
	outputDevice int
	closed       bool

	stopOnce sync.Once
}

// New creates an App. cfg, providers, and lines are required; the remaining
// dependencies have defaults overridable via options.
func New(cfg *config.Config, providers *Providers, lines audio.Lines, opts ...Option) (*App, error) {
	if cfg == nil || providers == nil || lines == nil {
		return nil, fmt.Errorf("app: config, providers, and lines are required")
	}

	a := &App{
		providers:    providers,
		lines:        lines,
		claim:        claim.NewCoordinator(),
		cfg:          cfg,
		messages:     make(map[string]*player.MessagePlayer),
		outputDevice: cfg.Audio.OutputDevice,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.transcripts == nil {
		a.transcripts = transcript.NewLog()
	}

	if providers.TTS != nil {
		fb := resilience.NewTTSFallback(cfg.Providers.TTS.Name, providers.TTS, resilience.WithLogger(a.log))
		a.speech = player.NewSpeechPlayer(fb, lines, a.claim, a.metrics, a.log)
	}
	a.global = player.NewGlobalPlayer(lines, a.claim, a.log)

	return a, nil
}

// ─── Live session ────────────────────────────────────────────────────────────

// StartLive starts a live session with the named guide, replacing any
// session already running. ctx bounds the connection handshake.
func (a *App) StartLive(ctx context.Context, guideID string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("app: closed")
	}
	if a.providers.Live == nil {
		a.mu.Unlock()
		return fmt.Errorf("app: no live provider configured")
	}
	guide, _ := a.cfg.Guide(guideID)
	if guide == nil {
		a.mu.Unlock()
		return fmt.Errorf("app: %w: %q", ErrUnknownGuide, guideID)
	}
	decay := time.Duration(a.cfg.Emotion.DecaySeconds * float64(time.Second))
	device := a.outputDevice
	prev := a.live
	a.live = nil
	a.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
		prev.Wait()
	}

	sessionID := fmt.Sprintf("live-%s-%s",
		sanitizeName(guide.ID),
		time.Now().UTC().Format("20060102T1504Z"),
	)

	ctrl, err := live.NewController(live.Config{
		Provider: a.providers.Live,
		Lines:    a.lines,
		Claim:    a.claim,
		Session: liveprov.SessionConfig{
			Instructions:  guide.Instructions,
			Voice:         tts.VoiceProfile{ID: guide.Voice.VoiceID, Provider: guide.Voice.Provider},
			Transcription: guide.Transcription,
		},
		OutputDevice: device,
		EmotionDecay: decay,
		Metrics:      a.metrics,
		Logger:       a.log,
		OnState: func(s live.State) {
			a.publish("session.state", map[string]any{
				"session_id": sessionID,
				"guide_id":   guide.ID,
				"state":      string(s),
			})
		},
		OnEmotion: func(e emotion.State) {
			a.publish("session.emotion", map[string]any{
				"session_id": sessionID,
				"emotion":    string(e),
			})
		},
		OnViz: func(v live.VizFrame) {
			a.publish("session.viz", v)
		},
		OnTranscript: func(text string) {
			a.handleTranscript(sessionID, guide.ID, text)
		},
	})
	if err != nil {
		return fmt.Errorf("app: start live: %w", err)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = ctrl.Close()
		return fmt.Errorf("app: closed")
	}
	a.live = ctrl
	a.liveGuide = guide.ID
	a.liveSession = sessionID
	a.mu.Unlock()

	a.log.Info("live session starting", "session_id", sessionID, "guide", guide.ID)
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("app: start live: %w", err)
	}
	return nil
}

// StopLive tears down the live session. Stopping when nothing is running is
// a no-op.
func (a *App) StopLive() error {
	a.mu.Lock()
	ctrl := a.live
	a.mu.Unlock()

	if ctrl == nil {
		return nil
	}
	err := ctrl.Close()
	ctrl.Wait()
	return err
}

// SetMuted toggles the capture mute of the live session.
func (a *App) SetMuted(muted bool) error {
	a.mu.Lock()
	ctrl := a.live
	a.mu.Unlock()

	if ctrl == nil {
		return fmt.Errorf("app: %w", ErrNoLiveSession)
	}
	ctrl.SetMuted(muted)
	return nil
}

// LiveStatus reports the live session snapshot. When no session was ever
// started, Active is false and the remaining fields are zero.
func (a *App) LiveStatus() LiveStatus {
	a.mu.Lock()
	ctrl := a.live
	guide := a.liveGuide
	session := a.liveSession
	a.mu.Unlock()

	if ctrl == nil {
		return LiveStatus{}
	}
	st := LiveStatus{
		Active:    ctrl.State() == live.StateActive,
		SessionID: session,
		GuideID:   guide,
		State:     string(ctrl.State()),
		Emotion:   string(ctrl.Emotion()),
		Muted:     ctrl.Muted(),
	}
	if err := ctrl.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// handleTranscript records a transcript fragment and fans it out.
func (a *App) handleTranscript(sessionID, guideID, text string) {
	var emo string
	a.mu.Lock()
	if a.live != nil && a.liveSession == sessionID {
		emo = string(a.live.Emotion())
	}
	a.mu.Unlock()

	frag := transcript.Fragment{
		SessionID: sessionID,
		GuideID:   guideID,
		Text:      text,
		Emotion:   emo,
	}
	a.transcripts.Append(frag)
	a.publish("session.transcript", frag)
}

// Transcripts returns the transcript history for one session, or the whole
// history when sessionID is empty.
func (a *App) Transcripts(sessionID string) []transcript.Fragment {
	return a.transcripts.Fragments(sessionID)
}

// ─── Devices ─────────────────────────────────────────────────────────────────

// OutputDevices re-enumerates the available playback devices.
func (a *App) OutputDevices() ([]audio.DeviceInfo, error) {
	devices, err := a.lines.OutputDevices()
	if err != nil {
		return nil, fmt.Errorf("app: list devices: %w", err)
	}
	return devices, nil
}

// SelectOutputDevice switches playback to the given device. The choice
// applies to the running live session immediately and to every session
// started afterwards. Device -1 selects the platform default.
func (a *App) SelectOutputDevice(id int) error {
	if id < -1 {
		return fmt.Errorf("app: invalid device id %d", id)
	}

	a.mu.Lock()
	a.outputDevice = id
	ctrl := a.live
	a.mu.Unlock()

	if ctrl != nil {
		ctrl.SetOutputDevice(id)
	}
	return nil
}

// ─── Speech and tracks ───────────────────────────────────────────────────────

// Speak synthesizes text with the named guide's voice and plays it,
// silencing other producers first.
func (a *App) Speak(ctx context.Context, text, guideID string) error {
	if a.speech == nil {
		return fmt.Errorf("app: no tts provider configured")
	}

	a.mu.Lock()
	guide, _ := a.cfg.Guide(guideID)
	a.mu.Unlock()
	if guide == nil {
		return fmt.Errorf("app: %w: %q", ErrUnknownGuide, guideID)
	}

	voice := tts.VoiceProfile{ID: guide.Voice.VoiceID, Provider: guide.Voice.Provider}
	return a.speech.Speak(ctx, text, voice)
}

// StopSpeech halts speech playback, if any.
func (a *App) StopSpeech() {
	if a.speech != nil {
		a.speech.Stop()
	}
}

// PlayTrack decodes a WAV stream and plays it as the named background
// track, replacing any running track.
func (a *App) PlayTrack(name string, r io.Reader) error {
	return a.global.PlayWAV(name, r)
}

// StopTrack halts background track playback.
func (a *App) StopTrack() {
	a.global.Stop()
}

// NowPlaying reports the current background track.
func (a *App) NowPlaying() (string, bool) {
	return a.global.NowPlaying()
}

// ─── Message players ─────────────────────────────────────────────────────────

// playableAudio extracts the base64 PCM from the audio payload variants.
// Non-audio payloads are rejected.
type playableAudio struct {
	data string
	ok   bool
}

func (v *playableAudio) VisitText(types.TextPayload) error   { return nil }
func (v *playableAudio) VisitImage(types.ImagePayload) error { return nil }
func (v *playableAudio) VisitVideo(types.VideoPayload) error { return nil }

func (v *playableAudio) VisitStreamedSpeech(p types.StreamedSpeechPayload) error {
	v.data = p.Data
	v.ok = true
	return nil
}

func (v *playableAudio) VisitLegacyAudio(p types.LegacyAudioPayload) error {
	v.data = p.Data
	v.ok = true
	return nil
}

// CreateMessage builds a player for an audio payload and returns its status.
// The payload is decoded once, up front; an undecodable payload fails here
// rather than at play time.
func (a *App) CreateMessage(p types.Payload) (MessageStatus, error) {
	var v playableAudio
	if err := p.Accept(&v); err != nil {
		return MessageStatus{}, fmt.Errorf("app: create message: %w", err)
	}
	if !v.ok {
		return MessageStatus{}, fmt.Errorf("app: payload kind %q is not playable", p.Kind)
	}

	mp, err := player.NewMessagePlayer(v.data, a.lines, a.claim, a.log)
	if err != nil {
		return MessageStatus{}, fmt.Errorf("app: create message: %w", err)
	}

	id := uuid.NewString()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		_ = mp.Close()
		return MessageStatus{}, fmt.Errorf("app: closed")
	}
	a.messages[id] = mp
	a.mu.Unlock()

	return a.messageStatus(id, mp), nil
}

// PlayMessage starts or resumes playback of the message.
func (a *App) PlayMessage(id string) (MessageStatus, error) {
	mp, err := a.message(id)
	if err != nil {
		return MessageStatus{}, err
	}
	if err := mp.Play(); err != nil {
		return MessageStatus{}, fmt.Errorf("app: play message: %w", err)
	}
	return a.messageStatus(id, mp), nil
}

// PauseMessage pauses the message, keeping its position.
func (a *App) PauseMessage(id string) (MessageStatus, error) {
	mp, err := a.message(id)
	if err != nil {
		return MessageStatus{}, err
	}
	mp.Pause()
	return a.messageStatus(id, mp), nil
}

// SeekMessage jumps to a fraction of the message duration, clamped to [0, 1].
func (a *App) SeekMessage(id string, fraction float64) (MessageStatus, error) {
	mp, err := a.message(id)
	if err != nil {
		return MessageStatus{}, err
	}
	mp.SeekFraction(fraction)
	return a.messageStatus(id, mp), nil
}

// CycleMessageRate advances the message playback rate to the next step.
func (a *App) CycleMessageRate(id string) (MessageStatus, error) {
	mp, err := a.message(id)
	if err != nil {
		return MessageStatus{}, err
	}
	mp.CycleRate()
	return a.messageStatus(id, mp), nil
}

// MessageStatus reports the snapshot of one message player.
func (a *App) MessageStatus(id string) (MessageStatus, error) {
	mp, err := a.message(id)
	if err != nil {
		return MessageStatus{}, err
	}
	return a.messageStatus(id, mp), nil
}

// RemoveMessage closes and forgets the message player.
func (a *App) RemoveMessage(id string) error {
	a.mu.Lock()
	mp, ok := a.messages[id]
	delete(a.messages, id)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("app: %w: %q", ErrUnknownMessage, id)
	}
	return mp.Close()
}

func (a *App) message(id string) (*player.MessagePlayer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	mp, ok := a.messages[id]
	if !ok {
		return nil, fmt.Errorf("app: %w: %q", ErrUnknownMessage, id)
	}
	return mp, nil
}

func (a *App) messageStatus(id string, mp *player.MessagePlayer) MessageStatus {
	return MessageStatus{
		ID:              id,
		Playing:         mp.Playing(),
		PositionSeconds: mp.Position().Seconds(),
		DurationSeconds: mp.Duration().Seconds(),
		Rate:            mp.Rate(),
	}
}

// ─── Config and guides ───────────────────────────────────────────────────────

// Guides lists the configured guides.
func (a *App) Guides() []config.GuideConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Guides
}

// ApplyConfig installs a reloaded configuration. Guide changes take effect
// on the next session start; the running session keeps its instructions.
// Intended as the config watcher's change callback.
func (a *App) ApplyConfig(old, updated *config.Config) {
	diff := config.Diff(old, updated)

	a.mu.Lock()
	a.cfg = updated
	hasLive := a.live != nil
	a.mu.Unlock()

	if diff.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(slogLevel(diff.NewLogLevel))
		a.log.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.GuidesChanged {
		a.log.Info("guides reloaded", "changes", len(diff.GuideChanges))
		if hasLive {
			a.log.Info("running session keeps its current guide until restarted")
		}
	}
	a.publish("config.reloaded", diff)
}

// Checkers returns the readiness checks for this daemon.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "audio_host",
			Check: func(context.Context) error {
				_, err := a.lines.OutputDevices()
				return err
			},
		},
		{
			Name: "live_provider",
			Check: func(context.Context) error {
				if a.providers.Live == nil {
					return fmt.Errorf("no live provider configured")
				}
				return nil
			},
		},
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Close tears down the live session and every player. Idempotent.
func (a *App) Close() error {
	var firstErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		ctrl := a.live
		a.live = nil
		msgs := a.messages
		a.messages = make(map[string]*player.MessagePlayer)
		a.mu.Unlock()

		if ctrl != nil {
			if err := ctrl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			ctrl.Wait()
		}
		for _, mp := range msgs {
			if err := mp.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if a.speech != nil {
			if err := a.speech.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := a.global.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.log.Info("app closed")
	})
	return firstErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (a *App) publish(eventType string, data any) {
	if a.sink != nil {
		a.sink.Publish(eventType, data)
	}
}

// sanitizeName lowercases a name and replaces spaces with hyphens for use in
// session IDs.
func sanitizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

// slogLevel maps a config log level to its slog value.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package httpapi exposes the daemon's control surface: a JSON API for live
// sessions, speech, media playback, and devices, plus a websocket event
// stream, Prometheus metrics, and health probes.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noor-app/noorvoice/internal/app"
	"github.com/noor-app/noorvoice/internal/config"
	"github.com/noor-app/noorvoice/internal/health"
	"github.com/noor-app/noorvoice/internal/observe"
	"github.com/noor-app/noorvoice/internal/transcript"
	"github.com/noor-app/noorvoice/pkg/audio"
	"github.com/noor-app/noorvoice/pkg/types"
)

// shutdownTimeout bounds the drain of in-flight requests on Run exit.
const shutdownTimeout = 10 * time.Second

// Service is the application surface the API exposes. Implemented by
// [app.App]; tests substitute a fake.
type Service interface {
	StartLive(ctx context.Context, guideID string) error
	StopLive() error
	SetMuted(muted bool) error
	LiveStatus() app.LiveStatus
	Transcripts(sessionID string) []transcript.Fragment

	OutputDevices() ([]audio.DeviceInfo, error)
	SelectOutputDevice(id int) error

	Speak(ctx context.Context, text, guideID string) error
	StopSpeech()
	PlayTrack(name string, r io.Reader) error
	StopTrack()
	NowPlaying() (string, bool)

	CreateMessage(p types.Payload) (app.MessageStatus, error)
	PlayMessage(id string) (app.MessageStatus, error)
	PauseMessage(id string) (app.MessageStatus, error)
	SeekMessage(id string, fraction float64) (app.MessageStatus, error)
	CycleMessageRate(id string) (app.MessageStatus, error)
	MessageStatus(id string) (app.MessageStatus, error)
	RemoveMessage(id string) error

	Guides() []config.GuideConfig
}

var _ Service = (*app.App)(nil)

// Config carries the server dependencies. Service is required.
type Config struct {
	ListenAddr string
	TLS        *config.TLSConfig

	Service Service
	Hub     *Hub
	Health  *health.Handler
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP control server.
type Server struct {
	svc    Service
	hub    *Hub
	log    *slog.Logger
	router *mux.Router
	http   *http.Server
	tls    *config.TLSConfig
}

// New builds the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("httpapi: service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "localhost:8990"
	}

	s := &Server{
		svc: cfg.Service,
		hub: cfg.Hub,
		log: cfg.Logger.With("component", "httpapi"),
		tls: cfg.TLS,
	}

	r := mux.NewRouter()
	r.Use(observe.Middleware(cfg.Metrics))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/guides", s.handleGuides).Methods(http.MethodGet)

	api.HandleFunc("/live/start", s.handleLiveStart).Methods(http.MethodPost)
	api.HandleFunc("/live/stop", s.handleLiveStop).Methods(http.MethodPost)
	api.HandleFunc("/live/mute", s.handleLiveMute).Methods(http.MethodPost)
	api.HandleFunc("/live/status", s.handleLiveStatus).Methods(http.MethodGet)
	api.HandleFunc("/live/transcript", s.handleTranscript).Methods(http.MethodGet)

	api.HandleFunc("/devices", s.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/select", s.handleDeviceSelect).Methods(http.MethodPost)

	api.HandleFunc("/speak", s.handleSpeak).Methods(http.MethodPost)
	api.HandleFunc("/speak/stop", s.handleSpeakStop).Methods(http.MethodPost)

	api.HandleFunc("/tracks/play", s.handleTrackPlay).Methods(http.MethodPost)
	api.HandleFunc("/tracks/stop", s.handleTrackStop).Methods(http.MethodPost)
	api.HandleFunc("/tracks/now", s.handleTrackNow).Methods(http.MethodGet)

	api.HandleFunc("/messages", s.handleMessageCreate).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}", s.handleMessageStatus).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id}", s.handleMessageRemove).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id}/play", s.handleMessagePlay).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/pause", s.handleMessagePause).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/seek", s.handleMessageSeek).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/rate", s.handleMessageRate).Methods(http.MethodPost)

	r.Handle("/events", s.hub).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if cfg.Health != nil {
		cfg.Health.Register(r)
	}

	s.router = r
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // /events holds the connection open
	}
	return s, nil
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the event hub serving /events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// detaches event subscribers.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.tls != nil && s.tls.CertFile != "" {
			err = s.http.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.log.Info("control api listening", "addr", s.http.Addr, "tls", s.tls != nil)

	select {
	case err := <-errCh:
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}

	_ = s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}

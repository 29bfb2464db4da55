package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/noor-app/noorvoice/internal/app"
	"github.com/noor-app/noorvoice/internal/transcript"
	"github.com/noor-app/noorvoice/pkg/types"
)

// maxBodyBytes caps JSON and media request bodies.
const maxBodyBytes = 32 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError maps service errors to HTTP statuses: unknown IDs become 404,
// everything else 500 unless the handler chose a status already.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrUnknownGuide), errors.Is(err, app.ErrUnknownMessage):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrNoLiveSession):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// ─── Guides ──────────────────────────────────────────────────────────────────

func (s *Server) handleGuides(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Guides())
}

// ─── Live session ────────────────────────────────────────────────────────────

type liveStartRequest struct {
	GuideID string `json:"guide_id"`
}

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	var req liveStartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.GuideID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "guide_id is required"})
		return
	}
	if err := s.svc.StartLive(r.Context(), req.GuideID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.LiveStatus())
}

func (s *Server) handleLiveStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.svc.StopLive(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.LiveStatus())
}

type liveMuteRequest struct {
	Muted bool `json:"muted"`
}

func (s *Server) handleLiveMute(w http.ResponseWriter, r *http.Request) {
	var req liveMuteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.svc.SetMuted(req.Muted); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.LiveStatus())
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.LiveStatus())
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	frags := s.svc.Transcripts(sessionID)
	if frags == nil {
		frags = []transcript.Fragment{}
	}
	writeJSON(w, http.StatusOK, frags)
}

// ─── Devices ─────────────────────────────────────────────────────────────────

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := s.svc.OutputDevices()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

type deviceSelectRequest struct {
	DeviceID int `json:"device_id"`
}

func (s *Server) handleDeviceSelect(w http.ResponseWriter, r *http.Request) {
	var req deviceSelectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.svc.SelectOutputDevice(req.DeviceID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"device_id": req.DeviceID})
}

// ─── Speech ──────────────────────────────────────────────────────────────────

type speakRequest struct {
	Text    string `json:"text"`
	GuideID string `json:"guide_id"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" || req.GuideID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text and guide_id are required"})
		return
	}
	if err := s.svc.Speak(r.Context(), req.Text, req.GuideID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSpeakStop(w http.ResponseWriter, _ *http.Request) {
	s.svc.StopSpeech()
	w.WriteHeader(http.StatusNoContent)
}

// ─── Tracks ──────────────────────────────────────────────────────────────────

func (s *Server) handleTrackPlay(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name query parameter is required"})
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := s.svc.PlayTrack(name, body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"track": name})
}

func (s *Server) handleTrackStop(w http.ResponseWriter, _ *http.Request) {
	s.svc.StopTrack()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackNow(w http.ResponseWriter, _ *http.Request) {
	track, playing := s.svc.NowPlaying()
	writeJSON(w, http.StatusOK, map[string]any{"track": track, "playing": playing})
}

// ─── Messages ────────────────────────────────────────────────────────────────

func (s *Server) handleMessageCreate(w http.ResponseWriter, r *http.Request) {
	var payload types.Payload
	if !decodeBody(w, r, &payload) {
		return
	}
	st, err := s.svc.CreateMessage(payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) messageOp(w http.ResponseWriter, r *http.Request, op func(id string) (app.MessageStatus, error)) {
	st, err := op(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	s.messageOp(w, r, s.svc.MessageStatus)
}

func (s *Server) handleMessagePlay(w http.ResponseWriter, r *http.Request) {
	s.messageOp(w, r, s.svc.PlayMessage)
}

func (s *Server) handleMessagePause(w http.ResponseWriter, r *http.Request) {
	s.messageOp(w, r, s.svc.PauseMessage)
}

type seekRequest struct {
	Fraction float64 `json:"fraction"`
}

func (s *Server) handleMessageSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.messageOp(w, r, func(id string) (app.MessageStatus, error) {
		return s.svc.SeekMessage(id, req.Fraction)
	})
}

func (s *Server) handleMessageRate(w http.ResponseWriter, r *http.Request) {
	s.messageOp(w, r, s.svc.CycleMessageRate)
}

func (s *Server) handleMessageRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveMessage(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

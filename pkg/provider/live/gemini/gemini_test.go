package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/noor-app/noorvoice/pkg/provider/live"
	"github.com/noor-app/noorvoice/pkg/provider/live/gemini"
	"github.com/noor-app/noorvoice/pkg/provider/tts"
)

// liveServer is a scripted stand-in for the Gemini Live endpoint. It records
// the setup message and every realtimeInput it receives, and plays back a
// fixed sequence of server messages after acknowledging the setup.
type liveServer struct {
	t      *testing.T
	script []map[string]any

	setupCh chan map[string]any
	inputCh chan map[string]any
}

func newLiveServer(t *testing.T, script ...map[string]any) *liveServer {
	return &liveServer{
		t:       t,
		script:  script,
		setupCh: make(chan map[string]any, 1),
		inputCh: make(chan map[string]any, 16),
	}
}

func (s *liveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.t.Errorf("accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx := r.Context()

	// First message must be the setup.
	_, data, err := conn.Read(ctx)
	if err != nil {
		s.t.Errorf("read setup: %v", err)
		return
	}
	var setup map[string]any
	if err := json.Unmarshal(data, &setup); err != nil {
		s.t.Errorf("decode setup: %v", err)
		return
	}
	s.setupCh <- setup

	ack, _ := json.Marshal(map[string]any{"setupComplete": map[string]any{}})
	if err := conn.Write(ctx, websocket.MessageText, ack); err != nil {
		return
	}

	for _, msg := range s.script {
		data, _ := json.Marshal(msg)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}

	// Keep reading client input until the client disconnects.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if _, ok := msg["realtimeInput"]; ok {
			s.inputCh <- msg
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func audioMessage(payload string) map[string]any {
	return map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []any{
					map[string]any{
						"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     payload,
						},
					},
				},
			},
		},
	}
}

func transcriptMessage(text string) map[string]any {
	return map[string]any{
		"serverContent": map[string]any{
			"outputTranscription": map[string]any{"text": text},
		},
	}
}

func TestConnectWaitsForSetupComplete(t *testing.T) {
	mock := newLiveServer(t)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, live.SessionConfig{
		Instructions: "You are a friendly guide.",
		Voice:        tts.VoiceProfile{ID: "Aoede", Name: "Aoede", Provider: "gemini"},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	setup := <-mock.setupCh
	cfg, ok := setup["setup"].(map[string]any)
	if !ok {
		t.Fatalf("setup message missing setup field: %v", setup)
	}
	if got := cfg["model"]; got != "models/gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Errorf("model = %v", got)
	}
	if _, ok := cfg["outputAudioTranscription"]; ok {
		t.Error("outputAudioTranscription present without Transcription enabled")
	}
	si, ok := cfg["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatal("setup missing systemInstruction")
	}
	parts := si["parts"].([]any)
	if got := parts[0].(map[string]any)["text"]; got != "You are a friendly guide." {
		t.Errorf("instructions = %v", got)
	}
}

func TestConnectRequestsTranscription(t *testing.T) {
	mock := newLiveServer(t)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, live.SessionConfig{Transcription: true})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	setup := <-mock.setupCh
	cfg := setup["setup"].(map[string]any)
	if _, ok := cfg["outputAudioTranscription"]; !ok {
		t.Error("setup missing outputAudioTranscription")
	}
}

func TestSessionReceivesAudioAndTranscripts(t *testing.T) {
	mock := newLiveServer(t,
		audioMessage("chunk-one"),
		transcriptMessage("hello "),
		audioMessage("chunk-two"),
		transcriptMessage("there"),
	)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, live.SessionConfig{Transcription: true})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	collect := func(ch <-chan string, n int) []string {
		var out []string
		for len(out) < n {
			select {
			case v, ok := <-ch:
				if !ok {
					t.Fatalf("channel closed after %d of %d items", len(out), n)
				}
				out = append(out, v)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out after %d of %d items", len(out), n)
			}
		}
		return out
	}

	audio := collect(sess.Audio(), 2)
	if audio[0] != "chunk-one" || audio[1] != "chunk-two" {
		t.Errorf("audio = %v", audio)
	}

	text := collect(sess.Transcripts(), 2)
	if strings.Join(text, "") != "hello there" {
		t.Errorf("transcripts = %v", text)
	}
}

func TestSendAudioDeliversMediaChunk(t *testing.T) {
	mock := newLiveServer(t)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio("captured-frame"); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-mock.inputCh:
		ri := msg["realtimeInput"].(map[string]any)
		chunks := ri["mediaChunks"].([]any)
		chunk := chunks[0].(map[string]any)
		if chunk["mimeType"] != "audio/pcm;rate=16000" {
			t.Errorf("mimeType = %v", chunk["mimeType"])
		}
		if chunk["data"] != "captured-frame" {
			t.Errorf("data = %v", chunk["data"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received realtimeInput")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	mock := newLiveServer(t)
	srv := httptest.NewServer(mock)
	defer srv.Close()

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := sess.SendAudio("after-close"); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}

func TestHandshakeRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		reject, _ := json.Marshal(map[string]any{
			"error": map[string]any{"code": 403, "message": "invalid api key"},
		})
		conn.Write(ctx, websocket.MessageText, reject)
	}))
	defer srv.Close()

	p := gemini.New("bad-key", gemini.WithBaseURL(wsURL(srv)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := p.Connect(ctx, live.SessionConfig{}); err == nil {
		t.Fatal("Connect should fail when handshake is rejected")
	}
}

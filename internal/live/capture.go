package live

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/noor-app/noorvoice/pkg/audio"
)

// AudioSender is the outbound half of a streaming session, satisfied by
// live.SessionHandle.
type AudioSender interface {
	SendAudio(payload string) error
}

// capturePipeline reads microphone frames, encodes them to the wire format,
// and forwards them to the session. The mute flag is consulted per frame, so
// toggling mute takes effect on the next frame with nothing from the muted
// period leaking out.
type capturePipeline struct {
	line   audio.InputLine
	sender AudioSender
	muted  *atomic.Bool
	log    *slog.Logger

	onFrame   func(muted bool)
	onSendErr func(error)
}

// run consumes the input line until its frame channel closes or ctx is
// cancelled. A send failure is reported once via onSendErr and stops the
// pipeline; the session owner decides what to do with it.
func (c *capturePipeline) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.line.Frames():
			if !ok {
				return
			}
			muted := c.muted.Load()
			if c.onFrame != nil {
				c.onFrame(muted)
			}
			if muted {
				continue
			}
			payload := audio.Encode(frame.Samples)
			if err := c.sender.SendAudio(payload); err != nil {
				c.log.Warn("capture send failed", "error", err)
				if c.onSendErr != nil {
					c.onSendErr(err)
				}
				return
			}
		}
	}
}

// Package transcript records what the guide said during live sessions.
//
// The [Log] keeps a bounded in-memory history of transcript fragments and
// can optionally mirror every fragment to a [FileStore] so conversations
// survive a restart and can be reviewed later.
package transcript

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds the in-memory history when no explicit capacity is
// configured.
const DefaultCapacity = 1000

// Fragment is a single piece of transcribed guide speech.
type Fragment struct {
	// Time is when the fragment was received.
	Time time.Time `json:"time"`

	// SessionID identifies the live session the fragment belongs to.
	SessionID string `json:"session_id"`

	// GuideID is the configured guide that produced the speech.
	GuideID string `json:"guide_id"`

	// Text is the transcribed fragment.
	Text string `json:"text"`

	// Emotion is the guide's expressed emotion at the time of the fragment,
	// empty when unknown.
	Emotion string `json:"emotion,omitempty"`
}

// Log is a bounded, append-only transcript history. Safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	frags []Fragment
	cap   int
	store *FileStore
}

// LogOption configures a [Log].
type LogOption func(*Log)

// WithCapacity overrides the in-memory fragment limit.
func WithCapacity(n int) LogOption {
	return func(l *Log) {
		if n > 0 {
			l.cap = n
		}
	}
}

// WithStore mirrors every appended fragment to a persistent store.
func WithStore(s *FileStore) LogOption {
	return func(l *Log) { l.store = s }
}

// NewLog creates an empty transcript log.
func NewLog(opts ...LogOption) *Log {
	l := &Log{cap: DefaultCapacity}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Append records a fragment, evicting the oldest entries beyond capacity.
// Fragments with empty text are ignored.
func (l *Log) Append(f Fragment) {
	if f.Text == "" {
		return
	}
	if f.Time.IsZero() {
		f.Time = time.Now().UTC()
	}

	l.mu.Lock()
	l.frags = append(l.frags, f)
	if len(l.frags) > l.cap {
		l.frags = l.frags[len(l.frags)-l.cap:]
	}
	store := l.store
	l.mu.Unlock()

	if store != nil {
		if err := store.Append(f); err != nil {
			slog.Warn("transcript: persist fragment", "err", err)
		}
	}
}

// Fragments returns the recorded fragments for one session, oldest first.
// An empty sessionID returns the full history.
func (l *Log) Fragments(sessionID string) []Fragment {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Fragment, 0, len(l.frags))
	for _, f := range l.frags {
		if sessionID == "" || f.SessionID == sessionID {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of fragments currently held in memory.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frags)
}

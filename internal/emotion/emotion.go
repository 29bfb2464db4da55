// Package emotion classifies transcript fragments into a small set of
// display emotions driving the companion's on-screen expression.
//
// Classification is keyword-based over mixed Arabic/English text: rules are
// checked in a fixed priority order and the first rule with any matching
// keyword wins. The Tracker layers time behavior on top: each classified
// fragment sets the current state, which decays back to neutral after a quiet
// period.
package emotion

import (
	"strings"
	"sync"
	"time"
)

// State is one display emotion.
type State string

const (
	StateNeutral    State = "neutral"
	StateHappy      State = "happy"
	StateThinking   State = "thinking"
	StateEmpathetic State = "empathetic"
	StateExcited    State = "excited"
)

// DefaultDecay is how long a non-neutral state persists after the last
// classified fragment before falling back to neutral.
const DefaultDecay = 4 * time.Second

type rule struct {
	state    State
	keywords []string
}

// Rule order is priority order: the first match wins, so a fragment like
// "how wonderful?" classifies as thinking, not happy.
var rules = []rule{
	{
		state:    StateThinking,
		keywords: []string{"?", "؟", "ماذا", "كيف", "لماذا", "هل", "what", "how", "why", "think", "question", "سؤال", "أفكر"},
	},
	{
		state:    StateHappy,
		keywords: []string{"أحسنت", "رائع", "جميل", "ممتاز", "سعيد", "فرح", "الجنا", "الله", "great", "good", "wonderful", "happy", "excellent", "paradise", "شكرا", "thanks", "love", "أحبك"},
	},
	{
		state:    StateEmpathetic,
		keywords: []string{"لا تحزن", "اصبر", "هدوء", "سلام", "قلب", "حب", "أشعر", "sad", "worry", "calm", "peace", "heart", "love", "feel", "آسف", "sorry"},
	},
	{
		state:    StateExcited,
		keywords: []string{"هيا", "بسرعة", "انطلق", "مفاجأة", "wow", "amazing", "subhan", "سبحان", "تخيل", "أريد"},
	},
}

// Classify returns the emotion for one transcript fragment. Matching is
// case-insensitive substring search; fragments matching no rule are neutral.
func Classify(text string) State {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.state
			}
		}
	}
	return StateNeutral
}

// Tracker holds the current emotion and decays it back to neutral after a
// quiet period. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	state    State
	decay    time.Duration
	timer    *time.Timer
	onChange func(State)
	closed   bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithDecay overrides the decay period. Used in tests to keep them fast.
func WithDecay(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.decay = d }
}

// WithOnChange registers a callback invoked whenever the state changes.
// The callback runs outside the tracker lock.
func WithOnChange(fn func(State)) TrackerOption {
	return func(t *Tracker) { t.onChange = fn }
}

// NewTracker creates a Tracker starting in the neutral state.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		state: StateNeutral,
		decay: DefaultDecay,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Observe classifies one fragment and sets the current state, neutral
// included: a fragment with no emotional cue resets the expression and
// stops the decay timer.
func (t *Tracker) Observe(text string) State {
	detected := Classify(text)
	t.Set(detected)
	return detected
}

// Set forces the current state and re-arms the decay timer for non-neutral
// states.
func (t *Tracker) Set(s State) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	changed := t.state != s
	t.state = s

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if s != StateNeutral {
		t.timer = time.AfterFunc(t.decay, t.decayToNeutral)
	}
	fn := t.onChange
	t.mu.Unlock()

	if changed && fn != nil {
		fn(s)
	}
}

func (t *Tracker) decayToNeutral() {
	t.mu.Lock()
	if t.closed || t.state == StateNeutral {
		t.mu.Unlock()
		return
	}
	t.state = StateNeutral
	t.timer = nil
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(StateNeutral)
	}
}

// State returns the current emotion.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close stops the decay timer. Idempotent.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

package claim_test

import (
	"strings"
	"testing"

	"github.com/noor-app/noorvoice/pkg/audio/claim"
)

func TestAcquireStopsOthersFirst(t *testing.T) {
	c := claim.NewCoordinator()

	var order []string
	c.Register("a", func() { order = append(order, "stop-a") })
	c.Register("b", func() { order = append(order, "stop-b") })

	c.Acquire("a")
	order = append(order, "play-a")

	// Starting B must stop A before B becomes audible.
	c.Acquire("b")
	order = append(order, "play-b")

	want := []string{"stop-b", "play-a", "stop-a", "play-b"}
	if len(order) != len(want) {
		t.Fatalf("order: got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: got %v, want %v", order, want)
		}
	}
	if got := c.Holder(); got != "b" {
		t.Errorf("holder: got %q, want b", got)
	}
}

func TestAcquireReentrant(t *testing.T) {
	c := claim.NewCoordinator()
	var stops int
	c.Register("a", func() { stops++ })

	c.Acquire("a")
	c.Acquire("a")
	if stops != 0 {
		t.Errorf("a stopped itself %d times", stops)
	}
}

func TestReleaseOnlyByHolder(t *testing.T) {
	c := claim.NewCoordinator()
	c.Register("a", func() {})
	c.Register("b", func() {})

	c.Acquire("a")
	c.Acquire("b")

	// A's late release must not evict B — the claim already moved on.
	c.Release("a")
	if got := c.Holder(); got != "b" {
		t.Errorf("holder: got %q, want b", got)
	}

	c.Release("b")
	if got := c.Holder(); got != "" {
		t.Errorf("holder after release: got %q, want empty", got)
	}
}

func TestUnregisterReleasesHeldClaim(t *testing.T) {
	c := claim.NewCoordinator()
	c.Register("a", func() {})
	c.Acquire("a")
	c.Unregister("a")
	if got := c.Holder(); got != "" {
		t.Errorf("holder: got %q, want empty", got)
	}
}

func TestStopMayReleaseWithoutDeadlock(t *testing.T) {
	c := claim.NewCoordinator()
	c.Register("a", func() { c.Release("a") })
	c.Register("b", func() {})

	c.Acquire("a")
	c.Acquire("b") // a's stop calls back into the coordinator

	if got := c.Holder(); got != "b" {
		t.Errorf("holder: got %q, want b", got)
	}
}

func TestNewOwnerID(t *testing.T) {
	a := claim.NewOwnerID("live")
	b := claim.NewOwnerID("live")
	if a == b {
		t.Error("owner IDs must be unique")
	}
	if !strings.HasPrefix(a, "live-") {
		t.Errorf("missing prefix: %q", a)
	}
}

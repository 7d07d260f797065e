package engine

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	armed     map[TimerKey]time.Duration
	cancelAll int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{armed: map[TimerKey]time.Duration{}}
}

func (f *fakeScheduler) Schedule(k TimerKey, d time.Duration) { f.armed[k] = d }
func (f *fakeScheduler) Cancel(k TimerKey)                    { delete(f.armed, k) }
func (f *fakeScheduler) CancelAll() {
	f.armed = map[TimerKey]time.Duration{}
	f.cancelAll++
}

type speedCall struct {
	ball   string
	factor float64
}

type fakeSim struct {
	next   int
	live   map[string]bool
	speeds []speedCall
	tilted map[int]bool
	themed []int
}

func newFakeSim() *fakeSim {
	return &fakeSim{live: map[string]bool{}, tilted: map[int]bool{}}
}

func (f *fakeSim) SpawnBall() string {
	f.next++
	id := fmt.Sprintf("ball-%d", f.next)
	f.live[id] = true
	return id
}

func (f *fakeSim) DespawnBall(id string) { delete(f.live, id) }
func (f *fakeSim) DespawnAll()           { f.live = map[string]bool{} }
func (f *fakeSim) SetSpeedMultiplier(id string, factor float64, _ time.Duration) {
	f.speeds = append(f.speeds, speedCall{ball: id, factor: factor})
}
func (f *fakeSim) SetPaddleTilt(slot int, tilted bool) { f.tilted[slot] = tilted }
func (f *fakeSim) ApplyVisualTheme(slot int)           { f.themed = append(f.themed, slot) }

type harness struct {
	c     *Coordinator
	sched *fakeScheduler
	sim   *fakeSim
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sched: newFakeScheduler(), sim: newFakeSim()}
	h.c = NewCoordinator(Deps{
		Rand:         rand.New(rand.NewSource(1)),
		Scheduler:    h.sched,
		Simulation:   h.sim,
		Presentation: h.sim,
		Tuning:       DefaultTuning(),
	})
	return h
}

func (h *harness) join(t *testing.T, conn string) []Event {
	t.Helper()
	events, err := h.c.Join(conn, "")
	require.NoError(t, err)
	return events
}

func (h *harness) apply(t *testing.T, conn string, req Request) []Event {
	t.Helper()
	events, err := h.c.Apply(conn, req)
	require.NoError(t, err, "request %s from %s", req.Type, conn)
	return events
}

// toDraft joins n players (c1..cn), readies them and sets the score target.
func (h *harness) toDraft(t *testing.T, n, maxScore int) {
	t.Helper()
	h.join(t, "c1")
	h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: n})
	for i := 2; i <= n; i++ {
		h.join(t, fmt.Sprintf("c%d", i))
	}
	require.Equal(t, PhaseReadyCheck, h.c.Phase())
	for i := 1; i <= n; i++ {
		h.apply(t, fmt.Sprintf("c%d", i), Request{Type: ReqSetReady, SlotID: i})
	}
	require.Equal(t, PhaseConfigNegotiation, h.c.Phase())
	h.apply(t, "c1", Request{Type: ReqSetMaxScore, Value: maxScore})
	require.Equal(t, PhaseDrafting, h.c.Phase())
}

// toMatch drafts items[i] for slot i+1 and starts the match.
func (h *harness) toMatch(t *testing.T, maxScore int, items ...string) {
	t.Helper()
	h.toDraft(t, len(items), maxScore)
	for i, id := range items {
		h.apply(t, fmt.Sprintf("c%d", i+1), Request{Type: ReqClaimItem, SlotID: i + 1, ItemID: id})
	}
	require.Equal(t, PhaseAwaitingStart, h.c.Phase())
	h.apply(t, "c1", Request{Type: ReqStartMatch})
	require.Equal(t, PhaseInMatch, h.c.Phase())
}

func findEvent(events []Event, typ EventType) (Event, bool) {
	for _, e := range events {
		if e.Type == typ {
			return e, true
		}
	}
	return Event{}, false
}

func lastEvent(events []Event, typ EventType) (Event, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == typ {
			return events[i], true
		}
	}
	return Event{}, false
}

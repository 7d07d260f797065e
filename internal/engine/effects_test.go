package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointStealFailsWhenVictimIsShort(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "pickpocket")
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})

	events := h.apply(t, "c2", Request{Type: ReqUseItem, SlotID: 2, ItemID: "pickpocket"})
	require.Len(t, events, 1)
	nom := events[0]
	assert.Equal(t, EvtNominationRequested, nom.Type)
	assert.Equal(t, []string{"c2"}, nom.Recipients)
	assert.Equal(t, []int{1}, nom.Payload.(NominationRequestedPayload).Candidates)

	events = h.apply(t, "c2", Request{Type: ReqNominateTarget, Value: 1})
	res, ok := findEvent(events, EvtStealResult)
	require.True(t, ok)
	assert.Equal(t, []string{"c2"}, res.Recipients)
	assert.Equal(t, StealResultPayload{OK: false, Victim: 1, Amount: 3}, res.Payload)
	assert.False(t, ContainsEvent(events, EvtScoreSync))

	assert.Equal(t, 2, h.c.Ledger().Score(1))
	assert.Equal(t, 0, h.c.Ledger().Score(2))
	assert.False(t, h.c.Draft().Holds(2, "pickpocket"), "consumed either way")
}

func TestPointStealTransfersPoints(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "pickpocket")
	for i := 0; i < 5; i++ {
		h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	}

	h.apply(t, "c2", Request{Type: ReqUseItem, SlotID: 2, ItemID: "pickpocket"})
	events := h.apply(t, "c2", Request{Type: ReqNominateTarget, Value: 1})

	res, ok := findEvent(events, EvtStealResult)
	require.True(t, ok)
	assert.True(t, res.Payload.(StealResultPayload).OK)
	assert.Equal(t, [MaxSlots]int{2, 3, 0, 0}, h.c.Scores())

	used, ok := findEvent(events, EvtItemUsed)
	require.True(t, ok)
	assert.True(t, used.Broadcast())
	assert.Equal(t, 1, used.Payload.(ItemUsedPayload).Target)
}

func TestPointStealCanWinTheMatch(t *testing.T) {
	h := newHarness(t)
	tuning := DefaultTuning()
	tuning.StealAmount = 2
	h.c = NewCoordinator(Deps{Scheduler: h.sched, Simulation: h.sim, Presentation: h.sim, Tuning: tuning})
	h.toMatch(t, 3, "twin-ball", "pickpocket")
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 2})

	h.apply(t, "c2", Request{Type: ReqUseItem, SlotID: 2, ItemID: "pickpocket"})
	events := h.apply(t, "c2", Request{Type: ReqNominateTarget, Value: 1})

	assert.Equal(t, PhaseEnded, h.c.Phase())
	end, ok := findEvent(events, EvtMatchEnded)
	require.True(t, ok)
	assert.Equal(t, 2, end.Payload.(MatchEndedPayload).WinnerSlot)
}

func TestNominationErrors(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "pickpocket")

	_, err := h.c.Apply("c2", Request{Type: ReqNominateTarget, Value: 1})
	assert.True(t, errors.Is(err, ErrNoPendingSteal))

	h.apply(t, "c2", Request{Type: ReqUseItem, SlotID: 2, ItemID: "pickpocket"})

	_, err = h.c.Apply("c2", Request{Type: ReqUseItem, SlotID: 2, ItemID: "pickpocket"})
	assert.True(t, errors.Is(err, ErrAwaitingTarget))

	for _, target := range []int{2, 3, 0} {
		_, err = h.c.Apply("c2", Request{Type: ReqNominateTarget, Value: target})
		assert.True(t, errors.Is(err, ErrBadTarget), "target %d", target)
	}
	assert.True(t, h.c.Effects().Pending(2), "bad targets keep the steal pending")
}

func TestDisconnectDropsPendingSteal(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "pickpocket")
	h.apply(t, "c2", Request{Type: ReqUseItem, SlotID: 2, ItemID: "pickpocket"})

	h.c.Leave("c2")
	assert.False(t, h.c.Effects().Pending(2))
}

func TestPointStealSkipsDisconnectedRivals(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "pickpocket", "twin-ball", "wobble")
	for i := 0; i < 3; i++ {
		h.c.Report(Report{Type: ReportGoalScored, SlotID: 2})
	}
	h.c.Leave("c2")

	events := h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "pickpocket"})
	nom, ok := findEvent(events, EvtNominationRequested)
	require.True(t, ok)
	assert.Equal(t, []int{3}, nom.Payload.(NominationRequestedPayload).Candidates)

	_, err := h.c.Apply("c1", Request{Type: ReqNominateTarget, Value: 2})
	assert.True(t, errors.Is(err, ErrStaleSlot))
	assert.Equal(t, 3, h.c.Ledger().Score(2))
	assert.Equal(t, 0, h.c.Ledger().Score(1))
	assert.True(t, h.c.Effects().Pending(1), "stale target keeps the steal pending")
}

func TestSpecialModeLifecycle(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "mirror-world", "twin-ball")

	events := h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "mirror-world"})
	assert.Equal(t, PhaseSpecialMode, h.c.Phase())
	assert.True(t, h.c.SpecialModeOn())
	assert.Empty(t, h.sim.live)
	assert.True(t, ContainsEvent(events, EvtSpecialModeToggled))
	assert.False(t, h.c.Draft().Holds(1, "mirror-world"))

	key := TimerKey{SlotID: 1, Name: timerSpecialMode}
	assert.Equal(t, DefaultTuning().SpecialModeDuration, h.sched.armed[key])

	// A second mode switch while one is running is refused.
	p2, _ := h.c.Registry().GetParticipant("c2")
	err := h.c.Effects().Activate(p2, "mirror-world")
	assert.True(t, errors.Is(err, ErrSpecialModeActive))

	events = h.c.TimerFired(key)
	assert.Equal(t, PhaseInMatch, h.c.Phase())
	assert.False(t, h.c.SpecialModeOn())
	assert.Len(t, h.sim.live, 1)
	assert.True(t, ContainsEvent(events, EvtEffectExpired))

	assert.Empty(t, h.c.TimerFired(key), "second fire is a no-op")
}

func TestSpecialModeRevertAfterMatchEnded(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 1, "mirror-world", "twin-ball")
	h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "mirror-world"})
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 2})
	require.Equal(t, PhaseEnded, h.c.Phase())

	h.c.TimerFired(TimerKey{SlotID: 1, Name: timerSpecialMode})
	assert.Equal(t, PhaseEnded, h.c.Phase())
	assert.False(t, h.c.SpecialModeOn())
	assert.Empty(t, h.sim.live, "no ball respawned after the end")
}

func TestExtraBallSpawnAndExpire(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "wobble")

	h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "twin-ball"})
	assert.Len(t, h.sim.live, 2)
	key := TimerKey{SlotID: 1, Name: string(EffectExtraBallSpawn)}
	assert.Contains(t, h.sim.live, "ball-2")
	assert.Contains(t, h.sched.armed, key)

	events := h.c.TimerFired(key)
	assert.NotContains(t, h.sim.live, "ball-2")
	assert.Contains(t, h.sim.live, "ball-1")
	e, ok := findEvent(events, EvtEffectExpired)
	require.True(t, ok)
	assert.Equal(t, EffectExpiredPayload{SlotID: 1, Effect: EffectExtraBallSpawn}, e.Payload)
}

func TestSpeedMultiplierReverts(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "overdrive", "wobble")

	h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "overdrive"})
	h.c.TimerFired(TimerKey{SlotID: 1, Name: string(EffectSpeedMultiplier)})

	assert.Equal(t, []speedCall{{ball: "ball-1", factor: 1.5}, {ball: "ball-1", factor: 1}}, h.sim.speeds)
}

func TestTiltRevertsAfterMatchEnded(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 1, "wobble", "twin-ball")

	events := h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "wobble"})
	assert.True(t, h.sim.tilted[2])
	used, _ := findEvent(events, EvtItemUsed)
	assert.Equal(t, 2, used.Payload.(ItemUsedPayload).Target)

	h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	require.Equal(t, PhaseEnded, h.c.Phase())

	events = h.c.TimerFired(TimerKey{SlotID: 1, Name: string(EffectTargetedTilt)})
	assert.False(t, h.sim.tilted[2])
	assert.True(t, ContainsEvent(events, EvtEffectExpired))
}

func TestOverlappingTiltsKeepPaddleTilted(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "wobble", "twin-ball")
	h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "wobble"})
	require.True(t, h.sim.tilted[2])

	// A second tilt from another activator on the same paddle.
	wobble, ok := h.c.Effects().catalog.Lookup("wobble")
	require.True(t, ok)
	other := TimerKey{SlotID: 3, Name: string(EffectTargetedTilt)}
	h.c.Effects().active[other] = activeEffect{item: wobble, target: 2}

	h.c.TimerFired(TimerKey{SlotID: 1, Name: string(EffectTargetedTilt)})
	assert.True(t, h.sim.tilted[2], "still tilted by slot 3")

	h.c.TimerFired(other)
	assert.False(t, h.sim.tilted[2])
}

func TestSoundtrackAdvanceIsReusable(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "next-track", "wobble")

	h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "next-track"})
	events := h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "next-track"})

	e, ok := lastEvent(events, EvtSoundtrackAdvanced)
	require.True(t, ok)
	assert.Equal(t, 2, e.Payload.(SoundtrackAdvancedPayload).Track)
	assert.True(t, h.c.Draft().Holds(1, "next-track"))
}

func TestUseItemNotHeldIsRejected(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "wobble")

	events, err := h.c.Apply("c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "wobble"})
	require.True(t, errors.Is(err, ErrItemNotClaimed))
	require.Len(t, events, 1)
	assert.Equal(t, EvtRejected, events[0].Type)
	assert.Len(t, h.sim.live, 1)
}

func TestTimerAfterRestartIsNoop(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 10, "twin-ball", "wobble")
	h.apply(t, "c1", Request{Type: ReqUseItem, SlotID: 1, ItemID: "twin-ball"})
	h.apply(t, "c1", Request{Type: ReqRestartMatch})

	assert.Empty(t, h.sched.armed)
	assert.Empty(t, h.c.Effects().Active())

	events := h.c.TimerFired(TimerKey{SlotID: 1, Name: string(EffectExtraBallSpawn)})
	assert.Empty(t, events)
	assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())
}

package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoin_FirstConnectionHostsAndLeavesLobby(t *testing.T) {
	h := newHarness(t)
	events := h.join(t, "c1")

	assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())
	assert.Equal(t, "c1", h.c.HostConn())

	sync, ok := findEvent(events, EvtStateSync)
	require.True(t, ok)
	assert.Equal(t, []string{"c1"}, sync.Recipients)
	assert.Equal(t, 1, sync.Payload.(StateSyncPayload).Self.SlotID)

	sprite, ok := findEvent(events, EvtSpriteAssignment)
	require.True(t, ok)
	assert.True(t, sprite.Broadcast())
	assert.Equal(t, "paddle_1", sprite.Payload.(SpriteAssignmentPayload).SpriteRef)
	assert.Equal(t, []int{1}, h.sim.themed)
}

func TestTwoPlayerSessionReachesMatch(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 5, "twin-ball", "wobble")

	assert.Equal(t, MatchConfig{MaxPlayers: 2, MaxScoreToWin: 5}, h.c.Config())
	assert.Equal(t, map[int]string{1: "twin-ball", 2: "wobble"}, h.c.Draft().Claims())
	assert.Len(t, h.sim.live, 1)
	assert.Equal(t, [MaxSlots]int{}, h.c.Scores())
}

func TestStartMatchOutsideAwaitingStartIsRejected(t *testing.T) {
	h := newHarness(t)
	h.toDraft(t, 2, 5)

	events, err := h.c.Apply("c1", Request{Type: ReqStartMatch})
	require.True(t, errors.Is(err, ErrWrongPhase))
	assert.Equal(t, PhaseDrafting, h.c.Phase())
	assert.Empty(t, h.sim.live)

	require.Len(t, events, 1)
	assert.Equal(t, EvtRejected, events[0].Type)
	assert.Equal(t, []string{"c1"}, events[0].Recipients)
}

func TestHostOnlyRequests(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{name: "set max players", req: Request{Type: ReqSetMaxPlayers, Value: 3}},
		{name: "start match", req: Request{Type: ReqStartMatch}},
		{name: "restart match", req: Request{Type: ReqRestartMatch}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.join(t, "c1")
			h.join(t, "c2")

			events, err := h.c.Apply("c2", tc.req)
			require.True(t, errors.Is(err, ErrNotHost), "got %v", err)
			e, ok := findEvent(events, EvtRejected)
			require.True(t, ok)
			assert.Equal(t, []string{"c2"}, e.Recipients)
			assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())
		})
	}
}

func TestSetMaxPlayersOutOfRangeIsIgnored(t *testing.T) {
	for _, n := range []int{0, 1, 5, 99} {
		h := newHarness(t)
		h.join(t, "c1")

		events := h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: n})
		assert.Empty(t, events, "value %d", n)
		assert.Equal(t, MaxSlots, h.c.Config().MaxPlayers)
	}
}

func TestSetMaxPlayersBelowOccupancyIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")
	h.join(t, "c2")
	h.join(t, "c3")

	h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 2})
	assert.Equal(t, MaxSlots, h.c.Config().MaxPlayers)

	events := h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 3})
	assert.Equal(t, 3, h.c.Config().MaxPlayers)
	assert.True(t, ContainsEvent(events, EvtConfigChanged))
	assert.Equal(t, PhaseReadyCheck, h.c.Phase())
}

func TestSetReady(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")
	h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 2})
	h.join(t, "c2")
	require.Equal(t, PhaseReadyCheck, h.c.Phase())

	// Claiming someone else's slot is dropped without a rejection.
	events, err := h.c.Apply("c2", Request{Type: ReqSetReady, SlotID: 1})
	require.True(t, errors.Is(err, ErrStaleSlot))
	assert.Empty(t, events)

	h.apply(t, "c1", Request{Type: ReqSetReady, SlotID: 1})
	assert.Empty(t, h.apply(t, "c1", Request{Type: ReqSetReady, SlotID: 1}), "second ready is a no-op")
	assert.Equal(t, PhaseReadyCheck, h.c.Phase())

	h.apply(t, "c2", Request{Type: ReqSetReady, SlotID: 2})
	assert.Equal(t, PhaseConfigNegotiation, h.c.Phase())
}

func TestSetMaxScoreRejectsNonPositive(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")
	h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 2})
	h.join(t, "c2")
	h.apply(t, "c1", Request{Type: ReqSetReady, SlotID: 1})
	h.apply(t, "c2", Request{Type: ReqSetReady, SlotID: 2})

	_, err := h.c.Apply("c1", Request{Type: ReqSetMaxScore, Value: 0})
	require.True(t, errors.Is(err, ErrOutOfRange))
	assert.Equal(t, PhaseConfigNegotiation, h.c.Phase())
	assert.False(t, h.c.Draft().Active())
}

func TestUnknownConnectionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")

	events, err := h.c.Apply("ghost", Request{Type: ReqSetMaxPlayers, Value: 2})
	require.True(t, errors.Is(err, ErrUnknownConnection))
	assert.Empty(t, events)
}

func TestDisconnectDuringReadyCheckPauses(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")
	h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 3})
	h.join(t, "c2")
	h.join(t, "c3")
	require.Equal(t, PhaseReadyCheck, h.c.Phase())
	h.apply(t, "c1", Request{Type: ReqSetReady, SlotID: 1})

	events := h.c.Leave("c3")
	assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())
	assert.True(t, ContainsEvent(events, EvtPhaseChanged))
	assert.False(t, h.c.Registry().ValidSlot(3), "slot freed before the draft")

	events = h.join(t, "c4")
	assert.Equal(t, PhaseReadyCheck, h.c.Phase())
	sync, _ := findEvent(events, EvtStateSync)
	assert.Equal(t, 3, sync.Payload.(StateSyncPayload).Self.SlotID)
}

func TestLoweringMaxPlayersWithEveryoneReadyStartsNegotiation(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")
	h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 3})
	h.join(t, "c2")
	h.join(t, "c3")
	h.apply(t, "c1", Request{Type: ReqSetReady, SlotID: 1})
	h.apply(t, "c2", Request{Type: ReqSetReady, SlotID: 2})

	h.c.Leave("c3")
	require.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())

	events := h.apply(t, "c1", Request{Type: ReqSetMaxPlayers, Value: 2})
	assert.Equal(t, PhaseConfigNegotiation, h.c.Phase())
	last, ok := lastEvent(events, EvtPhaseChanged)
	require.True(t, ok)
	assert.Equal(t, PhaseConfigNegotiation, last.Payload.(PhaseChangedPayload).Phase)

	h.apply(t, "c1", Request{Type: ReqSetMaxScore, Value: 3})
	assert.Equal(t, PhaseDrafting, h.c.Phase())
}

func TestHostMigratesToLowestConnectedSlot(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")
	h.join(t, "c2")
	h.join(t, "c3")

	events := h.c.Leave("c1")
	assert.Equal(t, "c2", h.c.HostConn())
	e, ok := findEvent(events, EvtParticipantsSync)
	require.True(t, ok)
	assert.Equal(t, 2, e.Payload.(ParticipantsSyncPayload).HostSlot)
}

func TestLastLeaveResetsToLobby(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 5, "twin-ball", "wobble")
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 2})

	h.c.Leave("c1")
	h.c.Leave("c2")

	assert.Equal(t, PhaseLobby, h.c.Phase())
	assert.Empty(t, h.c.HostConn())
	assert.Equal(t, [MaxSlots]int{}, h.c.Scores())
	assert.Empty(t, h.c.Registry().ListAll())
	assert.Equal(t, MaxSlots, h.c.Config().MaxPlayers)
	assert.Empty(t, h.sim.live)
}

func TestLateJoinRejectedWhenFull(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 5, "twin-ball", "wobble")

	_, err := h.c.Join("c3", "")
	assert.True(t, errors.Is(err, ErrSessionFull))
}

func TestRejoinTakesOverDisconnectedSlot(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 5, "twin-ball", "wobble")
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 2})

	h.c.Leave("c2")
	assert.True(t, h.c.Registry().ValidSlot(2))

	events := h.join(t, "c2-again")
	sync, ok := findEvent(events, EvtStateSync)
	require.True(t, ok)
	snap := sync.Payload.(StateSyncPayload)
	assert.Equal(t, 2, snap.Self.SlotID)
	assert.Equal(t, PhaseInMatch, snap.Phase)
	assert.Equal(t, 1, snap.Scores[1])
	assert.Equal(t, []string{"wobble"}, snap.Claims[2])

	var toJoiner []int
	for _, e := range events {
		if e.Type == EvtSpriteAssignment && !e.Broadcast() {
			toJoiner = append(toJoiner, e.Payload.(SpriteAssignmentPayload).SlotID)
		}
	}
	assert.Equal(t, []int{1}, toJoiner)
}

func TestDraftCompletesOnSnapshotCountDespiteDisconnect(t *testing.T) {
	h := newHarness(t)
	h.toDraft(t, 3, 5)

	h.c.Leave("c3")
	h.apply(t, "c1", Request{Type: ReqClaimItem, SlotID: 1, ItemID: "twin-ball"})
	h.apply(t, "c2", Request{Type: ReqClaimItem, SlotID: 2, ItemID: "wobble"})
	assert.Equal(t, PhaseDrafting, h.c.Phase())

	h.join(t, "c3b")
	h.apply(t, "c3b", Request{Type: ReqClaimItem, SlotID: 3, ItemID: "overdrive"})
	assert.Equal(t, PhaseAwaitingStart, h.c.Phase())
	assert.False(t, h.c.Draft().Active())
}

func TestClaimArmsInventorySettle(t *testing.T) {
	h := newHarness(t)
	h.toDraft(t, 2, 5)

	events := h.apply(t, "c1", Request{Type: ReqClaimItem, SlotID: 1, ItemID: "pickpocket"})
	require.Len(t, events, 2)
	assert.Equal(t, EvtItemRemoved, events[0].Type)
	assert.Equal(t, EvtInventorySync, events[1].Type)

	key := TimerKey{Name: timerInventorySettle}
	assert.Equal(t, DefaultTuning().SettleDelay, h.sched.armed[key])

	events = h.c.TimerFired(key)
	require.Len(t, events, 1)
	sync := events[0].Payload.(InventorySyncPayload)
	assert.Equal(t, []string{"pickpocket"}, sync.Claims[1])
}

func TestClaimTakenItemIsRejected(t *testing.T) {
	h := newHarness(t)
	h.toDraft(t, 2, 5)
	h.apply(t, "c1", Request{Type: ReqClaimItem, SlotID: 1, ItemID: "twin-ball"})

	events, err := h.c.Apply("c2", Request{Type: ReqClaimItem, SlotID: 2, ItemID: "twin-ball"})
	require.True(t, errors.Is(err, ErrItemUnavailable))
	require.Len(t, events, 1)
	assert.Equal(t, EvtRejected, events[0].Type)
	assert.Equal(t, []string{"c2"}, events[0].Recipients)
}

func TestWinnerDeclaredOnFifthGoal(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 5, "twin-ball", "wobble")

	for i := 0; i < 4; i++ {
		h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	}
	require.Equal(t, PhaseInMatch, h.c.Phase())

	events := h.c.Report(Report{Type: ReportGoalScored, SlotID: 1})
	assert.Equal(t, PhaseEnded, h.c.Phase())
	assert.Equal(t, 1, h.c.Winner())
	assert.Empty(t, h.sim.live)

	e, ok := findEvent(events, EvtMatchEnded)
	require.True(t, ok)
	assert.Equal(t, 1, e.Payload.(MatchEndedPayload).WinnerSlot)

	assert.Nil(t, h.c.Report(Report{Type: ReportGoalScored, SlotID: 2}), "reports after the end are ignored")
}

func TestReports(t *testing.T) {
	h := newHarness(t)
	h.toDraft(t, 2, 5)
	assert.Nil(t, h.c.Report(Report{Type: ReportGoalScored, SlotID: 1}), "ignored before the match")

	h.apply(t, "c1", Request{Type: ReqClaimItem, SlotID: 1, ItemID: "twin-ball"})
	h.apply(t, "c2", Request{Type: ReqClaimItem, SlotID: 2, ItemID: "wobble"})
	h.apply(t, "c1", Request{Type: ReqStartMatch})

	h.c.Report(Report{Type: ReportGoalScored, SlotID: 2})
	h.c.Report(Report{Type: ReportGoalConceded, SlotID: 2})
	h.c.Report(Report{Type: ReportGoalConceded, SlotID: 1})
	assert.Equal(t, [MaxSlots]int{0, 0, 0, 0}, h.c.Scores())

	events := h.c.Report(Report{Type: ReportPaddleHit, SlotID: 1})
	require.Len(t, events, 1)
	assert.Equal(t, EvtHitEffect, events[0].Type)
	assert.True(t, events[0].BestEffort)

	assert.Nil(t, h.c.Report(Report{Type: ReportGoalScored, SlotID: 4}), "unknown slot")
}

func TestRestartKeepsHostAtSlotOne(t *testing.T) {
	h := newHarness(t)
	h.toMatch(t, 5, "twin-ball", "wobble", "overdrive")
	h.c.Report(Report{Type: ReportGoalScored, SlotID: 3})

	h.c.Leave("c1")
	require.Equal(t, "c2", h.c.HostConn())

	events := h.apply(t, "c2", Request{Type: ReqRestartMatch})
	assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())
	assert.Equal(t, 1, h.sched.cancelAll)
	assert.Empty(t, h.sim.live)

	kicked, ok := findEvent(events, EvtKicked)
	require.True(t, ok)
	assert.Equal(t, []string{"c3"}, kicked.Recipients)

	p, ok := h.c.Registry().GetParticipant("c2")
	require.True(t, ok)
	assert.Equal(t, 1, p.SlotID)
	assert.Len(t, h.c.Registry().ListAll(), 1)
	assert.Equal(t, "c2", h.c.HostConn())
	assert.Equal(t, [MaxSlots]int{}, h.c.Scores())
	assert.Zero(t, h.c.Config().MaxScoreToWin)
	assert.Empty(t, h.c.Draft().Claims())

	events = h.join(t, "c5")
	sync, _ := findEvent(events, EvtStateSync)
	assert.Equal(t, 2, sync.Payload.(StateSyncPayload).Self.SlotID)
	assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase(), "max players carried over")
}

func TestRestartWhileAwaitingPlayers(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")

	events := h.apply(t, "c1", Request{Type: ReqRestartMatch})
	assert.Equal(t, PhaseAwaitingAllPlayers, h.c.Phase())
	assert.False(t, ContainsEvent(events, EvtKicked))
}

func TestUnsupportedRequest(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1")

	events, err := h.c.Apply("c1", Request{Type: "Teleport"})
	require.True(t, errors.Is(err, ErrUnsupportedRequest))
	require.Len(t, events, 1)
	assert.Equal(t, EvtRejected, events[0].Type)
}

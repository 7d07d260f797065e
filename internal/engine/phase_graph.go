package engine

import "time"

// phaseGraph lists the forward edges of the session state machine. Every
// phase except Lobby can also fall back to Lobby when the last connection
// leaves, and the host can restart from anywhere past Lobby.
var phaseGraph = map[Phase][]Phase{
	PhaseLobby:              {PhaseAwaitingAllPlayers},
	PhaseAwaitingAllPlayers: {PhaseReadyCheck},
	PhaseReadyCheck:         {PhaseConfigNegotiation, PhaseAwaitingAllPlayers},
	PhaseConfigNegotiation:  {PhaseDrafting, PhaseAwaitingAllPlayers},
	PhaseDrafting:           {PhaseAwaitingStart},
	PhaseAwaitingStart:      {PhaseInMatch},
	PhaseInMatch:            {PhaseSpecialMode, PhaseEnded},
	PhaseSpecialMode:        {PhaseInMatch, PhaseEnded},
	PhaseEnded:              {},
	PhaseRestarting:         {PhaseAwaitingAllPlayers},
}

func CanTransition(from, to Phase) bool {
	if from == to {
		return false
	}
	if to == PhaseLobby {
		return from != PhaseLobby
	}
	if to == PhaseRestarting {
		return from != PhaseLobby
	}
	for _, p := range phaseGraph[from] {
		if p == to {
			return true
		}
	}
	return false
}

// draftBegun reports whether slots are locked for the match.
func draftBegun(p Phase) bool {
	switch p {
	case PhaseDrafting, PhaseAwaitingStart, PhaseInMatch, PhaseSpecialMode, PhaseEnded:
		return true
	}
	return false
}

func playing(p Phase) bool {
	return p == PhaseInMatch || p == PhaseSpecialMode
}

// TimerKey identifies one pending timer. SlotID 0 is used for session-wide
// timers.
type TimerKey struct {
	SlotID int
	Name   string
}

const (
	timerInventorySettle = "inventory-settle"
	timerSpecialMode     = "special-mode"
)

// Scheduler arms single-shot timers. When one elapses the owner of the
// session must call Coordinator.TimerFired with the same key, on the same
// goroutine that applies requests.
type Scheduler interface {
	Schedule(key TimerKey, after time.Duration)
	Cancel(key TimerKey)
	CancelAll()
}

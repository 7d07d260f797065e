package engine

import (
	"errors"
	"time"
)

var ErrNotHost = errors.New("host only request")
var ErrWrongPhase = errors.New("request not valid in current phase")
var ErrOutOfRange = errors.New("value out of range")
var ErrUnknownConnection = errors.New("unknown connection")
var ErrStaleSlot = errors.New("slot not held by connection")
var ErrSessionFull = errors.New("session full")
var ErrDraftInactive = errors.New("draft not active")
var ErrItemUnavailable = errors.New("item not available")
var ErrSlotHasItem = errors.New("slot already holds an item")
var ErrItemNotClaimed = errors.New("item not claimed by slot")
var ErrSpecialModeActive = errors.New("special mode already active")
var ErrNoPendingSteal = errors.New("no point steal awaiting a target")
var ErrAwaitingTarget = errors.New("point steal awaiting a target")
var ErrBadTarget = errors.New("invalid target")
var ErrUnsupportedRequest = errors.New("unsupported request")

const (
	MinPlayers = 2
	MaxSlots   = 4
)

type Phase string

const (
	PhaseLobby              Phase = "lobby"
	PhaseAwaitingAllPlayers Phase = "awaiting_all_players"
	PhaseReadyCheck         Phase = "ready_check"
	PhaseConfigNegotiation  Phase = "config_negotiation"
	PhaseDrafting           Phase = "drafting"
	PhaseAwaitingStart      Phase = "awaiting_start"
	PhaseInMatch            Phase = "in_match"
	PhaseSpecialMode        Phase = "special_mode"
	PhaseEnded              Phase = "ended"
	PhaseRestarting         Phase = "restarting"
)

// Participant is one connection's view of the session. SlotID is 1..MaxSlots and
// stays stable for the whole match.
type Participant struct {
	ConnectionID string `json:"connection_id"`
	SlotID       int    `json:"slot_id"`
	DisplayName  string `json:"display_name"`
	Connected    bool   `json:"connected"`
	Ready        bool   `json:"ready"`
}

type MatchConfig struct {
	MaxPlayers    int `json:"max_players"`
	MaxScoreToWin int `json:"max_score_to_win"`
}

// Tuning holds the durations and amounts that shape a session but are not
// negotiated by players.
type Tuning struct {
	DefaultMaxPlayers   int
	SpecialModeDuration time.Duration
	SettleDelay         time.Duration
	StealAmount         int
}

func DefaultTuning() Tuning {
	return Tuning{
		DefaultMaxPlayers:   MaxSlots,
		SpecialModeDuration: 30 * time.Second,
		SettleDelay:         150 * time.Millisecond,
		StealAmount:         3,
	}
}

type RequestType string

const (
	ReqSetMaxPlayers  RequestType = "SetMaxPlayers"
	ReqSetReady       RequestType = "SetReady"
	ReqSetMaxScore    RequestType = "SetMaxScore"
	ReqClaimItem      RequestType = "ClaimItem"
	ReqUseItem        RequestType = "UseItem"
	ReqNominateTarget RequestType = "NominateTarget"
	ReqStartMatch     RequestType = "StartMatch"
	ReqRestartMatch   RequestType = "RestartMatch"
)

/*
	SetMaxPlayers  -> (host, AwaitingAllPlayers) MatchConfig.MaxPlayers, maybe PhaseChanged(ReadyCheck)
	SetReady       -> ParticipantsSync, maybe PhaseChanged(ConfigNegotiation)
	SetMaxScore    -> (host) PhaseChanged(Drafting), DraftRevealed
	ClaimItem      -> ItemRemoved, InventorySync (+ settle resync), maybe PhaseChanged(AwaitingStart)
	UseItem        -> ItemUsed, effect specific events
	NominateTarget -> StealResult (activator only), ScoreSync on success
	StartMatch     -> (host) PhaseChanged(InMatch), UIHidden
	RestartMatch   -> (host) Kicked..., PhaseChanged(Restarting), PhaseChanged(AwaitingAllPlayers)

	JoinRequest is not a Request: it comes through Coordinator.Join because it creates the
	connection identity the other requests are checked against.
*/

type Request struct {
	Type   RequestType
	SlotID int
	ItemID string
	Value  int
}

// Report is raised by the simulation collaborator, never by clients.
type ReportType string

const (
	ReportGoalScored   ReportType = "GoalScored"
	ReportGoalConceded ReportType = "GoalConceded"
	ReportPaddleHit    ReportType = "PaddleHit"
)

type Report struct {
	Type   ReportType
	SlotID int
}

// Simulation is the physics collaborator. Ball ids are assigned by the
// simulation; an empty id in SetSpeedMultiplier addresses every live ball.
type Simulation interface {
	SpawnBall() string
	DespawnBall(id string)
	DespawnAll()
	SetSpeedMultiplier(id string, factor float64, d time.Duration)
	SetPaddleTilt(slotID int, tilted bool)
}

type Presentation interface {
	ApplyVisualTheme(slotID int)
}

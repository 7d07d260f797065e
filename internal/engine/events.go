package engine

type EventType string

const (
	EvtPhaseChanged        EventType = "PhaseChanged"
	EvtParticipantsSync    EventType = "ParticipantsSync"
	EvtConfigChanged       EventType = "ConfigChanged"
	EvtSpriteAssignment    EventType = "SpriteAssignment"
	EvtDraftRevealed       EventType = "DraftRevealed"
	EvtItemRemoved         EventType = "ItemRemoved"
	EvtInventorySync       EventType = "InventorySync"
	EvtScoreSync           EventType = "ScoreSync"
	EvtSpecialModeToggled  EventType = "SpecialModeToggled"
	EvtHitEffect           EventType = "HitEffect"
	EvtUIHidden            EventType = "UIHidden"
	EvtItemUsed            EventType = "ItemUsed"
	EvtEffectExpired       EventType = "EffectExpired"
	EvtSoundtrackAdvanced  EventType = "SoundtrackAdvanced"
	EvtNominationRequested EventType = "NominationRequested"
	EvtStealResult         EventType = "StealResult"
	EvtMatchEnded          EventType = "MatchEnded"
	EvtStateSync           EventType = "StateSync"
	EvtRejected            EventType = "Rejected"
	EvtKicked              EventType = "Kicked"
)

// Event is one outbound message. Empty Recipients means every connected
// participant. BestEffort events may be dropped under back-pressure.
type Event struct {
	Type       EventType `json:"type"`
	Payload    any       `json:"payload,omitempty"`
	Recipients []string  `json:"-"`
	BestEffort bool      `json:"-"`
}

func (e Event) Broadcast() bool { return len(e.Recipients) == 0 }

type PhaseChangedPayload struct {
	Phase Phase `json:"phase"`
}

type ParticipantsSyncPayload struct {
	Participants []Participant `json:"participants"`
	HostSlot     int           `json:"host_slot"`
}

type ConfigChangedPayload struct {
	Config MatchConfig `json:"config"`
}

type SpriteAssignmentPayload struct {
	SlotID    int    `json:"slot_id"`
	SpriteRef string `json:"sprite_ref"`
}

type DraftRevealedPayload struct {
	Items []Item `json:"items"`
}

type ItemRemovedPayload struct {
	ItemID string `json:"item_id"`
}

// InventorySyncPayload is the full claims snapshot. Clients replace their copy
// wholesale.
type InventorySyncPayload struct {
	Claims map[int][]string `json:"claims"`
}

type ScoreSyncPayload struct {
	Scores [MaxSlots]int `json:"scores"`
}

type SpecialModeToggledPayload struct {
	Active bool `json:"active"`
}

type HitEffectPayload struct {
	SlotID int `json:"slot_id"`
}

type ItemUsedPayload struct {
	SlotID int        `json:"slot_id"`
	ItemID string     `json:"item_id"`
	Effect EffectKind `json:"effect"`
	Target int        `json:"target,omitempty"`
}

type EffectExpiredPayload struct {
	SlotID int        `json:"slot_id"`
	Effect EffectKind `json:"effect"`
}

type SoundtrackAdvancedPayload struct {
	Track int `json:"track"`
}

type NominationRequestedPayload struct {
	ItemID     string `json:"item_id"`
	Candidates []int  `json:"candidates"`
}

type StealResultPayload struct {
	OK     bool `json:"ok"`
	Victim int  `json:"victim"`
	Amount int  `json:"amount"`
}

type MatchEndedPayload struct {
	WinnerSlot int           `json:"winner_slot"`
	Scores     [MaxSlots]int `json:"scores"`
}

type RejectedPayload struct {
	Request string `json:"request"`
	Reason  string `json:"reason"`
}

type KickedPayload struct {
	Reason string `json:"reason"`
}

// StateSyncPayload is everything a (re)joining client needs to rebuild its
// projection without replaying earlier broadcasts.
type StateSyncPayload struct {
	Phase          Phase            `json:"phase"`
	Config         MatchConfig      `json:"config"`
	Self           Participant      `json:"self"`
	HostSlot       int              `json:"host_slot"`
	Participants   []Participant    `json:"participants"`
	Scores         [MaxSlots]int    `json:"scores"`
	Claims         map[int][]string `json:"claims"`
	AvailableItems []string         `json:"available_items"`
	SpecialMode    bool             `json:"special_mode"`
}

// outbox collects events in emission order for one engine call.
type outbox struct {
	events []Event
}

func (o *outbox) emit(e Event) { o.events = append(o.events, e) }

func (o *outbox) to(connID string, t EventType, payload any) {
	o.emit(Event{Type: t, Payload: payload, Recipients: []string{connID}})
}

func (o *outbox) drain() []Event {
	out := o.events
	o.events = nil
	return out
}

func ContainsEvent(events []Event, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}

package types

// ClientMessage is every message a client may send. Type selects the
// request; the other fields are read depending on it.
type ClientMessage struct {
	Type   string `json:"type"`
	SlotID int    `json:"slot_id,omitempty"`
	ItemID string `json:"item_id,omitempty"`
	Value  int    `json:"value,omitempty"` // max players, max score or nominated slot
}

type ServerMessage struct {
	Type    string `json:"type"` // engine event type | "Error"
	Version int    `json:"version,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

const TypeError = "Error"

// Client message types that carry simulation reports rather than requests.
// Only the host's client runs physics, so only the host may send them.
const (
	TypeGoalScored   = "GoalScored"
	TypeGoalConceded = "GoalConceded"
	TypePaddleHit    = "PaddleHit"
)

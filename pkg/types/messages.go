package types

// Connect: GET /ws?code=ABC123&name=ann
// Every frame is a JSON object with a "type" field.

// Client -> Server
// SetMaxPlayers (host, awaiting players / ready check):
//   value: 2..4                  // out of range values are ignored
//
// SetReady (ready check):
//   slot_id: number              // must be the sender's own slot
//
// SetMaxScore (host, config negotiation):
//   value: number > 0
//
// ClaimItem (drafting):
//   slot_id: number
//   item_id: string
//
// UseItem (in match / special mode):
//   slot_id: number
//   item_id: string
//
// NominateTarget (after NominationRequested):
//   value: slot number of the victim
//
// StartMatch (host, awaiting start): {}
// RestartMatch (host): {}
//
// GoalScored | GoalConceded | PaddleHit (host client only, it runs physics):
//   slot_id: number

// Server -> Client
// Every message: { type, version, payload }. version grows with each event the
// session emits; a client may see gaps because some events are addressed to
// other players.
//
// StateSync (to joiner, always first):
//   phase, config { max_players, max_score_to_win }, self, host_slot,
//   participants [{ connection_id, slot_id, display_name, connected, ready }],
//   scores [4], claims { slot: [item_id] }, available_items [item_id], special_mode
//
// PhaseChanged:        { phase }
// ParticipantsSync:    { participants, host_slot }
// ConfigChanged:       { config }
// SpriteAssignment:    { slot_id, sprite_ref }
// DraftRevealed:       { items [{ id, display { name, description, icon }, effect, duration, factor, reusable }] }
// ItemRemoved:         { item_id }
// InventorySync:       { claims }        // full snapshot, replace local copy
// ScoreSync:           { scores [4] }    // full vector, replace local copy
// SpecialModeToggled:  { active }
// HitEffect:           { slot_id }       // best effort, may be skipped
// UIHidden:            {}
// ItemUsed:            { slot_id, item_id, effect, target? }
// EffectExpired:       { slot_id, effect }
// SoundtrackAdvanced:  { track }
// NominationRequested: { item_id, candidates [slot] }   // activator only
// StealResult:         { ok, victim, amount }           // activator only
// MatchEnded:          { winner_slot, scores [4] }
// Rejected:            { request, reason }              // requester only
// Kicked:              { reason }                       // connection closes after
//
// Error (transport level, not from the session):
//   error: "bad json" | "unknown type" | "rate limited" | join refusal

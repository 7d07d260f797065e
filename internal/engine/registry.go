package engine

import (
	"fmt"
	"sort"
)

// Registry tracks connected participants and the slot each one holds.
// Slots are only released between matches; mid-match a disconnect just marks
// the participant as gone.
type Registry struct {
	byConn map[string]*Participant
	bySlot [MaxSlots + 1]*Participant // index 0 unused
}

func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]*Participant)}
}

// OnConnect admits a connection. lateJoin is true once drafting has begun, at
// which point only a disconnected slot can be taken over.
func (r *Registry) OnConnect(connID, name string, maxPlayers int, lateJoin bool) (Participant, error) {
	if _, ok := r.byConn[connID]; ok {
		return Participant{}, fmt.Errorf("connection %s already registered: %w", connID, ErrSessionFull)
	}
	if r.ConnectedCount() >= maxPlayers {
		return Participant{}, ErrSessionFull
	}

	slot := 0
	if lateJoin {
		for s := 1; s <= maxPlayers; s++ {
			if p := r.bySlot[s]; p != nil && !p.Connected {
				slot = s
				break
			}
		}
	} else {
		for s := 1; s <= maxPlayers; s++ {
			if r.bySlot[s] == nil {
				slot = s
				break
			}
		}
	}
	if slot == 0 {
		return Participant{}, ErrSessionFull
	}

	if old := r.bySlot[slot]; old != nil {
		delete(r.byConn, old.ConnectionID)
	}
	if name == "" {
		name = fmt.Sprintf("Player %d", slot)
	}
	p := &Participant{ConnectionID: connID, SlotID: slot, DisplayName: name, Connected: true}
	r.byConn[connID] = p
	r.bySlot[slot] = p
	return *p, nil
}

// OnDisconnect marks the connection gone. When freeSlot is set (between
// matches) the slot becomes available again.
func (r *Registry) OnDisconnect(connID string, freeSlot bool) (Participant, bool) {
	p, ok := r.byConn[connID]
	if !ok || !p.Connected {
		return Participant{}, false
	}
	p.Connected = false
	p.Ready = false
	if freeSlot {
		delete(r.byConn, connID)
		r.bySlot[p.SlotID] = nil
	}
	return *p, true
}

func (r *Registry) GetParticipant(connID string) (Participant, bool) {
	p, ok := r.byConn[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

func (r *Registry) BySlot(slot int) (Participant, bool) {
	if slot < 1 || slot > MaxSlots || r.bySlot[slot] == nil {
		return Participant{}, false
	}
	return *r.bySlot[slot], true
}

// ValidSlot reports whether the slot is assigned, connected or not.
func (r *Registry) ValidSlot(slot int) bool {
	_, ok := r.BySlot(slot)
	return ok
}

// ListConnected returns connected participants ordered by slot.
func (r *Registry) ListConnected() []Participant {
	out := make([]Participant, 0, MaxSlots)
	for s := 1; s <= MaxSlots; s++ {
		if p := r.bySlot[s]; p != nil && p.Connected {
			out = append(out, *p)
		}
	}
	return out
}

// ListAll returns every slot holder ordered by slot, including disconnected ones.
func (r *Registry) ListAll() []Participant {
	out := make([]Participant, 0, MaxSlots)
	for s := 1; s <= MaxSlots; s++ {
		if p := r.bySlot[s]; p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (r *Registry) ConnectedCount() int {
	n := 0
	for _, p := range r.byConn {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Registry) SetReady(connID string) bool {
	p, ok := r.byConn[connID]
	if !ok || !p.Connected {
		return false
	}
	p.Ready = true
	return true
}

func (r *Registry) AllReady() bool {
	connected := r.ListConnected()
	if len(connected) == 0 {
		return false
	}
	for _, p := range connected {
		if !p.Ready {
			return false
		}
	}
	return true
}

// ResetForRestart keeps only keepConn, moved to slot 1 with its ready flag
// cleared. It returns the connection ids that were dropped, sorted.
func (r *Registry) ResetForRestart(keepConn string) []string {
	dropped := make([]string, 0, len(r.byConn))
	var keep *Participant
	for id, p := range r.byConn {
		if id == keepConn && p.Connected {
			keep = p
			continue
		}
		if p.Connected {
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)

	r.byConn = make(map[string]*Participant)
	r.bySlot = [MaxSlots + 1]*Participant{}
	if keep != nil {
		keep.SlotID = 1
		keep.Ready = false
		r.byConn[keep.ConnectionID] = keep
		r.bySlot[1] = keep
	}
	return dropped
}

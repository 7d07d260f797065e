package engine

import (
	"math/rand"
	"time"
)

type activeEffect struct {
	item   Item
	ballID string
	target int
}

// EffectRuntime executes claimed items and reverts timed ones when their
// timer fires. Reverts run regardless of the current phase.
type EffectRuntime struct {
	c       *Coordinator
	catalog Catalog
	rng     *rand.Rand

	active  map[TimerKey]activeEffect
	pending map[int]string // slot -> point steal item awaiting a target
	track   int
}

func newEffectRuntime(c *Coordinator, catalog Catalog, rng *rand.Rand) *EffectRuntime {
	return &EffectRuntime{
		c:       c,
		catalog: catalog,
		rng:     rng,
		active:  map[TimerKey]activeEffect{},
		pending: map[int]string{},
	}
}

// Activate runs the effect of a claimed item. It validates before touching
// any state so a rejection leaves the session unchanged.
func (e *EffectRuntime) Activate(p Participant, itemID string) error {
	it, ok := e.catalog.Lookup(itemID)
	if !ok {
		return ErrItemUnavailable
	}
	if _, waiting := e.pending[p.SlotID]; waiting {
		return ErrAwaitingTarget
	}
	c := e.c
	slot := p.SlotID
	key := TimerKey{SlotID: slot, Name: string(it.Effect)}

	switch it.Effect {
	case EffectGlobalModeSwitch:
		if c.phase == PhaseSpecialMode || c.specialMode {
			return ErrSpecialModeActive
		}
		e.used(slot, it, 0)
		c.enterSpecialMode()
		e.schedule(TimerKey{SlotID: slot, Name: timerSpecialMode}, c.tuning.SpecialModeDuration)

	case EffectExtraBallSpawn:
		e.Expire(key)
		e.used(slot, it, 0)
		ball := ""
		if c.sim != nil {
			ball = c.sim.SpawnBall()
		}
		e.active[key] = activeEffect{item: it, ballID: ball}
		e.schedule(key, it.Duration)

	case EffectSpeedMultiplier:
		e.Expire(key)
		e.used(slot, it, 0)
		if c.sim != nil {
			c.sim.SetSpeedMultiplier(c.ballID, it.Factor, it.Duration)
		}
		e.active[key] = activeEffect{item: it, ballID: c.ballID}
		e.schedule(key, it.Duration)

	case EffectSoundtrackAdvance:
		e.used(slot, it, 0)
		e.track++
		c.out.emit(Event{Type: EvtSoundtrackAdvanced, Payload: SoundtrackAdvancedPayload{Track: e.track}})

	case EffectTargetedTilt:
		rivals := e.rivals(slot)
		if len(rivals) == 0 {
			return ErrBadTarget
		}
		e.Expire(key)
		target := rivals[e.rng.Intn(len(rivals))]
		e.used(slot, it, target)
		if c.sim != nil {
			c.sim.SetPaddleTilt(target, true)
		}
		e.active[key] = activeEffect{item: it, target: target}
		e.schedule(key, it.Duration)

	case EffectPointSteal:
		rivals := e.rivals(slot)
		if len(rivals) == 0 {
			return ErrBadTarget
		}
		e.pending[slot] = it.ID
		c.out.to(p.ConnectionID, EvtNominationRequested, NominationRequestedPayload{ItemID: it.ID, Candidates: rivals})
		return nil

	default:
		return ErrUnsupportedRequest
	}

	c.draft.Consume(slot, it.ID)
	return nil
}

// Nominate resolves a pending point steal against target. The transfer only
// happens if the victim can cover the full amount.
func (e *EffectRuntime) Nominate(p Participant, target int) error {
	itemID, ok := e.pending[p.SlotID]
	if !ok {
		return ErrNoPendingSteal
	}
	if target == p.SlotID || !e.c.registry.ValidSlot(target) {
		return ErrBadTarget
	}
	if victim, _ := e.c.registry.BySlot(target); !victim.Connected {
		return ErrStaleSlot
	}
	if !playing(e.c.phase) {
		return ErrWrongPhase
	}
	delete(e.pending, p.SlotID)

	c := e.c
	amount := c.tuning.StealAmount
	stolen := c.ledger.TrySpend(target, amount)
	if stolen {
		c.ledger.Add(p.SlotID, amount)
	}
	c.out.to(p.ConnectionID, EvtStealResult, StealResultPayload{OK: stolen, Victim: target, Amount: amount})
	if it, found := e.catalog.Lookup(itemID); found {
		e.used(p.SlotID, it, target)
	}
	c.draft.Consume(p.SlotID, itemID)
	if stolen {
		c.checkWinner()
	}
	return nil
}

// Expire reverts the effect armed under key. Unknown keys are ignored so a
// timer that fires after a restart does nothing.
func (e *EffectRuntime) Expire(key TimerKey) {
	a, ok := e.active[key]
	if !ok {
		return
	}
	delete(e.active, key)
	if e.c.sched != nil {
		e.c.sched.Cancel(key)
	}

	sim := e.c.sim
	switch a.item.Effect {
	case EffectExtraBallSpawn:
		if sim != nil && a.ballID != "" {
			sim.DespawnBall(a.ballID)
		}
	case EffectSpeedMultiplier:
		if sim != nil {
			sim.SetSpeedMultiplier(a.ballID, 1, 0)
		}
	case EffectTargetedTilt:
		if sim != nil && !e.tilting(a.target) {
			sim.SetPaddleTilt(a.target, false)
		}
	}
	e.c.out.emit(Event{Type: EvtEffectExpired, Payload: EffectExpiredPayload{SlotID: key.SlotID, Effect: a.item.Effect}})
}

func (e *EffectRuntime) revertSpecialMode(slot int) {
	if !e.c.specialMode {
		return
	}
	e.c.leaveSpecialMode()
	e.c.out.emit(Event{Type: EvtEffectExpired, Payload: EffectExpiredPayload{SlotID: slot, Effect: EffectGlobalModeSwitch}})
}

func (e *EffectRuntime) Active() []TimerKey {
	keys := make([]TimerKey, 0, len(e.active))
	for k := range e.active {
		keys = append(keys, k)
	}
	return keys
}

func (e *EffectRuntime) Pending(slot int) bool {
	_, ok := e.pending[slot]
	return ok
}

func (e *EffectRuntime) dropPending(slot int) {
	delete(e.pending, slot)
}

func (e *EffectRuntime) reset() {
	e.active = map[TimerKey]activeEffect{}
	e.pending = map[int]string{}
	e.track = 0
}

func (e *EffectRuntime) used(slot int, it Item, target int) {
	e.c.out.emit(Event{Type: EvtItemUsed, Payload: ItemUsedPayload{SlotID: slot, ItemID: it.ID, Effect: it.Effect, Target: target}})
}

func (e *EffectRuntime) schedule(key TimerKey, d time.Duration) {
	if e.c.sched != nil {
		e.c.sched.Schedule(key, d)
	}
}

// rivals lists the other connected slots in slot order.
func (e *EffectRuntime) rivals(slot int) []int {
	var out []int
	for _, p := range e.c.registry.ListConnected() {
		if p.SlotID != slot {
			out = append(out, p.SlotID)
		}
	}
	return out
}

// tilting reports whether another armed tilt still targets slot.
func (e *EffectRuntime) tilting(slot int) bool {
	for _, a := range e.active {
		if a.item.Effect == EffectTargetedTilt && a.target == slot {
			return true
		}
	}
	return false
}

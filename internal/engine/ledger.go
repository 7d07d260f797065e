package engine

// Ledger owns per-slot scores. Every mutation emits the full score vector;
// clients never see per-slot deltas.
type Ledger struct {
	scores   [MaxSlots]int
	registry *Registry
	out      *outbox
}

func NewLedger(reg *Registry, out *outbox) *Ledger {
	return &Ledger{registry: reg, out: out}
}

func (l *Ledger) Scores() [MaxSlots]int { return l.scores }

func (l *Ledger) Score(slot int) int {
	if slot < 1 || slot > MaxSlots {
		return 0
	}
	return l.scores[slot-1]
}

func (l *Ledger) Increment(slot int) bool {
	return l.Add(slot, 1)
}

// Add credits amount points to slot.
func (l *Ledger) Add(slot, amount int) bool {
	if amount <= 0 || !l.registry.ValidSlot(slot) {
		return false
	}
	l.scores[slot-1] += amount
	l.sync()
	return true
}

// Deduct is the penalty path: it clamps at zero and succeeds for any known slot.
func (l *Ledger) Deduct(slot, amount int) bool {
	if amount < 0 || !l.registry.ValidSlot(slot) {
		return false
	}
	l.scores[slot-1] = max(0, l.scores[slot-1]-amount)
	l.sync()
	return true
}

// TrySpend is the spend path: it refuses when the slot cannot cover amount.
func (l *Ledger) TrySpend(slot, amount int) bool {
	if amount < 0 || !l.registry.ValidSlot(slot) {
		return false
	}
	if l.scores[slot-1] < amount {
		return false
	}
	l.scores[slot-1] -= amount
	l.sync()
	return true
}

// CheckWinner sweeps every slot in order 1..MaxSlots and returns the highest
// score at or above threshold. Ties go to the lowest slot. Returns 0 if none.
func (l *Ledger) CheckWinner(threshold int) int {
	if threshold <= 0 {
		return 0
	}
	winner, best := 0, 0
	for i, s := range l.scores {
		if s >= threshold && s > best {
			winner, best = i+1, s
		}
	}
	return winner
}

func (l *Ledger) Reset() {
	l.scores = [MaxSlots]int{}
	l.sync()
}

func (l *Ledger) sync() {
	l.out.emit(Event{Type: EvtScoreSync, Payload: ScoreSyncPayload{Scores: l.scores}})
}

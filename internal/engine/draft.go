package engine

import (
	"math/rand"
	"sort"
)

// Draft hands out a pool of unique items, one per slot, exactly once.
type Draft struct {
	catalog   Catalog
	rng       *rand.Rand
	out       *outbox
	available map[string]bool
	revealed  []Item
	claims    map[int]string
	expected  int
	active    bool
}

func NewDraft(catalog Catalog, rng *rand.Rand, out *outbox) *Draft {
	return &Draft{
		catalog:   catalog,
		rng:       rng,
		out:       out,
		available: map[string]bool{},
		claims:    map[int]string{},
	}
}

// StartDraft reveals one item per distinct effect kind in shuffled order and
// snapshots how many claims complete the draft.
func (d *Draft) StartDraft(participants []Participant) []Item {
	items := d.catalog.Distinct()
	d.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

	d.available = make(map[string]bool, len(items))
	for _, it := range items {
		d.available[it.ID] = true
	}
	d.claims = make(map[int]string, len(participants))
	d.revealed = items
	d.expected = len(participants)
	d.active = true

	d.out.emit(Event{Type: EvtDraftRevealed, Payload: DraftRevealedPayload{Items: items}})
	return items
}

func (d *Draft) RequestClaim(slot int, itemID string) error {
	if !d.active {
		return ErrDraftInactive
	}
	if !d.available[itemID] {
		return ErrItemUnavailable
	}
	if _, holding := d.claims[slot]; holding {
		return ErrSlotHasItem
	}
	d.claims[slot] = itemID
	delete(d.available, itemID)

	d.out.emit(Event{Type: EvtItemRemoved, Payload: ItemRemovedPayload{ItemID: itemID}})
	d.out.emit(d.InventorySync())
	return nil
}

func (d *Draft) AllClaimed() bool {
	return d.expected > 0 && len(d.claims) >= d.expected
}

// Close ends the claim window; claims stay.
func (d *Draft) Close() { d.active = false }

func (d *Draft) Active() bool { return d.active }

func (d *Draft) Holds(slot int, itemID string) bool {
	id, ok := d.claims[slot]
	return ok && id == itemID
}

// Consume drops a non-reusable item after its effect resolved. Reusable
// items stay claimed.
func (d *Draft) Consume(slot int, itemID string) bool {
	if !d.Holds(slot, itemID) {
		return false
	}
	it, ok := d.catalog.Lookup(itemID)
	if ok && it.Reusable {
		return false
	}
	delete(d.claims, slot)
	d.out.emit(d.InventorySync())
	return true
}

func (d *Draft) Claims() map[int]string {
	out := make(map[int]string, len(d.claims))
	for s, id := range d.claims {
		out[s] = id
	}
	return out
}

func (d *Draft) Available() []string {
	out := make([]string, 0, len(d.available))
	for id := range d.available {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (d *Draft) InventorySync() Event {
	return Event{Type: EvtInventorySync, Payload: InventorySyncPayload{Claims: d.claimLists()}}
}

func (d *Draft) claimLists() map[int][]string {
	out := make(map[int][]string, len(d.claims))
	for s, id := range d.claims {
		out[s] = []string{id}
	}
	return out
}

func (d *Draft) Reset() {
	d.available = map[string]bool{}
	d.claims = map[int]string{}
	d.revealed = nil
	d.expected = 0
	d.active = false
}

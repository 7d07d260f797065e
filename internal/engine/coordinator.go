package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Deps wires a Coordinator to its collaborators.
type Deps struct {
	Catalog      Catalog
	Rand         *rand.Rand
	Scheduler    Scheduler
	Simulation   Simulation
	Presentation Presentation
	Tuning       Tuning
}

// Coordinator is the session state machine. It owns the registry, ledger,
// draft and effect runtime of one session. It is not safe for concurrent use:
// the caller must serialise Join, Leave, Apply, Report and TimerFired.
type Coordinator struct {
	phase    Phase
	config   MatchConfig
	hostConn string
	tuning   Tuning

	registry *Registry
	ledger   *Ledger
	draft    *Draft
	effects  *EffectRuntime

	sched   Scheduler
	sim     Simulation
	present Presentation

	out         outbox
	ballID      string
	specialMode bool
	winner      int
}

func NewCoordinator(d Deps) *Coordinator {
	if d.Catalog == nil {
		d.Catalog = DefaultCatalog()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if d.Tuning == (Tuning{}) {
		d.Tuning = DefaultTuning()
	}
	if d.Tuning.DefaultMaxPlayers < MinPlayers || d.Tuning.DefaultMaxPlayers > MaxSlots {
		d.Tuning.DefaultMaxPlayers = MaxSlots
	}

	c := &Coordinator{
		phase:   PhaseLobby,
		config:  MatchConfig{MaxPlayers: d.Tuning.DefaultMaxPlayers},
		tuning:  d.Tuning,
		sched:   d.Scheduler,
		sim:     d.Simulation,
		present: d.Presentation,
	}
	c.registry = NewRegistry()
	c.ledger = NewLedger(c.registry, &c.out)
	c.draft = NewDraft(d.Catalog, d.Rand, &c.out)
	c.effects = newEffectRuntime(c, d.Catalog, d.Rand)
	return c
}

func (c *Coordinator) Phase() Phase            { return c.phase }
func (c *Coordinator) Config() MatchConfig     { return c.config }
func (c *Coordinator) HostConn() string        { return c.hostConn }
func (c *Coordinator) Registry() *Registry     { return c.registry }
func (c *Coordinator) Ledger() *Ledger         { return c.ledger }
func (c *Coordinator) Draft() *Draft           { return c.draft }
func (c *Coordinator) Effects() *EffectRuntime { return c.effects }
func (c *Coordinator) SpecialModeOn() bool     { return c.specialMode }
func (c *Coordinator) Winner() int             { return c.winner }
func (c *Coordinator) Scores() [MaxSlots]int   { return c.ledger.Scores() }

// Join admits a connection and assigns it the lowest free slot. Once
// drafting has begun only a disconnected slot can be taken over.
func (c *Coordinator) Join(connID, name string) ([]Event, error) {
	if c.phase == PhaseRestarting {
		return nil, ErrWrongPhase
	}
	late := draftBegun(c.phase)
	p, err := c.registry.OnConnect(connID, name, c.config.MaxPlayers, late)
	if err != nil {
		return nil, err
	}

	if c.hostConn == "" {
		c.hostConn = connID
	}
	if c.phase == PhaseLobby {
		c.advance(PhaseAwaitingAllPlayers)
	}

	c.assignSprite(p.SlotID)
	if late {
		for _, other := range c.registry.ListAll() {
			if other.SlotID == p.SlotID {
				continue
			}
			c.out.to(connID, EvtSpriteAssignment, SpriteAssignmentPayload{SlotID: other.SlotID, SpriteRef: spriteRef(other.SlotID)})
		}
	}
	c.syncParticipants()
	c.settleLobby()

	// The snapshot goes first and already reflects everything emitted after it.
	sync := Event{Type: EvtStateSync, Payload: c.Snapshot(connID), Recipients: []string{connID}}
	return append([]Event{sync}, c.out.drain()...), nil
}

// Leave handles a transport-level disconnect. Slots are freed only before
// the draft starts.
func (c *Coordinator) Leave(connID string) []Event {
	p, ok := c.registry.OnDisconnect(connID, !draftBegun(c.phase))
	if !ok {
		return nil
	}
	c.effects.dropPending(p.SlotID)

	if c.registry.ConnectedCount() == 0 {
		c.reset()
		return c.out.drain()
	}
	if connID == c.hostConn {
		c.migrateHost()
	}
	c.syncParticipants()
	c.settleLobby()
	return c.out.drain()
}

// Apply runs one client request. Policy rejections are answered with a
// Rejected event to the requester; stale references are dropped silently.
// State is left untouched whenever an error is returned.
func (c *Coordinator) Apply(connID string, req Request) ([]Event, error) {
	p, ok := c.registry.GetParticipant(connID)
	if !ok || !p.Connected {
		return nil, ErrUnknownConnection
	}

	var err error
	switch req.Type {
	case ReqSetMaxPlayers:
		err = c.setMaxPlayers(p, req.Value)
	case ReqSetReady:
		err = c.setReady(p, req.SlotID)
	case ReqSetMaxScore:
		err = c.setMaxScore(p, req.Value)
	case ReqClaimItem:
		err = c.claimItem(p, req.SlotID, req.ItemID)
	case ReqUseItem:
		err = c.useItem(p, req.SlotID, req.ItemID)
	case ReqNominateTarget:
		err = c.effects.Nominate(p, req.Value)
	case ReqStartMatch:
		err = c.startMatch(p)
	case ReqRestartMatch:
		err = c.restartMatch(p)
	default:
		err = ErrUnsupportedRequest
	}

	if err != nil {
		c.out.drain()
		if !IsStale(err) {
			c.out.to(connID, EvtRejected, RejectedPayload{Request: string(req.Type), Reason: err.Error()})
		}
		return c.out.drain(), err
	}
	return c.out.drain(), nil
}

// Report applies an event raised by the simulation. Reports outside of
// match play are ignored.
func (c *Coordinator) Report(r Report) []Event {
	if !playing(c.phase) || !c.registry.ValidSlot(r.SlotID) {
		return nil
	}
	switch r.Type {
	case ReportGoalScored:
		if c.ledger.Increment(r.SlotID) {
			c.checkWinner()
		}
	case ReportGoalConceded:
		c.ledger.Deduct(r.SlotID, 1)
	case ReportPaddleHit:
		c.out.emit(Event{Type: EvtHitEffect, Payload: HitEffectPayload{SlotID: r.SlotID}, BestEffort: true})
	}
	return c.out.drain()
}

// TimerFired is called when a timer armed through the Scheduler elapses.
// Unknown or already reverted keys are a no-op.
func (c *Coordinator) TimerFired(key TimerKey) []Event {
	switch key.Name {
	case timerInventorySettle:
		c.out.emit(c.draft.InventorySync())
	case timerSpecialMode:
		c.effects.revertSpecialMode(key.SlotID)
	default:
		c.effects.Expire(key)
	}
	return c.out.drain()
}

// Snapshot is the full projection sent to a (re)joining connection.
func (c *Coordinator) Snapshot(connID string) StateSyncPayload {
	self, _ := c.registry.GetParticipant(connID)
	return StateSyncPayload{
		Phase:          c.phase,
		Config:         c.config,
		Self:           self,
		HostSlot:       c.hostSlot(),
		Participants:   c.registry.ListAll(),
		Scores:         c.ledger.Scores(),
		Claims:         c.draft.claimLists(),
		AvailableItems: c.draft.Available(),
		SpecialMode:    c.specialMode,
	}
}

func (c *Coordinator) setMaxPlayers(p Participant, n int) error {
	if p.ConnectionID != c.hostConn {
		return ErrNotHost
	}
	if c.phase != PhaseAwaitingAllPlayers && c.phase != PhaseReadyCheck {
		return ErrWrongPhase
	}
	// Out of range counts are ignored rather than rejected.
	if n < MinPlayers || n > MaxSlots || n < c.registry.ConnectedCount() || n == c.config.MaxPlayers {
		return nil
	}
	for _, held := range c.registry.ListAll() {
		if held.SlotID > n {
			return nil
		}
	}
	c.config.MaxPlayers = n
	c.out.emit(Event{Type: EvtConfigChanged, Payload: ConfigChangedPayload{Config: c.config}})
	c.settleLobby()
	return nil
}

func (c *Coordinator) setReady(p Participant, slot int) error {
	if slot != p.SlotID {
		return ErrStaleSlot
	}
	if c.phase != PhaseReadyCheck {
		return ErrWrongPhase
	}
	if p.Ready {
		return nil
	}
	c.registry.SetReady(p.ConnectionID)
	c.syncParticipants()
	if c.registry.AllReady() {
		c.advance(PhaseConfigNegotiation)
	}
	return nil
}

func (c *Coordinator) setMaxScore(p Participant, v int) error {
	if p.ConnectionID != c.hostConn {
		return ErrNotHost
	}
	if c.phase != PhaseConfigNegotiation {
		return ErrWrongPhase
	}
	if v <= 0 {
		return ErrOutOfRange
	}
	c.config.MaxScoreToWin = v
	c.out.emit(Event{Type: EvtConfigChanged, Payload: ConfigChangedPayload{Config: c.config}})
	c.advance(PhaseDrafting)
	c.draft.StartDraft(c.registry.ListConnected())
	return nil
}

func (c *Coordinator) claimItem(p Participant, slot int, itemID string) error {
	if slot != p.SlotID {
		return ErrStaleSlot
	}
	if c.phase != PhaseDrafting {
		return ErrDraftInactive
	}
	if err := c.draft.RequestClaim(slot, itemID); err != nil {
		return err
	}
	// The removal and the snapshot may be reordered on the way out; a second
	// snapshot after a short delay settles every client on the same view.
	if c.sched != nil {
		c.sched.Schedule(TimerKey{Name: timerInventorySettle}, c.tuning.SettleDelay)
	}
	if c.draft.AllClaimed() {
		c.draft.Close()
		c.advance(PhaseAwaitingStart)
	}
	return nil
}

func (c *Coordinator) useItem(p Participant, slot int, itemID string) error {
	if slot != p.SlotID {
		return ErrStaleSlot
	}
	if !playing(c.phase) {
		return ErrWrongPhase
	}
	if !c.draft.Holds(slot, itemID) {
		return ErrItemNotClaimed
	}
	return c.effects.Activate(p, itemID)
}

func (c *Coordinator) startMatch(p Participant) error {
	if p.ConnectionID != c.hostConn {
		return ErrNotHost
	}
	if c.phase != PhaseAwaitingStart {
		return ErrWrongPhase
	}
	c.advance(PhaseInMatch)
	if c.sim != nil {
		c.ballID = c.sim.SpawnBall()
	}
	c.out.emit(Event{Type: EvtUIHidden})
	return nil
}

func (c *Coordinator) restartMatch(p Participant) error {
	if p.ConnectionID != c.hostConn {
		return ErrNotHost
	}
	if c.phase == PhaseLobby || c.phase == PhaseRestarting {
		return ErrWrongPhase
	}
	if c.sched != nil {
		c.sched.CancelAll()
	}
	c.advance(PhaseRestarting)
	if c.sim != nil {
		c.sim.DespawnAll()
	}
	c.ballID = ""
	c.specialMode = false
	c.winner = 0
	c.effects.reset()

	for _, id := range c.registry.ResetForRestart(p.ConnectionID) {
		c.out.to(id, EvtKicked, KickedPayload{Reason: "match restarted"})
	}
	c.hostConn = p.ConnectionID
	c.config.MaxScoreToWin = 0
	c.ledger.Reset()
	c.draft.Reset()
	c.out.emit(c.draft.InventorySync())

	c.advance(PhaseAwaitingAllPlayers)
	c.assignSprite(1)
	c.syncParticipants()
	return nil
}

// settleLobby moves between AwaitingAllPlayers and ReadyCheck as the
// connected count crosses MaxPlayers. Dropping below it during config
// negotiation pauses the ready check too. Ready flags survive the pause, so
// a session that refills with everyone ready goes straight to negotiation.
func (c *Coordinator) settleLobby() {
	full := c.registry.ConnectedCount() == c.config.MaxPlayers
	switch c.phase {
	case PhaseAwaitingAllPlayers:
		if full {
			c.advance(PhaseReadyCheck)
			if c.registry.AllReady() {
				c.advance(PhaseConfigNegotiation)
			}
		}
	case PhaseReadyCheck, PhaseConfigNegotiation:
		if !full {
			c.advance(PhaseAwaitingAllPlayers)
		}
	}
}

func (c *Coordinator) checkWinner() {
	if !playing(c.phase) {
		return
	}
	w := c.ledger.CheckWinner(c.config.MaxScoreToWin)
	if w == 0 {
		return
	}
	c.winner = w
	c.advance(PhaseEnded)
	if c.sim != nil {
		c.sim.DespawnAll()
	}
	c.ballID = ""
	c.out.emit(Event{Type: EvtMatchEnded, Payload: MatchEndedPayload{WinnerSlot: w, Scores: c.ledger.Scores()}})
}

func (c *Coordinator) enterSpecialMode() {
	c.advance(PhaseSpecialMode)
	if c.sim != nil {
		c.sim.DespawnAll()
	}
	c.ballID = ""
	c.specialMode = true
	c.out.emit(Event{Type: EvtSpecialModeToggled, Payload: SpecialModeToggledPayload{Active: true}})
}

// leaveSpecialMode clears the global mode flag unconditionally; the phase
// only goes back to InMatch if nothing else moved it in the meantime.
func (c *Coordinator) leaveSpecialMode() {
	c.specialMode = false
	c.out.emit(Event{Type: EvtSpecialModeToggled, Payload: SpecialModeToggledPayload{Active: false}})
	if c.phase != PhaseSpecialMode {
		return
	}
	c.advance(PhaseInMatch)
	if c.sim != nil {
		c.ballID = c.sim.SpawnBall()
	}
}

// reset returns to an empty Lobby once nobody is connected.
func (c *Coordinator) reset() {
	if c.sched != nil {
		c.sched.CancelAll()
	}
	if c.sim != nil && draftBegun(c.phase) {
		c.sim.DespawnAll()
	}
	c.registry = NewRegistry()
	c.ledger.registry = c.registry
	c.ledger.scores = [MaxSlots]int{}
	c.draft.Reset()
	c.effects.reset()
	c.hostConn = ""
	c.ballID = ""
	c.specialMode = false
	c.winner = 0
	c.config = MatchConfig{MaxPlayers: c.tuning.DefaultMaxPlayers}
	c.advance(PhaseLobby)
}

func (c *Coordinator) migrateHost() {
	c.hostConn = ""
	if connected := c.registry.ListConnected(); len(connected) > 0 {
		c.hostConn = connected[0].ConnectionID
	}
}

func (c *Coordinator) hostSlot() int {
	if p, ok := c.registry.GetParticipant(c.hostConn); ok {
		return p.SlotID
	}
	return 0
}

func (c *Coordinator) advance(to Phase) bool {
	if !CanTransition(c.phase, to) {
		return false
	}
	c.phase = to
	c.out.emit(Event{Type: EvtPhaseChanged, Payload: PhaseChangedPayload{Phase: to}})
	return true
}

func (c *Coordinator) syncParticipants() {
	c.out.emit(Event{Type: EvtParticipantsSync, Payload: ParticipantsSyncPayload{
		Participants: c.registry.ListAll(),
		HostSlot:     c.hostSlot(),
	}})
}

func (c *Coordinator) assignSprite(slot int) {
	if c.present != nil {
		c.present.ApplyVisualTheme(slot)
	}
	c.out.emit(Event{Type: EvtSpriteAssignment, Payload: SpriteAssignmentPayload{SlotID: slot, SpriteRef: spriteRef(slot)}})
}

func spriteRef(slot int) string {
	return fmt.Sprintf("paddle_%d", slot)
}

// IsStale reports whether err refers to a connection, slot or item that no
// longer applies. Such requests are dropped without a rejection message.
func IsStale(err error) bool {
	return errors.Is(err, ErrUnknownConnection) || errors.Is(err, ErrStaleSlot)
}

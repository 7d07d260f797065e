package lobby

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
	"github.com/DoyleJ11/quadpong-server/internal/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("session closed")

const recordTimeout = 5 * time.Second

type Msg interface{ isLobbyMsg() }

type FromClient struct {
	ClientID string
	Req      engine.Request
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Name     string
	Outbox   chan Message // where this client wants to receive messages
	Reply    chan error   // nil on success; must be buffered
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

// SimReport is a collision report relayed by the host's client, which runs
// the physics. Reports from any other connection are dropped.
type SimReport struct {
	ClientID string
	Report   engine.Report
}

func (SimReport) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// timerFired is posted by an armed timer. gen must match the armed entry or
// the fire is stale (cancelled or re-armed since).
type timerFired struct {
	key engine.TimerKey
	gen uint64
}

func (timerFired) isLobbyMsg() {}

// Message is one event as delivered to a client. Version increases with
// every event the session emits, so a client may observe gaps.
type Message struct {
	Version int
	Event   engine.Event
}

type View struct {
	Version    int
	NumClients int
	Phase      engine.Phase
	Host       string
	State      engine.StateSyncPayload
	Armed      []engine.TimerKey
}

// Summary is the lock-free listing entry for a session.
type Summary struct {
	Code       string       `json:"code"`
	Phase      engine.Phase `json:"phase"`
	Connected  int          `json:"connected"`
	MaxPlayers int          `json:"max_players"`
	Version    int          `json:"version"`
}

// Sink observes every event after client fan-out. Publish runs on the
// session goroutine and must not block.
type Sink interface {
	Publish(code string, version int, e engine.Event) error
}

type Options struct {
	Code         string
	Catalog      engine.Catalog
	Tuning       engine.Tuning
	Rand         *rand.Rand
	Simulation   engine.Simulation
	Presentation engine.Presentation
	Sinks        []Sink
	Recorder     store.Recorder
	Logger       *zap.Logger
	OnEmpty      func(code string) // called on its own goroutine
}

type armedTimer struct {
	gen uint64
	t   *time.Timer
}

type Lobby struct {
	code    string
	inbox   chan Msg
	coord   *engine.Coordinator
	version int
	clients map[string]chan Message

	timers   map[engine.TimerKey]armedTimer
	timerGen uint64

	sinks    []Sink
	recorder store.Recorder
	onEmpty  func(string)
	log      *zap.Logger
	summary  atomic.Value
	records  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLobby(parent context.Context, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		code:     opts.Code,
		inbox:    make(chan Msg, 64),
		clients:  make(map[string]chan Message),
		timers:   make(map[engine.TimerKey]armedTimer),
		sinks:    opts.Sinks,
		recorder: opts.Recorder,
		onEmpty:  opts.OnEmpty,
		log:      log.With(zap.String("session", opts.Code)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	l.coord = engine.NewCoordinator(engine.Deps{
		Catalog:      opts.Catalog,
		Rand:         opts.Rand,
		Scheduler:    scheduler{l},
		Simulation:   opts.Simulation,
		Presentation: opts.Presentation,
		Tuning:       opts.Tuning,
	})
	l.refreshSummary()

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				events, err := l.coord.Join(msg.ClientID, msg.Name)
				if err != nil {
					l.log.Warn("join rejected", zap.String("conn", msg.ClientID), zap.Error(err))
					reply(msg.Reply, err)
					break
				}
				// Register before delivering so the joiner gets its own StateSync.
				l.clients[msg.ClientID] = msg.Outbox
				reply(msg.Reply, nil)
				l.log.Info("client joined", zap.String("conn", msg.ClientID))
				l.deliver(events)

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}
				l.log.Info("client left", zap.String("conn", msg.ClientID))
				l.deliver(l.coord.Leave(msg.ClientID))
				l.checkEmpty()

			case FromClient:
				events, err := l.coord.Apply(msg.ClientID, msg.Req)
				if err != nil {
					l.log.Debug("request refused",
						zap.String("conn", msg.ClientID),
						zap.String("request", string(msg.Req.Type)),
						zap.Bool("stale", engine.IsStale(err)),
						zap.Error(err))
				}
				l.deliver(events)

			case SimReport:
				if msg.ClientID != l.coord.HostConn() {
					l.log.Debug("report from non-host dropped", zap.String("conn", msg.ClientID))
					break
				}
				l.deliver(l.coord.Report(msg.Report))

			case timerFired:
				armed, ok := l.timers[msg.key]
				if !ok || armed.gen != msg.gen {
					l.log.Debug("stale timer fire", zap.String("timer", msg.key.Name), zap.Int("slot", msg.key.SlotID))
					break
				}
				delete(l.timers, msg.key)
				l.deliver(l.coord.TimerFired(msg.key))

			case GetState:
				// test and admin use: reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					Phase:      l.coord.Phase(),
					Host:       l.coord.HostConn(),
					State:      l.coord.Snapshot(""),
					Armed:      l.armedKeys(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func reply(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}

// deliver stamps each event with the next version and fans it out. Clients
// that cannot keep up with reliable events are dropped and treated as a
// disconnect.
func (l *Lobby) deliver(events []engine.Event) {
	if len(events) == 0 {
		return
	}
	var dropped []string
	for _, e := range events {
		l.version++
		m := Message{Version: l.version, Event: e}

		targets := e.Recipients
		if e.Broadcast() {
			targets = l.clientIDs()
		}
		for _, id := range targets {
			if !l.send(id, m, e.BestEffort) {
				dropped = append(dropped, id)
			}
		}
		if e.Type == engine.EvtKicked {
			for _, id := range e.Recipients {
				l.closeClient(id)
			}
		}

		l.publish(m)
		if e.Type == engine.EvtMatchEnded {
			l.record(e)
		}
	}
	l.refreshSummary()

	for _, id := range dropped {
		l.deliver(l.coord.Leave(id))
	}
	if len(dropped) > 0 {
		l.checkEmpty()
	}
}

func (l *Lobby) send(id string, m Message, bestEffort bool) bool {
	ch, ok := l.clients[id]
	if !ok {
		return true
	}
	select {
	case ch <- m:
		return true
	default:
		if bestEffort {
			return true
		}
		// Client is slow/full - drop them.
		l.log.Warn("dropping slow client", zap.String("conn", id), zap.Int("version", m.Version))
		l.closeClient(id)
		return false
	}
}

func (l *Lobby) closeClient(id string) {
	if ch, ok := l.clients[id]; ok {
		close(ch)
		delete(l.clients, id)
	}
}

func (l *Lobby) clientIDs() []string {
	ids := make([]string, 0, len(l.clients))
	for id := range l.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Lobby) publish(m Message) {
	var err error
	for _, s := range l.sinks {
		err = multierr.Append(err, s.Publish(l.code, m.Version, m.Event))
	}
	if err != nil {
		l.log.Warn("event mirror failed", zap.String("event", string(m.Event.Type)), zap.Error(err))
	}
}

// record hands the finished match to the recorder without blocking the
// session goroutine.
func (l *Lobby) record(e engine.Event) {
	if l.recorder == nil {
		return
	}
	ended, ok := e.Payload.(engine.MatchEndedPayload)
	if !ok {
		return
	}
	rec := store.MatchRecord{
		SessionCode:   l.code,
		WinnerSlot:    ended.WinnerSlot,
		Scores:        ended.Scores,
		MaxScoreToWin: l.coord.Config().MaxScoreToWin,
		Players:       make([]string, engine.MaxSlots),
		EndedAt:       time.Now().UTC(),
	}
	for slot := 1; slot <= engine.MaxSlots; slot++ {
		if p, ok := l.coord.Registry().BySlot(slot); ok {
			rec.Players[slot-1] = p.DisplayName
		}
	}

	ctx := context.WithoutCancel(l.ctx)
	l.records.Add(1)
	go func() {
		defer l.records.Done()
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()
		if err := l.recorder.RecordMatch(ctx, rec); err != nil {
			l.log.Error("record match", zap.Int("winner", rec.WinnerSlot), zap.Error(err))
		}
	}()
}

func (l *Lobby) checkEmpty() {
	if l.onEmpty == nil || len(l.clients) > 0 || l.coord.Registry().ConnectedCount() > 0 {
		return
	}
	go l.onEmpty(l.code)
}

func (l *Lobby) refreshSummary() {
	l.summary.Store(Summary{
		Code:       l.code,
		Phase:      l.coord.Phase(),
		Connected:  l.coord.Registry().ConnectedCount(),
		MaxPlayers: l.coord.Config().MaxPlayers,
		Version:    l.version,
	})
}

func (l *Lobby) shutdown() {
	scheduler{l}.CancelAll()
	for id, ch := range l.clients {
		close(ch) // Tell client no more messages
		delete(l.clients, id)
	}
	l.cancel()
	l.records.Wait()
	l.log.Info("session closed")
}

// Inbox exposes the inbox so tests or the WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Code() string { return l.code }

// Done is closed once the session goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Summary may be called from any goroutine.
func (l *Lobby) Summary() Summary { return l.summary.Load().(Summary) }

// Send posts m unless the session has closed or ctx ends first.
func (l *Lobby) Send(ctx context.Context, m Msg) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect joins clientID and waits for the session's verdict. On success
// outbox receives the joiner's StateSync first.
func (l *Lobby) Connect(ctx context.Context, clientID, name string, outbox chan Message) error {
	res := make(chan error, 1)
	if err := l.Send(ctx, Join{ClientID: clientID, Name: name, Outbox: outbox, Reply: res}); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State asks the session goroutine for a View.
func (l *Lobby) State(ctx context.Context) (View, error) {
	res := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: res}); err != nil {
		return View{}, err
	}
	select {
	case v := <-res:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
	"github.com/DoyleJ11/quadpong-server/internal/lobby"
	"github.com/DoyleJ11/quadpong-server/internal/sim"
	"github.com/DoyleJ11/quadpong-server/internal/store"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrStopped  = errors.New("hub stopped")
)

const maxCodeAttempts = 16

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Reply chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetSession struct {
	Code  string
	Reply chan *lobby.Lobby // nil if unknown
}

// RemoveSession drops a session. With IfEmpty set it is kept when somebody
// joined in the meantime.
type RemoveSession struct {
	Code    string
	IfEmpty bool
}

type ListSessions struct {
	Reply chan []lobby.Summary
}

type ShutdownHub struct {
	Reply chan []<-chan struct{}
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

// Collaborators builds the simulation and presentation for a new session.
type Collaborators func(code string) (engine.Simulation, engine.Presentation)

type Options struct {
	Catalog       engine.Catalog
	Tuning        engine.Tuning
	Sinks         []lobby.Sink
	Recorder      store.Recorder
	Collaborators Collaborators
	Logger        *zap.Logger
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	opts    Options
	root    *zap.Logger
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Collaborators == nil {
		opts.Collaborators = func(code string) (engine.Simulation, engine.Presentation) {
			h := sim.New(log.With(zap.String("session", code)))
			return h, h
		}
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		opts:    opts,
		root:    log,
		log:     log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.create()

			case GetSession:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case RemoveSession:
				lb := h.lobbies[msg.Code]
				if lb == nil {
					break
				}
				if msg.IfEmpty && lb.Summary().Connected > 0 {
					break
				}
				delete(h.lobbies, msg.Code)
				h.log.Info("session removed", zap.String("session", msg.Code))
				go lb.Send(context.Background(), lobby.Shutdown{})

			case ListSessions:
				out := make([]lobby.Summary, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					out = append(out, lb.Summary())
				}
				sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
				msg.Reply <- out

			case ShutdownHub:
				done := make([]<-chan struct{}, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					go lb.Send(context.Background(), lobby.Shutdown{})
					done = append(done, lb.Done())
				}
				clear(h.lobbies)
				msg.Reply <- done
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create() CreateResult {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateCode()
		if err != nil {
			return CreateResult{Err: fmt.Errorf("generate code: %w", err)}
		}
		if h.lobbies[code] != nil {
			h.log.Debug("collision on code, regenerating", zap.String("code", code))
			continue
		}
		return CreateResult{Lobby: h.open(code)}
	}
	return CreateResult{Err: errors.New("no free session code")}
}

func (h *Hub) open(code string) *lobby.Lobby {
	simulation, presentation := h.opts.Collaborators(code)
	lb := lobby.NewLobby(h.ctx, lobby.Options{
		Code:         code,
		Catalog:      h.opts.Catalog,
		Tuning:       h.opts.Tuning,
		Simulation:   simulation,
		Presentation: presentation,
		Sinks:        h.opts.Sinks,
		Recorder:     h.opts.Recorder,
		Logger:       h.root,
		OnEmpty:      h.removeIfEmpty,
	})
	h.lobbies[code] = lb
	h.log.Info("session opened", zap.String("session", code))
	return lb
}

func (h *Hub) removeIfEmpty(code string) {
	select {
	case h.inbox <- RemoveSession{Code: code, IfEmpty: true}:
	case <-h.done:
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create opens a session under a fresh code.
func (h *Hub) Create(ctx context.Context) (*lobby.Lobby, error) {
	reply := make(chan CreateResult, 1)
	if err := h.send(ctx, CreateSession{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Lobby, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetSession{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, ErrNotFound
		}
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) List(ctx context.Context) ([]lobby.Summary, error) {
	reply := make(chan []lobby.Summary, 1)
	if err := h.send(ctx, ListSessions{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case out := <-reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every session and waits for them to exit.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan []<-chan struct{}, 1)
	if err := h.send(ctx, ShutdownHub{Reply: reply}); err != nil {
		return err
	}
	var done []<-chan struct{}
	select {
	case done = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, d := range done {
		select {
		case <-d:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

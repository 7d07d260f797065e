package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
	"github.com/DoyleJ11/quadpong-server/internal/hub"
	"github.com/DoyleJ11/quadpong-server/internal/lobby"
	"github.com/DoyleJ11/quadpong-server/internal/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	pingInterval = 20 * time.Second
	maxNameLen   = 24
)

type Config struct {
	MsgsPerSec     float64
	Burst          int
	OriginPatterns []string
}

func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		code, ok := hub.NormalizeCode(r.URL.Query().Get("code"))
		if !ok {
			http.Error(w, "missing or malformed code", http.StatusBadRequest)
			return
		}
		name := clampName(r.URL.Query().Get("name"))

		lb, err := h.Get(r.Context(), code)
		if err != nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		clog := log.With(zap.String("session", code), zap.String("conn", clientID))

		out := make(chan lobby.Message, outboxSize)
		if err := lb.Connect(r.Context(), clientID, name, out); err != nil {
			clog.Info("join refused", zap.Error(err))
			writeError(r.Context(), conn, err.Error())
			conn.Close(websocket.StatusPolicyViolation, joinRefusal(err))
			return
		}
		defer func() { _ = lb.Send(context.Background(), lobby.Leave{ClientID: clientID}) }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go writeLoop(ctx, cancel, conn, out, clog)

		limiter := rate.NewLimiter(rate.Limit(cfg.MsgsPerSec), cfg.Burst)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("client closed")
				default:
					clog.Debug("read failed", zap.Error(err))
				}
				return
			}

			if !limiter.Allow() {
				writeError(ctx, conn, "rate limited")
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(ctx, conn, "bad json")
				continue
			}

			msg, ok := toLobbyMsg(clientID, cm)
			if !ok {
				writeError(ctx, conn, "unknown type")
				continue
			}
			if err := lb.Send(ctx, msg); err != nil {
				return
			}
		}
	}
}

// writeLoop drains the outbox. A closed outbox means the session dropped
// this client (kick, slow consumer or shutdown).
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan lobby.Message, log *zap.Logger) {
	defer cancel()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case m, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "removed from session")
				return
			}
			msg := types.ServerMessage{Type: string(m.Event.Type), Version: m.Version, Payload: m.Event.Payload}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// clampName keeps at most maxNameLen runes of valid UTF-8.
func clampName(name string) string {
	name = strings.ToValidUTF8(name, "")
	if utf8.RuneCountInString(name) <= maxNameLen {
		return name
	}
	return string([]rune(name)[:maxNameLen])
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(wctx, conn, types.ServerMessage{Type: types.TypeError, Error: reason})
}

func joinRefusal(err error) string {
	switch {
	case errors.Is(err, engine.ErrSessionFull):
		return "session full"
	case errors.Is(err, lobby.ErrClosed):
		return "session closed"
	default:
		return "join refused"
	}
}

func toLobbyMsg(clientID string, m types.ClientMessage) (lobby.Msg, bool) {
	switch m.Type {
	case types.TypeGoalScored:
		return lobby.SimReport{ClientID: clientID, Report: engine.Report{Type: engine.ReportGoalScored, SlotID: m.SlotID}}, true
	case types.TypeGoalConceded:
		return lobby.SimReport{ClientID: clientID, Report: engine.Report{Type: engine.ReportGoalConceded, SlotID: m.SlotID}}, true
	case types.TypePaddleHit:
		return lobby.SimReport{ClientID: clientID, Report: engine.Report{Type: engine.ReportPaddleHit, SlotID: m.SlotID}}, true
	}

	req, ok := toEngineRequest(m)
	if !ok {
		return nil, false
	}
	return lobby.FromClient{ClientID: clientID, Req: req}, true
}

func toEngineRequest(m types.ClientMessage) (engine.Request, bool) {
	switch t := engine.RequestType(m.Type); t {
	case engine.ReqSetMaxPlayers, engine.ReqSetMaxScore, engine.ReqNominateTarget:
		return engine.Request{Type: t, Value: m.Value}, true
	case engine.ReqSetReady:
		return engine.Request{Type: t, SlotID: m.SlotID}, true
	case engine.ReqClaimItem, engine.ReqUseItem:
		return engine.Request{Type: t, SlotID: m.SlotID, ItemID: m.ItemID}, true
	case engine.ReqStartMatch, engine.ReqRestartMatch:
		return engine.Request{Type: t}, true
	default:
		return engine.Request{}, false
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
	"github.com/DoyleJ11/quadpong-server/internal/hub"
	"github.com/DoyleJ11/quadpong-server/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MatchHistory is the read side of the match store.
type MatchHistory interface {
	RecentMatches(ctx context.Context, code string, limit int) ([]store.MatchResult, error)
}

type sessionDetail struct {
	Code         string               `json:"code"`
	Version      int                  `json:"version"`
	Phase        engine.Phase         `json:"phase"`
	Config       engine.MatchConfig   `json:"config"`
	HostSlot     int                  `json:"host_slot"`
	Participants []publicParticipant  `json:"participants"`
	Scores       [engine.MaxSlots]int `json:"scores"`
	SpecialMode  bool                 `json:"special_mode"`
}

// matchSummary is the API shape of a stored match result.
type matchSummary struct {
	SessionCode   string               `json:"session_code"`
	WinnerSlot    int                  `json:"winner_slot"`
	Scores        [engine.MaxSlots]int `json:"scores"`
	MaxScoreToWin int                  `json:"max_score_to_win"`
	Players       []string             `json:"players"`
	EndedAt       time.Time            `json:"ended_at"`
}

// publicParticipant leaves out the connection id.
type publicParticipant struct {
	SlotID      int    `json:"slot_id"`
	DisplayName string `json:"display_name"`
	Connected   bool   `json:"connected"`
	Ready       bool   `json:"ready"`
}

func CreateSession(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Create(r.Context())
		if err != nil {
			log.Error("create session", zap.Error(err))
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			Code string `json:"code"`
		}{Code: lb.Code()})
	}
}

func ListSessions(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := h.List(r.Context())
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, ok := hub.NormalizeCode(chi.URLParam(r, "code"))
		if !ok {
			http.Error(w, "malformed code", http.StatusBadRequest)
			return
		}
		lb, err := h.Get(r.Context(), code)
		if errors.Is(err, hub.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		v, err := lb.State(r.Context())
		if err != nil {
			http.Error(w, "session closed", http.StatusGone)
			return
		}

		detail := sessionDetail{
			Code:        code,
			Version:     v.Version,
			Phase:       v.Phase,
			Config:      v.State.Config,
			HostSlot:    v.State.HostSlot,
			Scores:      v.State.Scores,
			SpecialMode: v.State.SpecialMode,
		}
		for _, p := range v.State.Participants {
			detail.Participants = append(detail.Participants, publicParticipant{
				SlotID:      p.SlotID,
				DisplayName: p.DisplayName,
				Connected:   p.Connected,
				Ready:       p.Ready,
			})
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func MatchHistoryHandler(history MatchHistory, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, store.ErrNotConfigured.Error(), http.StatusNotImplemented)
			return
		}
		code, ok := hub.NormalizeCode(chi.URLParam(r, "code"))
		if !ok {
			http.Error(w, "malformed code", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := history.RecentMatches(r.Context(), code, limit)
		if err != nil {
			log.Error("match history", zap.String("session", code), zap.Error(err))
			http.Error(w, "failed to load matches", http.StatusInternalServerError)
			return
		}
		out := make([]matchSummary, 0, len(rows))
		for _, row := range rows {
			out = append(out, matchSummary{
				SessionCode:   row.SessionCode,
				WinnerSlot:    row.WinnerSlot,
				Scores:        row.Scores(),
				MaxScoreToWin: row.MaxScoreToWin,
				Players:       row.Players,
				EndedAt:       row.EndedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

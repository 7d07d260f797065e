// Package sim holds the server side stand-in for the physics and presentation
// collaborators. Ball motion and rendering run in the host's game client; the
// server only tracks which entities and modifiers should exist so that
// reconnecting clients and tests can inspect them.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Headless struct {
	log *zap.Logger

	mu     sync.Mutex
	next   int
	balls  map[string]bool
	speed  map[string]float64
	tilted map[int]bool
	themes map[int]int
}

// Stats is a point in time copy of the tracked entities.
type Stats struct {
	Balls  []string           `json:"balls"`
	Speeds map[string]float64 `json:"speeds"`
	Tilted []int              `json:"tilted"`
	Themes map[int]int        `json:"themes"`
}

func New(log *zap.Logger) *Headless {
	if log == nil {
		log = zap.NewNop()
	}
	return &Headless{
		log:    log.Named("sim"),
		balls:  map[string]bool{},
		speed:  map[string]float64{},
		tilted: map[int]bool{},
		themes: map[int]int{},
	}
}

func (h *Headless) SpawnBall() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := fmt.Sprintf("ball-%d", h.next)
	h.balls[id] = true
	h.log.Debug("spawn ball", zap.String("ball", id))
	return id
}

func (h *Headless) DespawnBall(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.balls, id)
	delete(h.speed, id)
	h.log.Debug("despawn ball", zap.String("ball", id))
}

func (h *Headless) DespawnAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.balls = map[string]bool{}
	h.speed = map[string]float64{}
	h.log.Debug("despawn all")
}

// SetSpeedMultiplier records factor for id, or for every live ball when id is
// empty. A factor of 1 clears the modifier. The revert itself is driven by
// the session timer, so d is informational.
func (h *Headless) SetSpeedMultiplier(id string, factor float64, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	targets := []string{id}
	if id == "" {
		targets = targets[:0]
		for b := range h.balls {
			targets = append(targets, b)
		}
	}
	for _, b := range targets {
		if factor == 1 {
			delete(h.speed, b)
			continue
		}
		h.speed[b] = factor
	}
	h.log.Debug("speed multiplier", zap.String("ball", id), zap.Float64("factor", factor), zap.Duration("for", d))
}

func (h *Headless) SetPaddleTilt(slot int, tilted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tilted {
		h.tilted[slot] = true
	} else {
		delete(h.tilted, slot)
	}
	h.log.Debug("paddle tilt", zap.Int("slot", slot), zap.Bool("tilted", tilted))
}

func (h *Headless) ApplyVisualTheme(slot int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.themes[slot]++
	h.log.Debug("visual theme", zap.Int("slot", slot))
}

func (h *Headless) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{
		Balls:  make([]string, 0, len(h.balls)),
		Speeds: make(map[string]float64, len(h.speed)),
		Tilted: make([]int, 0, len(h.tilted)),
		Themes: make(map[int]int, len(h.themes)),
	}
	for b := range h.balls {
		s.Balls = append(s.Balls, b)
	}
	sort.Strings(s.Balls)
	for b, f := range h.speed {
		s.Speeds[b] = f
	}
	for slot := range h.tilted {
		s.Tilted = append(s.Tilted, slot)
	}
	sort.Ints(s.Tilted)
	for slot, n := range h.themes {
		s.Themes[slot] = n
	}
	return s
}

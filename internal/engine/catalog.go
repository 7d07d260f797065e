package engine

import (
	"fmt"
	"time"
)

type EffectKind string

const (
	EffectGlobalModeSwitch  EffectKind = "global_mode_switch"
	EffectExtraBallSpawn    EffectKind = "extra_ball_spawn"
	EffectSpeedMultiplier   EffectKind = "speed_multiplier"
	EffectSoundtrackAdvance EffectKind = "soundtrack_advance"
	EffectTargetedTilt      EffectKind = "targeted_tilt"
	EffectPointSteal        EffectKind = "point_steal"
)

var effectKinds = map[EffectKind]bool{
	EffectGlobalModeSwitch:  true,
	EffectExtraBallSpawn:    true,
	EffectSpeedMultiplier:   true,
	EffectSoundtrackAdvance: true,
	EffectTargetedTilt:      true,
	EffectPointSteal:        true,
}

// timed reports whether the effect needs a duration to revert.
func (k EffectKind) timed() bool {
	switch k {
	case EffectExtraBallSpawn, EffectSpeedMultiplier, EffectTargetedTilt:
		return true
	}
	return false
}

type DisplayMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Item struct {
	ID       string        `json:"id"`
	Display  DisplayMeta   `json:"display"`
	Effect   EffectKind    `json:"effect"`
	Duration time.Duration `json:"duration"`
	Factor   float64       `json:"factor,omitempty"`
	Reusable bool          `json:"reusable"`
}

// Catalog is the static item list, in declaration order.
type Catalog []Item

func (c Catalog) Lookup(id string) (Item, bool) {
	for _, it := range c {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Distinct returns the first item of every effect kind, in catalog order.
func (c Catalog) Distinct() []Item {
	seen := make(map[EffectKind]bool, len(effectKinds))
	out := make([]Item, 0, len(effectKinds))
	for _, it := range c {
		if seen[it.Effect] {
			continue
		}
		seen[it.Effect] = true
		out = append(out, it)
	}
	return out
}

func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog is empty")
	}
	ids := make(map[string]bool, len(c))
	for i, it := range c {
		if it.ID == "" {
			return fmt.Errorf("catalog item %d: missing id", i)
		}
		if ids[it.ID] {
			return fmt.Errorf("catalog item %q: duplicate id", it.ID)
		}
		ids[it.ID] = true
		if !effectKinds[it.Effect] {
			return fmt.Errorf("catalog item %q: unknown effect %q", it.ID, it.Effect)
		}
		if it.Effect.timed() && it.Duration <= 0 {
			return fmt.Errorf("catalog item %q: %s needs a positive duration", it.ID, it.Effect)
		}
		if it.Effect == EffectSpeedMultiplier && it.Factor <= 0 {
			return fmt.Errorf("catalog item %q: speed multiplier needs a positive factor", it.ID)
		}
	}
	return nil
}

func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:      "mirror-world",
			Display: DisplayMeta{Name: "Mirror World", Description: "Everyone's controls flip for a while", Icon: "boon_mirror"},
			Effect:  EffectGlobalModeSwitch,
		},
		{
			ID:       "twin-ball",
			Display:  DisplayMeta{Name: "Twin Ball", Description: "A second ball joins the court", Icon: "boon_twin"},
			Effect:   EffectExtraBallSpawn,
			Duration: 10 * time.Second,
		},
		{
			ID:       "overdrive",
			Display:  DisplayMeta{Name: "Overdrive", Description: "The ball moves faster", Icon: "boon_overdrive"},
			Effect:   EffectSpeedMultiplier,
			Duration: 8 * time.Second,
			Factor:   1.5,
		},
		{
			ID:       "next-track",
			Display:  DisplayMeta{Name: "DJ Booth", Description: "Skip to the next track", Icon: "boon_dj"},
			Effect:   EffectSoundtrackAdvance,
			Reusable: true,
		},
		{
			ID:       "wobble",
			Display:  DisplayMeta{Name: "Wobble", Description: "Tilt a rival's paddle", Icon: "boon_wobble"},
			Effect:   EffectTargetedTilt,
			Duration: 6 * time.Second,
		},
		{
			ID:      "pickpocket",
			Display: DisplayMeta{Name: "Pickpocket", Description: "Steal points from a rival", Icon: "boon_pickpocket"},
			Effect:  EffectPointSteal,
		},
		{
			ID:       "slowpoke",
			Display:  DisplayMeta{Name: "Slowpoke", Description: "The ball crawls", Icon: "boon_slowpoke"},
			Effect:   EffectSpeedMultiplier,
			Duration: 8 * time.Second,
			Factor:   0.6,
		},
	}
}

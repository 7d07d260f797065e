package lobby

import (
	"time"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
)

// scheduler arms engine timers on behalf of the coordinator. It is only
// used from the session goroutine; fires come back through the inbox
// tagged with a generation so cancelled or re-armed timers are ignored.
type scheduler struct{ l *Lobby }

func (s scheduler) Schedule(key engine.TimerKey, after time.Duration) {
	l := s.l
	s.Cancel(key)
	l.timerGen++
	gen := l.timerGen
	t := time.AfterFunc(after, func() {
		select {
		case l.inbox <- timerFired{key: key, gen: gen}:
		case <-l.ctx.Done():
		}
	})
	l.timers[key] = armedTimer{gen: gen, t: t}
}

func (s scheduler) Cancel(key engine.TimerKey) {
	if armed, ok := s.l.timers[key]; ok {
		armed.t.Stop()
		delete(s.l.timers, key)
	}
}

func (s scheduler) CancelAll() {
	for key, armed := range s.l.timers {
		armed.t.Stop()
		delete(s.l.timers, key)
	}
}

func (l *Lobby) armedKeys() []engine.TimerKey {
	keys := make([]engine.TimerKey, 0, len(l.timers))
	for k := range l.timers {
		keys = append(keys, k)
	}
	return keys
}

package monitor

import (
	"sync"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
)

type cooldownKey struct {
	id   string
	kind domain.AlertKind
}

// CooldownGate suppresses repeated alerts of the same kind for a vessel.
// The window is anchored on the last allowed alert: suppressed attempts never
// move it.
type CooldownGate struct {
	mu        sync.Mutex
	cooldowns map[string]time.Duration
	lastFired map[cooldownKey]time.Time
}

func NewCooldownGate() *CooldownGate {
	return &CooldownGate{
		cooldowns: make(map[string]time.Duration),
		lastFired: make(map[cooldownKey]time.Time),
	}
}

// Track sets the cooldown used for id. Untracked vessels have no cooldown.
func (g *CooldownGate) Track(id string, cooldown time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldowns[id] = cooldown
}

// Forget drops the cooldown and every anchor recorded for id.
func (g *CooldownGate) Forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cooldowns, id)
	for k := range g.lastFired {
		if k.id == id {
			delete(g.lastFired, k)
		}
	}
}

func (g *CooldownGate) Allow(id string, kind domain.AlertKind, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := cooldownKey{id: id, kind: kind}
	last, seen := g.lastFired[key]
	if seen && now.Sub(last) < g.cooldowns[id] {
		return false
	}
	g.lastFired[key] = now
	return true
}

func (g *CooldownGate) lastFiredAt(id string, kind domain.AlertKind) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastFired[cooldownKey{id: id, kind: kind}]
	return t, ok
}

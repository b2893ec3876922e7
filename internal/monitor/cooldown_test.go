package monitor

import (
	"testing"
	"time"

	"fleet-monitor/speedwatch/internal/domain"
)

func TestCooldownGateAnchorsOnFire(t *testing.T) {
	g := NewCooldownGate()
	g.Track("v1", 10*time.Second)

	t0 := time.Unix(1700000000, 0)
	if !g.Allow("v1", domain.AlertStopped, t0) {
		t.Fatal("first occurrence must be allowed")
	}
	for _, d := range []time.Duration{time.Second, 2 * time.Second, 9 * time.Second} {
		if g.Allow("v1", domain.AlertStopped, t0.Add(d)) {
			t.Fatalf("alert at t+%v should be suppressed", d)
		}
	}

	last, ok := g.lastFiredAt("v1", domain.AlertStopped)
	if !ok || !last.Equal(t0) {
		t.Fatalf("lastFiredAt = %v, %v; want anchor %v", last, ok, t0)
	}

	if !g.Allow("v1", domain.AlertStopped, t0.Add(10*time.Second)) {
		t.Fatal("alert at t+C should be allowed")
	}
	if g.Allow("v1", domain.AlertStopped, t0.Add(11*time.Second)) {
		t.Fatal("window should re-anchor at t+C")
	}
}

func TestCooldownGateKindsAndVesselsAreIndependent(t *testing.T) {
	g := NewCooldownGate()
	g.Track("v1", time.Minute)
	g.Track("v2", time.Minute)

	now := time.Unix(1700000000, 0)
	if !g.Allow("v1", domain.AlertStopped, now) {
		t.Fatal("v1 STOPPED should be allowed")
	}
	if !g.Allow("v1", domain.AlertRecovered, now) {
		t.Fatal("v1 RECOVERED has its own window")
	}
	if !g.Allow("v2", domain.AlertStopped, now) {
		t.Fatal("v2 STOPPED has its own window")
	}
	if g.Allow("v1", domain.AlertStopped, now.Add(time.Second)) {
		t.Fatal("v1 STOPPED should be suppressed")
	}
}

func TestCooldownGateZeroCooldownAndForget(t *testing.T) {
	g := NewCooldownGate()
	now := time.Unix(1700000000, 0)

	// Untracked vessels behave as cooldown 0.
	if !g.Allow("v1", domain.AlertSlowdown, now) || !g.Allow("v1", domain.AlertSlowdown, now) {
		t.Fatal("zero cooldown should always allow")
	}

	g.Track("v2", time.Hour)
	g.Allow("v2", domain.AlertSlowdown, now)
	g.Forget("v2")
	if _, ok := g.lastFiredAt("v2", domain.AlertSlowdown); ok {
		t.Fatal("Forget should drop anchors")
	}
	if !g.Allow("v2", domain.AlertSlowdown, now.Add(time.Second)) {
		t.Fatal("forgotten vessel starts fresh")
	}
}

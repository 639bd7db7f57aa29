package domain

import (
	"testing"
	"time"
)

func TestVisitorIdleFor(t *testing.T) {
	now := time.Now()
	v := &Visitor{LastSeenAt: now.Add(-5 * time.Minute)}
	if got := v.IdleFor(now); got != 5*time.Minute {
		t.Errorf("expected 5m idle, got %s", got)
	}

	future := &Visitor{LastSeenAt: now.Add(time.Minute)}
	if got := future.IdleFor(now); got != 0 {
		t.Errorf("expected 0 idle for clock skew, got %s", got)
	}
}

func TestNewChatMessage(t *testing.T) {
	a := NewChatMessage(SpeakerVisitor, "hello")
	b := NewChatMessage(SpeakerVisitor, "hello")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique non-empty IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Speaker != SpeakerVisitor || a.Text != "hello" {
		t.Errorf("unexpected message: %+v", a)
	}
	if a.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestPageViewPersonalized(t *testing.T) {
	if (&PageView{}).Personalized() {
		t.Error("expected view without exec name to be unpersonalized")
	}
	if !(&PageView{ExecName: "Dana"}).Personalized() {
		t.Error("expected view with exec name to be personalized")
	}
}

package app

import (
	"strings"
	"testing"
	"time"
)

func waitDone(t *testing.T, r *Revealer, userID int64, slot string) RevealFrame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := r.Frame(userID, slot); ok && f.Done {
			return f
		}
		time.Sleep(2 * time.Millisecond)
	}
	f, _ := r.Frame(userID, slot)
	t.Fatalf("reveal in %q did not finish, last frame %+v", slot, f)
	return RevealFrame{}
}

func TestRevealerDisclosesWholeText(t *testing.T) {
	r := NewRevealer(time.Millisecond)
	defer r.Stop()

	r.Start(1, "explain", "req-1", "Give way.")
	f := waitDone(t, r, 1, "explain")
	if f.Text != "Give way." || f.RequestID != "req-1" {
		t.Fatalf("unexpected final frame %+v", f)
	}
	if r.Active(1, "explain") {
		t.Fatalf("finished reveal should not be active")
	}
}

func TestRevealerEmptyText(t *testing.T) {
	r := NewRevealer(time.Millisecond)
	defer r.Stop()
	r.Start(1, "advice", "req", "")
	if f := waitDone(t, r, 1, "advice"); f.Text != "" {
		t.Fatalf("expected empty final frame, got %+v", f)
	}
}

func TestRevealerSupersede(t *testing.T) {
	r := NewRevealer(2 * time.Millisecond)
	defer r.Stop()

	first := r.Start(1, "explain", "old", strings.Repeat("a", 200))
	time.Sleep(10 * time.Millisecond)
	second := r.Start(1, "explain", "new", "ok")
	if second <= first {
		t.Fatalf("generation must grow, got %d then %d", first, second)
	}

	f := waitDone(t, r, 1, "explain")
	if f.RequestID != "new" || f.Text != "ok" {
		t.Fatalf("superseded task leaked into the slot: %+v", f)
	}
	time.Sleep(20 * time.Millisecond)
	if f2, _ := r.Frame(1, "explain"); f2 != f {
		t.Fatalf("old task wrote after being superseded: %+v", f2)
	}
}

func TestRevealerCancel(t *testing.T) {
	r := NewRevealer(2 * time.Millisecond)
	defer r.Stop()

	r.Start(1, "explain", "req", strings.Repeat("b", 200))
	time.Sleep(10 * time.Millisecond)
	r.Cancel(1, "explain")
	before, _ := r.Frame(1, "explain")

	time.Sleep(20 * time.Millisecond)
	after, _ := r.Frame(1, "explain")
	if before != after {
		t.Fatalf("cancelled task kept writing: %q -> %q", before.Text, after.Text)
	}
	if after.Done || r.Active(1, "explain") {
		t.Fatalf("cancelled reveal should be inactive and unfinished")
	}
}

func TestRevealerSlotsAreIndependent(t *testing.T) {
	r := NewRevealer(time.Millisecond)
	defer r.Stop()

	r.Start(1, "explain", "e", "left")
	r.Start(1, "advice", "a", "right")
	r.Start(2, "explain", "x", "other user")

	if f := waitDone(t, r, 1, "explain"); f.Text != "left" {
		t.Fatalf("explain slot got %+v", f)
	}
	if f := waitDone(t, r, 1, "advice"); f.Text != "right" {
		t.Fatalf("advice slot got %+v", f)
	}
	if f := waitDone(t, r, 2, "explain"); f.Text != "other user" {
		t.Fatalf("second user got %+v", f)
	}
}

func TestRevealerSubscribeFiltersByUser(t *testing.T) {
	r := NewRevealer(time.Millisecond)
	defer r.Stop()

	frames, cancel := r.Subscribe(1)
	defer cancel()

	r.Start(2, "explain", "x", "not yours")
	r.Start(1, "explain", "y", "hi")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-frames:
			if f.UserID != 1 {
				t.Fatalf("received another user's frame %+v", f)
			}
			if f.Done {
				if f.Text != "hi" {
					t.Fatalf("unexpected final text %q", f.Text)
				}
				return
			}
		case <-timeout:
			t.Fatalf("no final frame received")
		}
	}
}

package app

import (
	"context"
	"sync"
	"time"
)

// RevealFrame is one step of a progressive text disclosure.
type RevealFrame struct {
	UserID    int64  `json:"userId"`
	Slot      string `json:"slot"`
	RequestID string `json:"requestId"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
}

type slotKey struct {
	userID int64
	slot   string
}

type revealTask struct {
	gen    uint64
	cancel context.CancelFunc
}

// Revealer discloses fetched text one rune per tick into a per-user slot.
// Starting a reveal on a slot supersedes the previous one; a superseded or
// cancelled task never writes again.
type Revealer struct {
	pace time.Duration

	mu          sync.Mutex
	gen         uint64
	tasks       map[slotKey]revealTask
	frames      map[slotKey]RevealFrame
	subscribers map[chan RevealFrame]int64
	wg          sync.WaitGroup
}

func NewRevealer(pace time.Duration) *Revealer {
	if pace <= 0 {
		pace = 20 * time.Millisecond
	}
	return &Revealer{
		pace:        pace,
		tasks:       make(map[slotKey]revealTask),
		frames:      make(map[slotKey]RevealFrame),
		subscribers: make(map[chan RevealFrame]int64),
	}
}

// Start begins revealing text into the slot and returns the task generation.
func (r *Revealer) Start(userID int64, slot, requestID, text string) uint64 {
	key := slotKey{userID: userID, slot: slot}
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if prev, ok := r.tasks[key]; ok {
		prev.cancel()
	}
	r.gen++
	gen := r.gen
	r.tasks[key] = revealTask{gen: gen, cancel: cancel}
	r.writeLocked(key, RevealFrame{UserID: userID, Slot: slot, RequestID: requestID})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx, key, gen, requestID, []rune(text))
	return gen
}

func (r *Revealer) run(ctx context.Context, key slotKey, gen uint64, requestID string, runes []rune) {
	defer r.wg.Done()
	if len(runes) == 0 {
		r.write(key, gen, RevealFrame{UserID: key.userID, Slot: key.slot, RequestID: requestID, Done: true})
		return
	}
	ticker := time.NewTicker(r.pace)
	defer ticker.Stop()
	for shown := 1; shown <= len(runes); shown++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame := RevealFrame{
			UserID:    key.userID,
			Slot:      key.slot,
			RequestID: requestID,
			Text:      string(runes[:shown]),
			Done:      shown == len(runes),
		}
		if !r.write(key, gen, frame) {
			return
		}
	}
}

// write publishes the frame only if gen still owns the slot.
func (r *Revealer) write(key slotKey, gen uint64, frame RevealFrame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[key]
	if !ok || task.gen != gen {
		return false
	}
	r.writeLocked(key, frame)
	if frame.Done {
		task.cancel()
		delete(r.tasks, key)
	}
	return true
}

func (r *Revealer) writeLocked(key slotKey, frame RevealFrame) {
	r.frames[key] = frame
	for ch, userID := range r.subscribers {
		if userID != key.userID {
			continue
		}
		select {
		case ch <- frame:
		default:
			// slow reader: replace the oldest pending frame
			select {
			case <-ch:
			default:
			}
			ch <- frame
		}
	}
}

// Cancel stops the reveal in a slot, e.g. when the user navigates away.
func (r *Revealer) Cancel(userID int64, slot string) {
	key := slotKey{userID: userID, slot: slot}
	r.mu.Lock()
	if task, ok := r.tasks[key]; ok {
		task.cancel()
		delete(r.tasks, key)
	}
	r.mu.Unlock()
}

// Frame returns the latest frame written to a slot.
func (r *Revealer) Frame(userID int64, slot string) (RevealFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.frames[slotKey{userID: userID, slot: slot}]
	return f, ok
}

// Active reports whether a reveal is still running in the slot.
func (r *Revealer) Active(userID int64, slot string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[slotKey{userID: userID, slot: slot}]
	return ok
}

// Subscribe streams the user's frames. The caller must invoke the returned cancel function.
func (r *Revealer) Subscribe(userID int64) (<-chan RevealFrame, func()) {
	ch := make(chan RevealFrame, 16)
	r.mu.Lock()
	r.subscribers[ch] = userID
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// Stop cancels every running reveal and waits for the tasks to exit.
func (r *Revealer) Stop() {
	r.mu.Lock()
	for key, task := range r.tasks {
		task.cancel()
		delete(r.tasks, key)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

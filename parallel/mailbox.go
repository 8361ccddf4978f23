package parallel

import (
	"fmt"
	"sync"
	"time"
)

// MsgKey identifies one frame of one collective call from the point of view
// of the receiver: the collective's sequence number within its context and the
// sending rank.
type MsgKey struct {
	Seq uint64
	Src int
}

// Mailbox is the inbox of one rank for one communication context. Every key is
// posted exactly once and taken exactly once, so each slot is a channel with
// capacity one and a Post never blocks a sender.
type Mailbox struct {
	mu    sync.Mutex
	slots map[MsgKey]chan []byte
}

func NewMailbox() *Mailbox {
	return &Mailbox{slots: make(map[MsgKey]chan []byte)}
}

func (mb *Mailbox) slot(key MsgKey) (ch chan []byte) {
	var exists bool
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if ch, exists = mb.slots[key]; !exists {
		ch = make(chan []byte, 1)
		mb.slots[key] = ch
	}
	return
}

// Post delivers msg to the slot for key.
func (mb *Mailbox) Post(key MsgKey, msg []byte) {
	mb.slot(key) <- msg
}

// Take waits for the frame posted under key. It fails with ErrAborted once
// abort is closed and with ErrTimeout after timeout; a zero timeout waits
// without limit.
func (mb *Mailbox) Take(key MsgKey, abort <-chan struct{}, timeout time.Duration) (msg []byte, err error) {
	var (
		ch      = mb.slot(key)
		expired <-chan time.Time
	)
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case msg = <-ch:
	case <-abort:
		return nil, ErrAborted
	case <-expired:
		return nil, fmt.Errorf("waiting on rank %d, sequence %d after %v: %w",
			key.Src, key.Seq, timeout, ErrTimeout)
	}
	mb.mu.Lock()
	delete(mb.slots, key)
	mb.mu.Unlock()
	return
}

// pending reports the number of slots posted or awaited but not yet taken.
func (mb *Mailbox) pending() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.slots)
}

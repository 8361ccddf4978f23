package parallel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// World runs an SPMD program on NP goroutine ranks inside one process. Ranks
// never share memory through the Group: every payload is copied on delivery.
type World struct {
	NP      int
	ID      string
	Timeout time.Duration

	inboxes []*InboxRegistry
	abort   chan struct{}
	once    sync.Once
}

func NewWorld(NP int) *World {
	return &World{NP: NP, ID: uuid.NewString()}
}

type worldTransport struct {
	w    *World
	rank int
}

func (t *worldTransport) Post(dst int, ctx string, key MsgKey, data []byte) error {
	if dst < 0 || dst >= t.w.NP {
		return fmt.Errorf("destination %d of %d: %w", dst, t.w.NP, ErrInvalidRank)
	}
	t.w.inboxes[dst].Deliver(ctx, key, data)
	return nil
}

func (t *worldTransport) Inbox(ctx string) *Mailbox { return t.w.inboxes[t.rank].Inbox(ctx) }
func (t *worldTransport) Abort() <-chan struct{}    { return t.w.abort }
func (t *worldTransport) Timeout() time.Duration    { return t.w.Timeout }

func (w *World) shutdown() { w.once.Do(func() { close(w.abort) }) }

func (w *World) group(rank int) *Endpoint {
	return NewEndpoint(&worldTransport{w, rank}, rank, w.NP, w.ID)
}

// Run executes fn once per rank, each on its own goroutine, and waits for all
// of them. The first rank to fail aborts the group so that peers blocked in a
// collective return ErrAborted instead of deadlocking. The returned error is
// the originating failure, not the induced aborts.
func (w *World) Run(fn func(g Group) error) (err error) {
	if w.NP < 1 {
		return fmt.Errorf("world of %d ranks: %w", w.NP, ErrInvalidRank)
	}
	w.inboxes = make([]*InboxRegistry, w.NP)
	for n := range w.inboxes {
		w.inboxes[n] = NewInboxRegistry()
	}
	w.abort = make(chan struct{})
	w.once = sync.Once{}

	var (
		wg   sync.WaitGroup
		errs = make([]error, w.NP)
	)
	for n := 0; n < w.NP; n++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			if errs[rank] = fn(w.group(rank)); errs[rank] != nil {
				w.shutdown()
			}
		}(n)
	}
	wg.Wait()
	for rank, e := range errs {
		if e != nil && !errors.Is(e, ErrAborted) {
			return fmt.Errorf("rank %d: %w", rank, e)
		}
	}
	for rank, e := range errs {
		if e != nil {
			return fmt.Errorf("rank %d: %w", rank, e)
		}
	}
	return nil
}

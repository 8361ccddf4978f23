package parallel

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Transport moves frames between ranks. Implementations deliver a frame posted
// to rank dst into dst's mailbox for the frame's context.
type Transport interface {
	Post(dst int, ctx string, key MsgKey, data []byte) error
	Inbox(ctx string) *Mailbox
	Abort() <-chan struct{}
	Timeout() time.Duration
}

// Endpoint is one rank's handle on one communication context. It implements
// Group over any Transport. An Endpoint is used by a single goroutine.
type Endpoint struct {
	t          Transport
	rank, size int
	ctx        string
	seq        uint64
}

var _ Group = (*Endpoint)(nil)

func NewEndpoint(t Transport, rank, size int, ctx string) *Endpoint {
	return &Endpoint{t: t, rank: rank, size: size, ctx: ctx}
}

func (e *Endpoint) Rank() int       { return e.rank }
func (e *Endpoint) Size() int       { return e.size }
func (e *Endpoint) Context() string { return e.ctx }

func (e *Endpoint) AllGather(data []byte) ([][]byte, error) {
	var (
		send     = make([][]byte, e.size)
		recvFrom = make([]bool, e.size)
	)
	if data == nil {
		data = []byte{}
	}
	for r := range send {
		send[r] = data
		recvFrom[r] = true
	}
	return e.Exchange(send, recvFrom)
}

func (e *Endpoint) Exchange(send [][]byte, recvFrom []bool) (recv [][]byte, err error) {
	if len(send) != e.size || len(recvFrom) != e.size {
		return nil, fmt.Errorf("exchange tables sized %d/%d for %d ranks: %w",
			len(send), len(recvFrom), e.size, ErrInvalidRank)
	}
	e.seq++
	var (
		key = MsgKey{Seq: e.seq, Src: e.rank}
		box = e.t.Inbox(e.ctx)
	)
	for dst, data := range send {
		if data == nil {
			continue
		}
		if err = e.t.Post(dst, e.ctx, key, data); err != nil {
			return nil, fmt.Errorf("posting to rank %d: %w", dst, err)
		}
	}
	recv = make([][]byte, e.size)
	for src, want := range recvFrom {
		if !want {
			continue
		}
		if recv[src], err = box.Take(MsgKey{Seq: e.seq, Src: src}, e.t.Abort(), e.t.Timeout()); err != nil {
			return nil, err
		}
	}
	return
}

// Dup agrees on a fresh context id chosen by rank 0.
func (e *Endpoint) Dup() (Group, error) {
	var (
		id  []byte
		err error
	)
	if e.rank == 0 {
		id = []byte(uuid.NewString())
	}
	if id, err = Bcast(e, 0, id); err != nil {
		return nil, fmt.Errorf("duplicating context %s: %w", e.ctx, err)
	}
	return NewEndpoint(e.t, e.rank, e.size, string(id)), nil
}

// inbox returns the mailbox for ctx in m, creating it on first use.
func inbox(m *xsync.Map[string, *Mailbox], ctx string) *Mailbox {
	if mb, ok := m.Load(ctx); ok {
		return mb
	}
	mb, _ := m.LoadOrStore(ctx, NewMailbox())
	return mb
}

// InboxRegistry holds the mailboxes of one rank keyed by context id. It is
// safe for concurrent use by the rank and by inbound delivery goroutines.
type InboxRegistry struct {
	boxes *xsync.Map[string, *Mailbox]
}

func NewInboxRegistry() *InboxRegistry {
	return &InboxRegistry{boxes: xsync.NewMap[string, *Mailbox]()}
}

func (ir *InboxRegistry) Inbox(ctx string) *Mailbox { return inbox(ir.boxes, ctx) }

// Deliver copies data into the mailbox for ctx.
func (ir *InboxRegistry) Deliver(ctx string, key MsgKey, data []byte) {
	ir.Inbox(ctx).Post(key, bytes.Clone(data))
}

// Len is the number of contexts seen so far.
func (ir *InboxRegistry) Len() int { return ir.boxes.Size() }

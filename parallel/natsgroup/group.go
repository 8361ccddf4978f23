// Package natsgroup carries a parallel.Group over NATS core publish/subscribe,
// one OS process per rank. Every rank of a session subscribes to its own
// subject; frames are routed into per-context mailboxes on arrival.
package natsgroup

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/notargets/meshpart/parallel"
)

const (
	DefaultPrefix         = "meshpart"
	DefaultStartupTimeout = 30 * time.Second
	pingInterval          = 100 * time.Millisecond

	headerContext = "Meshpart-Context"
	headerSeq     = "Meshpart-Seq"
	headerSrc     = "Meshpart-Src"
)

var (
	ErrConnectionRequired = errors.New("NATS connection is required")
	ErrInvalidConfig      = errors.New("invalid NATS group configuration")
)

// Config identifies this process within a session.
type Config struct {
	Prefix  string        // Subject prefix, DefaultPrefix when empty
	Session string        // Shared by all ranks of one run
	Rank    int           // This process, in [0, Size)
	Size    int           // Number of ranks
	Timeout time.Duration // Per receive limit; zero waits forever

	// StartupTimeout bounds the wait for every peer to subscribe,
	// DefaultStartupTimeout when zero.
	StartupTimeout time.Duration
}

func (c *Config) validate() error {
	if c.Session == "" {
		return fmt.Errorf("empty session: %w", ErrInvalidConfig)
	}
	if c.Size < 1 || c.Rank < 0 || c.Rank >= c.Size {
		return fmt.Errorf("rank %d of %d: %w", c.Rank, c.Size, ErrInvalidConfig)
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	return nil
}

// Group is the root context of a session. Dup'd contexts share its
// subscription and mailboxes.
type Group struct {
	*parallel.Endpoint
	t *transport
}

type transport struct {
	nc      *nats.Conn
	cfg     Config
	sub     *nats.Subscription
	ping    *nats.Subscription
	inboxes *parallel.InboxRegistry
	abort   chan struct{}
	once    sync.Once
}

// Connect subscribes this rank, waits until every peer of the session answers
// on its ping subject and returns the session's root group. NATS core drops
// frames published to a subject nobody listens on, so no collective may start
// before all ranks are subscribed.
func Connect(nc *nats.Conn, cfg Config) (g *Group, err error) {
	if nc == nil {
		return nil, ErrConnectionRequired
	}
	if err = cfg.validate(); err != nil {
		return
	}
	t := &transport{
		nc:      nc,
		cfg:     cfg,
		inboxes: parallel.NewInboxRegistry(),
		abort:   make(chan struct{}),
	}
	if t.sub, err = nc.Subscribe(t.subject(cfg.Rank), t.deliver); err != nil {
		return nil, fmt.Errorf("subscribing rank %d: %w", cfg.Rank, err)
	}
	if t.ping, err = nc.Subscribe(t.subject(cfg.Rank)+".ping", func(msg *nats.Msg) {
		_ = msg.Respond(nil)
	}); err != nil {
		_ = t.sub.Unsubscribe()
		return nil, fmt.Errorf("subscribing ping of rank %d: %w", cfg.Rank, err)
	}
	if err = nc.Flush(); err == nil {
		err = t.waitPeers()
	}
	if err != nil {
		_ = t.unsubscribe()
		return nil, err
	}
	g = &Group{
		Endpoint: parallel.NewEndpoint(t, cfg.Rank, cfg.Size, cfg.Session),
		t:        t,
	}
	return
}

func (t *transport) subject(rank int) string {
	return t.cfg.Prefix + "." + t.cfg.Session + "." + strconv.Itoa(rank)
}

func (t *transport) waitPeers() error {
	deadline := time.Now().Add(t.cfg.StartupTimeout)
	for peer := 0; peer < t.cfg.Size; peer++ {
		if peer == t.cfg.Rank {
			continue
		}
		for {
			if _, err := t.nc.Request(t.subject(peer)+".ping", nil, pingInterval); err == nil {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("rank %d never subscribed within %v: %w",
					peer, t.cfg.StartupTimeout, parallel.ErrTimeout)
			}
			time.Sleep(pingInterval)
		}
	}
	return nil
}

func (t *transport) unsubscribe() (err error) {
	err = t.sub.Unsubscribe()
	if perr := t.ping.Unsubscribe(); err == nil {
		err = perr
	}
	return
}

func (t *transport) deliver(msg *nats.Msg) {
	var (
		seq uint64
		src int
		err error
	)
	if seq, err = strconv.ParseUint(msg.Header.Get(headerSeq), 10, 64); err != nil {
		return
	}
	if src, err = strconv.Atoi(msg.Header.Get(headerSrc)); err != nil {
		return
	}
	t.inboxes.Deliver(msg.Header.Get(headerContext), parallel.MsgKey{Seq: seq, Src: src}, msg.Data)
}

func (t *transport) Post(dst int, ctx string, key parallel.MsgKey, data []byte) error {
	if dst < 0 || dst >= t.cfg.Size {
		return fmt.Errorf("destination %d of %d: %w", dst, t.cfg.Size, parallel.ErrInvalidRank)
	}
	msg := nats.NewMsg(t.subject(dst))
	msg.Header.Set(headerContext, ctx)
	msg.Header.Set(headerSeq, strconv.FormatUint(key.Seq, 10))
	msg.Header.Set(headerSrc, strconv.Itoa(key.Src))
	msg.Data = data
	return t.nc.PublishMsg(msg)
}

func (t *transport) Inbox(ctx string) *parallel.Mailbox { return t.inboxes.Inbox(ctx) }
func (t *transport) Abort() <-chan struct{}             { return t.abort }
func (t *transport) Timeout() time.Duration             { return t.cfg.Timeout }

// Close unsubscribes and fails every pending receive with parallel.ErrAborted.
// It does not close the NATS connection, which belongs to the caller.
func (g *Group) Close() (err error) {
	g.t.once.Do(func() {
		close(g.t.abort)
		err = g.t.unsubscribe()
	})
	return
}

// Session returns the session name shared by all ranks.
func (g *Group) Session() string { return g.t.cfg.Session }

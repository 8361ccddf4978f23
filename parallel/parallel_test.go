package parallel

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	sizes := func(pm *PartitionMap, buckets int) (n []int) {
		for b := 0; b < buckets; b++ {
			kMin, kMax := pm.GetBucketRange(b)
			n = append(n, kMax-kMin)
		}
		return
	}
	{ // Larger buckets lead, sizes differ by at most one
		assert.Equal(t, []int{4, 3, 3}, sizes(NewPartitionMap(3, 10), 3))
		assert.Equal(t, []int{1, 1, 0, 0}, sizes(NewPartitionMap(4, 2), 4))
		for n := 0; n < 300; n++ {
			var (
				got   = sizes(NewPartitionMap(32, n), 32)
				total = 0
			)
			for b, c := range got {
				total += c
				assert.LessOrEqual(t, got[0]-c, 1, "n=%d bucket %d", n, b)
				if b > 0 {
					assert.LessOrEqual(t, c, got[b-1], "n=%d bucket %d", n, b)
				}
			}
			assert.Equal(t, n, total)
		}
	}
	{ // Every index lands in the bucket whose range holds it, skipping empty ones
		for _, n := range []int{2, 10, 31, 32, 287} {
			pm := NewPartitionMap(32, n)
			last := 0
			for k := 0; k < n; k++ {
				bn, min, max := pm.GetBucket(k)
				kMin, kMax := pm.GetBucketRange(bn)
				require.True(t, min <= k && k < max, "n=%d k=%d", n, k)
				assert.Equal(t, [2]int{kMin, kMax}, [2]int{min, max})
				assert.GreaterOrEqual(t, bn, last)
				last = bn
			}
		}
	}
	{ // Out of range indices have no bucket
		pm := NewPartitionMap(3, 10)
		for _, k := range []int{-1, 10, 11} {
			bn, _, _ := pm.GetBucket(k)
			assert.Equal(t, -1, bn, "k=%d", k)
		}
		bn, _, _ := NewPartitionMap(2, 0).GetBucket(0)
		assert.Equal(t, -1, bn)
	}
}

func TestExclusiveScan(t *testing.T) {
	assert.Equal(t, []int{0}, ExclusiveScan(nil))
	assert.Equal(t, []int{0, 3, 3, 7}, ExclusiveScan([]int{3, 0, 4}))
}

func TestCodec(t *testing.T) {
	enc := NewEncoder(0)
	enc.PutInt(-7)
	enc.PutInts([]int{1, 2, 3})
	enc.PutFloats([]float64{0.5, -1.25})
	enc.PutUint64s([]uint64{math.MaxUint64})

	dec := NewDecoder(enc.Bytes())
	v, err := dec.Int()
	require.NoError(t, err)
	assert.Equal(t, -7, v)
	ints, err := dec.Ints()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ints)
	floats, err := dec.Floats()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -1.25}, floats)
	keys, err := dec.Uint64s()
	require.NoError(t, err)
	assert.Equal(t, []uint64{math.MaxUint64}, keys)
	assert.Equal(t, 0, dec.Remaining())

	_, err = dec.Int()
	assert.ErrorIs(t, err, ErrShortPayload)

	// A length prefix larger than the payload is rejected before allocating
	enc = NewEncoder(0)
	enc.PutInt(1 << 40)
	_, err = NewDecoder(enc.Bytes()).Ints()
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestWorldCollectives(t *testing.T) {
	for _, np := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("np=%d", np), func(t *testing.T) {
			err := NewWorld(np).Run(func(g Group) error {
				me := g.Rank()
				{ // AllGather returns each rank's contribution in rank order
					vals, err := AllGatherInt(g, 10*me)
					if err != nil {
						return err
					}
					for r, v := range vals {
						if v != 10*r {
							return fmt.Errorf("rank %d saw %d from %d", me, v, r)
						}
					}
				}
				{ // Personalized counts: rank r sends r+d to rank d
					counts := make([]int, g.Size())
					for d := range counts {
						counts[d] = me + d
					}
					recv, err := AllToAllInt(g, counts)
					if err != nil {
						return err
					}
					for src, v := range recv {
						if v != src+me {
							return fmt.Errorf("rank %d got %d from %d", me, v, src)
						}
					}
				}
				{ // Broadcast from the last rank
					root := g.Size() - 1
					var payload []byte
					if me == root {
						payload = []byte("mesh")
					}
					out, err := Bcast(g, root, payload)
					if err != nil {
						return err
					}
					if string(out) != "mesh" {
						return fmt.Errorf("rank %d received %q", me, out)
					}
				}
				{ // Gather on rank 0, rank r contributes r values
					v := make([]int, me)
					for i := range v {
						v[i] = me
					}
					vals, err := GatherInts(g, 0, v)
					if err != nil {
						return err
					}
					if me != 0 && vals != nil {
						return fmt.Errorf("rank %d received a gather result", me)
					}
					for r, got := range vals {
						if len(got) != r {
							return fmt.Errorf("rank %d contributed %d values", r, len(got))
						}
					}
				}
				return Barrier(g)
			})
			require.NoError(t, err)
		})
	}
}

func TestExchangeSparse(t *testing.T) {
	// Ring: each rank sends only to its right neighbor and hears only from its left
	const np = 4
	err := NewWorld(np).Run(func(g Group) error {
		var (
			me       = g.Rank()
			right    = (me + 1) % np
			left     = (me + np - 1) % np
			send     = make([][]byte, np)
			recvFrom = make([]bool, np)
		)
		send[right] = []byte{byte(me)}
		recvFrom[left] = true
		recv, err := g.Exchange(send, recvFrom)
		if err != nil {
			return err
		}
		for src, b := range recv {
			if src == left {
				if len(b) != 1 || int(b[0]) != left {
					return fmt.Errorf("rank %d: bad frame %v from %d", me, b, left)
				}
			} else if b != nil {
				return fmt.Errorf("rank %d: unexpected frame from %d", me, src)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestDupIsolatesContexts(t *testing.T) {
	var ids [3]atomic.Value
	err := NewWorld(3).Run(func(g Group) error {
		dup, err := g.Dup()
		if err != nil {
			return err
		}
		ids[g.Rank()].Store(dup.(*Endpoint).Context())
		// Interleave traffic on both contexts; sequence numbers collide but
		// the contexts keep the frames apart
		a, err := AllGatherInt(dup, 1)
		if err != nil {
			return err
		}
		b, err := AllGatherInt(g, 2)
		if err != nil {
			return err
		}
		if a[0] != 1 || b[0] != 2 {
			return fmt.Errorf("cross talk between contexts: %v %v", a, b)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ids[0].Load(), ids[1].Load())
	assert.Equal(t, ids[0].Load(), ids[2].Load())
}

func TestWorldAbort(t *testing.T) {
	var (
		boom = errors.New("boom")
		done = make(chan error, 1)
	)
	go func() {
		done <- NewWorld(3).Run(func(g Group) error {
			if g.Rank() == 1 {
				return boom
			}
			_, err := AllGatherInt(g, g.Rank())
			return err
		})
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("peers of a failed rank did not abort")
	}
}

func TestWorldTimeout(t *testing.T) {
	w := NewWorld(2)
	w.Timeout = 20 * time.Millisecond
	err := w.Run(func(g Group) error {
		if g.Rank() == 0 {
			recvFrom := []bool{false, true}
			_, err := g.Exchange(make([][]byte, 2), recvFrom)
			return err
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMailbox(t *testing.T) {
	mb := NewMailbox()
	key := MsgKey{Seq: 1, Src: 0}
	mb.Post(key, []byte("a"))
	assert.Equal(t, 1, mb.pending())
	msg, err := mb.Take(key, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), msg)
	assert.Equal(t, 0, mb.pending())

	abort := make(chan struct{})
	close(abort)
	_, err = mb.Take(MsgKey{Seq: 2}, abort, 0)
	assert.ErrorIs(t, err, ErrAborted)
}

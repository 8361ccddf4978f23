package parallel

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by a pending collective when another rank of the
	// group failed and the pass was torn down.
	ErrAborted = errors.New("process group aborted")

	// ErrTimeout is returned when a transport gives up waiting on a peer.
	ErrTimeout = errors.New("process group receive timed out")

	// ErrShortPayload is returned when a payload ends before a value is complete.
	ErrShortPayload = errors.New("short payload")

	// ErrInvalidRank is returned for a rank outside [0, size).
	ErrInvalidRank = errors.New("invalid rank")
)

// Group is a fixed set of cooperating processes. All methods except Rank and
// Size are collective: every rank of the group must call them in the same
// order, otherwise the group deadlocks.
type Group interface {
	Rank() int
	Size() int

	// AllGather returns the payload contributed by every rank, indexed by rank.
	AllGather(data []byte) ([][]byte, error)

	// Exchange is a personalized all-to-all. send[i] is delivered to rank i
	// unless it is nil, in which case nothing is sent to i. The call waits only
	// for sources with recvFrom[i] set; the returned slot for any other source
	// is nil.
	Exchange(send [][]byte, recvFrom []bool) ([][]byte, error)

	// Dup returns a new communication context over the same ranks. Traffic on
	// the duplicate never matches traffic on the parent.
	Dup() (Group, error)
}

// ExclusiveScan returns the N+1 offset table of counts: off[0] = 0 and
// off[i+1] = off[i] + counts[i].
func ExclusiveScan(counts []int) (off []int) {
	off = make([]int, len(counts)+1)
	for i, c := range counts {
		off[i+1] = off[i] + c
	}
	return
}

// AllGatherInt gathers one integer from each rank.
func AllGatherInt(g Group, v int) (vals []int, err error) {
	var all [][]int
	if all, err = AllGatherInts(g, []int{v}); err != nil {
		return
	}
	vals = make([]int, len(all))
	for r, a := range all {
		if len(a) != 1 {
			return nil, fmt.Errorf("rank %d contributed %d values, want 1: %w",
				r, len(a), ErrShortPayload)
		}
		vals[r] = a[0]
	}
	return
}

// AllGatherInts gathers a variable length integer slice from each rank.
func AllGatherInts(g Group, v []int) (vals [][]int, err error) {
	var (
		enc = NewEncoder(8 * (len(v) + 1))
		raw [][]byte
	)
	enc.PutInts(v)
	if raw, err = g.AllGather(enc.Bytes()); err != nil {
		return
	}
	vals = make([][]int, len(raw))
	for r, b := range raw {
		if vals[r], err = NewDecoder(b).Ints(); err != nil {
			return nil, fmt.Errorf("decoding contribution of rank %d: %w", r, err)
		}
	}
	return
}

// GatherInts collects a variable length integer slice from each rank on root.
// Non-root ranks get nil.
func GatherInts(g Group, root int, v []int) (vals [][]int, err error) {
	var (
		np       = g.Size()
		send     = make([][]byte, np)
		recvFrom = make([]bool, np)
		enc      = NewEncoder(8 * (len(v) + 1))
		raw      [][]byte
	)
	if root < 0 || root >= np {
		return nil, fmt.Errorf("gather root %d of %d: %w", root, np, ErrInvalidRank)
	}
	enc.PutInts(v)
	send[root] = enc.Bytes()
	if g.Rank() == root {
		for r := range recvFrom {
			recvFrom[r] = true
		}
	}
	if raw, err = g.Exchange(send, recvFrom); err != nil || g.Rank() != root {
		return
	}
	vals = make([][]int, np)
	for r, b := range raw {
		if vals[r], err = NewDecoder(b).Ints(); err != nil {
			return nil, fmt.Errorf("decoding contribution of rank %d: %w", r, err)
		}
	}
	return
}

// AllGatherFloats gathers a variable length float slice from each rank.
func AllGatherFloats(g Group, v []float64) (vals [][]float64, err error) {
	var (
		enc = NewEncoder(8 * (len(v) + 1))
		raw [][]byte
	)
	enc.PutFloats(v)
	if raw, err = g.AllGather(enc.Bytes()); err != nil {
		return
	}
	vals = make([][]float64, len(raw))
	for r, b := range raw {
		if vals[r], err = NewDecoder(b).Floats(); err != nil {
			return nil, fmt.Errorf("decoding contribution of rank %d: %w", r, err)
		}
	}
	return
}

// AllToAllInt sends counts[i] to rank i and returns the value every rank sent
// to this one. It is the count message that precedes a personalized payload.
func AllToAllInt(g Group, counts []int) (recv []int, err error) {
	var (
		np       = g.Size()
		send     = make([][]byte, np)
		recvFrom = make([]bool, np)
		raw      [][]byte
	)
	if len(counts) != np {
		return nil, fmt.Errorf("count table has %d entries for %d ranks: %w",
			len(counts), np, ErrInvalidRank)
	}
	for r := 0; r < np; r++ {
		enc := NewEncoder(8)
		enc.PutInt(counts[r])
		send[r] = enc.Bytes()
		recvFrom[r] = true
	}
	if raw, err = g.Exchange(send, recvFrom); err != nil {
		return
	}
	recv = make([]int, np)
	for r, b := range raw {
		if recv[r], err = NewDecoder(b).Int(); err != nil {
			return nil, fmt.Errorf("count from rank %d: %w", r, err)
		}
	}
	return
}

// Bcast distributes the root's payload to every rank. Non-root ranks pass nil.
func Bcast(g Group, root int, data []byte) (out []byte, err error) {
	var (
		np       = g.Size()
		send     = make([][]byte, np)
		recvFrom = make([]bool, np)
		raw      [][]byte
	)
	if root < 0 || root >= np {
		return nil, fmt.Errorf("broadcast root %d of %d: %w", root, np, ErrInvalidRank)
	}
	if g.Rank() == root {
		if data == nil {
			data = []byte{}
		}
		for r := range send {
			send[r] = data
		}
	}
	recvFrom[root] = true
	if raw, err = g.Exchange(send, recvFrom); err != nil {
		return
	}
	return raw[root], nil
}

// Barrier returns once every rank of the group has entered it.
func Barrier(g Group) (err error) {
	_, err = g.AllGather(nil)
	return
}

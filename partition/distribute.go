package partition

import (
	"fmt"
	"time"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

// DistributeVertices moves every local vertex to the rank named by assign and
// replaces the vertices of data with the ones this rank now holds: the kept
// vertices in their original order, then the received ones by source rank.
// Cells are untouched.
func (p *Partitioner) DistributeVertices(g parallel.Group, data *mesh.LocalMeshData, assign VertexAssignment) (err error) {
	if g, err = p.begin(g, nil); err != nil {
		return
	}
	return p.distributeVertices(g, data, assign)
}

// DistributeCells is the cell counterpart of DistributeVertices; it moves the
// global id and vertex list of every local cell to the rank named by assign.
func (p *Partitioner) DistributeCells(g parallel.Group, data *mesh.LocalMeshData, assign CellAssignment) (err error) {
	if g, err = p.begin(g, nil); err != nil {
		return
	}
	return p.distributeCells(g, data, assign)
}

func (p *Partitioner) distributeVertices(g parallel.Group, data *mesh.LocalMeshData, assign VertexAssignment) (err error) {
	var (
		start = time.Now()
		ids   []int
		xyz   [][]float64
		sent  int
	)
	ids, xyz, sent, err = redistribute(g, data.VertexIndices, data.VertexCoordinates, assign,
		(*parallel.Encoder).PutFloats, (*parallel.Decoder).Floats)
	if err != nil {
		return fmt.Errorf("vertex redistribution: %w", err)
	}
	data.VertexIndices, data.VertexCoordinates = ids, xyz
	p.metrics.AddExchanged("vertex", sent)
	p.stage("distribute vertices", start)
	return
}

func (p *Partitioner) distributeCells(g parallel.Group, data *mesh.LocalMeshData, assign CellAssignment) (err error) {
	var (
		start = time.Now()
		ids   []int
		cells [][]int
		sent  int
	)
	ids, cells, sent, err = redistribute(g, data.CellIndices, data.CellVertices, assign,
		(*parallel.Encoder).PutInts, (*parallel.Decoder).Ints)
	if err != nil {
		return fmt.Errorf("cell redistribution: %w", err)
	}
	data.CellIndices, data.CellVertices = ids, cells
	p.metrics.AddExchanged("cell", sent)
	p.stage("distribute cells", start)
	return
}

// redistribute is the personalized exchange behind vertex and cell moves.
// Entity i, identified by ids[i] and carrying rows[i], goes to rank dest[i].
// A count exchange precedes the payload so every rank knows whom to wait for;
// ranks with nothing for each other exchange no payload and entities staying
// put never leave the process. A rank with an invalid assignment announces
// a negative count, failing the pass on every rank.
func redistribute[T any](g parallel.Group, ids []int, rows [][]T, dest []int,
	put func(*parallel.Encoder, []T), get func(*parallel.Decoder) ([]T, error),
) (newIDs []int, newRows [][]T, sent int, err error) {
	var (
		np     = g.Size()
		me     = g.Rank()
		counts = make([]int, np)
		bad    error
	)
	switch {
	case len(ids) != len(rows):
		bad = fmt.Errorf("%d ids for %d entities", len(ids), len(rows))
	case len(dest) != len(rows):
		bad = fmt.Errorf("assignment has %d entries for %d entities", len(dest), len(rows))
	default:
		for i, d := range dest {
			if d < 0 || d >= np {
				bad = fmt.Errorf("entity %d assigned to rank %d of %d", ids[i], d, np)
				break
			}
			counts[d]++
		}
	}
	if bad != nil {
		for d := range counts {
			counts[d] = -1
		}
	}

	var recvCounts []int
	if recvCounts, err = parallel.AllToAllInt(g, counts); err != nil {
		return
	}
	if bad != nil {
		return nil, nil, 0, fmt.Errorf("rank %d: %w: %w", me, ErrPrecondition, bad)
	}
	for src, n := range recvCounts {
		if n < 0 {
			return nil, nil, 0, fmt.Errorf("rank %d reported an invalid assignment: %w", src, ErrPrecondition)
		}
	}

	var (
		send     = make([][]byte, np)
		recvFrom = make([]bool, np)
		encs     = make([]*parallel.Encoder, np)
	)
	for d := range encs {
		if d != me && counts[d] > 0 {
			encs[d] = parallel.NewEncoder(16 * counts[d])
		}
	}
	newIDs = make([]int, 0, counts[me])
	newRows = make([][]T, 0, counts[me])
	for i, d := range dest {
		if d == me {
			newIDs = append(newIDs, ids[i])
			newRows = append(newRows, rows[i])
			continue
		}
		encs[d].PutInt(ids[i])
		put(encs[d], rows[i])
		sent++
	}
	for r := 0; r < np; r++ {
		if encs[r] != nil {
			send[r] = encs[r].Bytes()
		}
		recvFrom[r] = r != me && recvCounts[r] > 0
	}

	var recv [][]byte
	if recv, err = g.Exchange(send, recvFrom); err != nil {
		return
	}
	for src, want := range recvFrom {
		if !want {
			continue
		}
		var (
			dec = parallel.NewDecoder(recv[src])
			n   int
		)
		for dec.Remaining() > 0 {
			var (
				id  int
				row []T
			)
			if id, err = dec.Int(); err != nil {
				return nil, nil, 0, fmt.Errorf("payload from rank %d: %w: %w", src, ErrProtocol, err)
			}
			if row, err = get(dec); err != nil {
				return nil, nil, 0, fmt.Errorf("payload from rank %d: %w: %w", src, ErrProtocol, err)
			}
			newIDs = append(newIDs, id)
			newRows = append(newRows, row)
			n++
		}
		if n != recvCounts[src] {
			return nil, nil, 0, fmt.Errorf("rank %d announced %d entities and sent %d: %w",
				src, recvCounts[src], n, ErrProtocol)
		}
	}
	return
}

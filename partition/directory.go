package partition

import (
	"fmt"
	"sort"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

// exchangeAll sends send[r] to every rank r and waits for a payload from
// every rank. The rank's own payload is handed back without a round trip.
func exchangeAll(g parallel.Group, send [][]byte) (recv [][]byte, err error) {
	var (
		np       = g.Size()
		me       = g.Rank()
		out      = make([][]byte, np)
		recvFrom = make([]bool, np)
	)
	for r := range out {
		if r == me {
			continue
		}
		out[r] = send[r]
		if out[r] == nil {
			out[r] = []byte{}
		}
		recvFrom[r] = true
	}
	if recv, err = g.Exchange(out, recvFrom); err != nil {
		return
	}
	recv[me] = send[me]
	return
}

// ownership is the result of the vertex directory pass.
type ownership struct {
	held          []int       // Owner of each held vertex, aligned with VertexIndices
	refs          map[int]int // Owner of every vertex referenced by a local cell
	nglobal, gdim int
}

// referenced returns the distinct vertex ids of the local cells in
// increasing order.
func referenced(data *mesh.LocalMeshData) (ids []int) {
	seen := make(map[int]struct{})
	for _, cell := range data.CellVertices {
		for _, v := range cell {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				ids = append(ids, v)
			}
		}
	}
	sort.Ints(ids)
	return
}

// coordinateDim is the dimension the coordinates of data carry, the declared
// one when it holds no vertices.
func coordinateDim(data *mesh.LocalMeshData) int {
	if gdim, err := data.Dimension(); err == nil && gdim != 0 {
		return gdim
	}
	return data.GDim
}

// resolveOwners decides the owner of every vertex through a directory: the
// vertex id space is block split over the ranks and the rank of a block
// collects who holds and who references each id in it. A referenced vertex
// belongs to the lowest rank referencing it, an unreferenced one stays with
// its holder. A vertex held twice, or referenced but held nowhere, fails the
// pass on every rank.
func resolveOwners(g parallel.Group, data *mesh.LocalMeshData) (own *ownership, err error) {
	var (
		np       = g.Size()
		refs     = referenced(data)
		top      = -1
		negative = 0
		gdim     = coordinateDim(data)
	)
	for _, v := range refs {
		top = max(top, v)
	}
	for _, v := range data.VertexIndices {
		top = max(top, v)
		if v < 0 {
			negative = 1
		}
	}
	if len(refs) > 0 && refs[0] < 0 {
		negative = 1
	}
	// Rank-local faults travel in the gathered words so every rank fails
	// the same way before the directory traffic starts
	var gathered [][]int
	if gathered, err = parallel.AllGatherInts(g, []int{top, gdim, negative}); err != nil {
		return
	}
	own = &ownership{refs: make(map[int]int, len(refs))}
	for r, words := range gathered {
		own.nglobal = max(own.nglobal, words[0]+1)
		switch {
		case words[2] != 0:
			return nil, fmt.Errorf("rank %d holds or references negative vertex ids: %w", r, ErrPrecondition)
		case words[1] == 0:
		case own.gdim == 0:
			own.gdim = words[1]
		case words[1] != own.gdim:
			return nil, fmt.Errorf("rank %d has %d coordinates per vertex, another rank %d: %w",
				r, words[1], own.gdim, ErrPrecondition)
		}
	}
	if own.gdim == 0 {
		return nil, fmt.Errorf("no rank declares a coordinate dimension: %w", ErrPrecondition)
	}

	// Queries to the directory ranks
	var (
		dir      = parallel.NewPartitionMap(np, own.nglobal)
		refsTo   = make([][]int, np)
		heldTo   = make([][]int, np)
		heldSlot = make([][]int, np)
		send     = make([][]byte, np)
		recv     [][]byte
	)
	for _, v := range refs {
		d, _, _ := dir.GetBucket(v)
		refsTo[d] = append(refsTo[d], v)
	}
	for i, v := range data.VertexIndices {
		d, _, _ := dir.GetBucket(v)
		heldTo[d] = append(heldTo[d], v)
		heldSlot[d] = append(heldSlot[d], i)
	}
	for d := 0; d < np; d++ {
		enc := parallel.NewEncoder(8 * (len(refsTo[d]) + len(heldTo[d]) + 2))
		enc.PutInts(refsTo[d])
		enc.PutInts(heldTo[d])
		send[d] = enc.Bytes()
	}
	if recv, err = exchangeAll(g, send); err != nil {
		return
	}

	// Directory side: ranks arrive in increasing order, so the first
	// referencer seen is the lowest
	var (
		qRefs   = make([][]int, np)
		qHeld   = make([][]int, np)
		refBy   = make(map[int]int)
		holder  = make(map[int]int)
		problem error
	)
	for src, b := range recv {
		dec := parallel.NewDecoder(b)
		if qRefs[src], err = dec.Ints(); err != nil {
			return nil, fmt.Errorf("directory query from rank %d: %w: %w", src, ErrProtocol, err)
		}
		if qHeld[src], err = dec.Ints(); err != nil {
			return nil, fmt.Errorf("directory query from rank %d: %w: %w", src, ErrProtocol, err)
		}
		for _, v := range qRefs[src] {
			if _, ok := refBy[v]; !ok {
				refBy[v] = src
			}
		}
		for _, v := range qHeld[src] {
			if h, ok := holder[v]; ok && problem == nil {
				problem = fmt.Errorf("vertex %d held by ranks %d and %d", v, h, src)
			}
			holder[v] = src
		}
	}
	for v := range refBy {
		if _, ok := holder[v]; !ok && problem == nil {
			problem = fmt.Errorf("vertex %d referenced by rank %d is held nowhere", v, refBy[v])
		}
	}
	ownerOf := func(v int) int {
		if r, ok := refBy[v]; ok {
			return r
		}
		return holder[v]
	}
	for src := 0; src < np; src++ {
		enc := parallel.NewEncoder(8 * (len(qRefs[src]) + len(qHeld[src]) + 3))
		if problem != nil {
			enc.PutInt(1)
		} else {
			enc.PutInt(0)
			owners := make([]int, len(qRefs[src]))
			for i, v := range qRefs[src] {
				owners[i] = ownerOf(v)
			}
			enc.PutInts(owners)
			owners = make([]int, len(qHeld[src]))
			for i, v := range qHeld[src] {
				owners[i] = ownerOf(v)
			}
			enc.PutInts(owners)
		}
		send[src] = enc.Bytes()
	}
	if recv, err = exchangeAll(g, send); err != nil {
		return
	}

	// Answers
	own.held = make([]int, len(data.VertexIndices))
	for d, b := range recv {
		var (
			dec            = parallel.NewDecoder(b)
			status         int
			rOwner, hOwner []int
		)
		if status, err = dec.Int(); err != nil {
			return nil, fmt.Errorf("directory answer from rank %d: %w: %w", d, ErrProtocol, err)
		}
		if status != 0 {
			if problem != nil {
				return nil, fmt.Errorf("%w: %w", ErrPrecondition, problem)
			}
			return nil, fmt.Errorf("directory rank %d rejected the vertex set: %w", d, ErrPrecondition)
		}
		if rOwner, err = dec.Ints(); err != nil {
			return nil, fmt.Errorf("directory answer from rank %d: %w: %w", d, ErrProtocol, err)
		}
		if hOwner, err = dec.Ints(); err != nil {
			return nil, fmt.Errorf("directory answer from rank %d: %w: %w", d, ErrProtocol, err)
		}
		if len(rOwner) != len(refsTo[d]) || len(hOwner) != len(heldTo[d]) {
			return nil, fmt.Errorf("directory rank %d answered %d/%d owners for %d/%d queries: %w",
				d, len(rOwner), len(hOwner), len(refsTo[d]), len(heldTo[d]), ErrProtocol)
		}
		for i, v := range refsTo[d] {
			own.refs[v] = rOwner[i]
		}
		for i, slot := range heldSlot[d] {
			own.held[slot] = hOwner[i]
		}
	}
	return
}

// fetchGhosts returns the coordinates of the vertices in want from their
// owners. data must hold exactly the vertices this rank owns.
func fetchGhosts(g parallel.Group, data *mesh.LocalMeshData, want []int, owner map[int]int, gdim int) (coords map[int][]float64, err error) {
	var (
		np   = g.Size()
		ask  = make([][]int, np)
		send = make([][]byte, np)
		recv [][]byte
	)
	for _, v := range want {
		ask[owner[v]] = append(ask[owner[v]], v)
	}
	for r := range send {
		enc := parallel.NewEncoder(8 * (len(ask[r]) + 1))
		enc.PutInts(ask[r])
		send[r] = enc.Bytes()
	}
	if recv, err = exchangeAll(g, send); err != nil {
		return
	}

	local := make(map[int]int, len(data.VertexIndices))
	for i, v := range data.VertexIndices {
		local[v] = i
	}
	for src, b := range recv {
		var ids []int
		if ids, err = parallel.NewDecoder(b).Ints(); err != nil {
			return nil, fmt.Errorf("ghost request from rank %d: %w: %w", src, ErrProtocol, err)
		}
		enc := parallel.NewEncoder(8 * (gdim*len(ids) + 1))
		xyz := make([]float64, 0, gdim*len(ids))
		for _, v := range ids {
			i, ok := local[v]
			if !ok {
				return nil, fmt.Errorf("rank %d asked for vertex %d not owned here: %w", src, v, ErrProtocol)
			}
			xyz = append(xyz, data.VertexCoordinates[i]...)
		}
		enc.PutFloats(xyz)
		send[src] = enc.Bytes()
	}
	if recv, err = exchangeAll(g, send); err != nil {
		return
	}

	coords = make(map[int][]float64, len(want))
	for src, b := range recv {
		var xyz []float64
		if xyz, err = parallel.NewDecoder(b).Floats(); err != nil {
			return nil, fmt.Errorf("ghost coordinates from rank %d: %w: %w", src, ErrProtocol, err)
		}
		if len(xyz) != gdim*len(ask[src]) {
			return nil, fmt.Errorf("rank %d sent %d coordinates for %d vertices: %w",
				src, len(xyz), len(ask[src]), ErrProtocol)
		}
		for i, v := range ask[src] {
			coords[v] = xyz[i*gdim : (i+1)*gdim]
		}
	}
	return
}

//go:build !nometis

package partition

import (
	"errors"
	"fmt"
	"slices"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/meshpart/parallel"
)

const available = true

// MetisPartitioner partitions the dual graph with serial METIS k-way
// partitioning. The element lists are gathered on rank 0, which forms the
// global facet adjacency, runs METIS and broadcasts the parts.
type MetisPartitioner struct {
	// Objective is "cut" (default) or "vol".
	Objective string
}

var _ GraphPartitioner = (*MetisPartitioner)(nil)

var errRootFailed = errors.New("partitioning failed on rank 0")

func (mp *MetisPartitioner) PartMeshKway(g parallel.Group, graph *DualGraphCSR, nparts int,
	tpwgts, ubvec []float64) (part []int, edgecut int, err error) {
	var (
		lists [][]int
		reply []byte
		rank  = g.Rank()
	)
	if lists, err = parallel.GatherInts(g, 0, graph.EInd); err != nil {
		return
	}
	if rank == 0 {
		enc := parallel.NewEncoder(8 * (graph.NumGlobalCells() + 3))
		all, cut, perr := mp.partition(lists, graph.Arity(), graph.NCommonNodes, nparts, tpwgts, ubvec)
		if perr != nil {
			enc.PutInt(1)
		} else {
			enc.PutInt(0)
			enc.PutInt(cut)
			enc.PutInts(all)
		}
		if reply, err = parallel.Bcast(g, 0, enc.Bytes()); err != nil {
			return
		}
		if perr != nil {
			return nil, 0, perr
		}
	} else if reply, err = parallel.Bcast(g, 0, nil); err != nil {
		return
	}
	var (
		dec    = parallel.NewDecoder(reply)
		status int
		all    []int
	)
	if status, err = dec.Int(); err != nil {
		return
	}
	if status != 0 {
		return nil, 0, errRootFailed
	}
	if edgecut, err = dec.Int(); err != nil {
		return
	}
	if all, err = dec.Ints(); err != nil {
		return
	}
	if len(all) != graph.NumGlobalCells() {
		return nil, 0, fmt.Errorf("%d parts for %d cells", len(all), graph.NumGlobalCells())
	}
	part = all[graph.ElmDist[rank]:graph.ElmDist[rank+1]]
	return
}

func (mp *MetisPartitioner) partition(lists [][]int, arity, ncommon, nparts int,
	tpwgts, ubvec []float64) (part []int, edgecut int, err error) {
	var eind []int
	for r, l := range lists {
		if slices.ContainsFunc(l, func(v int) bool { return v < 0 }) {
			return nil, 0, fmt.Errorf("rank %d sent negative vertex ids", r)
		}
		eind = append(eind, l...)
	}
	xadj, adjncy := DualAdjacency(eind, arity, ncommon)
	ne := len(xadj) - 1
	if ne < nparts {
		return nil, 0, fmt.Errorf("%d cells cannot fill %d parts", ne, nparts)
	}

	// Set METIS options
	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, 0, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if mp.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}

	tp := make([]float32, len(tpwgts))
	for i, w := range tpwgts {
		tp[i] = float32(w)
	}
	ub := make([]float32, len(ubvec))
	for i, u := range ubvec {
		ub[i] = float32(u)
	}

	part32, _, err := metis.PartGraphKwayWeighted(
		toInt32(xadj), toInt32(adjncy), nil, nil,
		int32(nparts), tp, ub, opts,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	part = make([]int, ne)
	for i, p := range part32 {
		part[i] = int(p)
	}
	// objval is the communication volume under the "vol" objective
	return part, EdgeCut(xadj, adjncy, part), nil
}

func toInt32(v []int) (r []int32) {
	r = make([]int32, len(v))
	for i, x := range v {
		r[i] = int32(x)
	}
	return
}

package partition

import (
	"fmt"
	"time"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

// GraphPartitioner splits the dual graph of a distributed mesh into nparts
// parts. It is collective over g and returns the part of every local cell
// together with the edge cut of the whole partition.
type GraphPartitioner interface {
	PartMeshKway(g parallel.Group, graph *DualGraphCSR, nparts int,
		tpwgts, ubvec []float64) (part []int, edgecut int, err error)
}

// PartitionCells assigns every local cell of graph to a rank of g, balancing
// cell counts and minimizing the number of cut facets.
func (p *Partitioner) PartitionCells(g parallel.Group, graph *DualGraphCSR) (assign CellAssignment, edgecut int, err error) {
	if g, err = p.begin(g, nil); err != nil {
		return
	}
	return p.partitionCells(g, graph)
}

func (p *Partitioner) partitionCells(g parallel.Group, graph *DualGraphCSR) (assign CellAssignment, edgecut int, err error) {
	var (
		np     = g.Size()
		nlocal = graph.NumLocalCells()
		start  = time.Now()
		part   []int
	)
	if len(graph.ElmDist) != np+1 {
		return nil, 0, fmt.Errorf("element distribution has %d entries for %d ranks: %w",
			len(graph.ElmDist), np, ErrPrecondition)
	}
	if np == 1 {
		return make(CellAssignment, nlocal), 0, nil
	}
	tpwgts := make([]float64, np)
	for i := range tpwgts {
		tpwgts[i] = 1. / float64(np)
	}
	if part, edgecut, err = p.graph.PartMeshKway(g, graph, np, tpwgts, []float64{ImbalanceTolerance}); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrPartitioner, err)
	}
	if err = checkParts(part, nlocal, np); err != nil {
		return nil, 0, err
	}
	p.stage("partition cells", start)
	p.metrics.ObserveEdgeCut(edgecut)
	p.logger.Info("partitioned mesh", "rank", g.Rank(), "edgecut", edgecut,
		"cells", graph.NumGlobalCells())
	return part, edgecut, nil
}

func checkParts(part []int, n, np int) error {
	if len(part) != n {
		return fmt.Errorf("%d parts returned for %d local entities: %w", len(part), n, ErrPartitioner)
	}
	for i, r := range part {
		if r < 0 || r >= np {
			return fmt.Errorf("entity %d assigned to part %d of %d: %w", i, r, np, ErrPartitioner)
		}
	}
	return nil
}

// PartitionCellsTopological would partition cells from the mesh topology
// alone, without building the dual graph.
func (p *Partitioner) PartitionCellsTopological(g parallel.Group, data *mesh.LocalMeshData) (CellAssignment, error) {
	if !available {
		return nil, ErrUnavailable
	}
	return nil, fmt.Errorf("topological cell partitioning: %w", ErrNotImplemented)
}

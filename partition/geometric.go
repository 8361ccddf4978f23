package partition

import (
	"fmt"
	"time"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

// GeometricPartitioner splits distributed points by spatial locality. Rank r
// holds points [vtxdist[r], vtxdist[r+1]); xyz is their row major coordinate
// buffer of dimension gdim. It returns the part of every local point.
type GeometricPartitioner interface {
	PartGeom(g parallel.Group, vtxdist []int, gdim int, xyz []float64) ([]int, error)
}

// PartitionVertices assigns every local vertex a rank from its coordinates
// alone. Every rank must hold at least one vertex.
func (p *Partitioner) PartitionVertices(g parallel.Group, data *mesh.LocalMeshData) (assign VertexAssignment, err error) {
	var (
		start    = time.Now()
		gdim     int
		gathered [][]int
	)
	if g, err = p.begin(g, func() (err error) {
		gdim, err = data.Dimension()
		return
	}); err != nil {
		return
	}
	if gathered, err = parallel.AllGatherInts(g, []int{data.NumLocalVertices(), gdim}); err != nil {
		return
	}
	counts := make([]int, len(gathered))
	for r, pair := range gathered {
		counts[r] = pair[0]
		switch {
		case pair[0] == 0:
			return nil, fmt.Errorf("rank %d holds no vertices: %w", r, ErrPrecondition)
		case pair[1] != gathered[0][1]:
			return nil, fmt.Errorf("rank %d has gdim %d, rank 0 has %d: %w",
				r, pair[1], gathered[0][1], ErrPrecondition)
		}
	}
	if gdim == 0 {
		return nil, fmt.Errorf("zero dimensional coordinates: %w", ErrPrecondition)
	}
	if g.Size() == 1 {
		return make(VertexAssignment, data.NumLocalVertices()), nil
	}

	vtxdist := parallel.ExclusiveScan(counts)
	xyz := make([]float64, 0, gdim*data.NumLocalVertices())
	for _, x := range data.VertexCoordinates {
		xyz = append(xyz, x...)
	}
	var part []int
	if part, err = p.geom.PartGeom(g, vtxdist, gdim, xyz); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPartitioner, err)
	}
	if err = checkParts(part, data.NumLocalVertices(), g.Size()); err != nil {
		return
	}
	p.stage("partition vertices", start)
	p.logger.Debug("partitioned vertices", "rank", g.Rank(), "vertices", vtxdist[g.Size()])
	return part, nil
}

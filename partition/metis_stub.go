//go:build nometis

package partition

import "github.com/notargets/meshpart/parallel"

const available = false

// MetisPartitioner is unavailable in builds tagged nometis.
type MetisPartitioner struct {
	Objective string
}

var _ GraphPartitioner = (*MetisPartitioner)(nil)

func (mp *MetisPartitioner) PartMeshKway(parallel.Group, *DualGraphCSR, int, []float64, []float64) ([]int, int, error) {
	return nil, 0, ErrUnavailable
}

package partition

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/meshpart/parallel"
)

// SFCPartitioner orders all points along a Morton (Z-order) curve over the
// global bounding box and cuts the curve into equal sized runs, one per rank.
type SFCPartitioner struct{}

var _ GeometricPartitioner = (*SFCPartitioner)(nil)

func (SFCPartitioner) PartGeom(g parallel.Group, vtxdist []int, gdim int, xyz []float64) (part []int, err error) {
	var (
		np    = g.Size()
		rank  = g.Rank()
		boxes [][]float64
	)
	if gdim < 1 {
		return nil, fmt.Errorf("gdim %d", gdim)
	}
	if len(vtxdist) != np+1 {
		return nil, fmt.Errorf("vertex distribution has %d entries for %d ranks", len(vtxdist), np)
	}
	nlocal := vtxdist[rank+1] - vtxdist[rank]
	if len(xyz) != nlocal*gdim {
		return nil, fmt.Errorf("%d coordinates for %d points of dimension %d", len(xyz), nlocal, gdim)
	}

	// Global bounding box
	if boxes, err = parallel.AllGatherFloats(g, localBox(xyz, gdim)); err != nil {
		return
	}
	lo, hi := make([]float64, gdim), make([]float64, gdim)
	for d := 0; d < gdim; d++ {
		col := make([]float64, 0, 2*np)
		for _, b := range boxes {
			col = append(col, b[d], b[gdim+d])
		}
		lo[d], hi[d] = floats.Min(col), floats.Max(col)
	}

	keys := make([]int, nlocal)
	for i := range keys {
		keys[i] = int(mortonKey(xyz[i*gdim:(i+1)*gdim], lo, hi))
	}
	var all [][]int
	if all, err = parallel.AllGatherInts(g, keys); err != nil {
		return
	}

	type point struct{ key, id int }
	points := make([]point, 0, vtxdist[np])
	for r, ks := range all {
		for i, k := range ks {
			points = append(points, point{key: k, id: vtxdist[r] + i})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].key != points[j].key {
			return points[i].key < points[j].key
		}
		return points[i].id < points[j].id
	})

	var (
		pm       = parallel.NewPartitionMap(np, len(points))
		min, max = vtxdist[rank], vtxdist[rank+1]
	)
	part = make([]int, nlocal)
	for pos, pt := range points {
		if pt.id >= min && pt.id < max {
			part[pt.id-min], _, _ = pm.GetBucket(pos)
		}
	}
	return
}

// localBox returns min then max per dimension, empty sets give an inverted
// infinite box.
func localBox(xyz []float64, gdim int) (box []float64) {
	box = make([]float64, 2*gdim)
	n := len(xyz) / gdim
	for d := 0; d < gdim; d++ {
		if n == 0 {
			box[d], box[gdim+d] = math.Inf(1), math.Inf(-1)
			continue
		}
		col := make([]float64, n)
		for i := range col {
			col[i] = xyz[i*gdim+d]
		}
		box[d], box[gdim+d] = floats.Min(col), floats.Max(col)
	}
	return
}

// mortonKey interleaves the quantized coordinates of x, most significant bit
// of the first axis first.
func mortonKey(x, lo, hi []float64) (key uint64) {
	var (
		gdim = len(x)
		bits = 63 / gdim
		q    = make([]uint64, gdim)
	)
	if bits > 31 {
		bits = 31
	}
	scale := float64(uint64(1)<<bits - 1)
	for d, v := range x {
		if span := hi[d] - lo[d]; span > 0 {
			q[d] = uint64(math.Round((v - lo[d]) / span * scale))
		}
	}
	for b := bits - 1; b >= 0; b-- {
		for d := 0; d < gdim; d++ {
			key = key<<1 | (q[d]>>uint(b))&1
		}
	}
	return
}

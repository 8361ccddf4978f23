package partition

import (
	"fmt"
	"slices"
	"sort"

	"github.com/james-bowman/sparse"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

// DualGraphCSR is the distributed element connectivity handed to a graph
// partitioner. Rank r holds global cells [ElmDist[r], ElmDist[r+1]); local
// cell i spans EInd[EPtr[i]:EPtr[i+1]], a list of global vertex ids.
type DualGraphCSR struct {
	ElmDist      []int
	EPtr         []int
	EInd         []int
	NCommonNodes int // Shared vertices that make two cells facet neighbors
}

func (dg *DualGraphCSR) NumLocalCells() int { return len(dg.EPtr) - 1 }

// Arity is the vertex count of every cell in the group.
func (dg *DualGraphCSR) Arity() int { return dg.NCommonNodes + 1 }

// NumGlobalCells is the cell count over the group.
func (dg *DualGraphCSR) NumGlobalCells() int { return dg.ElmDist[len(dg.ElmDist)-1] }

// BuildDualGraph is collective. The local arity check runs before any
// communication so a malformed rank fails without entering a collective.
// Negative vertex ids are reported in the gathered words so that every rank
// fails together.
func BuildDualGraph(g parallel.Group, data *mesh.LocalMeshData) (dg *DualGraphCSR, err error) {
	if !available {
		return nil, ErrUnavailable
	}
	var (
		arity    int
		negative int
		gathered [][]int
	)
	if arity, err = data.CellArity(); err != nil {
		return nil, fmt.Errorf("rank %d: %w: %w", g.Rank(), ErrPrecondition, err)
	}
	for _, cell := range data.CellVertices {
		if slices.ContainsFunc(cell, func(v int) bool { return v < 0 }) {
			negative = 1
			break
		}
	}
	if gathered, err = parallel.AllGatherInts(g, []int{data.NumLocalCells(), arity, negative}); err != nil {
		return nil, err
	}
	var (
		counts   = make([]int, len(gathered))
		observed = 0
	)
	for r, words := range gathered {
		counts[r] = words[0]
		switch a := words[1]; {
		case words[2] != 0:
			return nil, fmt.Errorf("rank %d has cells with negative vertex ids: %w", r, ErrPrecondition)
		case a == 0:
		case observed == 0:
			observed = a
		case a != observed:
			return nil, fmt.Errorf("rank %d has cell arity %d, another rank %d: %w",
				r, a, observed, ErrPrecondition)
		}
	}
	if observed < 2 {
		return nil, fmt.Errorf("cell arity %d: %w", observed, ErrPrecondition)
	}
	dg = &DualGraphCSR{
		ElmDist:      parallel.ExclusiveScan(counts),
		EPtr:         make([]int, data.NumLocalCells()+1),
		EInd:         make([]int, 0, data.NumLocalCells()*observed),
		NCommonNodes: observed - 1,
	}
	for i, cell := range data.CellVertices {
		dg.EInd = append(dg.EInd, cell...)
		dg.EPtr[i+1] = (i + 1) * observed
	}
	return
}

// DualAdjacency forms the facet adjacency of the global element list eind,
// arity vertices per cell, as a CSR graph. Cells i != j are neighbors when
// they share at least ncommon vertices. Rows list neighbors in increasing
// order. Negative vertex ids connect nothing.
func DualAdjacency(eind []int, arity, ncommon int) (xadj, adjncy []int) {
	var (
		ncells = 0
		nverts = 0
	)
	if arity > 0 {
		ncells = len(eind) / arity
	}
	for _, v := range eind {
		if v+1 > nverts {
			nverts = v + 1
		}
	}
	xadj = make([]int, ncells+1)
	if ncells == 0 || nverts == 0 {
		return
	}
	// Cell to vertex incidence; C = A*A^T counts shared vertices
	SpCToV_Tmp := sparse.NewDOK(ncells, nverts)
	for c := 0; c < ncells; c++ {
		for _, v := range eind[c*arity : (c+1)*arity] {
			if v >= 0 {
				SpCToV_Tmp.Set(c, v, 1)
			}
		}
	}
	SpCToC := sparse.NewCSR(ncells, ncells, nil, nil, nil)
	SpCToV := SpCToV_Tmp.ToCSR()
	SpCToC.Mul(SpCToV, SpCToV.T())

	raw := SpCToC.RawMatrix()
	for i := 0; i < ncells; i++ {
		row := make([]int, 0, 2*arity)
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			if j := raw.Ind[k]; j != i && int(raw.Data[k]+0.5) >= ncommon {
				row = append(row, j)
			}
		}
		sort.Ints(row)
		adjncy = append(adjncy, row...)
		xadj[i+1] = len(adjncy)
	}
	return
}

// EdgeCut counts the edges of the CSR graph whose endpoints lie in different
// parts.
func EdgeCut(xadj, adjncy, part []int) (cut int) {
	for i := 0; i+1 < len(xadj); i++ {
		for _, j := range adjncy[xadj[i]:xadj[i+1]] {
			if j > i && part[i] != part[j] {
				cut++
			}
		}
	}
	return
}

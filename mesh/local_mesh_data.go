package mesh

import (
	"errors"
	"fmt"
)

// ErrInconsistent is returned when local mesh input violates a shape
// precondition: mixed cell arity, mixed coordinate dimension, or index
// tables that do not line up with their entities.
var ErrInconsistent = errors.New("inconsistent local mesh data")

// LocalMeshData is the raw slice of a distributed mesh held by one process
// before and during partitioning. Cells reference vertices by global id; those
// vertices need not be resident on this process. The partitioner overwrites
// the contents in place on every redistribution.
type LocalMeshData struct {
	CellVertices [][]int // Global vertex ids per local cell, fixed arity
	CellIndices  []int   // Global id of each local cell

	VertexCoordinates [][]float64 // Coordinates per local vertex, fixed gdim
	VertexIndices     []int       // Global id of each local vertex

	CellType   ElementType
	GDim, TDim int
}

func (d *LocalMeshData) NumLocalCells() int    { return len(d.CellVertices) }
func (d *LocalMeshData) NumLocalVertices() int { return len(d.VertexCoordinates) }

// CellArity returns the common vertex count of the local cells, 0 when there
// are none.
func (d *LocalMeshData) CellArity() (arity int, err error) {
	if len(d.CellVertices) == 0 {
		return 0, nil
	}
	arity = len(d.CellVertices[0])
	for i, cell := range d.CellVertices {
		if len(cell) != arity {
			return 0, fmt.Errorf("cell %d has %d vertices, cell 0 has %d: %w",
				i, len(cell), arity, ErrInconsistent)
		}
	}
	return
}

// Dimension returns the common coordinate dimension of the local vertices,
// 0 when there are none.
func (d *LocalMeshData) Dimension() (gdim int, err error) {
	if len(d.VertexCoordinates) == 0 {
		return 0, nil
	}
	gdim = len(d.VertexCoordinates[0])
	for i, x := range d.VertexCoordinates {
		if len(x) != gdim {
			return 0, fmt.Errorf("vertex %d has %d coordinates, vertex 0 has %d: %w",
				i, len(x), gdim, ErrInconsistent)
		}
	}
	return
}

// Validate checks the local shape preconditions without communicating.
func (d *LocalMeshData) Validate() (err error) {
	var arity, gdim int
	if arity, err = d.CellArity(); err != nil {
		return
	}
	if gdim, err = d.Dimension(); err != nil {
		return
	}
	if len(d.CellIndices) != len(d.CellVertices) {
		return fmt.Errorf("%d cell ids for %d cells: %w",
			len(d.CellIndices), len(d.CellVertices), ErrInconsistent)
	}
	if len(d.VertexIndices) != len(d.VertexCoordinates) {
		return fmt.Errorf("%d vertex ids for %d vertices: %w",
			len(d.VertexIndices), len(d.VertexCoordinates), ErrInconsistent)
	}
	if arity != 0 && d.CellType.NumVertices() != arity {
		return fmt.Errorf("cell type %s has %d vertices, cells have %d: %w",
			d.CellType, d.CellType.NumVertices(), arity, ErrInconsistent)
	}
	// GDim 0 leaves the dimension to the coordinates
	if gdim != 0 && d.GDim != 0 && d.GDim != gdim {
		return fmt.Errorf("declared gdim %d, coordinates have %d: %w",
			d.GDim, gdim, ErrInconsistent)
	}
	return nil
}

// Clone returns a deep copy.
func (d *LocalMeshData) Clone() *LocalMeshData {
	c := &LocalMeshData{
		CellVertices:      make([][]int, len(d.CellVertices)),
		CellIndices:       append([]int(nil), d.CellIndices...),
		VertexCoordinates: make([][]float64, len(d.VertexCoordinates)),
		VertexIndices:     append([]int(nil), d.VertexIndices...),
		CellType:          d.CellType,
		GDim:              d.GDim,
		TDim:              d.TDim,
	}
	for i, cell := range d.CellVertices {
		c.CellVertices[i] = append([]int(nil), cell...)
	}
	for i, x := range d.VertexCoordinates {
		c.VertexCoordinates[i] = append([]float64(nil), x...)
	}
	return c
}

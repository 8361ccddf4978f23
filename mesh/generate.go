package mesh

import (
	"fmt"

	"github.com/notargets/meshpart/parallel"
)

// UnitCube builds a serial tetrahedral mesh of [0,1]^3 with nx*ny*nz hexahedral
// cells, each split into six tetrahedra around the diagonal from its first to
// its last corner.
func UnitCube(nx, ny, nz int) (m *Mesh, err error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("unit cube %dx%dx%d: %w", nx, ny, nz, ErrInvalidShape)
	}
	var (
		nv    = (nx + 1) * (ny + 1) * (nz + 1)
		nc    = 6 * nx * ny * nz
		plane = (nx + 1) * (ny + 1)
	)
	m = NewMesh()
	if err = m.Open(Tet, 3, 3); err != nil {
		return nil, err
	}
	if err = m.InitVertices(nv); err != nil {
		return nil, err
	}
	for iz := 0; iz <= nz; iz++ {
		for iy := 0; iy <= ny; iy++ {
			for ix := 0; ix <= nx; ix++ {
				v := iz*plane + iy*(nx+1) + ix
				x := []float64{float64(ix) / float64(nx), float64(iy) / float64(ny), float64(iz) / float64(nz)}
				if err = m.AddVertex(v, v, 0, x); err != nil {
					return nil, err
				}
			}
		}
	}
	if err = m.InitCells(nc); err != nil {
		return nil, err
	}
	c := 0
	for iz := 0; iz < nz; iz++ {
		for iy := 0; iy < ny; iy++ {
			for ix := 0; ix < nx; ix++ {
				var (
					v0 = iz*plane + iy*(nx+1) + ix
					v1 = v0 + 1
					v2 = v0 + (nx + 1)
					v3 = v1 + (nx + 1)
					v4 = v0 + plane
					v5 = v1 + plane
					v6 = v2 + plane
					v7 = v3 + plane
				)
				for _, tet := range [6][4]int{
					{v0, v1, v3, v7},
					{v0, v1, v7, v5},
					{v0, v5, v7, v4},
					{v0, v3, v2, v7},
					{v0, v6, v4, v7},
					{v0, v2, v6, v7},
				} {
					if err = m.AddCell(c, c, tet[:]); err != nil {
						return nil, err
					}
					c++
				}
			}
		}
	}
	if err = m.Close(); err != nil {
		return nil, err
	}
	return
}

// UnitSquare builds a serial triangle mesh of [0,1]^2 with nx*ny quads, each
// split along its rising diagonal.
func UnitSquare(nx, ny int) (m *Mesh, err error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("unit square %dx%d: %w", nx, ny, ErrInvalidShape)
	}
	m = NewMesh()
	if err = m.Open(Triangle, 2, 2); err != nil {
		return nil, err
	}
	if err = m.InitVertices((nx + 1) * (ny + 1)); err != nil {
		return nil, err
	}
	for iy := 0; iy <= ny; iy++ {
		for ix := 0; ix <= nx; ix++ {
			v := iy*(nx+1) + ix
			if err = m.AddVertex(v, v, 0, []float64{float64(ix) / float64(nx), float64(iy) / float64(ny)}); err != nil {
				return nil, err
			}
		}
	}
	if err = m.InitCells(2 * nx * ny); err != nil {
		return nil, err
	}
	c := 0
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			var (
				v0 = iy*(nx+1) + ix
				v1 = v0 + 1
				v2 = v0 + (nx + 1)
				v3 = v1 + (nx + 1)
			)
			if err = m.AddCell(c, c, []int{v0, v1, v3}); err != nil {
				return nil, err
			}
			if err = m.AddCell(c+1, c+1, []int{v0, v2, v3}); err != nil {
				return nil, err
			}
			c += 2
		}
	}
	if err = m.Close(); err != nil {
		return nil, err
	}
	return
}

// Distribute returns the block of m that rank holds when cells and vertices
// are each split into size contiguous ranges. Cells keep global vertex ids, so
// they generally reference vertices held by other ranks.
func (m *Mesh) Distribute(rank, size int) (data *LocalMeshData, err error) {
	if size < 1 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("rank %d of %d: %w", rank, size, ErrOutOfRange)
	}
	var (
		cells      = parallel.NewPartitionMap(size, m.NumElements)
		verts      = parallel.NewPartitionMap(size, m.NumVertices)
		cMin, cMax = cells.GetBucketRange(rank)
		vMin, vMax = verts.GetBucketRange(rank)
	)
	data = &LocalMeshData{
		CellVertices:      make([][]int, 0, cMax-cMin),
		CellIndices:       make([]int, 0, cMax-cMin),
		VertexCoordinates: make([][]float64, 0, vMax-vMin),
		VertexIndices:     make([]int, 0, vMax-vMin),
		CellType:          m.CellType,
		GDim:              m.GDim,
		TDim:              m.TDim,
	}
	for k := cMin; k < cMax; k++ {
		cell := make([]int, len(m.Elements[k]))
		for i, v := range m.Elements[k] {
			cell[i] = m.GlobalVertexIndices[v]
		}
		data.CellVertices = append(data.CellVertices, cell)
		data.CellIndices = append(data.CellIndices, m.GlobalElementIndices[k])
	}
	for k := vMin; k < vMax; k++ {
		data.VertexCoordinates = append(data.VertexCoordinates, append([]float64(nil), m.Vertices[k]...))
		data.VertexIndices = append(data.VertexIndices, m.GlobalVertexIndices[k])
	}
	return
}

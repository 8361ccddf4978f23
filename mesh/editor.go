package mesh

import "fmt"

// Editor receives a mesh piece entity by entity. The partitioner assembles
// its result through this interface and never touches mesh storage directly.
type Editor interface {
	Open(cellType ElementType, tdim, gdim int) error
	InitVertices(n int) error
	AddVertex(local, global, owner int, x []float64) error
	InitCells(n int) error
	AddCell(local, global int, vertices []int) error
	Close() error
}

var _ Editor = (*Mesh)(nil)

func (m *Mesh) Open(cellType ElementType, tdim, gdim int) error {
	if cellType.NumVertices() == 0 || tdim != cellType.Dim() || gdim < tdim {
		return fmt.Errorf("cell type %s with tdim %d, gdim %d: %w",
			cellType, tdim, gdim, ErrInvalidShape)
	}
	*m = Mesh{
		CellType: cellType,
		TDim:     tdim,
		GDim:     gdim,
		FaceMap:  make(map[string]int),
		open:     true,
	}
	return nil
}

func (m *Mesh) InitVertices(n int) error {
	if !m.open {
		return ErrNotOpen
	}
	m.NumVertices = n
	m.Vertices = make([][]float64, n)
	m.GlobalVertexIndices = make([]int, n)
	m.VertexOwners = make([]int, n)
	m.verticesAdded = make([]bool, n)
	return nil
}

func (m *Mesh) AddVertex(local, global, owner int, x []float64) error {
	if !m.open {
		return ErrNotOpen
	}
	if local < 0 || local >= m.NumVertices {
		return fmt.Errorf("vertex %d of %d: %w", local, m.NumVertices, ErrOutOfRange)
	}
	if len(x) != m.GDim {
		return fmt.Errorf("vertex %d has %d coordinates, want %d: %w",
			global, len(x), m.GDim, ErrInvalidShape)
	}
	m.Vertices[local] = append([]float64(nil), x...)
	m.GlobalVertexIndices[local] = global
	m.VertexOwners[local] = owner
	m.verticesAdded[local] = true
	return nil
}

func (m *Mesh) InitCells(n int) error {
	if !m.open {
		return ErrNotOpen
	}
	m.NumElements = n
	m.Elements = make([][]int, n)
	m.ElementTypes = make([]ElementType, n)
	m.GlobalElementIndices = make([]int, n)
	m.elementsAdded = make([]bool, n)
	return nil
}

func (m *Mesh) AddCell(local, global int, vertices []int) error {
	if !m.open {
		return ErrNotOpen
	}
	if local < 0 || local >= m.NumElements {
		return fmt.Errorf("cell %d of %d: %w", local, m.NumElements, ErrOutOfRange)
	}
	if len(vertices) != m.CellType.NumVertices() {
		return fmt.Errorf("cell %d has %d vertices, %s needs %d: %w",
			global, len(vertices), m.CellType, m.CellType.NumVertices(), ErrInvalidShape)
	}
	for _, v := range vertices {
		if v < 0 || v >= m.NumVertices {
			return fmt.Errorf("cell %d references vertex %d of %d: %w",
				global, v, m.NumVertices, ErrOutOfRange)
		}
	}
	m.Elements[local] = append([]int(nil), vertices...)
	m.ElementTypes[local] = m.CellType
	m.GlobalElementIndices[local] = global
	m.elementsAdded[local] = true
	return nil
}

// Close checks every entity was added and builds the connectivity.
func (m *Mesh) Close() error {
	if !m.open {
		return ErrNotOpen
	}
	for i, ok := range m.verticesAdded {
		if !ok {
			return fmt.Errorf("vertex %d never added: %w", i, ErrIncomplete)
		}
	}
	for i, ok := range m.elementsAdded {
		if !ok {
			return fmt.Errorf("cell %d never added: %w", i, ErrIncomplete)
		}
	}
	m.open = false
	m.verticesAdded, m.elementsAdded = nil, nil
	m.BuildConnectivity()
	return nil
}

package mesh

import (
	"errors"
	"fmt"
	"sort"
)

// ElementType represents different element types
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	if e < Line || e > Pyramid {
		return fmt.Sprintf("ElementType(%d)", int(e))
	}
	return [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

// NumVertices is the vertex arity of a linear element of this type.
func (e ElementType) NumVertices() int {
	switch e {
	case Line:
		return 2
	case Triangle:
		return 3
	case Quad, Tet:
		return 4
	case Pyramid:
		return 5
	case Prism:
		return 6
	case Hex:
		return 8
	default:
		return 0
	}
}

// Dim is the topological dimension of the element.
func (e ElementType) Dim() int {
	switch e {
	case Line:
		return 1
	case Triangle, Quad:
		return 2
	case Tet, Hex, Prism, Pyramid:
		return 3
	default:
		return 0
	}
}

var (
	ErrNotOpen      = errors.New("mesh is not open for editing")
	ErrOutOfRange   = errors.New("mesh entity index out of range")
	ErrIncomplete   = errors.New("mesh entities not all added")
	ErrInvalidShape = errors.New("invalid mesh shape")
)

// Face represents a face of an element
type Face struct {
	Vertices []int // Sorted local vertex indices
	Element  int   // Parent element
	LocalID  int   // Local face ID within element
}

// Mesh is one process's assembled piece of a distributed mesh. Vertex and
// element storage is local; the global ids and vertex owners tie the pieces
// of all processes together.
type Mesh struct {
	// Geometry
	Vertices            [][]float64 // Vertex coordinates [nvertices][gdim]
	GlobalVertexIndices []int       // Global id of each local vertex
	VertexOwners        []int       // Owning rank of each local vertex

	// Element data
	Elements             [][]int       // Element to local vertex connectivity
	ElementTypes         []ElementType // Element type for each element
	GlobalElementIndices []int         // Global id of each local element
	CellType             ElementType
	GDim, TDim           int

	// Connectivity (built on Close)
	EToE [][]int // Element to element connectivity [nelems][nfaces_per_elem]
	EToF [][]int // Element to face connectivity [nelems][nfaces_per_elem]

	// Face data
	Faces   []Face         // All unique faces in mesh
	FaceMap map[string]int // Map from sorted vertex string to face ID

	// Mesh statistics
	NumElements int
	NumVertices int
	NumFaces    int

	open                         bool
	verticesAdded, elementsAdded []bool
}

// NewMesh returns an empty mesh ready to be opened with an Editor call.
func NewMesh() *Mesh {
	return &Mesh{
		FaceMap: make(map[string]int),
	}
}

// faceTemplates lists the facets of each element type as local vertex
// positions, outward oriented for the 3D types.
var faceTemplates = map[ElementType][][]int{
	Line:     {{0}, {1}},
	Triangle: {{0, 1}, {1, 2}, {2, 0}},
	Quad:     {{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	Tet:      {{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {0, 3, 2}},
	Hex: {
		{0, 3, 2, 1}, {4, 5, 6, 7}, // bottom, top
		{0, 1, 5, 4}, {1, 2, 6, 5}, {2, 3, 7, 6}, {3, 0, 4, 7},
	},
	Prism: {
		{0, 2, 1}, {3, 4, 5},
		{0, 1, 4, 3}, {1, 2, 5, 4}, {2, 0, 3, 5},
	},
	Pyramid: {
		{0, 3, 2, 1},
		{0, 1, 4}, {1, 2, 4}, {2, 3, 4}, {3, 0, 4},
	},
}

// elementFaces returns the facet vertices for each element type; facets of
// 2D elements are edges and of lines are points.
func elementFaces(elemType ElementType, vertices []int) (faces [][]int) {
	tmpl := faceTemplates[elemType]
	faces = make([][]int, len(tmpl))
	for f, pos := range tmpl {
		faces[f] = make([]int, len(pos))
		for i, p := range pos {
			faces[f][i] = vertices[p]
		}
	}
	return
}

func faceKey(vertices []int) (sorted []int, key string) {
	sorted = append([]int(nil), vertices...)
	sort.Ints(sorted)
	return sorted, fmt.Sprint(sorted)
}

// BuildConnectivity matches element facets by their sorted vertex sets. A
// facet seen once is a boundary of this piece: EToE holds -1 there.
func (m *Mesh) BuildConnectivity() {
	m.EToE = make([][]int, m.NumElements)
	m.EToF = make([][]int, m.NumElements)
	m.Faces = m.Faces[:0]
	m.FaceMap = make(map[string]int)

	for k := 0; k < m.NumElements; k++ {
		facets := elementFaces(m.ElementTypes[k], m.Elements[k])
		m.EToE[k] = make([]int, len(facets))
		m.EToF[k] = make([]int, len(facets))
		for lf, fv := range facets {
			sorted, key := faceKey(fv)
			id, shared := m.FaceMap[key]
			if !shared {
				id = len(m.Faces)
				m.Faces = append(m.Faces, Face{Vertices: sorted, Element: k, LocalID: lf})
				m.FaceMap[key] = id
				m.EToE[k][lf] = -1
			} else {
				nb := m.Faces[id]
				m.EToE[k][lf] = nb.Element
				m.EToE[nb.Element][nb.LocalID] = k
			}
			m.EToF[k][lf] = id
		}
	}
	m.NumFaces = len(m.Faces)
}

// Statistics summarizes a mesh piece.
type Statistics struct {
	NumVertices   int
	NumOwned      int // Vertices owned by the queried rank
	NumElements   int
	NumFaces      int
	BoundaryFaces int // Faces with no local neighbor: physical or partition boundary
	ElementTypes  map[ElementType]int
}

// Statistics reports counts for the piece as seen by rank.
func (m *Mesh) Statistics(rank int) (st Statistics) {
	st = Statistics{
		NumVertices:  m.NumVertices,
		NumElements:  m.NumElements,
		NumFaces:     m.NumFaces,
		ElementTypes: make(map[ElementType]int),
	}
	for _, owner := range m.VertexOwners {
		if owner == rank {
			st.NumOwned++
		}
	}
	for _, t := range m.ElementTypes {
		st.ElementTypes[t]++
	}
	for i := 0; i < m.NumElements; i++ {
		for _, neighbor := range m.EToE[i] {
			if neighbor < 0 {
				st.BoundaryFaces++
			}
		}
	}
	return
}

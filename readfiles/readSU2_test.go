package readfiles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshpart/mesh"
)

var squareSU2 = `% Unit square, two triangles
NDIME= 2
NELEM= 2
5 0 1 3 0
5 0 3 2 1
% Comments can appear outside of data areas
NPOIN= 4 4
0 0 0
1 0 1
0 1 2
1 1.0e+00 3
NMARK= 2
MARKER_TAG= bottom
MARKER_ELEMS= 1
3 0 1
MARKER_TAG= sides
MARKER_ELEMS= 3
3 1 3
3 3 2
3 2 0
`

func TestReadSU2(t *testing.T) {
	{ // Test reading a triangle mesh and its markers
		m := mesh.NewMesh()
		markers, err := ReadSU2(strings.NewReader(squareSU2), m)
		require.NoError(t, err)
		assert.Equal(t, mesh.Triangle, m.CellType)
		assert.Equal(t, 2, m.GDim)
		assert.Equal(t, 4, m.NumVertices)
		assert.Equal(t, 2, m.NumElements)
		assert.Equal(t, []int{0, 3, 2}, m.Elements[1])
		assert.Equal(t, []float64{1, 1}, m.Vertices[3])
		assert.Equal(t, []int{0, 0, 0, 0}, m.VertexOwners)
		assert.Equal(t, 5, m.NumFaces)
		assert.Equal(t, [][]int{{0, 1}}, markers["bottom"])
		assert.Len(t, markers["sides"], 3)
	}
	{ // Test a tetrahedron, points ahead of elements
		m := mesh.NewMesh()
		_, err := ReadSU2(strings.NewReader(`NDIME= 3
NPOIN= 4
0 0 0
1 0 0
0 1 0
0 0 1
NELEM= 1
10 0 1 2 3
`), m)
		require.NoError(t, err)
		assert.Equal(t, mesh.Tet, m.CellType)
		assert.Equal(t, 4, m.NumFaces)
		st := m.Statistics(0)
		assert.Equal(t, 4, st.BoundaryFaces)
	}
}

func TestReadSU2File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "square.su2")
	require.NoError(t, os.WriteFile(path, []byte(squareSU2), 0o644))
	m, markers, err := ReadSU2File(path)
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumElements)
	assert.Len(t, markers, 2)

	_, _, err = ReadSU2File(filepath.Join(t.TempDir(), "missing.su2"))
	assert.Error(t, err)
}

func TestReadSU2Errors(t *testing.T) {
	for name, input := range map[string]string{
		"no equals":      "NDIME 2\n",
		"no dimension":   "NELEM= 1\n5 0 1 2\n",
		"bad dimension":  "NDIME= 4\n",
		"unknown type":   "NDIME= 2\nNELEM= 1\n7 0 1 2\n",
		"short element":  "NDIME= 2\nNELEM= 1\n5 0 1\n",
		"mixed":          "NDIME= 2\nNELEM= 2\n5 0 1 2\n9 0 1 2 3\n",
		"wrong dim":      "NDIME= 3\nNELEM= 1\n5 0 1 2\n",
		"early eof":      "NDIME= 2\nNELEM= 2\n5 0 1 2\n",
		"coordinates":    "NDIME= 2\nNELEM= 1\n5 0 1 2\nNPOIN= 3\n0 0\n1\n",
		"marker":         "NDIME= 2\nNMARK= 1\nMARKER_ELEMS= 1\n",
		"marker element": "NDIME= 2\nNMARK= 1\nMARKER_TAG= w\nMARKER_ELEMS= 1\n5 0 1 2\n",
		"zones":          "NDIME= 2\nNZONE= 2\n",
		"empty":          "NDIME= 2\n",
	} {
		_, err := ReadSU2(strings.NewReader(input), mesh.NewMesh())
		assert.ErrorIs(t, err, ErrFormat, name)
	}
	{ // Out of range vertices are caught by the editor
		_, err := ReadSU2(strings.NewReader("NDIME= 2\nNELEM= 1\n5 0 1 9\nNPOIN= 3\n0 0\n1 0\n0 1\n"), mesh.NewMesh())
		assert.ErrorIs(t, err, mesh.ErrOutOfRange)
	}
}

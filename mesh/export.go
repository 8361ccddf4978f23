package mesh

import (
	"bufio"
	"fmt"
	"io"
)

// WritePartitioned writes the piece of a distributed mesh held by rank in a
// simple text format. Vertex lines carry the local index, global id, owning
// rank and coordinates; element lines carry the local index, global id, type
// and local vertex indices.
func WritePartitioned(w io.Writer, m *Mesh, rank int) error {
	bw := bufio.NewWriter(w)

	// Write header
	fmt.Fprintf(bw, "# Partitioned Mesh\n")
	fmt.Fprintf(bw, "# Rank: %d\n", rank)
	fmt.Fprintf(bw, "# Vertices: %d\n", m.NumVertices)
	fmt.Fprintf(bw, "# Elements: %d\n", m.NumElements)
	fmt.Fprintf(bw, "\n")

	// Write vertices
	fmt.Fprintf(bw, "VERTICES %d\n", m.NumVertices)
	for i, v := range m.Vertices {
		fmt.Fprintf(bw, "%d %d %d", i, m.GlobalVertexIndices[i], m.VertexOwners[i])
		for _, x := range v {
			fmt.Fprintf(bw, " %.6f", x)
		}
		fmt.Fprintf(bw, "\n")
	}
	fmt.Fprintf(bw, "\n")

	// Write elements
	fmt.Fprintf(bw, "ELEMENTS %d\n", m.NumElements)
	for i := 0; i < m.NumElements; i++ {
		fmt.Fprintf(bw, "%d %d %s", i, m.GlobalElementIndices[i], m.ElementTypes[i])
		for _, v := range m.Elements[i] {
			fmt.Fprintf(bw, " %d", v)
		}
		fmt.Fprintf(bw, "\n")
	}

	return bw.Flush()
}

//go:build !nometis

package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

func TestMetisPartitioner(t *testing.T) {
	cube, err := mesh.UnitCube(2, 2, 2)
	require.NoError(t, err)
	var (
		np      = 2
		pieces  = distributed(t, cube, np)
		assigns = make([]CellAssignment, np)
		cuts    = make([]int, np)
	)
	err = run(np, func(g parallel.Group) (err error) {
		var dg *DualGraphCSR
		if dg, err = BuildDualGraph(g, pieces[g.Rank()]); err != nil {
			return
		}
		assigns[g.Rank()], cuts[g.Rank()], err = New().PartitionCells(g, dg)
		return
	})
	require.NoError(t, err)
	assert.Equal(t, cuts[0], cuts[1])

	var (
		part   []int
		counts = make([]int, np)
		eind   []int
	)
	for r, a := range assigns {
		require.Len(t, a, pieces[r].NumLocalCells())
		part = append(part, a...)
		for _, d := range a {
			counts[d]++
		}
	}
	for _, cell := range cube.Elements {
		eind = append(eind, cell...)
	}
	xadj, adjncy := DualAdjacency(eind, 4, 3)
	assert.Equal(t, EdgeCut(xadj, adjncy, part), cuts[0])
	assert.Greater(t, cuts[0], 0)
	for d, n := range counts {
		assert.InDelta(t, 24, n, 4, "part %d", d)
	}
}

func TestMetisPartitionMesh(t *testing.T) {
	square, err := mesh.UnitSquare(6, 6)
	require.NoError(t, err)
	for _, np := range []int{2, 3} {
		t.Run(fmt.Sprintf("np=%d", np), func(t *testing.T) {
			var (
				pieces = distributed(t, square, np)
				meshes = make([]*mesh.Mesh, np)
			)
			err := run(np, func(g parallel.Group) error {
				meshes[g.Rank()] = mesh.NewMesh()
				return New().PartitionMesh(g, meshes[g.Rank()], pieces[g.Rank()])
			})
			require.NoError(t, err)
			checkPartitionedMesh(t, square, meshes, pieces)
		})
	}
}

func TestMetisTooFewCells(t *testing.T) {
	square, err := mesh.UnitSquare(1, 1)
	require.NoError(t, err)
	pieces := distributed(t, square, 3)
	errs := runAll(3, func(g parallel.Group) error {
		dg, err := BuildDualGraph(g, pieces[g.Rank()])
		if err != nil {
			return err
		}
		_, _, err = New().PartitionCells(g, dg)
		return err
	})
	for r, err := range errs {
		assert.ErrorIs(t, err, ErrPartitioner, "rank %d", r)
	}
}

func TestMetisNegativeVertexIds(t *testing.T) {
	{ // Ids that reach rank 0 out of range fail every rank alike
		graphs := []*DualGraphCSR{
			{ElmDist: []int{0, 1, 2}, EPtr: []int{0, 3}, EInd: []int{-1, 1, 2}, NCommonNodes: 2},
			{ElmDist: []int{0, 1, 2}, EPtr: []int{0, 3}, EInd: []int{0, 1, 2}, NCommonNodes: 2},
		}
		errs := runAll(2, func(g parallel.Group) error {
			_, _, err := New().PartitionCells(g, graphs[g.Rank()])
			return err
		})
		for r, err := range errs {
			assert.ErrorIs(t, err, ErrPartitioner, "rank %d", r)
		}
	}
	{ // Negative ids connect nothing
		xadj, adjncy := DualAdjacency([]int{-1, 1, 2, 0, 1, 2}, 3, 2)
		assert.Equal(t, []int{0, 1, 2}, xadj)
		assert.Equal(t, []int{1, 0}, adjncy)
	}
}

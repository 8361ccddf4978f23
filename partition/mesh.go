package partition

import (
	"fmt"
	"sort"
	"time"

	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/parallel"
)

// PartitionMesh partitions the distributed mesh described by data over g and
// assembles this rank's piece through editor. Cells are partitioned on their
// dual graph, every vertex is owned by the lowest rank whose cells use it and
// the vertices a rank uses but does not own are added after the owned ones as
// ghosts. On return data holds the cells placed here and the vertices owned
// here.
func (p *Partitioner) PartitionMesh(g parallel.Group, editor mesh.Editor, data *mesh.LocalMeshData) (err error) {
	if g, err = p.begin(g, data.Validate); err != nil {
		return
	}
	var (
		me      = g.Rank()
		start   = time.Now()
		graph   *DualGraphCSR
		cells   CellAssignment
		edgecut int
		own     *ownership
	)
	p.logger.Debug("partitioning mesh", "rank", me, "cells", data.NumLocalCells(),
		"vertices", data.NumLocalVertices())

	t := time.Now()
	if graph, err = BuildDualGraph(g, data); err != nil {
		return
	}
	p.stage("dual graph", t)

	if cells, edgecut, err = p.partitionCells(g, graph); err != nil {
		return
	}
	if err = p.distributeCells(g, data, cells); err != nil {
		return
	}

	t = time.Now()
	if own, err = resolveOwners(g, data); err != nil {
		return
	}
	p.stage("vertex ownership", t)
	data.GDim = own.gdim

	if err = p.distributeVertices(g, data, own.held); err != nil {
		return
	}

	t = time.Now()
	var ghosts []int
	for _, v := range referenced(data) {
		if own.refs[v] != me {
			ghosts = append(ghosts, v)
		}
	}
	sort.Ints(ghosts)
	var coords map[int][]float64
	if coords, err = fetchGhosts(g, data, ghosts, own.refs, own.gdim); err != nil {
		return
	}
	p.metrics.AddExchanged("ghost", len(ghosts))
	p.stage("ghost vertices", t)

	if err = assemble(editor, data, ghosts, coords, own, me); err != nil {
		return fmt.Errorf("rank %d: assembling mesh: %w", me, err)
	}
	p.stage("partition mesh", start)
	p.logger.Info("mesh partitioned", "rank", me, "cells", data.NumLocalCells(),
		"owned", data.NumLocalVertices(), "ghosts", len(ghosts), "edgecut", edgecut)
	return
}

func assemble(editor mesh.Editor, data *mesh.LocalMeshData, ghosts []int,
	coords map[int][]float64, own *ownership, me int) (err error) {
	var (
		nOwned = data.NumLocalVertices()
		local  = make(map[int]int, nOwned+len(ghosts))
		tdim   = data.TDim
	)
	if tdim == 0 {
		tdim = data.CellType.Dim()
	}
	if err = editor.Open(data.CellType, tdim, own.gdim); err != nil {
		return
	}
	if err = editor.InitVertices(nOwned + len(ghosts)); err != nil {
		return
	}
	for i, v := range data.VertexIndices {
		local[v] = i
		if err = editor.AddVertex(i, v, me, data.VertexCoordinates[i]); err != nil {
			return
		}
	}
	for i, v := range ghosts {
		local[v] = nOwned + i
		if err = editor.AddVertex(nOwned+i, v, own.refs[v], coords[v]); err != nil {
			return
		}
	}
	if err = editor.InitCells(data.NumLocalCells()); err != nil {
		return
	}
	for c, cell := range data.CellVertices {
		verts := make([]int, len(cell))
		for i, v := range cell {
			verts[i] = local[v]
		}
		if err = editor.AddCell(c, data.CellIndices[c], verts); err != nil {
			return
		}
	}
	return editor.Close()
}

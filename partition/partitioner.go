// Package partition splits a distributed mesh over a process group and moves
// cells and vertices to the ranks that own them.
//
// All operations are collective over the group they are handed: every rank
// calls them in the same order with the same expectations. Each public entry
// point runs on a duplicate of the group's context so its traffic never
// matches unrelated collectives of the host program.
package partition

import (
	"fmt"
	"time"

	"github.com/notargets/meshpart/logging"
	"github.com/notargets/meshpart/parallel"
)

// Fixed partitioning constants handed to the graph partitioner.
const (
	// ImbalanceTolerance allows each part to be at most 5% over its target.
	ImbalanceTolerance = 1.05
)

// CellAssignment holds the destination rank of every local cell.
type CellAssignment []int

// VertexAssignment holds the destination rank of every local vertex.
type VertexAssignment []int

// Metrics receives partitioning measurements.
type Metrics interface {
	ObserveEdgeCut(edgecut int)
	AddExchanged(entity string, n int)
	ObserveStage(stage string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveEdgeCut(int)                 {}
func (nopMetrics) AddExchanged(string, int)           {}
func (nopMetrics) ObserveStage(string, time.Duration) {}

// Partitioner runs the partitioning and redistribution passes. The zero value
// is not usable; build one with New.
type Partitioner struct {
	logger  logging.Logger
	metrics Metrics
	graph   GraphPartitioner
	geom    GeometricPartitioner
}

type Option func(*Partitioner)

func WithLogger(l logging.Logger) Option {
	return func(p *Partitioner) { p.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(p *Partitioner) { p.metrics = m }
}

// WithGraphPartitioner replaces the METIS backend used for cell partitioning.
func WithGraphPartitioner(gp GraphPartitioner) Option {
	return func(p *Partitioner) { p.graph = gp }
}

// WithGeometricPartitioner replaces the space filling curve backend used for
// vertex partitioning.
func WithGeometricPartitioner(gp GeometricPartitioner) Option {
	return func(p *Partitioner) { p.geom = gp }
}

func New(opts ...Option) *Partitioner {
	p := &Partitioner{
		logger:  logging.NewNop(),
		metrics: nopMetrics{},
		graph:   &MetisPartitioner{},
		geom:    &SFCPartitioner{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether the binary carries the partitioning backends.
func Available() bool { return available }

// begin is the common prologue of every entry point: the feature gate, the
// local precondition check if any, then a private context for the pass.
// Nothing here communicates before local is satisfied.
func (p *Partitioner) begin(g parallel.Group, local func() error) (parallel.Group, error) {
	if !available {
		return nil, ErrUnavailable
	}
	if local != nil {
		if err := local(); err != nil {
			return nil, fmt.Errorf("rank %d: %w: %w", g.Rank(), ErrPrecondition, err)
		}
	}
	return g.Dup()
}

func (p *Partitioner) stage(name string, start time.Time) {
	d := time.Since(start)
	p.metrics.ObserveStage(name, d)
	p.logger.Debug("stage done", "stage", name, "elapsed", d)
}

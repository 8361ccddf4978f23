/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/meshpart/InputParameters"
	"github.com/notargets/meshpart/logging"
	"github.com/notargets/meshpart/mesh"
	"github.com/notargets/meshpart/metrics"
	"github.com/notargets/meshpart/parallel"
	"github.com/notargets/meshpart/parallel/natsgroup"
	"github.com/notargets/meshpart/partition"
	"github.com/notargets/meshpart/readfiles"
)

// PartitionCmd represents the partition command
var PartitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Partition a mesh across a group of ranks",
	Long: `Reads an SU2 grid file (--gridFile), or generates a unit cube of tetrahedra
or a unit square of triangles, splits it into contiguous blocks as a parallel
mesh reader would and redistributes it.

The graph method partitions cells with METIS and writes the assembled piece
of every rank, ghost vertices included, to <output>/part.<rank>.txt. The
geometric method orders vertices along a Morton curve and writes them without
cells.

With --transport local all ranks run in this process. With --transport nats
this process is rank --rank of --ranks, and every rank must be started with
the same --session.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.PartitionParameters
			log *logging.SlogLogger
		)
		if ip, err = loadParameters(); err != nil {
			return
		}
		if err = ip.Validate(); err != nil {
			return
		}
		if log, err = logging.New(ip.LogLevel, ip.LogFormat, nil); err != nil {
			return
		}
		if !partition.Available() {
			return partition.ErrUnavailable
		}
		ip.Print()
		var met partition.Metrics
		if addr := viper.GetString("metrics-addr"); addr != "" {
			reg := prometheus.NewRegistry()
			stop := serveMetrics(addr, reg, log)
			defer stop()
			met = metrics.NewPrometheus(reg, "")
		}
		return RunPartition(ip, log, met)
	},
}

func init() {
	rootCmd.AddCommand(PartitionCmd)
	def := InputParameters.Defaults()
	PartitionCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file of partition parameters, flags override its values")
	PartitionCmd.Flags().StringP("gridFile", "F", "", "grid file to read in SU2 (.su2) format instead of generating one")
	PartitionCmd.Flags().StringP("method", "m", def.Method, "graph (METIS on the dual graph) or geometric (Morton curve)")
	PartitionCmd.Flags().IntP("ranks", "n", def.Ranks, "number of ranks")
	PartitionCmd.Flags().String("transport", def.Transport, "local (goroutine ranks) or nats (one process per rank)")
	PartitionCmd.Flags().String("nats-url", def.NatsURL, "NATS server, nats transport only")
	PartitionCmd.Flags().String("session", def.Session, "session shared by all ranks, nats transport only")
	PartitionCmd.Flags().Int("rank", def.Rank, "rank of this process, nats transport only")
	PartitionCmd.Flags().IntP("dim", "d", def.Mesh.Dim, "2 for the unit square, 3 for the unit cube")
	PartitionCmd.Flags().Int("nx", def.Mesh.NX, "subdivisions along x")
	PartitionCmd.Flags().Int("ny", def.Mesh.NY, "subdivisions along y")
	PartitionCmd.Flags().Int("nz", def.Mesh.NZ, "subdivisions along z")
	PartitionCmd.Flags().StringP("output", "o", def.Output, "directory receiving part.<rank>.txt")
	PartitionCmd.Flags().Duration("timeout", def.Timeout, "limit on every receive, 0 waits forever")
	PartitionCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	bindFlags(PartitionCmd, "inputConditionsFile", "gridFile", "method", "ranks", "transport", "nats-url", "session",
		"rank", "dim", "nx", "ny", "nz", "output", "timeout", "metrics-addr")
}

// loadParameters layers the input file over the defaults, then every key
// given by flag, environment or config file over that.
func loadParameters() (ip *InputParameters.PartitionParameters, err error) {
	ip = InputParameters.Defaults()
	if file := viper.GetString("inputConditionsFile"); file != "" {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return nil, err
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
	}
	for key, s := range map[string]*string{
		"method":     &ip.Method,
		"transport":  &ip.Transport,
		"gridFile":   &ip.Mesh.GridFile,
		"nats-url":   &ip.NatsURL,
		"session":    &ip.Session,
		"output":     &ip.Output,
		"log-level":  &ip.LogLevel,
		"log-format": &ip.LogFormat,
	} {
		if viper.IsSet(key) {
			*s = viper.GetString(key)
		}
	}
	for key, i := range map[string]*int{
		"ranks": &ip.Ranks,
		"rank":  &ip.Rank,
		"dim":   &ip.Mesh.Dim,
		"nx":    &ip.Mesh.NX,
		"ny":    &ip.Mesh.NY,
		"nz":    &ip.Mesh.NZ,
	} {
		if viper.IsSet(key) {
			*i = viper.GetInt(key)
		}
	}
	if viper.IsSet("timeout") {
		ip.Timeout = viper.GetDuration("timeout")
	}
	return
}

func serveMetrics(addr string, reg *prometheus.Registry, log logging.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// Fixture returns the mesh read from the grid file of mp, else the generated
// one it describes.
func Fixture(mp InputParameters.MeshParameters) (*mesh.Mesh, error) {
	switch {
	case mp.GridFile != "":
		m, _, err := readfiles.ReadSU2File(mp.GridFile)
		return m, err
	case mp.Dim == 2:
		return mesh.UnitSquare(mp.NX, mp.NY)
	}
	return mesh.UnitCube(mp.NX, mp.NY, mp.NZ)
}

// RunPartition partitions the fixture of ip on every rank of the configured
// transport and writes each rank's piece. met may be nil.
func RunPartition(ip *InputParameters.PartitionParameters, log *logging.SlogLogger, met partition.Metrics) (err error) {
	var fixture *mesh.Mesh
	if fixture, err = Fixture(ip.Mesh); err != nil {
		return
	}
	if err = os.MkdirAll(ip.Output, 0o755); err != nil {
		return
	}
	start := time.Now()
	switch ip.Transport {
	case "nats":
		var (
			nc  *nats.Conn
			grp *natsgroup.Group
		)
		if nc, err = nats.Connect(ip.NatsURL, nats.Name(fmt.Sprintf("meshpart %s rank %d", ip.Session, ip.Rank))); err != nil {
			return fmt.Errorf("connecting to %s: %w", ip.NatsURL, err)
		}
		defer nc.Close()
		grp, err = natsgroup.Connect(nc, natsgroup.Config{
			Session: ip.Session,
			Rank:    ip.Rank,
			Size:    ip.Ranks,
			Timeout: ip.Timeout,
		})
		if err != nil {
			return
		}
		defer func() {
			if cerr := grp.Close(); err == nil {
				err = cerr
			}
		}()
		log.Info("joined session", "session", grp.Session(), "rank", grp.Rank(), "ranks", grp.Size())
		err = partitionRank(grp, fixture, ip, log, met)
	default:
		w := parallel.NewWorld(ip.Ranks)
		w.Timeout = ip.Timeout
		err = w.Run(func(g parallel.Group) error {
			return partitionRank(g, fixture, ip, log, met)
		})
	}
	if err == nil {
		log.Info("partition complete", "method", ip.Method, "ranks", ip.Ranks,
			"cells", fixture.NumElements, "vertices", fixture.NumVertices, "elapsed", time.Since(start))
	}
	return
}

func partitionRank(g parallel.Group, fixture *mesh.Mesh, ip *InputParameters.PartitionParameters,
	log *logging.SlogLogger, met partition.Metrics) (err error) {
	var (
		rank = g.Rank()
		rlog = log.With("rank", rank)
		opts = []partition.Option{partition.WithLogger(rlog)}
		data *mesh.LocalMeshData
		m    = mesh.NewMesh()
	)
	if met != nil {
		opts = append(opts, partition.WithMetrics(met))
	}
	p := partition.New(opts...)
	if data, err = fixture.Distribute(rank, g.Size()); err != nil {
		return
	}
	switch ip.Method {
	case "geometric":
		var assign partition.VertexAssignment
		if assign, err = p.PartitionVertices(g, data); err != nil {
			return
		}
		if err = p.DistributeVertices(g, data, assign); err != nil {
			return
		}
		if err = vertexPiece(m, data, rank); err != nil {
			return
		}
	default:
		if err = p.PartitionMesh(g, m, data); err != nil {
			return
		}
	}
	st := m.Statistics(rank)
	rlog.Info("piece assembled", "vertices", st.NumVertices, "owned", st.NumOwned,
		"cells", st.NumElements, "faces", st.NumFaces, "boundaryFaces", st.BoundaryFaces)
	return writePiece(filepath.Join(ip.Output, fmt.Sprintf("part.%d.txt", rank)), m, rank)
}

// vertexPiece loads the vertices held in data, all owned by rank, into a mesh
// without cells.
func vertexPiece(editor mesh.Editor, data *mesh.LocalMeshData, rank int) (err error) {
	if err = editor.Open(data.CellType, data.TDim, data.GDim); err != nil {
		return
	}
	if err = editor.InitVertices(data.NumLocalVertices()); err != nil {
		return
	}
	for i, x := range data.VertexCoordinates {
		if err = editor.AddVertex(i, data.VertexIndices[i], rank, x); err != nil {
			return
		}
	}
	if err = editor.InitCells(0); err != nil {
		return
	}
	return editor.Close()
}

func writePiece(path string, m *mesh.Mesh, rank int) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return mesh.WritePartitioned(f, m, rank)
}

package InputParameters

import (
	"errors"
	"fmt"
	"time"

	"github.com/ghodss/yaml"
)

var ErrInvalidParameters = errors.New("invalid partition parameters")

type MeshParameters struct {
	GridFile string `yaml:"GridFile"` // SU2 mesh, replaces the generated one when set
	Dim      int    `yaml:"Dim"`      // 2 for the unit square, 3 for the unit cube
	NX       int    `yaml:"NX"`
	NY       int    `yaml:"NY"`
	NZ       int    `yaml:"NZ"`
}

// Parameters obtained from the YAML input file
type PartitionParameters struct {
	Title     string         `yaml:"Title"`
	Method    string         `yaml:"Method"`    // graph or geometric
	Ranks     int            `yaml:"Ranks"`     // Size of the process group
	Transport string         `yaml:"Transport"` // local or nats
	NatsURL   string         `yaml:"NatsURL"`
	Session   string         `yaml:"Session"` // Shared by all ranks of a NATS run
	Rank      int            `yaml:"Rank"`    // This process, NATS transport only
	Mesh      MeshParameters `yaml:"Mesh"`
	Output    string         `yaml:"Output"` // Directory receiving part.<rank>.txt
	LogLevel  string         `yaml:"LogLevel"`
	LogFormat string         `yaml:"LogFormat"`
	Timeout   time.Duration  `yaml:"Timeout"` // A duration string like 30s, or nanoseconds
}

// Defaults returns a two rank graph partition of an 8x8x8 unit cube.
func Defaults() *PartitionParameters {
	return &PartitionParameters{
		Title:     "Unit cube",
		Method:    "graph",
		Ranks:     2,
		Transport: "local",
		NatsURL:   "nats://127.0.0.1:4222",
		Mesh:      MeshParameters{Dim: 3, NX: 8, NY: 8, NZ: 8},
		Output:    ".",
		LogLevel:  "info",
		LogFormat: "text",
		Timeout:   time.Minute,
	}
}

type parameters PartitionParameters

// Parse overlays the YAML document in data onto ip.
func (ip *PartitionParameters) Parse(data []byte) (err error) {
	aux := struct {
		*parameters
		Timeout any
	}{parameters: (*parameters)(ip)}
	if err = yaml.Unmarshal(data, &aux); err != nil {
		return
	}
	switch t := aux.Timeout.(type) {
	case nil:
	case float64:
		ip.Timeout = time.Duration(t)
	case string:
		if ip.Timeout, err = time.ParseDuration(t); err != nil {
			return fmt.Errorf("timeout: %w: %w", ErrInvalidParameters, err)
		}
	default:
		return fmt.Errorf("timeout %v: %w", t, ErrInvalidParameters)
	}
	return
}

func (ip *PartitionParameters) Validate() error {
	switch {
	case ip.Method != "graph" && ip.Method != "geometric":
		return fmt.Errorf("method %q, want graph or geometric: %w", ip.Method, ErrInvalidParameters)
	case ip.Transport != "local" && ip.Transport != "nats":
		return fmt.Errorf("transport %q, want local or nats: %w", ip.Transport, ErrInvalidParameters)
	case ip.Ranks < 1:
		return fmt.Errorf("%d ranks: %w", ip.Ranks, ErrInvalidParameters)
	case ip.Transport == "nats" && (ip.Rank < 0 || ip.Rank >= ip.Ranks):
		return fmt.Errorf("rank %d of %d: %w", ip.Rank, ip.Ranks, ErrInvalidParameters)
	case ip.Transport == "nats" && ip.Session == "":
		return fmt.Errorf("nats transport needs a session: %w", ErrInvalidParameters)
	case ip.Mesh.GridFile != "":
	case ip.Mesh.Dim != 2 && ip.Mesh.Dim != 3:
		return fmt.Errorf("mesh dimension %d: %w", ip.Mesh.Dim, ErrInvalidParameters)
	case ip.Mesh.NX < 1 || ip.Mesh.NY < 1 || (ip.Mesh.Dim == 3 && ip.Mesh.NZ < 1):
		return fmt.Errorf("mesh size %dx%dx%d: %w", ip.Mesh.NX, ip.Mesh.NY, ip.Mesh.NZ, ErrInvalidParameters)
	}
	return nil
}

func (ip *PartitionParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%s]\t\t\t= Method\n", ip.Method)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", ip.Ranks)
	fmt.Printf("[%s]\t\t\t= Transport\n", ip.Transport)
	if ip.Transport == "nats" {
		fmt.Printf("[%s]\t= NatsURL\n", ip.NatsURL)
		fmt.Printf("[%s]\t= Session\n", ip.Session)
		fmt.Printf("[%d]\t\t\t\t= Rank\n", ip.Rank)
	}
	switch {
	case ip.Mesh.GridFile != "":
		fmt.Printf("[%s]\t\t= Grid File\n", ip.Mesh.GridFile)
	case ip.Mesh.Dim == 2:
		fmt.Printf("[%dx%d]\t\t\t= Unit Square\n", ip.Mesh.NX, ip.Mesh.NY)
	default:
		fmt.Printf("[%dx%dx%d]\t\t\t= Unit Cube\n", ip.Mesh.NX, ip.Mesh.NY, ip.Mesh.NZ)
	}
	fmt.Printf("[%s]\t\t\t= Output\n", ip.Output)
}

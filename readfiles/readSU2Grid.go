package readfiles

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/meshpart/mesh"
)

var ErrFormat = errors.New("malformed SU2 mesh")

// From here: https://su2code.github.io/docs_v7/Mesh-File/
type SU2ElementType uint8

const (
	ELType_LINE          SU2ElementType = 3
	ELType_Triangle      SU2ElementType = 5
	ELType_Quadrilateral SU2ElementType = 9
	ELType_Tetrahedral   SU2ElementType = 10
	ELType_Hexahedral    SU2ElementType = 12
	ELType_Prism         SU2ElementType = 13
	ELType_Pyramid       SU2ElementType = 14
)

func (et SU2ElementType) ElementType() (t mesh.ElementType, ok bool) {
	ok = true
	switch et {
	case ELType_LINE:
		t = mesh.Line
	case ELType_Triangle:
		t = mesh.Triangle
	case ELType_Quadrilateral:
		t = mesh.Quad
	case ELType_Tetrahedral:
		t = mesh.Tet
	case ELType_Hexahedral:
		t = mesh.Hex
	case ELType_Prism:
		t = mesh.Prism
	case ELType_Pyramid:
		t = mesh.Pyramid
	default:
		ok = false
	}
	return
}

type su2Reader struct {
	sc     *bufio.Scanner
	lineNo int
}

// next returns the next line that is neither blank nor a % comment.
func (r *su2Reader) next() (line string, err error) {
	for r.sc.Scan() {
		r.lineNo++
		line = strings.TrimSpace(r.sc.Text())
		if line != "" && !strings.HasPrefix(line, "%") {
			return
		}
	}
	if err = r.sc.Err(); err == nil {
		err = io.EOF
	}
	return "", err
}

func (r *su2Reader) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", r.lineNo, fmt.Sprintf(format, args...), ErrFormat)
}

// field reads the next "KEY= value" line and requires its key to be key.
func (r *su2Reader) field(key string) (value string, err error) {
	var line string
	if line, err = r.next(); err != nil {
		return "", r.eof(err)
	}
	k, v, ok := strings.Cut(line, "=")
	if !ok || strings.TrimSpace(k) != key {
		return "", r.errorf("got %q, want %s=", line, key)
	}
	return strings.TrimSpace(v), nil
}

func (r *su2Reader) eof(err error) error {
	if errors.Is(err, io.EOF) {
		return r.errorf("early end of file")
	}
	return err
}

// count parses the leading integer of a keyword value; NPOIN may carry a
// second count of domain points.
func (r *su2Reader) count(key, value string) (n int, err error) {
	fields := strings.Fields(value)
	if len(fields) > 0 {
		n, err = strconv.Atoi(fields[0])
	}
	if len(fields) == 0 || err != nil || n < 0 {
		return 0, r.errorf("%s= %q is not a count", key, value)
	}
	return
}

// ints reads one element line: the SU2 type code followed by its vertices.
// Anything after the vertices, usually the element index, is ignored.
func (r *su2Reader) ints() (et SU2ElementType, t mesh.ElementType, verts []int, err error) {
	var (
		line string
		code int
		ok   bool
	)
	if line, err = r.next(); err != nil {
		err = r.eof(err)
		return
	}
	fields := strings.Fields(line)
	if code, err = strconv.Atoi(fields[0]); err != nil {
		err = r.errorf("element type %q", fields[0])
		return
	}
	et = SU2ElementType(code)
	if t, ok = et.ElementType(); !ok {
		err = r.errorf("unknown element type %d", code)
		return
	}
	nv := t.NumVertices()
	if len(fields) < 1+nv {
		err = r.errorf("%s needs %d vertices", t, nv)
		return
	}
	verts = make([]int, nv)
	for i := range verts {
		if verts[i], err = strconv.Atoi(fields[1+i]); err != nil {
			err = r.errorf("vertex %q", fields[1+i])
			return
		}
	}
	return
}

func (r *su2Reader) point(dim int) (x []float64, err error) {
	var line string
	if line, err = r.next(); err != nil {
		return nil, r.eof(err)
	}
	fields := strings.Fields(line)
	if len(fields) < dim {
		return nil, r.errorf("%d coordinates, want %d", len(fields), dim)
	}
	x = make([]float64, dim)
	for i := range x {
		if x[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return nil, r.errorf("coordinate %q", fields[i])
		}
	}
	return
}

// ReadSU2 reads a single zone SU2 mesh into editor. Every cell must be of the
// same type. Vertices and cells keep their file order as global ids, all
// vertices are owned by rank 0. The returned markers map each MARKER_TAG to
// the vertex lists of its boundary elements.
func ReadSU2(rd io.Reader, editor mesh.Editor) (markers map[string][][]int, err error) {
	var (
		r        = &su2Reader{sc: bufio.NewScanner(rd)}
		dim      int
		cellType = mesh.ElementType(-1)
		cells    [][]int
		points   [][]float64
		line     string
	)
	markers = make(map[string][][]int)
	for {
		line, err = r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, r.errorf("badly formed input line [%s], should have an =", line)
		}
		key = strings.TrimSpace(key)
		var n int
		if key != "NDIME" && dim == 0 {
			return nil, r.errorf("%s before NDIME", key)
		}
		if n, err = r.count(key, value); err != nil {
			return nil, err
		}
		switch key {
		case "NDIME":
			if n != 2 && n != 3 {
				return nil, r.errorf("dimension %d", n)
			}
			dim = n
		case "NELEM":
			cells = make([][]int, n)
			for k := range cells {
				var t mesh.ElementType
				if _, t, cells[k], err = r.ints(); err != nil {
					return nil, err
				}
				if k == 0 {
					cellType = t
				}
				if t != cellType || t.Dim() != dim {
					return nil, r.errorf("cell %d is a %s in a %dD mesh of %s", k, t, dim, cellType)
				}
			}
		case "NPOIN":
			points = make([][]float64, n)
			for i := range points {
				if points[i], err = r.point(dim); err != nil {
					return nil, err
				}
			}
		case "NMARK":
			for m := 0; m < n; m++ {
				var (
					tag, elems string
					ne         int
				)
				if tag, err = r.field("MARKER_TAG"); err != nil {
					return nil, err
				}
				if elems, err = r.field("MARKER_ELEMS"); err != nil {
					return nil, err
				}
				if ne, err = r.count("MARKER_ELEMS", elems); err != nil {
					return nil, err
				}
				for i := 0; i < ne; i++ {
					var (
						t     mesh.ElementType
						verts []int
					)
					if _, t, verts, err = r.ints(); err != nil {
						return nil, err
					}
					if t.Dim() != dim-1 {
						return nil, r.errorf("marker %s holds a %s", tag, t)
					}
					markers[tag] = append(markers[tag], verts)
				}
			}
		default:
			return nil, r.errorf("unsupported keyword %s", key)
		}
	}
	if len(cells) == 0 || len(points) == 0 {
		return nil, fmt.Errorf("%d cells and %d points: %w", len(cells), len(points), ErrFormat)
	}

	if err = editor.Open(cellType, dim, dim); err != nil {
		return
	}
	if err = editor.InitVertices(len(points)); err != nil {
		return
	}
	for i, x := range points {
		if err = editor.AddVertex(i, i, 0, x); err != nil {
			return
		}
	}
	if err = editor.InitCells(len(cells)); err != nil {
		return
	}
	for k, cell := range cells {
		if err = editor.AddCell(k, k, cell); err != nil {
			return
		}
	}
	if err = editor.Close(); err != nil {
		return
	}
	return markers, nil
}

func ReadSU2File(filename string) (m *mesh.Mesh, markers map[string][][]int, err error) {
	var file *os.File
	if file, err = os.Open(filename); err != nil {
		return nil, nil, fmt.Errorf("unable to open file %s: %w", filename, err)
	}
	defer file.Close()
	m = mesh.NewMesh()
	if markers, err = ReadSU2(file, m); err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return
}

package parallel

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoder appends fixed width little endian values to a payload buffer.
// Slices are written as a length followed by the elements.
type Encoder struct {
	buf []byte
}

func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

func (e *Encoder) PutInt(v int) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(int64(v)))
}

func (e *Encoder) PutUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) PutFloat(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *Encoder) PutInts(v []int) {
	e.PutInt(len(v))
	for _, x := range v {
		e.PutInt(x)
	}
}

func (e *Encoder) PutUint64s(v []uint64) {
	e.PutInt(len(v))
	for _, x := range v {
		e.PutUint64(x)
	}
}

func (e *Encoder) PutFloats(v []float64) {
	e.PutInt(len(v))
	for _, x := range v {
		e.PutFloat(x)
	}
}

// Bytes returns the encoded payload, never nil.
func (e *Encoder) Bytes() []byte {
	if e.buf == nil {
		return []byte{}
	}
	return e.buf
}

// Decoder reads values written by an Encoder in the same order.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining is the number of undecoded bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) Uint64() (v uint64, err error) {
	if d.Remaining() < 8 {
		return 0, fmt.Errorf("need 8 bytes at offset %d, have %d: %w",
			d.off, d.Remaining(), ErrShortPayload)
	}
	v = binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return
}

func (d *Decoder) Int() (v int, err error) {
	var u uint64
	if u, err = d.Uint64(); err != nil {
		return
	}
	return int(int64(u)), nil
}

func (d *Decoder) Float() (v float64, err error) {
	var u uint64
	if u, err = d.Uint64(); err != nil {
		return
	}
	return math.Float64frombits(u), nil
}

func (d *Decoder) length() (n int, err error) {
	if n, err = d.Int(); err != nil {
		return
	}
	if n < 0 || n*8 > d.Remaining() {
		return 0, fmt.Errorf("slice length %d exceeds %d remaining bytes: %w",
			n, d.Remaining(), ErrShortPayload)
	}
	return
}

func (d *Decoder) Ints() (v []int, err error) {
	var n int
	if n, err = d.length(); err != nil {
		return
	}
	v = make([]int, n)
	for i := range v {
		if v[i], err = d.Int(); err != nil {
			return nil, err
		}
	}
	return
}

func (d *Decoder) Uint64s() (v []uint64, err error) {
	var n int
	if n, err = d.length(); err != nil {
		return
	}
	v = make([]uint64, n)
	for i := range v {
		if v[i], err = d.Uint64(); err != nil {
			return nil, err
		}
	}
	return
}

func (d *Decoder) Floats() (v []float64, err error) {
	var n int
	if n, err = d.length(); err != nil {
		return
	}
	v = make([]float64, n)
	for i := range v {
		if v[i], err = d.Float(); err != nil {
			return nil, err
		}
	}
	return
}

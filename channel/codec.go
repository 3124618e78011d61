package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Records are exchanged with workers running on the same platform family so
// they use the host byte order.
var byteOrder = binary.NativeEndian

// The largest element count accepted by ReadCount. Anything larger indicates
// a corrupted or mismatched stream.
const MaxArrayLen = 1 << 28

var ErrArrayTooLarge = errors.New("channel: array length exceeds limit")

// An Encoder writes fixed-size records to a stream. The first error is
// sticky; subsequent writes are no-ops and Err reports it.
type Encoder struct {
	w   io.Writer
	err error
}

// Create a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write a fixed-size value (or a slice of fixed-size values).
func (e *Encoder) Write(v interface{}) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, byteOrder, v)
}

// Write raw bytes.
func (e *Encoder) WriteBytes(b []byte) {
	if e.err != nil || len(b) == 0 {
		return
	}
	_, e.err = e.w.Write(b)
}

// Write an element count prefix.
func (e *Encoder) WriteCount(n int) {
	e.Write(uint32(n))
}

// Write a length-prefixed string.
func (e *Encoder) WriteString(s string) {
	e.WriteCount(len(s))
	e.WriteBytes([]byte(s))
}

// Get the first error encountered while writing.
func (e *Encoder) Err() error {
	return e.err
}

// Record an error detected by a caller while preparing data. The first error
// wins.
func (e *Encoder) Fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Write a length-prefixed array of fixed-size elements.
func WriteArray[T any](e *Encoder, items []T) {
	e.WriteCount(len(items))
	if len(items) > 0 {
		e.Write(items)
	}
}

// A Decoder reads fixed-size records from a stream. Like Encoder, the first
// error is sticky.
type Decoder struct {
	r   io.Reader
	err error
}

// Create a new decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Read a fixed-size value into v which must be a pointer or a slice.
func (d *Decoder) Read(v interface{}) {
	if d.err != nil {
		return
	}
	d.err = binary.Read(d.r, byteOrder, v)
}

// Read exactly n raw bytes.
func (d *Decoder) ReadBytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > MaxArrayLen {
		d.err = fmt.Errorf("%w: %d bytes", ErrArrayTooLarge, n)
		return nil
	}
	buf := make([]byte, n)
	_, d.err = io.ReadFull(d.r, buf)
	return buf
}

// Read an element count prefix.
func (d *Decoder) ReadCount() int {
	var n uint32
	d.Read(&n)
	if d.err != nil {
		return 0
	}
	if n > MaxArrayLen {
		d.err = fmt.Errorf("%w: %d elements", ErrArrayTooLarge, n)
		return 0
	}
	return int(n)
}

// Read a length-prefixed string.
func (d *Decoder) ReadString() string {
	return string(d.ReadBytes(d.ReadCount()))
}

// Get the first error encountered while reading.
func (d *Decoder) Err() error {
	return d.err
}

// Record an error detected by a caller while validating decoded data. The
// first error wins.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Read a length-prefixed array of fixed-size elements.
func ReadArray[T any](d *Decoder) []T {
	n := d.ReadCount()
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]T, n)
	d.Read(out)
	if d.err != nil {
		return nil
	}
	return out
}

package protocol

import (
	"encoding/binary"
	"math"
)

// writer appends little-endian fields to a fixed-size buffer.
type writer struct {
	buf []byte
	off int
}

func (w *writer) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *writer) i16(v int16) { w.u16(uint16(v)) } //nolint:gosec // two's complement reinterpretation

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

// bytes copies b and zero-fills up to n bytes.
func (w *writer) bytes(b []byte, n int) {
	copy(w.buf[w.off:w.off+n], b)
	for i := len(b); i < n; i++ {
		w.buf[w.off+i] = 0
	}
	w.off += n
}

// str writes s NUL-padded (or truncated) to exactly n bytes.
func (w *writer) str(s string, n int) {
	b := []byte(s)
	if len(b) > n {
		b = b[:n]
	}
	w.bytes(b, n)
}

func (w *writer) hsbk(c HSBK) {
	w.u16(c.Hue)
	w.u16(c.Saturation)
	w.u16(c.Brightness)
	w.u16(c.Kelvin)
}

// reader consumes little-endian fields. Callers check the length up front.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) boolean() bool { return r.u8() != 0 }

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) i16() int16 { return int16(r.u16()) } //nolint:gosec // two's complement reinterpretation

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) bytes(dst []byte) {
	copy(dst, r.buf[r.off:r.off+len(dst)])
	r.off += len(dst)
}

// str reads an n-byte field and trims it at the first NUL.
func (r *reader) str(n int) string {
	s := TrimNull(r.buf[r.off : r.off+n])
	r.off += n
	return s
}

func (r *reader) hsbk() HSBK {
	return HSBK{
		Hue:        r.u16(),
		Saturation: r.u16(),
		Brightness: r.u16(),
		Kelvin:     r.u16(),
	}
}

// TrimNull returns the bytes of b up to the first NUL as a string.
// A field with no NUL is returned whole.
func TrimNull(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

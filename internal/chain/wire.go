package chain

import (
	"encoding/binary"
)

// cursor is a little-endian reader over a byte slice, shaped after the
// teacher's consensus/wire.go cursor: bounds-checked, no implicit seeking.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor { return &cursor{b: b} }

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, NewError(KindInternal, "wire: truncated")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU32() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) readU64() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *cursor) readHash() (Hash, error) {
	b, err := c.readExact(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// readCompactSize decodes a Bitcoin-style minimally-encoded varint: values
// below 0xfd are one byte; 0xfd/0xfe/0xff prefix a 2/4/8-byte little-endian
// value, and non-minimal encodings are rejected.
func (c *cursor) readCompactSize() (uint64, error) {
	tag, err := c.readU8()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		b, err := c.readExact(2)
		if err != nil {
			return 0, err
		}
		v := uint64(binary.LittleEndian.Uint16(b))
		if v < 0xfd {
			return 0, NewError(KindInternal, "wire: non-minimal compactsize (0xfd)")
		}
		return v, nil
	case tag == 0xfe:
		v, err := c.readU32()
		if err != nil {
			return 0, err
		}
		if v <= 0xffff {
			return 0, NewError(KindInternal, "wire: non-minimal compactsize (0xfe)")
		}
		return uint64(v), nil
	default:
		v, err := c.readU64()
		if err != nil {
			return 0, err
		}
		if v <= 0xffffffff {
			return 0, NewError(KindInternal, "wire: non-minimal compactsize (0xff)")
		}
		return v, nil
	}
}

// writer accumulates a canonical little-endian encoding.
type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{} }

func (w *writer) writeU8(v byte)  { w.buf = append(w.buf, v) }
func (w *writer) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) writeHash(h Hash) { w.buf = append(w.buf, h[:]...) }
func (w *writer) writeRaw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) writeCompactSize(v uint64) {
	switch {
	case v < 0xfd:
		w.writeU8(byte(v))
	case v <= 0xffff:
		w.writeU8(0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		w.buf = append(w.buf, b[:]...)
	case v <= 0xffffffff:
		w.writeU8(0xfe)
		w.writeU32(uint32(v))
	default:
		w.writeU8(0xff)
		w.writeU64(v)
	}
}

func (w *writer) Bytes() []byte { return w.buf }

package schema

import (
	"fmt"
	"io"
)

// BitReader reads a byte buffer at bit granularity. Bits are consumed MSB
// first within each byte.
type BitReader struct {
	buf []byte
	pos int64 // in bits
}

func NewBitReader(buf []byte) *BitReader { return &BitReader{buf: buf} }

// Pos returns the current read position in bits.
func (r *BitReader) Pos() int64 { return r.pos }

// Remaining returns how many unread bits are left.
func (r *BitReader) Remaining() int64 { return int64(len(r.buf))*8 - r.pos }

func (r *BitReader) ReadBit() (bool, error) {
	if r.pos >= int64(len(r.buf))*8 {
		return false, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos>>3]
	bit := (b >> (7 - uint(r.pos&7))) & 1
	r.pos++
	return bit == 1, nil
}

// ReadBits reads up to 64 bits and returns them right-aligned.
func (r *BitReader) ReadBits(n uint) (uint64, error) {
	if n > 64 {
		return 0, fmt.Errorf("bit read too wide: %d", n)
	}
	if r.pos+int64(n) > int64(len(r.buf))*8 {
		return 0, io.ErrUnexpectedEOF
	}
	var v uint64
	for i := uint(0); i < n; i++ {
		b := r.buf[r.pos>>3]
		bit := (b >> (7 - uint(r.pos&7))) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v, nil
}

func (r *BitReader) ReadByte() (byte, error) {
	v, err := r.ReadBits(8)
	return byte(v), err
}

// ReadUvarint reads a base-128 varint, one byte group at a time.
func (r *BitReader) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= 64 {
			return 0, fmt.Errorf("uvarint overflow")
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
}

func (r *BitReader) ReadVarint() (int64, error) {
	u, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	// zigzag
	return int64(u>>1) ^ -int64(u&1), nil
}

func (r *BitReader) ReadBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// BitWriter is the encoding counterpart of BitReader.
type BitWriter struct {
	buf []byte
	n   int64 // in bits
}

func NewBitWriter() *BitWriter { return &BitWriter{} }

// Len returns the number of bits written so far.
func (w *BitWriter) Len() int64 { return w.n }

// Bytes returns the written buffer; trailing bits of the last byte are zero.
func (w *BitWriter) Bytes() []byte { return w.buf }

func (w *BitWriter) WriteBit(bit bool) {
	if w.n&7 == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit {
		w.buf[w.n>>3] |= 1 << (7 - uint(w.n&7))
	}
	w.n++
}

func (w *BitWriter) WriteBits(v uint64, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		w.WriteBit((v>>uint(i))&1 == 1)
	}
}

func (w *BitWriter) WriteByte(b byte) error {
	w.WriteBits(uint64(b), 8)
	return nil
}

func (w *BitWriter) WriteUvarint(v uint64) {
	for v >= 0x80 {
		w.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.WriteByte(byte(v))
}

func (w *BitWriter) WriteVarint(v int64) {
	w.WriteUvarint(uint64(v<<1) ^ uint64(v>>63))
}

func (w *BitWriter) WriteBytes(b []byte) {
	for _, c := range b {
		w.WriteByte(c)
	}
}

// ExtractBits copies n bits starting at bit off into a fresh buffer aligned
// to bit 0, so the result can be decoded standalone.
func ExtractBits(buf []byte, off, n int64) []byte {
	out := make([]byte, (n+7)/8)
	for i := int64(0); i < n; i++ {
		p := off + i
		bit := (buf[p>>3] >> (7 - uint(p&7))) & 1
		if bit == 1 {
			out[i>>3] |= 1 << (7 - uint(i&7))
		}
	}
	return out
}

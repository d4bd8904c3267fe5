package bin

import (
	"encoding/binary"
	"fmt"

	"github.com/james-see/singformat/pkg/model"
)

// Reader walks a byte slice with big-endian helpers.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the unread byte count.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Bytes returns the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrTruncated
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Uint16BE reads a big-endian uint16.
func (r *Reader) Uint16BE() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32BE reads a big-endian uint32.
func (r *Reader) Uint32BE() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// VLQ reads a variable-length quantity.
func (r *Reader) VLQ() (int64, error) {
	v, n, err := ReadVLQ(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// Chunk reads a 4-byte tag followed by a 32-bit big-endian length and returns
// the body. The tag must match.
func (r *Reader) Chunk(tag string) ([]byte, error) {
	head, err := r.Bytes(4)
	if err != nil {
		return nil, err
	}
	if string(head) != tag {
		return nil, model.NewIllegalFile(model.MissingElement, fmt.Sprintf("chunk %q, found %q", tag, head))
	}
	size, err := r.Uint32BE()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(size))
}

// Writer accumulates big-endian output.
type Writer struct {
	buf []byte
}

// Bytes returns the accumulated output.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Write appends raw bytes.
func (w *Writer) Write(b []byte) {
	w.buf = append(w.buf, b...)
}

// VLQ appends a variable-length quantity.
func (w *Writer) VLQ(v int64) error {
	out, err := AppendVLQ(w.buf, v)
	if err != nil {
		return err
	}
	w.buf = out
	return nil
}

// SMFHeader is the content of an MThd chunk.
type SMFHeader struct {
	Format   uint16
	Tracks   uint16
	Division uint16
}

// ReadSMFHeader reads the MThd chunk at the start of data.
func ReadSMFHeader(data []byte) (SMFHeader, error) {
	body, err := NewReader(data).Chunk("MThd")
	if err != nil {
		return SMFHeader{}, err
	}
	r := NewReader(body)
	var h SMFHeader
	if h.Format, err = r.Uint16BE(); err != nil {
		return h, err
	}
	if h.Tracks, err = r.Uint16BE(); err != nil {
		return h, err
	}
	if h.Division, err = r.Uint16BE(); err != nil {
		return h, err
	}
	return h, nil
}

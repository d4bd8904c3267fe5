// Package bin holds the byte-level primitives shared by the binary codecs:
// MIDI variable-length quantities, big-endian chunk framing, meta events and
// charset re-encoding.
package bin

import (
	"errors"

	"github.com/james-see/singformat/pkg/model"
)

// MaxVLQ is the exclusive upper bound accepted by AppendVLQ.
const MaxVLQ = 1<<28 - 1

// ErrTruncated is returned when input ends inside a value.
var ErrTruncated = errors.New("bin: truncated input")

// AppendVLQ appends v as a MIDI variable-length quantity: big-endian 7-bit
// groups with the top bit set on all but the last.
func AppendVLQ(dst []byte, v int64) ([]byte, error) {
	if v < 0 || v >= MaxVLQ {
		return dst, &model.ValueTooLargeError{Value: v, Limit: MaxVLQ}
	}
	var buf [4]byte
	i := len(buf) - 1
	buf[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		buf[i] = byte(v&0x7F) | 0x80
	}
	return append(dst, buf[i:]...), nil
}

// ReadVLQ decodes a variable-length quantity from the start of b and returns
// the value and the number of bytes consumed.
func ReadVLQ(b []byte) (int64, int, error) {
	var v int64
	for i := 0; i < 4; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncated
		}
		v = v<<7 | int64(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, model.NewIllegalFile(model.IllegalElementValue, "variable-length quantity longer than 4 bytes")
}

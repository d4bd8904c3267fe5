package bin

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FromShiftJIS decodes Shift-JIS bytes to a UTF-8 string.
func FromShiftJIS(b []byte) (string, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(b), japanese.ShiftJIS.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ToShiftJIS encodes s as Shift-JIS, replacing runes the charset cannot hold.
func ToShiftJIS(s string) ([]byte, error) {
	enc := encoding.ReplaceUnsupported(japanese.ShiftJIS.NewEncoder())
	out, _, err := transform.Bytes(enc, []byte(s))
	return out, err
}

// DecodeText decodes text of unknown charset: a UTF-8 BOM or valid UTF-8 is
// taken as UTF-8, anything else as Shift-JIS. The BOM is stripped.
func DecodeText(b []byte) (string, error) {
	if bytes.HasPrefix(b, utf8BOM) {
		return string(b[len(utf8BOM):]), nil
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	return FromShiftJIS(b)
}

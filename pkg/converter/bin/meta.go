package bin

// Meta event types used by the SMF-based codecs.
const (
	MetaText          = 0x01
	MetaTrackName     = 0x03
	MetaLyric         = 0x05
	MetaEndOfTrack    = 0x2F
	MetaTempo         = 0x51
	MetaTimeSignature = 0x58
)

// MetaEvent builds an SMF meta message: FF, type, VLQ length, payload.
func MetaEvent(typ byte, payload []byte) ([]byte, error) {
	var w Writer
	w.Write([]byte{0xFF, typ})
	if err := w.VLQ(int64(len(payload))); err != nil {
		return nil, err
	}
	w.Write(payload)
	return w.Bytes(), nil
}

// ParseMeta splits a meta message into its type and payload. ok is false for
// anything that is not a well-formed meta message.
func ParseMeta(msg []byte) (typ byte, payload []byte, ok bool) {
	r := NewReader(msg)
	head, err := r.Bytes(2)
	if err != nil || head[0] != 0xFF {
		return 0, nil, false
	}
	size, err := r.VLQ()
	if err != nil {
		return 0, nil, false
	}
	payload, err = r.Bytes(int(size))
	if err != nil {
		return 0, nil, false
	}
	return head[1], payload, true
}

// TempoEvent builds a set-tempo meta message for bpm.
func TempoEvent(bpm float64) []byte {
	us := uint32(60000000/bpm + 0.5)
	msg, _ := MetaEvent(MetaTempo, []byte{byte(us >> 16), byte(us >> 8), byte(us)})
	return msg
}

// TempoFromPayload decodes a set-tempo payload to BPM.
func TempoFromPayload(payload []byte) (float64, bool) {
	if len(payload) != 3 {
		return 0, false
	}
	us := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
	if us == 0 {
		return 0, false
	}
	return 60000000 / float64(us), true
}

// TimeSignatureEvent builds a time-signature meta message.
func TimeSignatureEvent(numerator, denominator int) []byte {
	power := byte(0)
	for d := denominator; d > 1; d >>= 1 {
		power++
	}
	msg, _ := MetaEvent(MetaTimeSignature, []byte{byte(numerator), power, 0x18, 0x08})
	return msg
}

// TimeSignatureFromPayload decodes a time-signature payload.
func TimeSignatureFromPayload(payload []byte) (numerator, denominator int, ok bool) {
	if len(payload) < 2 {
		return 0, 0, false
	}
	return int(payload[0]), 1 << payload[1], true
}

package model

// PitchPoint is one sample of a pitch curve. A nil Value marks a region with
// no authored data. The value holds until the next point.
type PitchPoint struct {
	Tick  int64
	Value *float64
}

// Pitch is a pitch curve in semitones. When IsAbsolute is false the values are
// offsets from the key of the note sounding at each tick.
type Pitch struct {
	Data       []PitchPoint
	IsAbsolute bool
}

// Float returns a pointer to v, for building pitch points.
func Float(v float64) *float64 {
	return &v
}

// Point builds a pitch point holding v.
func Point(tick int64, v float64) PitchPoint {
	return PitchPoint{Tick: tick, Value: Float(v)}
}

// Gap builds a pitch point with no data.
func Gap(tick int64) PitchPoint {
	return PitchPoint{Tick: tick}
}

// IsGap reports whether the point carries no value.
func (p PitchPoint) IsGap() bool {
	return p.Value == nil
}

// ValueOr returns the point value or def for a gap.
func (p PitchPoint) ValueOr(def float64) float64 {
	if p.Value == nil {
		return def
	}
	return *p.Value
}

// Clone returns a deep copy of the curve.
func (p Pitch) Clone() Pitch {
	out := Pitch{IsAbsolute: p.IsAbsolute, Data: make([]PitchPoint, len(p.Data))}
	for i, pt := range p.Data {
		out.Data[i] = pt
		if pt.Value != nil {
			out.Data[i].Value = Float(*pt.Value)
		}
	}
	return out
}

// IsEmpty reports whether the curve carries no valued points.
func (p *Pitch) IsEmpty() bool {
	if p == nil {
		return true
	}
	for _, pt := range p.Data {
		if pt.Value != nil {
			return false
		}
	}
	return true
}

// ValueAt returns the held value at tick and whether one exists.
func (p Pitch) ValueAt(tick int64) (float64, bool) {
	var current *float64
	for _, pt := range p.Data {
		if pt.Tick > tick {
			break
		}
		current = pt.Value
	}
	if current == nil {
		return 0, false
	}
	return *current, true
}

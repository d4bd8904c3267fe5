package pitch

import (
	"math"
	"testing"

	"github.com/james-see/singformat/pkg/converter/timing"
	"github.com/james-see/singformat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func points(values ...float64) []model.PitchPoint {
	out := make([]model.PitchPoint, len(values))
	for i, v := range values {
		out[i] = model.Point(int64(i), v)
	}
	return out
}

func ticksOf(ps []model.PitchPoint) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.Tick
	}
	return out
}

func TestReduceRepeated(t *testing.T) {
	input := points(0, 0, 0, 1, 1, 1, 2, 2, 1, 3, 2, 3, 3, 3, 3, 3, 4, 5, 5, 5)
	reduced := ReduceRepeated(input)
	assert.Equal(t, []int64{0, 2, 3, 5, 6, 7, 8, 9, 10, 11, 15, 16, 17, 19}, ticksOf(reduced))

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, reduced, ReduceRepeated(reduced))
	})

	t.Run("gaps form runs", func(t *testing.T) {
		in := []model.PitchPoint{model.Gap(0), model.Gap(1), model.Gap(2), model.Point(3, 1)}
		assert.Equal(t, []int64{0, 2, 3}, ticksOf(ReduceRepeated(in)))
	})

	t.Run("short runs untouched", func(t *testing.T) {
		in := points(1, 1, 2, 2, 3)
		assert.Equal(t, in, ReduceRepeated(in))
	})
}

func TestAppendPointsForInterpolation(t *testing.T) {
	in := []model.PitchPoint{
		model.Point(0, 0), model.Point(3, 6), model.Point(10, 20), model.Point(50, 100),
	}
	want := []model.PitchPoint{
		model.Point(0, 0), model.Point(3, 6), model.Point(6, 6),
		model.Point(10, 20), model.Point(46, 20), model.Point(50, 100),
	}
	assert.Equal(t, want, AppendPointsForInterpolation(in, 4))
}

func TestInterpolate(t *testing.T) {
	got := Interpolate([]model.PitchPoint{model.Point(0, 0), model.Point(10, 10), model.Gap(20), model.Point(30, 1)}, 4)
	assert.Equal(t, []int64{0, 4, 8, 10, 20, 30}, ticksOf(got))
	assert.InDelta(t, 8.0, *got[2].Value, 1e-9)
	assert.Nil(t, got[4].Value)
}

func TestDotResampled(t *testing.T) {
	got := DotResampled([]model.PitchPoint{model.Point(1, 3), model.Point(5, 2)}, 2)
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, *got[0].Value)
	assert.Equal(t, 3.0, *got[1].Value)
	assert.Equal(t, 3.0, *got[2].Value)

	assert.Nil(t, DotResampled(nil, 2))
}

func TestRelativeAbsolute(t *testing.T) {
	notes := []model.Note{
		{Key: 60, TickOn: 0, TickOff: 480},
		{Key: 62, TickOn: 480, TickOff: 960},
	}
	rel := &model.Pitch{Data: []model.PitchPoint{model.Point(0, 0.5), model.Point(600, -1)}}

	abs := ToAbsolute(rel, notes)
	require.True(t, abs.IsAbsolute)
	assert.Equal(t, []int64{0, 480, 600, 960}, ticksOf(abs.Data))
	assert.Equal(t, 60.5, *abs.Data[0].Value)
	assert.Equal(t, 62.5, *abs.Data[1].Value)
	assert.Equal(t, 61.0, *abs.Data[2].Value)
	assert.Nil(t, abs.Data[3].Value)

	back := ToRelative(abs, notes)
	assert.False(t, back.IsAbsolute)
	assert.Equal(t, 0.5, *back.Data[0].Value)
	assert.Equal(t, 0.5, *back.Data[1].Value)
	assert.Equal(t, -1.0, *back.Data[2].Value)
	assert.Nil(t, back.Data[3].Value)

	assert.Nil(t, ToAbsolute(nil, notes))
}

func TestNotePoints(t *testing.T) {
	p := &model.Pitch{Data: []model.PitchPoint{model.Point(0, 1), model.Point(100, 2), model.Point(300, 3)}}
	got := NotePoints(p, 50, 300)
	assert.Equal(t, []int64{50, 100}, ticksOf(got))
	assert.Equal(t, 1.0, *got[0].Value)
}

func TestVibratoValue(t *testing.T) {
	v := Vibrato{Length: 50, Period: 100, Depth: 60}
	assert.Equal(t, 0.0, v.Value(100, 1000))
	assert.InDelta(t, 0.0, v.Value(500, 1000), 1e-9)
	assert.InDelta(t, 60.0, v.Value(525, 1000), 1e-9)
	assert.InDelta(t, -60.0, v.Value(575, 1000), 1e-9)

	t.Run("fades", func(t *testing.T) {
		faded := Vibrato{Length: 50, Period: 100, Depth: 60, FadeIn: 50}
		// 250ms fade-in over a 500ms vibrato, 25ms in
		assert.InDelta(t, 6.0, faded.Value(525, 1000), 1e-9)
	})

	t.Run("shift and phase", func(t *testing.T) {
		shifted := Vibrato{Length: 100, Period: 100, Depth: 10, Phase: 25, Shift: 50}
		assert.InDelta(t, 10*(-1+0.5), shifted.Value(0, 1000), 1e-9)
	})

	assert.True(t, Vibrato{}.IsZero())
}

func TestAppendVibrato(t *testing.T) {
	tr := timing.New(nil)
	note := model.Note{Key: 60, TickOn: 0, TickOff: 960}
	v := Vibrato{Length: 50, Period: 100, Depth: 100}
	got := AppendVibrato([]model.PitchPoint{model.Point(0, 0)}, note, v, tr, 10)

	require.NotEmpty(t, got)
	assert.Equal(t, int64(0), got[0].Tick)
	assert.Equal(t, int64(480), got[1].Tick)
	assert.InDelta(t, 0.0, *got[1].Value, 1e-9)
	assert.Equal(t, int64(960), got[len(got)-1].Tick)
	for _, p := range got {
		assert.LessOrEqual(t, math.Abs(*p.Value), 1.0+1e-9)
	}

	unchanged := AppendVibrato(points(1, 2), note, Vibrato{}, tr, 10)
	assert.Equal(t, points(1, 2), unchanged)
}

func TestEncodeBend(t *testing.T) {
	t.Run("default sensitivity", func(t *testing.T) {
		pit, pbs, clamped := EncodeBend([]model.PitchPoint{model.Point(0, 1), model.Point(10, -0.5)})
		assert.Empty(t, pbs)
		assert.False(t, clamped)
		assert.Equal(t, []BendEvent{{Tick: 0, Value: 4096}, {Tick: 10, Value: -2048}}, pit)
	})

	t.Run("raised sensitivity restores after section", func(t *testing.T) {
		pit, pbs, _ := EncodeBend([]model.PitchPoint{model.Point(0, 3.2), model.Point(100, 0)})
		assert.Equal(t, []BendEvent{{Tick: 0, Value: 4}, {Tick: 340, Value: 2}}, pbs)
		assert.Equal(t, 6553, pit[0].Value)
	})

	t.Run("sections split on silence", func(t *testing.T) {
		pit, pbs, _ := EncodeBend([]model.PitchPoint{model.Point(0, 0.5), model.Point(600, 5)})
		assert.Len(t, pit, 2)
		assert.Equal(t, []BendEvent{{Tick: 600, Value: 5}, {Tick: 840, Value: 2}}, pbs)
	})

	t.Run("clamped", func(t *testing.T) {
		pit, pbs, clamped := EncodeBend([]model.PitchPoint{model.Point(0, 30), model.Gap(10)})
		assert.True(t, clamped)
		assert.Equal(t, MaxSensitivity, pbs[0].Value)
		assert.Equal(t, MaxBend, pit[0].Value)
		assert.Equal(t, 0, pit[1].Value)
	})
}

func TestDecodeBend(t *testing.T) {
	got := DecodeBend([]BendPart{{
		PIT: []BendEvent{{Tick: 0, Value: 8191}, {Tick: 100, Value: -4096}},
		PBS: []BendEvent{{Tick: 50, Value: 4}},
	}})
	require.Len(t, got, 2)
	assert.InDelta(t, 2.0, *got[0].Value, 1e-9)
	assert.InDelta(t, -4096.0/8191*4, *got[1].Value, 1e-9)

	t.Run("later part wins", func(t *testing.T) {
		got := DecodeBend([]BendPart{
			{PIT: []BendEvent{{Tick: 0, Value: 1}, {Tick: 100, Value: 2}, {Tick: 200, Value: 3}}},
			{PIT: []BendEvent{{Tick: 150, Value: 4}, {Tick: 300, Value: 5}}},
		})
		assert.Equal(t, []int64{0, 100, 150, 300}, ticksOf(got))
	})

	t.Run("round trip", func(t *testing.T) {
		curve := []model.PitchPoint{model.Point(0, 0.25), model.Point(30, 3.7), model.Point(60, -1.1), model.Point(900, 0.9)}
		pit, pbs, clamped := EncodeBend(curve)
		assert.False(t, clamped)
		decoded := DecodeBend([]BendPart{{PIT: pit, PBS: pbs}})
		require.Len(t, decoded, len(curve))
		for i := range curve {
			assert.InDelta(t, *curve[i].Value, *decoded[i].Value, 4.0/8191)
		}
	})
}

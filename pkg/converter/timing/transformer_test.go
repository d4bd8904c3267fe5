package timing

import (
	"testing"

	"github.com/james-see/singformat/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestSingleTempo(t *testing.T) {
	tr := New([]model.Tempo{{TickPosition: 0, BPM: 120}})
	assert.InDelta(t, 0.5, tr.TickToSec(480), 1e-12)
	assert.InDelta(t, 2.0, tr.TickToSec(1920), 1e-12)
	assert.Equal(t, int64(960), tr.SecToTick(1.0))
}

func TestSegmentBoundaries(t *testing.T) {
	tempos := []model.Tempo{
		{TickPosition: 0, BPM: 120},
		{TickPosition: 1920, BPM: 60},
		{TickPosition: 3840, BPM: 240},
	}
	tr := New(tempos)

	assert.InDelta(t, 2.0, tr.TickToSec(1920), 1e-12)
	assert.InDelta(t, 6.0, tr.TickToSec(3840), 1e-12)
	assert.InDelta(t, 6.5, tr.TickToSec(4800), 1e-12)

	assert.Equal(t, int64(1920), tr.SecToTick(2.0))
	assert.Equal(t, int64(3840), tr.SecToTick(6.0))
	assert.Equal(t, int64(2880), tr.SecToTick(4.0))
}

func TestInverseIncludingNegatives(t *testing.T) {
	tempoLists := [][]model.Tempo{
		{{TickPosition: 0, BPM: 120}},
		{{TickPosition: 0, BPM: 93.5}, {TickPosition: 777, BPM: 181}, {TickPosition: 5000, BPM: 40}},
		{{TickPosition: 960, BPM: 150}, {TickPosition: 1920, BPM: 75}},
	}
	for _, tempos := range tempoLists {
		tr := New(tempos)
		for tick := int64(-5000); tick <= 20000; tick += 37 {
			assert.Equal(t, tick, tr.SecToTick(tr.TickToSec(tick)), "tick %d tempos %v", tick, tempos)
		}
	}
}

func TestExtrapolatesBeforeFirstTempo(t *testing.T) {
	tr := New([]model.Tempo{{TickPosition: 960, BPM: 120}, {TickPosition: 1920, BPM: 60}})
	assert.InDelta(t, -0.5, tr.TickToSec(480), 1e-12)
	assert.InDelta(t, -1.0, tr.TickToSec(0), 1e-12)
	assert.Equal(t, int64(-480), tr.SecToTick(-1.5))
}

func TestEmptyTempoListUsesDefault(t *testing.T) {
	tr := New(nil)
	assert.InDelta(t, 0.5, tr.TickToSec(480), 1e-12)
	assert.InDelta(t, 500.0, tr.TickToMilliSec(480), 1e-9)
	assert.Equal(t, int64(480), tr.MilliSecToTick(500))
}

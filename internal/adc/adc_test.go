package adc

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

func payload(index byte, pts ...int32) []byte {
	b := []byte{index}
	for _, p := range pts {
		b = binary.LittleEndian.AppendUint32(b, uint32(p))
	}
	return b
}

func setup(channels, maxLen int) (*Adc, []*pv.ArrayVar[float64], *stats.Adc) {
	vars := make([]*pv.ArrayVar[float64], channels)
	sinks := make([]pv.ArraySink[float64], channels)
	for i := range vars {
		vars[i] = pv.NewArray[float64](maxLen)
		sinks[i] = vars[i]
	}
	st := stats.NewAdc(channels)
	return New(sinks, st, zap.NewNop()), vars, st
}

func TestPublishesWhenFull(t *testing.T) {
	a, vars, st := setup(2, 3)

	require.NoError(t, a.HandleData(payload(1, 1<<20, 2<<20)))
	assert.Nil(t, vars[1].Read(), "not full yet")

	require.NoError(t, a.HandleData(payload(1, 3<<20, 4<<20)))
	got, err := vars[1].Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, units.AdcToVolt(1<<20), got[0], 1e-12)
	assert.InDelta(t, units.AdcToVolt(3<<20), got[2], 1e-12)

	s := st.Snapshot()
	assert.EqualValues(t, 4, s.Values[1].Count)
	assert.Zero(t, s.Values[0].Count)
}

func TestDropsWhenNotAccepted(t *testing.T) {
	a, vars, st := setup(1, 2)

	require.NoError(t, a.HandleData(payload(0, 1, 2)))
	require.NoError(t, a.HandleData(payload(0, 3, 4)))
	assert.EqualValues(t, 2, st.Snapshot().LostFull)

	vars[0].Accept()
	require.NoError(t, a.HandleData(payload(0, 5, 6)))
	got, err := vars[0].Wait(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, units.AdcToVolt(5), got[0], 1e-12)
}

func TestMalformedPayload(t *testing.T) {
	a, _, _ := setup(1, 2)

	assert.Error(t, a.HandleData([]byte{0, 1}))
	assert.Error(t, a.HandleData(payload(4, 1)))
}

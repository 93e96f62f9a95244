package stats

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

func TestDacCounters(t *testing.T) {
	d := &Dac{}
	d.ReportLostEmpty(3)
	d.ReportLostEmpty(2)
	d.ReportLostFull(4)
	d.ReportReqExceed(1)

	s := d.Snapshot()
	assert.EqualValues(t, 5, s.LostEmpty)
	assert.EqualValues(t, 4, s.LostFull)
	assert.EqualValues(t, 1, s.ReqExceed)

	d.Reset()
	assert.Equal(t, DacSnapshot{}, d.Snapshot())
}

func TestValueStats(t *testing.T) {
	d := &Dac{}
	for _, v := range []units.Uv{10, -4, 7, 3} {
		d.UpdateValue(v)
	}

	v := d.Snapshot().Value
	assert.EqualValues(t, 4, v.Count)
	assert.EqualValues(t, 3, v.Last)
	assert.EqualValues(t, -4, v.Min)
	assert.EqualValues(t, 10, v.Max)
	assert.EqualValues(t, 4, v.Avg)
}

// min <= last <= max must hold in every snapshot taken during updates.
func TestValueSnapshotConsistent(t *testing.T) {
	var vs ValueStats
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(0); i < 5000; i++ {
			vs.Update(i%200 - 100)
		}
	}()

	for i := 0; i < 1000; i++ {
		s := vs.Snapshot()
		if s.Count == 0 {
			continue
		}
		require.LessOrEqual(t, s.Min, s.Last)
		require.LessOrEqual(t, s.Last, s.Max)
		require.LessOrEqual(t, s.Min, s.Avg)
		require.LessOrEqual(t, s.Avg, s.Max)
	}
	wg.Wait()
}

func TestAdcUpdateValues(t *testing.T) {
	a := NewAdc(2)
	a.UpdateValues(1, []units.AdcPoint{5, -5, 1})
	a.UpdateValues(7, []units.AdcPoint{100})
	a.ReportLostFull(8)

	s := a.Snapshot()
	assert.EqualValues(t, 8, s.LostFull)
	assert.Zero(t, s.Values[0].Count)
	assert.EqualValues(t, 3, s.Values[1].Count)
	assert.EqualValues(t, -5, s.Values[1].Min)
	assert.Equal(t, 2, a.Channels())
}

func TestStatisticsString(t *testing.T) {
	s := New(1)
	s.Dac.ReportLostEmpty(2)
	s.Dac.UpdateValue(-1)

	out := s.String()
	assert.Contains(t, out, "lost_empty: 2\n")
	assert.Contains(t, out, "last: 0xffffffff == -1\n")
	assert.Contains(t, out, "adcs:\n")
	assert.Contains(t, out, "  0:\n    count: 0\n")

	s.Reset()
	assert.Contains(t, s.String(), "lost_empty: 0\n")
}

func TestCollector(t *testing.T) {
	s := New(2)
	s.Dac.ReportLostFull(6)
	s.Dac.UpdateValue(42)

	c := NewCollector(s)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	expected := `
# HELP waveform_dac_lost_full_total DAC points dropped because unread data was overwritten
# TYPE waveform_dac_lost_full_total counter
waveform_dac_lost_full_total 6
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "waveform_dac_lost_full_total"))

	// 4 loss counters, dac count + 4 aggregates, 2 empty adc channels
	assert.Equal(t, 4+5+2, testutil.CollectAndCount(c))
}

func TestReporterInfluxLines(t *testing.T) {
	s := New(1)
	s.Dac.ReportReqExceed(3)
	s.Dac.UpdateValue(7)

	var buf bytes.Buffer
	r := NewReporter(time.Hour, &buf, s, zap.NewNop())
	r.now = func() time.Time { return time.Unix(0, 1234) }
	r.Report()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"waveform_stats,device=dac lost_empty=0i,lost_full=0i,req_exceed=3i,count=1i,last=7i,min=7i,max=7i,avg=7i 1234",
		lines[0])
	assert.Equal(t, "waveform_stats,device=adc lost_full=0i 1234", lines[1])
	assert.Equal(t, "waveform_stats,device=adc,channel=0 count=0i 1234", lines[2])
}

func TestReporterRunStops(t *testing.T) {
	var buf syncBuffer
	r := NewReporter(5*time.Millisecond, &buf, New(0), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return buf.Len() > 0 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

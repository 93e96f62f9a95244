// Package stats counts sample-path anomalies and tracks sample values. The
// device code reports through the narrow Sink interface, which never blocks
// on anything but a short critical section and never fails.
package stats

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

// Sink is what the DAC device reports to.
type Sink interface {
	// ReportLostEmpty counts samples the hardware wanted but none were available.
	ReportLostEmpty(count int)
	// ReportLostFull counts samples dropped because unread data was overwritten.
	ReportLostFull(count int)
	// ReportReqExceed counts demand delivered beyond max_len at once.
	ReportReqExceed(count int)
	UpdateValue(v units.Uv)
}

// ValueStats aggregates count/sum/last/min/max under one lock, so a reader
// never sees a combination that did not exist at some instant.
type ValueStats struct {
	mu    sync.Mutex
	count uint64
	sum   int64
	last  int64
	min   int64
	max   int64
}

type ValueSnapshot struct {
	Count uint64
	Last  int64
	Min   int64
	Max   int64
	Avg   int64
}

func (v *ValueStats) Update(x int64) {
	v.mu.Lock()
	v.update(x)
	v.mu.Unlock()
}

func (v *ValueStats) update(x int64) {
	if v.count == 0 || x < v.min {
		v.min = x
	}
	if v.count == 0 || x > v.max {
		v.max = x
	}
	v.last = x
	v.sum += x
	v.count++
}

func (v *ValueStats) Reset() {
	v.mu.Lock()
	v.count, v.sum, v.last, v.min, v.max = 0, 0, 0, 0, 0
	v.mu.Unlock()
}

func (v *ValueStats) Snapshot() ValueSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := ValueSnapshot{Count: v.count, Last: v.last, Min: v.min, Max: v.max}
	if v.count != 0 {
		s.Avg = v.sum / int64(v.count)
	}
	return s
}

func (s ValueSnapshot) write(w io.Writer, indent string) {
	fmt.Fprintf(w, "%scount: %d\n", indent, s.Count)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "%slast: %s\n", indent, formatValue(s.Last))
	fmt.Fprintf(w, "%smin: %s\n", indent, formatValue(s.Min))
	fmt.Fprintf(w, "%smax: %s\n", indent, formatValue(s.Max))
	fmt.Fprintf(w, "%savg: %s\n", indent, formatValue(s.Avg))
}

func formatValue(x int64) string {
	return fmt.Sprintf("0x%08x == %d", uint32(int32(x)), x)
}

// Dac is the DAC side of the statistics.
type Dac struct {
	lostEmpty atomic.Uint64
	lostFull  atomic.Uint64
	reqExceed atomic.Uint64
	value     ValueStats
}

type DacSnapshot struct {
	LostEmpty uint64
	LostFull  uint64
	ReqExceed uint64
	Value     ValueSnapshot
}

func (d *Dac) ReportLostEmpty(count int) { d.lostEmpty.Add(uint64(count)) }
func (d *Dac) ReportLostFull(count int)  { d.lostFull.Add(uint64(count)) }
func (d *Dac) ReportReqExceed(count int) { d.reqExceed.Add(uint64(count)) }
func (d *Dac) UpdateValue(v units.Uv)    { d.value.Update(int64(v)) }

func (d *Dac) Reset() {
	d.lostEmpty.Store(0)
	d.lostFull.Store(0)
	d.reqExceed.Store(0)
	d.value.Reset()
}

func (d *Dac) Snapshot() DacSnapshot {
	return DacSnapshot{
		LostEmpty: d.lostEmpty.Load(),
		LostFull:  d.lostFull.Load(),
		ReqExceed: d.reqExceed.Load(),
		Value:     d.value.Snapshot(),
	}
}

var _ Sink = (*Dac)(nil)

// Adc is the ADC side of the statistics, one ValueStats per channel.
type Adc struct {
	lostFull atomic.Uint64
	values   []ValueStats
}

type AdcSnapshot struct {
	LostFull uint64
	Values   []ValueSnapshot
}

func NewAdc(channels int) *Adc {
	return &Adc{values: make([]ValueStats, channels)}
}

func (a *Adc) ReportLostFull(count int) { a.lostFull.Add(uint64(count)) }

// UpdateValues folds a batch of points from one channel in under a single
// lock. Unknown channels are ignored.
func (a *Adc) UpdateValues(index int, points []units.AdcPoint) {
	if index < 0 || index >= len(a.values) {
		return
	}
	v := &a.values[index]
	v.mu.Lock()
	for _, p := range points {
		v.update(int64(p))
	}
	v.mu.Unlock()
}

func (a *Adc) Channels() int { return len(a.values) }

func (a *Adc) Reset() {
	a.lostFull.Store(0)
	for i := range a.values {
		a.values[i].Reset()
	}
}

func (a *Adc) Snapshot() AdcSnapshot {
	s := AdcSnapshot{
		LostFull: a.lostFull.Load(),
		Values:   make([]ValueSnapshot, len(a.values)),
	}
	for i := range a.values {
		s.Values[i] = a.values[i].Snapshot()
	}
	return s
}

// Statistics groups everything one session reports.
type Statistics struct {
	Dac *Dac
	Adc *Adc
}

func New(adcChannels int) *Statistics {
	return &Statistics{
		Dac: &Dac{},
		Adc: NewAdc(adcChannels),
	}
}

func (s *Statistics) Reset() {
	s.Dac.Reset()
	s.Adc.Reset()
}

func (s *Statistics) String() string {
	var b strings.Builder

	dac := s.Dac.Snapshot()
	b.WriteString("dac:\n")
	fmt.Fprintf(&b, "  lost_empty: %d\n", dac.LostEmpty)
	fmt.Fprintf(&b, "  lost_full: %d\n", dac.LostFull)
	fmt.Fprintf(&b, "  req_exceed: %d\n", dac.ReqExceed)
	b.WriteString("  value:\n")
	dac.Value.write(&b, "    ")

	adc := s.Adc.Snapshot()
	b.WriteString("adcs:\n")
	fmt.Fprintf(&b, "  lost_full: %d\n", adc.LostFull)
	for i, v := range adc.Values {
		fmt.Fprintf(&b, "  %d:\n", i)
		v.write(&b, "    ")
	}
	return b.String()
}

// Package adc turns inbound ADC sample batches into array variable updates.
package adc

import (
	"fmt"

	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

// Adc accumulates each channel's samples until its array variable's max_len
// is reached, then publishes them. When the control system has not accepted
// the previous array yet the new one is dropped: the latest data matters,
// a backlog does not.
type Adc struct {
	outputs []pv.ArraySink[float64]
	pending [][]float64
	stats   *stats.Adc
	points  []units.AdcPoint
	logger  *zap.Logger
}

func New(outputs []pv.ArraySink[float64], st *stats.Adc, logger *zap.Logger) *Adc {
	a := &Adc{
		outputs: outputs,
		pending: make([][]float64, len(outputs)),
		stats:   st,
		logger:  logger,
	}
	for i, out := range outputs {
		a.pending[i] = make([]float64, 0, out.MaxLen())
	}
	return a
}

// HandleData processes one AdcData payload. Only malformed payloads are
// errors; overflow is counted.
func (a *Adc) HandleData(payload []byte) error {
	index, points, err := link.DecodeAdcData(payload, a.points[:0])
	a.points = points
	if err != nil {
		return fmt.Errorf("[adc] error decoding payload: %w", err)
	}
	if index >= len(a.outputs) {
		return fmt.Errorf("[adc] channel %d out of range (%d channels)", index, len(a.outputs))
	}

	a.stats.UpdateValues(index, points)

	buf := a.pending[index]
	for _, p := range points {
		buf = append(buf, units.AdcToVolt(p))
		if len(buf) == cap(buf) {
			a.flush(index, buf)
			buf = buf[:0]
		}
	}
	a.pending[index] = buf
	return nil
}

func (a *Adc) flush(index int, buf []float64) {
	ok, err := a.outputs[index].TryPut(buf)
	switch {
	case err != nil:
		a.logger.Warn("[adc] error publishing array", zap.Int("channel", index), zap.Error(err))
	case !ok:
		a.stats.ReportLostFull(len(buf))
		a.logger.Debug("[adc] previous array not accepted, dropping", zap.Int("channel", index), zap.Int("lost", len(buf)))
	}
}

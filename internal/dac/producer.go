package dac

import (
	"context"

	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/buffer"
	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/replay"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

// arrayReader publishes whole waveforms. The array variable is flow
// controlled: the writer on the control-system side is released only
// after the waveform is published.
type arrayReader struct {
	input  pv.Array[float64]
	output *buffer.Writer[units.Uv]
	policy *replay.Policy
	sink   stats.Sink
	logger *zap.Logger
}

func (a *arrayReader) Run(ctx context.Context) error {
	for {
		input, err := a.input.Wait(ctx)
		if err != nil {
			a.logger.Info("[dac] array reader received shutdown signal")
			return nil
		}
		a.policy.Served()

		g := a.output.Begin()
		g.Clear()
		for _, v := range input {
			g.Push(units.VoltToUv(v))
		}
		lost := g.Stale() + g.Truncated()
		g.Release()
		a.output.Publish()

		if lost > 0 {
			a.sink.ReportLostFull(lost)
			a.logger.Debug("[dac] overwrote unread samples", zap.Int("lost", lost))
		}
		a.logger.Debug("[dac] array published", zap.Int("len", len(input)))
		a.input.Accept()
	}
}

// scalarReader publishes a single-sample buffer on every scalar update.
type scalarReader struct {
	input  pv.Variable[float64]
	output *buffer.Writer[units.Uv]
	policy *replay.Policy
	sink   stats.Sink
	logger *zap.Logger
}

func (s *scalarReader) Run(ctx context.Context) error {
	for {
		value, err := s.input.Wait(ctx)
		if err != nil {
			s.logger.Info("[dac] scalar reader received shutdown signal")
			return nil
		}
		s.policy.Served()

		g := s.output.Begin()
		g.Clear()
		g.Push(units.VoltToUv(value))
		lost := g.Stale()
		g.Release()
		s.output.Publish()

		if lost > 0 {
			s.sink.ReportLostFull(lost)
		}
		s.logger.Debug("[dac] scalar published", zap.Float64("value", value))
	}
}

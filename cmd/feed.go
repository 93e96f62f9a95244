package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sleepywoodpecker/rp-goes-waveform/internal/pv"
)

// waveformDoc is the --waveform document: volts, one per sample.
type waveformDoc struct {
	Points []float64 `yaml:"points"`
}

// loadWaveform reads the document at path and rejects waveforms longer than
// maxLen.
func loadWaveform(path string, maxLen int) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read waveform %s: %w", path, err)
	}
	var doc waveformDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse waveform %s: %w", path, err)
	}
	if len(doc.Points) == 0 {
		return nil, fmt.Errorf("waveform %s has no points", path)
	}
	if len(doc.Points) > maxLen {
		return nil, fmt.Errorf("waveform %s has %d points, dac.max_len is %d", path, len(doc.Points), maxLen)
	}
	return doc.Points, nil
}

// feedWaveform stands in for the control system: it republishes points
// every time the DAC raises its refill request.
func feedWaveform(ctx context.Context, refill *pv.Cell[bool], array *pv.ArrayVar[float64], points []float64, log *zap.Logger) error {
	for requested := range refill.Subscribe(ctx) {
		log.Debug("[main] refill request", zap.Bool("requested", requested))
		if !requested || points == nil {
			continue
		}
		if err := array.Put(ctx, points); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("[main] error publishing waveform", zap.Error(err), zap.Int("len", len(points)), zap.Int("maxLen", array.MaxLen()))
			return fmt.Errorf("[main] publish waveform: %w", err)
		}
	}
	return nil
}

// drainAdc accepts every ADC array so the next one can be published.
func drainAdc(ctx context.Context, channel int, array *pv.ArrayVar[float64], log *zap.Logger) error {
	for {
		values, err := array.Wait(ctx)
		if err != nil {
			return nil
		}
		log.Debug("[main] adc array", zap.Int("channel", channel), zap.Int("len", len(values)))
		array.Accept()
	}
}

// Package units converts between physical values and device codes. Every
// conversion saturates, none of them fail.
package units

import "math"

// Uv is a voltage in microvolts, the DAC sample representation.
type Uv int32

// AdcPoint is a raw ADC code as sent by the MCU.
type AdcPoint int32

const (
	UvPerVolt = 1e6

	// AdcStep is the voltage of one ADC code (full scale ±10 V over 24 bits).
	AdcStep = 20.0 / (1 << 24)
)

// VoltToUv converts volts to microvolts, clamping to the Uv range. NaN maps
// to zero.
func VoltToUv(v float64) Uv {
	if math.IsNaN(v) {
		return 0
	}
	uv := math.Round(v * UvPerVolt)
	switch {
	case uv >= math.MaxInt32:
		return math.MaxInt32
	case uv <= math.MinInt32:
		return math.MinInt32
	default:
		return Uv(uv)
	}
}

func UvToVolt(uv Uv) float64 { return float64(uv) / UvPerVolt }

func AdcToVolt(p AdcPoint) float64 { return float64(p) * AdcStep }

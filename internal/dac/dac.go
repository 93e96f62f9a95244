// Package dac streams operator waveforms to the MCU DAC.
//
// Producers turn array and scalar variable updates into microvolt samples
// and publish them into the write half of a double buffer. The consumer
// waits for demand from the MCU, drains the read half (swapping or
// replaying it as the replay mode dictates) and sends DacData messages of
// exactly the demanded size.
package dac

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sleepywoodpecker/rp-goes-waveform/internal/buffer"
	"sleepywoodpecker/rp-goes-waveform/internal/demand"
	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/replay"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

// Vars are the process variables the DAC is bound to. Mode, State and
// Addition may be nil.
type Vars struct {
	Array    pv.Array[float64]
	Scalar   pv.Variable[float64]
	Mode     pv.Variable[replay.Mode]
	State    pv.Variable[bool]
	Addition pv.Variable[float64]
}

type Config struct {
	// MsgMaxPoints caps the points in one DacData message and so the demand
	// reserved at once. Defaults to the array length.
	MsgMaxPoints int
	// SwapTimeout bounds the OneShot wait for a new publish. Zero waits
	// forever.
	SwapTimeout time.Duration
	Mode        replay.Mode
}

type Dac struct {
	vars       Vars
	policy     *replay.Policy
	correction *pv.Cell[float64]
	out        *link.Writer
	logger     *zap.Logger

	array    *arrayReader
	scalar   *scalarReader
	consumer *consumer
}

// Handle is what the inbound side of the session talks to.
type Handle struct {
	requested *demand.Counter
	policy    *replay.Policy
	sink      stats.Sink
	maxLen    int
	logger    *zap.Logger
}

// New sizes the double buffer from the array variable. The correction cell
// is the session-owned additive offset merged with the Addition variable.
func New(cfg Config, vars Vars, out *link.Writer, sink stats.Sink, correction *pv.Cell[float64], logger *zap.Logger) (*Dac, *Handle) {
	maxLen := vars.Array.MaxLen()
	reader, writer := buffer.New[units.Uv](maxLen)
	policy := replay.NewPolicy(cfg.Mode)
	requested := demand.NewCounter(0)

	maxPoints := cfg.MsgMaxPoints
	if maxPoints <= 0 {
		maxPoints = maxLen
	}

	d := &Dac{
		vars:       vars,
		policy:     policy,
		correction: correction,
		out:        out,
		logger:     logger,
		array: &arrayReader{
			input:  vars.Array,
			output: writer,
			policy: policy,
			sink:   sink,
			logger: logger,
		},
		scalar: &scalarReader{
			input:  vars.Scalar,
			output: writer,
			policy: policy,
			sink:   sink,
			logger: logger,
		},
		consumer: newConsumer(reader, requested, policy, out, sink, maxPoints, cfg.SwapTimeout, logger),
	}
	h := &Handle{
		requested: requested,
		policy:    policy,
		sink:      sink,
		maxLen:    maxLen,
		logger:    logger,
	}
	return d, h
}

// Run starts the producers, the consumer and the control forwarders. It
// returns nil once ctx is done, or the first link error.
func (d *Dac) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.array.Run(ctx) })
	if d.vars.Scalar != nil {
		g.Go(func() error { return d.scalar.Run(ctx) })
	}
	g.Go(func() error { return d.consumer.Run(ctx) })
	if d.vars.Mode != nil {
		g.Go(func() error { return d.followMode(ctx) })
	}
	g.Go(func() error { return d.forwardControls(ctx) })

	return g.Wait()
}

func (d *Dac) followMode(ctx context.Context) error {
	for mode := range d.vars.Mode.Subscribe(ctx) {
		if mode != d.policy.Mode() {
			d.logger.Info("[dac] replay mode changed", zap.Stringer("mode", mode))
		}
		d.policy.SetMode(mode)
	}
	return nil
}

// Request adds demand reported by the MCU. A single request above max_len
// is counted as an anomaly but still served in full.
func (h *Handle) Request(count uint32) {
	if int(count) > h.maxLen {
		h.sink.ReportReqExceed(int(count) - h.maxLen)
		h.logger.Warn("[dac] request exceeds buffer length", zap.Uint32("count", count), zap.Int("maxLen", h.maxLen))
	}
	h.logger.Debug("[dac] request", zap.Uint32("count", count))
	h.requested.Add(uint64(count))
}

// Outstanding is the demand not yet reserved by the consumer.
func (h *Handle) Outstanding() uint64 { return h.requested.Load() }

// RefillRequest is the flag the control system watches to know when to
// publish the next waveform.
func (h *Handle) RefillRequest() *pv.Cell[bool] { return h.policy.Request() }

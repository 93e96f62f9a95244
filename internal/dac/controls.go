package dac

import (
	"context"

	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

// forwardControls relays the DAC enable state and the additive offset to
// the MCU. The offset is the Addition variable merged with the correction
// cell; whichever changed last wins on the device.
func (d *Dac) forwardControls(ctx context.Context) error {
	var state <-chan bool
	if d.vars.State != nil {
		state = d.vars.State.Subscribe(ctx)
	}

	var offsets []<-chan units.Uv
	if d.vars.Addition != nil {
		offsets = append(offsets, pv.Map(ctx, d.vars.Addition.Subscribe(ctx), units.VoltToUv))
	}
	if d.correction != nil {
		offsets = append(offsets, pv.Map(ctx, d.correction.Subscribe(ctx), units.VoltToUv))
	}
	var addition <-chan units.Uv
	if len(offsets) > 0 {
		addition = pv.Merge(ctx, offsets...)
	}

	for {
		select {
		case on, ok := <-state:
			if !ok {
				state = nil
				continue
			}
			if err := d.sendState(ctx, on); err != nil {
				return d.controlError(ctx, err)
			}
		case uv, ok := <-addition:
			if !ok {
				addition = nil
				continue
			}
			if err := d.sendAddition(ctx, uv); err != nil {
				return d.controlError(ctx, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (d *Dac) sendState(ctx context.Context, on bool) error {
	msg, err := d.out.Acquire(ctx)
	if err != nil {
		return err
	}
	msg.Reset(link.TagDacState)
	var b byte
	if on {
		b = 1
	}
	msg.PutByte(b)
	d.logger.Info("[dac] state", zap.Bool("enabled", on))
	return msg.Send(ctx)
}

func (d *Dac) sendAddition(ctx context.Context, uv units.Uv) error {
	msg, err := d.out.Acquire(ctx)
	if err != nil {
		return err
	}
	msg.Reset(link.TagDacAdd)
	msg.PutInt32(int32(uv))
	d.logger.Debug("[dac] addition", zap.Int32("uv", int32(uv)))
	return msg.Send(ctx)
}

func (d *Dac) controlError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	d.logger.Error("[dac] link failure while sending control", zap.Error(err))
	return err
}

package dac

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sleepywoodpecker/rp-goes-waveform/internal/buffer"
	"sleepywoodpecker/rp-goes-waveform/internal/demand"
	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/replay"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
	"sleepywoodpecker/rp-goes-waveform/internal/units"
)

type consumer struct {
	buffer      *buffer.Reader[units.Uv]
	requested   *demand.Counter
	policy      *replay.Policy
	out         *link.Writer
	sink        stats.Sink
	maxPoints   int
	swapTimeout time.Duration
	timer       *time.Timer
	logger      *zap.Logger
}

func newConsumer(
	reader *buffer.Reader[units.Uv],
	requested *demand.Counter,
	policy *replay.Policy,
	out *link.Writer,
	sink stats.Sink,
	maxPoints int,
	swapTimeout time.Duration,
	logger *zap.Logger,
) *consumer {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return &consumer{
		buffer:      reader,
		requested:   requested,
		policy:      policy,
		out:         out,
		sink:        sink,
		maxPoints:   maxPoints,
		swapTimeout: swapTimeout,
		timer:       timer,
		logger:      logger,
	}
}

// Run sends one DacData message per reserved chunk of demand. Only a link
// failure makes it return an error.
func (c *consumer) Run(ctx context.Context) error {
	for {
		count, err := c.requested.WaitSub(ctx, 1, uint64(c.maxPoints))
		if err != nil {
			c.logger.Info("[dac] consumer received shutdown signal")
			return nil
		}
		if err := c.send(ctx, int(count)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("[dac] link failure", zap.Error(err))
			return err
		}
	}
}

func (c *consumer) send(ctx context.Context, count int) error {
	msg, err := c.out.Acquire(ctx)
	if err != nil {
		return err
	}
	msg.Reset(link.TagDacData)

	// demand that does not fit the message goes back to the counter
	if room := msg.Room() / link.PointSize; count > room {
		c.requested.Add(uint64(count - room))
		count = room
	}

	sent := 0
	for sent < count {
		if c.buffer.Remaining() == 0 {
			ok, err := c.refill(ctx)
			if err != nil {
				msg.Release()
				return err
			}
			if !ok {
				c.sink.ReportLostEmpty(count - sent)
				c.logger.Warn("[dac] no data published in time", zap.Int("lost", count-sent), zap.Duration("timeout", c.swapTimeout))
				break
			}
		}
		for _, v := range c.buffer.Take(count - sent) {
			msg.PutInt32(int32(v))
			c.sink.UpdateValue(v)
		}
		sent = msg.Len() / link.PointSize
	}

	if sent == 0 {
		msg.Release()
		return nil
	}
	c.logger.Debug("[dac] points sent", zap.Int("count", sent))
	return msg.Send(ctx)
}

// refill makes samples available in the read half. It reports false when
// the bounded wait for a publish expired.
func (c *consumer) refill(ctx context.Context) (bool, error) {
	c.policy.RequestRefill()
	if c.buffer.TrySwap() {
		return true, nil
	}

	if !c.policy.ForceSwap() && c.buffer.Len() > 0 {
		c.buffer.Rewind()
		return true, nil
	}
	return c.waitSwap(ctx)
}

func (c *consumer) waitSwap(ctx context.Context) (bool, error) {
	if c.swapTimeout <= 0 {
		return true, c.buffer.Swap(ctx)
	}

	c.timer.Reset(c.swapTimeout)
	defer c.timer.Stop()
	for {
		select {
		case <-c.buffer.Ready():
			if c.buffer.TrySwap() {
				return true, nil
			}
		case <-c.timer.C:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Package session ties one MCU link to the DAC and ADC pipelines.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sleepywoodpecker/rp-goes-waveform/internal/adc"
	"sleepywoodpecker/rp-goes-waveform/internal/dac"
	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
)

type Options struct {
	PortName string
	Dac      dac.Config
	DacVars  dac.Vars
	// AdcOutputs holds one array variable per ADC channel.
	AdcOutputs []pv.ArraySink[float64]

	// KeepAlive is the KeepAlive message period. Zero disables it.
	KeepAlive time.Duration
	// StatsPeriod is the report period. Zero disables the reporter.
	StatsPeriod time.Duration
	// Telegraf receives influx lines every StatsPeriod. May be nil.
	Telegraf io.Writer
}

type Session struct {
	port       io.ReadWriteCloser
	portName   string
	keepAlive  time.Duration
	reader     *link.Reader
	writer     *link.Writer
	dac        *dac.Dac
	handle     *dac.Handle
	adc        *adc.Adc
	stats      *stats.Statistics
	reporter   *stats.Reporter
	correction *pv.Cell[float64]
	logger     *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func New(port io.ReadWriteCloser, opts Options, logger *zap.Logger) *Session {
	points := opts.Dac.MsgMaxPoints
	if points <= 0 {
		points = opts.DacVars.Array.MaxLen()
	}

	st := stats.New(len(opts.AdcOutputs))
	writer := link.NewWriter(port, link.PointSize*points)
	correction := pv.NewCell(0.0)
	d, handle := dac.New(opts.Dac, opts.DacVars, writer, st.Dac, correction, logger)

	s := &Session{
		port:       port,
		portName:   opts.PortName,
		keepAlive:  opts.KeepAlive,
		reader:     link.NewReader(port, opts.PortName, logger),
		writer:     writer,
		dac:        d,
		handle:     handle,
		adc:        adc.New(opts.AdcOutputs, st.Adc, logger),
		stats:      st,
		correction: correction,
		logger:     logger,
	}
	if opts.StatsPeriod > 0 {
		s.reporter = stats.NewReporter(opts.StatsPeriod, opts.Telegraf, st, logger)
	}
	return s
}

func (s *Session) Stats() *stats.Statistics { return s.stats }

// Correction is the additive DAC offset, summed with the addition variable
// on the MCU side.
func (s *Session) Correction() *pv.Cell[float64] { return s.correction }

func (s *Session) RefillRequest() *pv.Cell[bool] { return s.handle.RefillRequest() }

// Run serves the link until ctx is done or a task fails. The port is closed
// on return so a blocked read is released.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.reader.Run(ctx, s)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error { return s.dac.Run(ctx) })
	if s.reporter != nil {
		g.Go(func() error {
			s.reporter.Run(ctx)
			return nil
		})
	}
	if s.keepAlive > 0 {
		g.Go(func() error { return s.sendKeepAlive(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		s.closePort()
		return nil
	})

	err := g.Wait()
	s.logger.Info("[session] stopped", zap.String("portName", s.portName), zap.Error(err))
	return err
}

// HandleFrame dispatches one inbound message. Malformed payloads are logged
// and skipped.
func (s *Session) HandleFrame(ctx context.Context, f link.Frame) error {
	switch f.Tag {
	case link.TagDacRequest:
		count, err := link.DecodeDacRequest(f.Payload)
		if err != nil {
			s.logger.Warn("[session] bad DacRequest", zap.Error(err), zap.Int("len", len(f.Payload)))
			return nil
		}
		s.handle.Request(count)
	case link.TagAdcData:
		if err := s.adc.HandleData(f.Payload); err != nil {
			s.logger.Warn("[session] bad AdcData", zap.Error(err))
		}
	case link.TagDebug:
		s.logger.Info("[mcu] debug", zap.ByteString("message", f.Payload))
	default:
		return &link.UnknownTagError{Tag: f.Tag}
	}
	return nil
}

func (s *Session) sendKeepAlive(ctx context.Context) error {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msg, err := s.writer.Acquire(ctx)
			if err != nil {
				return nil
			}
			msg.Reset(link.TagKeepAlive)
			if err := msg.Send(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("[session] keep-alive failed", zap.Error(err))
				return err
			}
		}
	}
}

func (s *Session) closePort() {
	s.closeOnce.Do(func() {
		if err := s.port.Close(); err != nil {
			s.closeErr = fmt.Errorf("[session] error closing %s: %w", s.portName, err)
		}
	})
}

// Close releases the port and flushes the logger.
func (s *Session) Close() error {
	s.closePort()
	return multierr.Combine(s.closeErr, s.logger.Sync())
}

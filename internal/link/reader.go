package link

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[link] incorrect stop sequence detected: %v", e.ByteSequence)
}

// Handler receives every well-formed inbound frame. It runs on the reader
// goroutine and must not retain the payload.
type Handler interface {
	HandleFrame(ctx context.Context, f Frame) error
}

type HandlerFunc func(ctx context.Context, f Frame) error

func (fn HandlerFunc) HandleFrame(ctx context.Context, f Frame) error { return fn(ctx, f) }

// Reader frames the inbound byte stream. A port with a read timeout may
// return zero bytes without an error; the reader keeps polling and checks
// for cancellation in between.
type Reader struct {
	port     io.Reader
	logger   *zap.Logger
	portName string
	tempBuff []byte
	onebyte  []byte
}

func NewReader(port io.Reader, portName string, logger *zap.Logger) *Reader {
	return &Reader{
		port:     port,
		logger:   logger,
		portName: portName,
		tempBuff: make([]byte, HeaderSize+MaxPayload+len(StopSequence)),
		onebyte:  make([]byte, 1),
	}
}

// Run reads frames until ctx is done or the port fails. The stream is taken
// to start on a frame boundary; only a bad stop sequence triggers a resync.
// Framing problems are logged and recovered from; port errors and handler
// errors are returned.
func (r *Reader) Run(ctx context.Context, h Handler) error {
	for {
		frame, err := r.ReadFrame(ctx)
		if err != nil {
			var oosError *OutOfSyncError
			switch {
			case errors.As(err, &oosError):
				r.logger.Warn("[link] error while attempting to read frame", zap.Error(err), zap.String("portName", r.portName), zap.ByteString("payload", oosError.ByteSequence))
				if err := r.sync(ctx); err != nil {
					return err
				}
				continue
			case ctx.Err() != nil:
				r.logger.Info("[link] exiting from read loop", zap.String("portName", r.portName))
				return ctx.Err()
			default:
				r.logger.Error("[link] port read failed", zap.Error(err), zap.String("portName", r.portName))
				return fmt.Errorf("[link] read from %s: %w", r.portName, err)
			}
		}

		if err := h.HandleFrame(ctx, frame); err != nil {
			var tagError *UnknownTagError
			if errors.As(err, &tagError) {
				r.logger.Warn("[link] dropping frame", zap.Error(err), zap.String("portName", r.portName))
				continue
			}
			return err
		}
	}
}

// ReadFrame reads exactly one frame.
func (r *Reader) ReadFrame(ctx context.Context) (Frame, error) {
	header := r.tempBuff[:HeaderSize]
	if err := r.readFull(ctx, header); err != nil {
		return Frame{}, err
	}
	size := int(binary.LittleEndian.Uint16(header[1:]))
	end := HeaderSize + size + len(StopSequence)

	if err := r.readFull(ctx, r.tempBuff[HeaderSize:end]); err != nil {
		return Frame{}, err
	}

	// validate the frame by checking its trailing stop sequence
	if !bytes.Equal(r.tempBuff[end-len(StopSequence):end], StopSequence[:]) {
		byteSequenceCopy := make([]byte, end)
		copy(byteSequenceCopy, r.tempBuff[:end])
		return Frame{}, &OutOfSyncError{ByteSequence: byteSequenceCopy}
	}

	return Frame{
		Tag:     Tag(header[0]),
		Payload: r.tempBuff[HeaderSize : HeaderSize+size],
	}, nil
}

func (r *Reader) readFull(ctx context.Context, buf []byte) error {
	count := 0
	for count < len(buf) {
		n, err := r.port.Read(buf[count:])
		count += n
		if err != nil {
			if err == io.EOF && count > 0 && count < len(buf) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if n == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// sync discards input up to and including the next stop sequence.
func (r *Reader) sync(ctx context.Context) error {
	r.logger.Warn("[link] resyncing port", zap.String("portName", r.portName))

	var prev byte
	for {
		if err := r.readFull(ctx, r.onebyte); err != nil {
			return fmt.Errorf("[link] resync on %s: %w", r.portName, err)
		}
		if prev == StopSequence[0] && r.onebyte[0] == StopSequence[1] {
			return nil
		}
		prev = r.onebyte[0]
	}
}

package link

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer owns the outbound half of the link. Only one Guard exists at a
// time; its buffer is allocated once and reused for every message.
type Writer struct {
	w     io.Writer
	sem   chan struct{}
	guard Guard
}

// NewWriter creates a writer whose messages carry at most maxPayload bytes.
func NewWriter(w io.Writer, maxPayload int) *Writer {
	if maxPayload <= 0 || maxPayload > MaxPayload {
		panic(fmt.Sprintf("link: invalid max payload %d", maxPayload))
	}
	wr := &Writer{
		w:   w,
		sem: make(chan struct{}, 1),
	}
	wr.guard = Guard{
		wr:         wr,
		buf:        make([]byte, 0, HeaderSize+maxPayload+len(StopSequence)),
		maxPayload: maxPayload,
	}
	return wr
}

// Acquire waits for exclusive access to the outbound message buffer.
func (w *Writer) Acquire(ctx context.Context) (*Guard, error) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	w.guard.Reset(TagKeepAlive)
	return &w.guard, nil
}

// Guard is the message under construction. Send or Release hands it back.
type Guard struct {
	wr         *Writer
	buf        []byte
	maxPayload int
}

// Reset starts a new, empty message with the given tag.
func (g *Guard) Reset(tag Tag) {
	g.buf = append(g.buf[:0], byte(tag), 0, 0)
}

func (g *Guard) Tag() Tag { return Tag(g.buf[0]) }

// Len is the payload size in bytes.
func (g *Guard) Len() int { return len(g.buf) - HeaderSize }

// Room is the number of payload bytes still free.
func (g *Guard) Room() int { return g.maxPayload - g.Len() }

func (g *Guard) PutByte(b byte) bool {
	if g.Room() < 1 {
		return false
	}
	g.buf = append(g.buf, b)
	return true
}

func (g *Guard) PutInt32(v int32) bool {
	if g.Room() < 4 {
		return false
	}
	g.buf = binary.LittleEndian.AppendUint32(g.buf, uint32(v))
	return true
}

// Send frames the message, writes it, and releases the guard. It blocks
// for as long as the port does.
func (g *Guard) Send(ctx context.Context) error {
	defer g.Release()

	if err := ctx.Err(); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(g.buf[1:HeaderSize], uint16(g.Len()))
	g.buf = append(g.buf, StopSequence[:]...)

	for data := g.buf; len(data) > 0; {
		n, err := g.wr.w.Write(data)
		if err == nil && n == 0 {
			err = io.ErrShortWrite
		}
		if err != nil {
			return fmt.Errorf("[link] error sending %s message: %w", g.Tag(), err)
		}
		data = data[n:]
	}
	return nil
}

// Release drops the message without sending it.
func (g *Guard) Release() {
	select {
	case <-g.wr.sem:
	default:
	}
}

// Package replay decides what the consumer does when its read half runs
// dry, and raises the refill request seen by the producers.
package replay

import (
	"fmt"
	"strings"
	"sync/atomic"

	"sleepywoodpecker/rp-goes-waveform/internal/pv"
)

type Mode uint32

const (
	// OneShot emits every published sample once and waits for the next
	// publish when the read half is exhausted.
	OneShot Mode = iota
	// Cyclic replays the current read half from its start until a new
	// publish is swapped in.
	Cyclic
)

func (m Mode) String() string {
	switch m {
	case OneShot:
		return "oneshot"
	case Cyclic:
		return "cyclic"
	default:
		return fmt.Sprintf("Mode(%d)", uint32(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "oneshot", "one_shot", "0":
		return OneShot, nil
	case "cyclic", "1":
		return Cyclic, nil
	default:
		return OneShot, fmt.Errorf("replay: unknown mode %q", s)
	}
}

// Policy holds the replay mode and the shared refill request flag.
type Policy struct {
	mode    atomic.Uint32
	request *pv.Cell[bool]
}

// NewPolicy starts with the refill request raised so the first waveform is
// asked for before anything was swapped.
func NewPolicy(mode Mode) *Policy {
	p := &Policy{request: pv.NewCell(true)}
	p.mode.Store(uint32(mode))
	return p
}

func (p *Policy) Mode() Mode { return Mode(p.mode.Load()) }

// SetMode takes effect at the next swap decision.
func (p *Policy) SetMode(m Mode) { p.mode.Store(uint32(m)) }

// ForceSwap reports whether an exhausted read half must be swapped before
// more samples are emitted. In Cyclic mode the reader may rewind instead.
func (p *Policy) ForceSwap() bool {
	switch p.Mode() {
	case Cyclic:
		return false
	default:
		return true
	}
}

// RequestRefill raises the refill request. Called on every swap attempt.
func (p *Policy) RequestRefill() { p.request.Store(true) }

// Served lowers the refill request. Producers call it on each update.
func (p *Policy) Served() { p.request.Store(false) }

func (p *Policy) Requested() bool { return p.request.Load() }

// Request exposes the refill flag as a variable for the control system.
func (p *Policy) Request() *pv.Cell[bool] { return p.request }

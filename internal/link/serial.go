package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens the MCU port, applies the read timeout and drops whatever
// was buffered before we got here.
func OpenSerial(portName string, baudrate int, readTimeout time.Duration) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudrate,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("[link] error opening serial port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("[link] error setting read timeout on %s: %w", portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("[link] error resetting input buffer on %s: %w", portName, err)
	}
	return port, nil
}

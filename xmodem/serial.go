package xmodem

import (
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is used when SerialConfig.BaudRate is zero.
const DefaultBaudRate = 38400

// SerialConfig describes a serial line. The protocol needs 8 data bits and no
// parity since blocks carry arbitrary bytes.
type SerialConfig struct {
	Port     string
	BaudRate int
}

// SerialPort is a transport over a serial line. Reads block until data
// arrives; there is no read timeout.
type SerialPort struct {
	serial.Port
	name string
}

// OpenSerial opens the named port in 8N1 mode.
func OpenSerial(config SerialConfig) (*SerialPort, error) {
	if config.Port == "" {
		return nil, errors.New("serial port name required")
	}
	baud := config.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s @ %d", config.Port, baud)
	}

	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "reset input buffer on %s", config.Port)
	}

	return &SerialPort{Port: port, name: config.Port}, nil
}

// Name returns the device name.
func (p *SerialPort) Name() string {
	return p.name
}

// ListSerialPorts returns the serial ports present on the system.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}

package serial

import (
	"fmt"
	"io"

	goserial "go.bug.st/serial"
)

// PortConfig describes a physical serial port to open. This is the one
// third-party dependency in this module chosen purely because the domain
// (RS-232 to a physical show-control rig) requires it; no example repo in
// the retrieval pack talks to a real serial port, so there is no pack
// grounding for it beyond "this is the library the Go ecosystem reaches
// for" (see DESIGN.md).
type PortConfig struct {
	Name     string
	BaudRate int
	DataBits int
	Parity   goserial.Parity
	StopBits goserial.StopBits
}

// DefaultPortConfig returns sane 8N1 defaults at baud for the named port.
func DefaultPortConfig(name string, baud int) PortConfig {
	return PortConfig{
		Name:     name,
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
}

// OpenPortFunc returns an Opener that opens cfg's physical port fresh on
// every call — the shape Link.New and every reconnect attempt need (spec.md
// §4.6 "Disconnected ... attempt open").
func OpenPortFunc(cfg PortConfig) Opener {
	return func() (io.ReadWriteCloser, error) {
		mode := &goserial.Mode{
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			Parity:   cfg.Parity,
			StopBits: cfg.StopBits,
		}
		port, err := goserial.Open(cfg.Name, mode)
		if err != nil {
			return nil, fmt.Errorf("serial: open %s: %w", cfg.Name, err)
		}
		return port, nil
	}
}

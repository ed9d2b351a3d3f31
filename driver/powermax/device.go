//go:build !tinygo

package powermax

import (
	"errors"
	"runtime"

	"github.com/tarm/serial"
)

// Open opens dev as the panel's PowerLink serial connection, or, if
// dev is empty, probes the platform's usual alarm-panel serial
// adapter paths.
func Open(dev string) (Transport, error) {
	// PowerLink's fixed hardware parameters.
	const baudRate = 9600

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyUSB1")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("powermax: no device specified")
	}
	var firstErr error
	for _, dev := range devices {
		c := &serial.Config{Name: dev, Baud: baudRate}
		s, err := serial.OpenPort(c)
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

package meshtastic

import (
	"fmt"
	"net"
	"time"
)

// DefaultTCPPort is the port the Meshtastic firmware listens on for the
// framed stream API.
const DefaultTCPPort = 4403

// NewTCPTransport creates a new StreamTransport connected to a device's
// network stream API at host:port. A zero port selects DefaultTCPPort.
func NewTCPTransport(host string, port int) (*StreamTransport, error) {
	if port == 0 {
		port = DefaultTCPPort
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}

	return &StreamTransport{Stream: conn}, nil
}

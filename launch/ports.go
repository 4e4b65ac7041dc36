package launch

import (
	"fmt"
	"net"
	"strconv"
)

// FindFreePort walks the inclusive range [minPort, maxPort] and returns the
// first port that accepts a loopback listener. Only the control API picks its
// port this way; the app server port always stays exactly as configured.
func FindFreePort(minPort, maxPort int) (int, error) {
	if minPort <= 0 || maxPort > 65535 || minPort > maxPort {
		return 0, fmt.Errorf("invalid port range %d-%d", minPort, maxPort)
	}
	for port := minPort; port <= maxPort; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("every port from %d to %d is in use", minPort, maxPort)
}

// IsPortFree reports whether a TCP port can currently be bound. Used by the
// doctor command to warn about an already-occupied server port.
func IsPortFree(address string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
